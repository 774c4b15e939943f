package main

import (
	"fmt"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/LdDl/animeface-gan/catalogue"
)

// NewCatalogueCmd creates the catalogue command group.
func NewCatalogueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogue",
		Short: "Work with the catalogue of papers and datasets",
	}
	cmd.PersistentFlags().StringP("file", "f", "", "Catalogue YAML file (built-in catalogue if empty)")

	render := &cobra.Command{
		Use:   "render",
		Short: "Render the catalogue as markdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadCatalogue(cmd)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				return c.Render(cmd.OutOrStdout())
			}
			f, err := os.Create(out)
			if err != nil {
				return errors.Wrap(err, "Can't create output file")
			}
			defer f.Close()
			if err := c.Render(f); err != nil {
				return err
			}
			log.WithField("path", out).Info("catalogue rendered")
			return f.Sync()
		},
	}
	render.Flags().StringP("output", "o", "", "Output file (stdout if empty)")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check catalogue entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadCatalogue(cmd)
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d models, %d datasets\n", len(c.Models), len(c.Datasets))
			return nil
		},
	}

	checkLinks := &cobra.Command{
		Use:   "check-links",
		Short: "Request every paper, implementation and dataset link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadCatalogue(cmd)
			if err != nil {
				return err
			}
			opts := catalogue.DefaultLinkCheckOptions()
			opts.Concurrency, _ = cmd.Flags().GetInt("concurrency")
			opts.Timeout, _ = cmd.Flags().GetDuration("timeout")
			results, err := c.CheckLinks(cmd.Context(), opts)
			if err != nil {
				return err
			}
			broken := 0
			for _, r := range results {
				if r.OK() {
					continue
				}
				broken++
				reason := fmt.Sprintf("status %d", r.Status)
				if r.Err != nil {
					reason = r.Err.Error()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "BROKEN %s [%s] %s: %s\n", r.Owner, r.Field, r.URL, reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d links checked, %d broken\n", len(results), broken)
			if broken > 0 {
				return fmt.Errorf("%d broken links", broken)
			}
			return nil
		},
	}
	checkLinks.Flags().IntP("concurrency", "c", 8, "Number of concurrent requests")
	checkLinks.Flags().Duration("timeout", 15*time.Second, "Timeout of one request")

	cmd.AddCommand(render, validate, checkLinks)
	return cmd
}

func loadCatalogue(cmd *cobra.Command) (*catalogue.Catalogue, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return catalogue.Default()
	}
	return catalogue.Load(path)
}
