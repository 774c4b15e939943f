package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/LdDl/animeface-gan/store"
	"github.com/LdDl/animeface-gan/train"
)

// NewRunsCmd creates the runs command group.
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse training history",
	}
	cmd.PersistentFlags().String("db-dir", train.DefaultDataDir(), "Directory of the run history database")

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID[:8], r.Name, r.Status, r.StartedAt.Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	list.Flags().Int("limit", 20, "Maximum number of runs")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show a run with its latest metrics and samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmd.Context()
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			metrics, err := st.Metrics(ctx, run.ID)
			if err != nil {
				return err
			}
			samples, err := st.Samples(ctx, run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:       %s\n", run.ID)
			fmt.Fprintf(out, "name:     %s\n", run.Name)
			fmt.Fprintf(out, "status:   %s\n", run.Status)
			fmt.Fprintf(out, "started:  %s\n", run.StartedAt.Format(time.DateTime))
			if !run.FinishedAt.IsZero() {
				fmt.Fprintf(out, "finished: %s\n", run.FinishedAt.Format(time.DateTime))
			}

			last := make(map[string]store.Metric)
			for _, m := range metrics {
				last[m.Key] = m
			}
			keys := make([]string, 0, len(last))
			for k := range last {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			if len(keys) > 0 {
				fmt.Fprintln(out, "metrics:")
				for _, k := range keys {
					fmt.Fprintf(out, "  %s = %.5f (step %d)\n", k, last[k].Value, last[k].Step)
				}
			}
			if len(samples) > 0 {
				fmt.Fprintln(out, "samples:")
				for _, s := range samples {
					fmt.Fprintf(out, "  %d %s\n", s.Step, s.Path)
				}
			}
			fmt.Fprintf(out, "config:\n%s", run.Config)
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	dir, _ := cmd.Flags().GetString("db-dir")
	return store.Open(dir, store.Options{EnableWAL: true})
}
