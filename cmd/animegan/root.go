package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LdDl/animeface-gan/logging"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "animegan",
		Short: "Generative models for anime faces",
		Long: `animegan keeps a catalogue of generative model papers and anime face
datasets, inspects datasets and trains small GANs with gorgonia.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := cmd.Flags().GetString("log-level")
			if err != nil {
				return err
			}
			return logging.Setup(cmd.ErrOrStderr(), level)
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")

	cmd.AddCommand(NewCatalogueCmd())
	cmd.AddCommand(NewDatasetCmd())
	cmd.AddCommand(NewTrainCmd())
	cmd.AddCommand(NewRunsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
