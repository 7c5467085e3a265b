package main

import (
	"github.com/spf13/cobra"

	"github.com/ehabterra/eventbinder/internal/engine"
	"github.com/ehabterra/eventbinder/internal/metadata"
)

func newTableCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "table [patterns...]",
		Short: "Write the resolved handler table",
		Long: `Table writes every validated handler with its fully qualified event types,
as YAML or JSON depending on the extension of --output. "-" writes YAML to
standard output. Nothing else is written.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ec := a.cfg.engineConfig(args)
			ec.DryRun = true
			ec.Logger = a.logger

			report, err := engine.NewEngine(ec).Run(cmd.Context())
			if err != nil {
				return err
			}
			return metadata.WriteTable(report.Table, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", metadata.Stdout, "Output file (.yaml, .yml or .json)")
	return cmd
}
