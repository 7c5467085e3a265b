package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ehabterra/eventbinder/internal/engine"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check [patterns...]",
		Short: "Validate handler declarations without writing",
		Long: `Check reports every invalid //eventbinder:handler marker and handler table
entry as file:line:col: message and exits with status 1 when there is one.
Out of date generated files are logged as warnings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ec := a.cfg.engineConfig(args)
			ec.CheckOnly = true
			ec.Logger = a.logger

			report, err := engine.NewEngine(ec).Run(cmd.Context())
			if err != nil {
				return err
			}

			for _, path := range report.Stale() {
				a.logger.Warn("generated file out of date", zap.String("file", path))
			}
			a.logger.Info("handler declarations ok",
				zap.Int("packages", len(report.Packages)),
				zap.Int("registrations", report.Registrations()))
			return nil
		},
	}
}
