package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ehabterra/eventbinder/internal/engine"
)

func newGenerateCmd(a *app) *cobra.Command {
	var checkOnly, dryRun bool

	cmd := &cobra.Command{
		Use:   "generate [patterns...]",
		Short: "Write eventbinder_gen.go files",
		Long: `Generate validates the handler declarations of the packages matching the
patterns (default ./...) and writes one binder file per package. Stale
binder files of packages without handlers are removed.

With --check nothing is written and the command fails when a generated file
is missing or out of date. With --dry-run the files are printed instead.`,
		Example: `  eventbinder generate
  eventbinder generate ./ui/... --exclude-type 'mock*'
  eventbinder generate --check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ec := a.cfg.engineConfig(args)
			ec.CheckOnly = checkOnly
			ec.DryRun = dryRun
			ec.Logger = a.logger

			report, err := engine.NewEngine(ec).Run(cmd.Context())
			if err != nil {
				return err
			}

			if dryRun {
				out := cmd.OutOrStdout()
				for _, p := range report.Packages {
					if p.Action != engine.ActionPending {
						continue
					}
					if p.Source == nil {
						fmt.Fprintf(out, "// %s would be removed\n", p.Output)
						continue
					}
					fmt.Fprintf(out, "// %s\n%s\n", p.Output, p.Source)
				}
			}

			if checkOnly {
				if stale := report.Stale(); len(stale) > 0 {
					return fmt.Errorf("%d generated file(s) out of date, run eventbinder generate:\n\t%s",
						len(stale), strings.Join(stale, "\n\t"))
				}
			}

			a.logger.Info("generation complete",
				zap.Int("packages", len(report.Packages)),
				zap.Int("registrations", report.Registrations()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Fail if generated files are missing or out of date; write nothing")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print generated files instead of writing them")
	cmd.MarkFlagsMutuallyExclusive("check", "dry-run")
	return cmd
}
