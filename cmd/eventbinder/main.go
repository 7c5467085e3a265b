// Copyright 2025 Ehab Terra
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command eventbinder generates static event handler registration for
// methods marked //eventbinder:handler.
//
// Typical use is a go:generate line in the package that declares handlers:
//
//	//go:generate go run github.com/ehabterra/eventbinder/cmd/eventbinder generate .
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ehabterra/eventbinder/internal/engine"
	"github.com/ehabterra/eventbinder/internal/logging"
	"github.com/ehabterra/eventbinder/internal/profiler"
	"github.com/ehabterra/eventbinder/internal/telemetry"
)

// app holds the state shared by the subcommands of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *Config
	logger     *zap.Logger
	shutdown   telemetry.ShutdownFunc
	prof       *profiler.Profiler
	stderr     io.Writer
}

func newApp(stderr io.Writer) *app {
	return &app{v: viper.New(), stderr: stderr}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "eventbinder",
		Short: "Generate event handler registration from //eventbinder:handler markers",
		Long: `eventbinder scans Go packages for methods marked //eventbinder:handler,
validates them and writes one eventbinder_gen.go per package with a static
binder for every owner type.

Configuration is read from .eventbinder.yaml in --dir (or --config), from
EVENTBINDER_* environment variables and from flags, flags winning.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Config file (default: .eventbinder.yaml in --dir)")
	flags.StringP("dir", "d", engine.DefaultInputDir, "Directory to run in; patterns are relative to it")
	flags.String("output-name", engine.DefaultOutputName, "Name of the generated file in each package")
	flags.StringSlice("table", nil, "Handler table file (YAML or JSON); repeatable")
	flags.StringSlice("include-package", nil, "Only process packages matching the pattern; repeatable")
	flags.StringSlice("exclude-package", nil, "Skip packages matching the pattern; repeatable")
	flags.StringSlice("include-type", nil, "Only bind owner types matching the pattern; repeatable")
	flags.StringSlice("exclude-type", nil, "Skip owner types matching the pattern; repeatable")
	flags.StringSlice("tags", nil, "Build tags used when loading packages")
	flags.Int("workers", 0, "Packages processed concurrently (default: GOMAXPROCS)")
	flags.String("binder-import", "", "Import path of the binder runtime package")
	flags.Bool("trace", false, "Print OpenTelemetry spans to stderr")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")
	flags.String("log-output", "", "Log output: stderr, stdout or a file path")
	flags.Bool("cpu-profile", false, "Write a CPU profile")
	flags.Bool("mem-profile", false, "Write a heap profile")
	flags.Bool("trace-profile", false, "Write a runtime execution trace")
	flags.String("profile-dir", "", "Directory for profiles")

	root.AddCommand(
		newGenerateCmd(a),
		newCheckCmd(a),
		newTableCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads the configuration and starts logging, tracing and profiling.
func (a *app) setup(cmd *cobra.Command) error {
	if err := bindFlags(a.v, cmd.Root().PersistentFlags()); err != nil {
		return err
	}

	cfg, err := loadConfig(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		OutputPath: cfg.Log.OutputPath,
		Format:     cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.logger = logger
	if used := a.v.ConfigFileUsed(); used != "" {
		logger.Debug("config loaded", zap.String("file", used))
	}

	a.shutdown, err = telemetry.Init(cfg.Trace, a.stderr)
	if err != nil {
		return err
	}

	if pc := cfg.profilerConfig(); pc.Enabled() {
		a.prof = profiler.NewProfiler(pc, logger)
		if err := a.prof.Start(); err != nil {
			return fmt.Errorf("failed to start profiling: %w", err)
		}
	}
	return nil
}

// teardown stops profiling and flushes spans.
func (a *app) teardown(ctx context.Context) error {
	var errs []error
	if a.prof != nil {
		errs = append(errs, a.prof.Stop())
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	return errors.Join(errs...)
}

// log returns the configured logger, or a console logger when setup did
// not get that far.
func (a *app) log() *zap.Logger {
	if a.logger != nil {
		return a.logger
	}
	return logging.NewWriter(a.stderr, zapcore.InfoLevel, "console")
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stderr)
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if terr := a.teardown(context.WithoutCancel(ctx)); err == nil {
		err = terr
	}
	if err == nil {
		return 0
	}

	var diagErr *engine.DiagnosticsError
	if errors.As(err, &diagErr) {
		for _, d := range diagErr.Diagnostics {
			fmt.Fprintln(stderr, d.String())
		}
		a.log().Error("invalid handler declarations", zap.Int("count", len(diagErr.Diagnostics)))
		return 1
	}

	a.log().Error("eventbinder failed", zap.Error(err))
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
