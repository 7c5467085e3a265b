// Package engine provides the generation engine used by the eventbinder
// command and the generator package: it loads packages, checks their
// handler declarations and writes one binder file per package.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"

	"github.com/ehabterra/eventbinder/internal/check"
	"github.com/ehabterra/eventbinder/internal/codegen"
	"github.com/ehabterra/eventbinder/internal/metadata"
	"github.com/ehabterra/eventbinder/internal/telemetry"
	"github.com/ehabterra/eventbinder/pkg/patterns"
)

const (
	// Default values for generation
	DefaultInputDir   = "."
	DefaultPattern    = "./..."
	DefaultOutputName = codegen.DefaultFilename
	CopyrightNotice   = "eventbinder - Copyright 2025 Ehab Terra"
	LicenseNotice     = "Licensed under the Apache License 2.0. See LICENSE and NOTICE."

	tracerName = "github.com/ehabterra/eventbinder/internal/engine"
)

// EngineConfig holds configuration for the generation engine
type EngineConfig struct {
	InputDir   string
	Patterns   []string
	OutputName string
	// TableFiles are handler declaration files, relative to InputDir.
	TableFiles      []string
	IncludePackages []string
	ExcludePackages []string
	IncludeTypes    []string
	ExcludeTypes    []string
	BuildTags       []string
	Workers         int
	// CheckOnly validates and compares with the files on disk, writing nothing.
	CheckOnly bool
	// DryRun renders files into the report instead of writing them.
	DryRun       bool
	BinderImport string
	Logger       *zap.Logger

	moduleRoot string
}

// DefaultEngineConfig returns a new EngineConfig with default values
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		InputDir:     DefaultInputDir,
		Patterns:     []string{DefaultPattern},
		OutputName:   DefaultOutputName,
		Workers:      runtime.GOMAXPROCS(0),
		BinderImport: codegen.DefaultBinderImport,
		Logger:       zap.NewNop(),
	}
}

// Engine runs generation for one configuration
type Engine struct {
	config *EngineConfig
	logger *zap.Logger
}

// NewEngine creates a new Engine with the given configuration
func NewEngine(config *EngineConfig) *Engine {
	defaultConfig := DefaultEngineConfig()

	if config != nil {
		// Merge provided config with defaults
		if config.InputDir == "" {
			config.InputDir = defaultConfig.InputDir
		}
		if len(config.Patterns) == 0 {
			config.Patterns = defaultConfig.Patterns
		}
		if config.OutputName == "" {
			config.OutputName = defaultConfig.OutputName
		}
		if config.Workers <= 0 {
			config.Workers = defaultConfig.Workers
		}
		if config.BinderImport == "" {
			config.BinderImport = defaultConfig.BinderImport
		}
		if config.Logger == nil {
			config.Logger = defaultConfig.Logger
		}
	} else {
		config = defaultConfig
	}

	return &Engine{config: config, logger: config.Logger}
}

// Config returns the effective configuration.
func (e *Engine) Config() *EngineConfig {
	return e.config
}

// Action is what happened to a package's generated file.
type Action string

const (
	ActionWritten   Action = "written"
	ActionUnchanged Action = "unchanged"
	ActionRemoved   Action = "removed"
	ActionSkipped   Action = "skipped"
	// ActionStale and ActionPending are reported by check and dry runs.
	ActionStale   Action = "stale"
	ActionPending Action = "pending"
)

// PackageReport describes one processed package.
type PackageReport struct {
	Path          string
	Output        string
	Owners        int
	Registrations int
	Action        Action
	// Source is the rendered file, kept for dry runs.
	Source []byte
}

// Report is the outcome of a run.
type Report struct {
	Packages []*PackageReport
	Table    *metadata.Table
}

// Stale returns the outputs that do not match what generation would write.
func (r *Report) Stale() []string {
	var out []string
	for _, p := range r.Packages {
		if p.Action == ActionStale {
			out = append(out, p.Output)
		}
	}
	return out
}

// Registrations returns the total number of registrations.
func (r *Report) Registrations() int {
	n := 0
	for _, p := range r.Packages {
		n += p.Registrations
	}
	return n
}

// DiagnosticsError is returned when handler declarations are invalid.
type DiagnosticsError struct {
	Diagnostics []check.Diagnostic
}

func (e *DiagnosticsError) Error() string {
	lines := make([]string, 0, len(e.Diagnostics)+1)
	lines = append(lines, fmt.Sprintf("%d invalid handler declaration(s):", len(e.Diagnostics)))
	for _, d := range e.Diagnostics {
		lines = append(lines, "\t"+d.String())
	}
	return strings.Join(lines, "\n")
}

// Run loads, checks and generates.
func (e *Engine) Run(ctx context.Context) (report *Report, err error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "engine.Run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Validate input directory
	targetPath, err := filepath.Abs(e.config.InputDir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve input directory: %w", err)
	}
	if _, err := os.Stat(targetPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("input directory does not exist: %s", targetPath)
	}

	e.config.moduleRoot, err = e.findModuleRoot(targetPath)
	if err != nil {
		return nil, fmt.Errorf("could not find Go module: %w", err)
	}

	pkgFilter, err := patterns.NewSet(e.config.IncludePackages, e.config.ExcludePackages)
	if err != nil {
		return nil, fmt.Errorf("invalid package pattern: %w", err)
	}
	typeFilter, err := patterns.NewSet(e.config.IncludeTypes, e.config.ExcludeTypes)
	if err != nil {
		return nil, fmt.Errorf("invalid type pattern: %w", err)
	}

	decls, err := e.loadDeclarations(targetPath)
	if err != nil {
		return nil, err
	}

	pkgs, err := e.load(ctx, targetPath)
	if err != nil {
		return nil, err
	}

	var selected []*packages.Package
	for _, pkg := range pkgs {
		if len(pkg.GoFiles) == 0 || pkg.Types == nil {
			continue
		}
		if !pkgFilter.Allow(pkg.PkgPath) {
			e.logger.Debug("package excluded", zap.String("package", pkg.PkgPath))
			continue
		}
		selected = append(selected, pkg)
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].PkgPath < selected[j].PkgPath })

	var diags []check.Diagnostic
	loaded := make(map[string]bool, len(selected))
	for _, pkg := range selected {
		loaded[pkg.PkgPath] = true
	}
	for path, ds := range decls {
		if loaded[path] {
			continue
		}
		for _, d := range ds {
			diags = append(diags, check.Diagnostic{
				Position: d.Position,
				Message:  fmt.Sprintf("handler entry %s: package %s is not loaded", d.ID(), path),
			})
		}
	}

	reports := make([]*PackageReport, len(selected))
	tables := make([]*metadata.PackageTable, len(selected))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for i, pkg := range selected {
		i, pkg := i, pkg
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep, table, pkgDiags, err := e.processPackage(gctx, pkg, decls[pkg.PkgPath], typeFilter)
			if err != nil {
				return err
			}
			reports[i] = rep
			tables[i] = table
			if len(pkgDiags) > 0 {
				mu.Lock()
				diags = append(diags, pkgDiags...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report = &Report{Table: &metadata.Table{}}
	for i := range selected {
		if reports[i] != nil {
			report.Packages = append(report.Packages, reports[i])
		}
		if tables[i] != nil && len(tables[i].Owners) > 0 {
			report.Table.Packages = append(report.Table.Packages, tables[i])
		}
	}
	report.Table.Sort()
	span.SetAttributes(
		attribute.Int("eventbinder.packages", len(selected)),
		attribute.Int("eventbinder.registrations", report.Registrations()),
	)

	if len(diags) > 0 {
		sortDiagnostics(diags)
		return report, &DiagnosticsError{Diagnostics: diags}
	}
	return report, nil
}

// processPackage checks one package and writes, compares or removes its
// generated file.
func (e *Engine) processPackage(ctx context.Context, pkg *packages.Package, decls []metadata.Declaration, typeFilter *patterns.Set) (*PackageReport, *metadata.PackageTable, []check.Diagnostic, error) {
	_, span := telemetry.Tracer(tracerName).Start(ctx, "engine.package")
	defer span.End()
	span.SetAttributes(attribute.String("eventbinder.package", pkg.PkgPath))

	res := check.Package(check.Input{
		Fset:      pkg.Fset,
		Pkg:       pkg.Types,
		Info:      pkg.TypesInfo,
		Files:     pkg.Syntax,
		KeepOwner: typeFilter.Allow,
	}, decls)
	if !res.OK() {
		span.SetStatus(codes.Error, "invalid handler declarations")
		return nil, nil, res.Diagnostics, nil
	}

	output := filepath.Join(filepath.Dir(pkg.GoFiles[0]), e.config.OutputName)
	rep := &PackageReport{
		Path:          pkg.PkgPath,
		Output:        output,
		Owners:        len(res.Owners),
		Registrations: res.Registrations(),
	}
	span.SetAttributes(attribute.Int("eventbinder.registrations", rep.Registrations))

	existing, err := os.ReadFile(output)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil, fmt.Errorf("failed to read %s: %w", output, err)
	}
	ours := bytes.HasPrefix(existing, []byte(codegen.Header))

	if len(res.Owners) == 0 {
		rep.Action = ActionSkipped
		if ours {
			rep.Action, err = e.removeStale(output)
			if err != nil {
				return nil, nil, nil, err
			}
		}
		return rep, nil, nil, nil
	}

	if existing != nil && !ours {
		return nil, nil, nil, fmt.Errorf("refusing to overwrite %s: file was not generated by eventbinder", output)
	}

	src, err := codegen.Generate(res, codegen.Options{Filename: output, BinderImport: e.config.BinderImport})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate %s: %w", pkg.PkgPath, err)
	}

	table := res.Table()
	table.Output = e.relative(output)

	switch {
	case bytes.Equal(existing, src):
		rep.Action = ActionUnchanged
	case e.config.CheckOnly:
		rep.Action = ActionStale
	case e.config.DryRun:
		rep.Action = ActionPending
		rep.Source = src
	default:
		if err := os.WriteFile(output, src, 0644); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to write %s: %w", output, err)
		}
		rep.Action = ActionWritten
		e.logger.Info("generated",
			zap.String("package", pkg.PkgPath),
			zap.String("file", table.Output),
			zap.Int("registrations", rep.Registrations))
	}
	return rep, table, nil, nil
}

// removeStale deletes a generated file whose package no longer has handlers.
func (e *Engine) removeStale(output string) (Action, error) {
	if e.config.CheckOnly {
		return ActionStale, nil
	}
	if e.config.DryRun {
		return ActionPending, nil
	}
	if err := os.Remove(output); err != nil {
		return "", fmt.Errorf("failed to remove stale %s: %w", output, err)
	}
	e.logger.Info("removed stale binder", zap.String("file", e.relative(output)))
	return ActionRemoved, nil
}

// load type-checks the configured patterns.
func (e *Engine) load(ctx context.Context, dir string) ([]*packages.Package, error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "engine.load")
	defer span.End()

	cfg := &packages.Config{
		Context: ctx,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
			packages.NeedTypes | packages.NeedTypesInfo | packages.NeedImports,
		Dir:   dir,
		Tests: false,
	}
	if len(e.config.BuildTags) > 0 {
		cfg.BuildFlags = []string{"-tags=" + strings.Join(e.config.BuildTags, ",")}
	}

	pkgs, err := packages.Load(cfg, e.config.Patterns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load packages: %w", err)
	}

	var loadErrs []string
	for _, pkg := range pkgs {
		for _, perr := range pkg.Errors {
			if e.inGeneratedFile(perr) {
				// A stale binder may reference removed methods; it is
				// about to be regenerated.
				e.logger.Debug("ignoring error in generated file", zap.String("error", perr.Error()))
				continue
			}
			loadErrs = append(loadErrs, perr.Error())
		}
	}
	if len(loadErrs) > 0 {
		return nil, fmt.Errorf("packages contain errors:\n\t%s", strings.Join(loadErrs, "\n\t"))
	}

	span.SetAttributes(attribute.Int("eventbinder.loaded", len(pkgs)))
	e.logger.Debug("packages loaded", zap.Int("count", len(pkgs)), zap.Strings("patterns", e.config.Patterns))
	return pkgs, nil
}

func (e *Engine) inGeneratedFile(perr packages.Error) bool {
	name := string(filepath.Separator) + e.config.OutputName
	pos := perr.Pos
	if i := strings.Index(pos, ".go:"); i >= 0 {
		pos = pos[:i+3]
	}
	return strings.HasSuffix(pos, name) || pos == e.config.OutputName
}

// loadDeclarations reads the table files and groups entries by package.
func (e *Engine) loadDeclarations(dir string) (map[string][]metadata.Declaration, error) {
	out := make(map[string][]metadata.Declaration)
	for _, name := range e.config.TableFiles {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		f, err := metadata.LoadDeclarations(path)
		if err != nil {
			return nil, err
		}
		for pkg, ds := range f.ByPackage() {
			out[pkg] = append(out[pkg], ds...)
		}
		e.logger.Debug("handler table loaded", zap.String("file", path), zap.Int("entries", len(f.Handlers)))
	}
	return out, nil
}

// ModuleRoot returns the root of the module found by the last Run.
func (e *Engine) ModuleRoot() string {
	return e.config.moduleRoot
}

func (e *Engine) relative(path string) string {
	if e.config.moduleRoot == "" {
		return path
	}
	rel, err := filepath.Rel(e.config.moduleRoot, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// findModuleRoot finds the root directory of a Go module by looking for go.mod
func (e *Engine) findModuleRoot(startPath string) (string, error) {
	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", err
	}

	current := absPath
	for {
		goModPath := filepath.Join(current, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break // reached root
		}
		current = parent
	}

	return "", fmt.Errorf("no go.mod found in %s or any parent directory", startPath)
}

func sortDiagnostics(diags []check.Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i].Position, diags[j].Position
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}
