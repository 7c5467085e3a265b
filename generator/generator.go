// Package generator provides a simple, public API to generate event binders
// for a Go project directory, matching the usage shown in README.
package generator

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ehabterra/eventbinder/internal/engine"
	"github.com/ehabterra/eventbinder/internal/metadata"
)

// Options configures a Generator. The zero value generates
// eventbinder_gen.go for every package below the directory.
type Options struct {
	Patterns        []string
	OutputName      string
	TableFiles      []string
	IncludePackages []string
	ExcludePackages []string
	IncludeTypes    []string
	ExcludeTypes    []string
	BuildTags       []string
	Workers         int
	BinderImport    string
	Logger          *zap.Logger
}

// Generator encapsulates configuration for generation.
type Generator struct {
	opts Options
}

// NewGenerator creates a new Generator. If opts is nil, defaults are used.
func NewGenerator(opts *Options) *Generator {
	g := &Generator{}
	if opts != nil {
		g.opts = *opts
	}
	return g
}

// File is one generated binder file.
type File struct {
	Package       string
	Path          string
	Registrations int
	// Status is one of written, unchanged, removed, skipped, stale or pending.
	Status string
	// Source is set by Render.
	Source []byte
}

// Result describes a generation run.
type Result struct {
	Files []File
	table *metadata.Table
}

// Registrations returns the number of event registrations generated.
func (r *Result) Registrations() int {
	n := 0
	for _, f := range r.Files {
		n += f.Registrations
	}
	return n
}

// Stale returns the files that differ from what generation would write.
func (r *Result) Stale() []string {
	var out []string
	for _, f := range r.Files {
		if f.Status == string(engine.ActionStale) {
			out = append(out, f.Path)
		}
	}
	return out
}

// WriteTable encodes the resolved handler table as "yaml" or "json".
func (r *Result) WriteTable(w io.Writer, format string) error {
	return metadata.Encode(w, r.table, metadata.Format(format))
}

// GenerateFromDirectory writes binders for the Go module that contains dir.
func (g *Generator) GenerateFromDirectory(ctx context.Context, dir string) (*Result, error) {
	return g.run(ctx, dir, func(*engine.EngineConfig) {})
}

// CheckDirectory validates declarations and reports stale files without
// writing.
func (g *Generator) CheckDirectory(ctx context.Context, dir string) (*Result, error) {
	return g.run(ctx, dir, func(c *engine.EngineConfig) { c.CheckOnly = true })
}

// Render returns the files generation would write without touching disk.
func (g *Generator) Render(ctx context.Context, dir string) (*Result, error) {
	return g.run(ctx, dir, func(c *engine.EngineConfig) { c.DryRun = true })
}

func (g *Generator) run(ctx context.Context, dir string, mode func(*engine.EngineConfig)) (*Result, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory path is required")
	}

	// Create a new engine config for this generation
	engineConfig := &engine.EngineConfig{
		InputDir:        dir,
		Patterns:        g.opts.Patterns,
		OutputName:      g.opts.OutputName,
		TableFiles:      g.opts.TableFiles,
		IncludePackages: g.opts.IncludePackages,
		ExcludePackages: g.opts.ExcludePackages,
		IncludeTypes:    g.opts.IncludeTypes,
		ExcludeTypes:    g.opts.ExcludeTypes,
		BuildTags:       g.opts.BuildTags,
		Workers:         g.opts.Workers,
		BinderImport:    g.opts.BinderImport,
		Logger:          g.opts.Logger,
	}
	mode(engineConfig)

	report, err := engine.NewEngine(engineConfig).Run(ctx)
	if report == nil {
		return nil, err
	}

	res := &Result{table: report.Table}
	for _, p := range report.Packages {
		res.Files = append(res.Files, File{
			Package:       p.Path,
			Path:          p.Output,
			Registrations: p.Registrations,
			Status:        string(p.Action),
			Source:        p.Source,
		})
	}
	return res, err
}
