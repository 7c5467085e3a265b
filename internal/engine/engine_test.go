package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehabterra/eventbinder/internal/codegen"
)

func TestDefaultEngineConfig(t *testing.T) {
	config := DefaultEngineConfig()

	assert.Equal(t, DefaultInputDir, config.InputDir)
	assert.Equal(t, []string{DefaultPattern}, config.Patterns)
	assert.Equal(t, DefaultOutputName, config.OutputName)
	assert.Equal(t, codegen.DefaultBinderImport, config.BinderImport)
	assert.Positive(t, config.Workers)
	assert.NotNil(t, config.Logger)
	assert.False(t, config.CheckOnly)
	assert.False(t, config.DryRun)
}

func TestNewEngine(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		engine := NewEngine(nil)
		require.NotNil(t, engine)
		assert.Equal(t, DefaultOutputName, engine.Config().OutputName)
	})

	t.Run("partial config is merged", func(t *testing.T) {
		engine := NewEngine(&EngineConfig{InputDir: "/tmp/app", OutputName: "binders_gen.go"})
		config := engine.Config()
		assert.Equal(t, "/tmp/app", config.InputDir)
		assert.Equal(t, "binders_gen.go", config.OutputName)
		assert.Equal(t, []string{DefaultPattern}, config.Patterns)
		assert.Equal(t, codegen.DefaultBinderImport, config.BinderImport)
		assert.Positive(t, config.Workers)
		assert.NotNil(t, config.Logger)
	})
}

func TestEngine_Run_InvalidDirectory(t *testing.T) {
	engine := NewEngine(&EngineConfig{InputDir: "/nonexistent/directory"})

	_, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input directory does not exist")
}

func TestEngine_Run_NoGoModule(t *testing.T) {
	engine := NewEngine(&EngineConfig{InputDir: t.TempDir()})

	_, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not find Go module")
}

func TestEngine_Run_InvalidPattern(t *testing.T) {
	dir := writeModule(t, nil)
	engine := NewEngine(&EngineConfig{InputDir: dir, ExcludePackages: []string{"["}})

	_, err := engine.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid package pattern")
}

// binderFixture stands in for the binder package so generated files
// type-check inside the temporary module.
const binderFixture = `package binder

type Entry[T any] struct{ method string }

func Handle[T, E any](method string, fn func(T, E)) Entry[T] { return Entry[T]{method: method} }

type Binder[T any] struct{ entries []Entry[T] }

func New[T any](entries ...Entry[T]) *Binder[T] { return &Binder[T]{entries: entries} }
`

const presenterSrc = `package ui

type Clicked struct{}
type Closed struct{}

type Presenter struct{ clicks int }

//eventbinder:handler
func (p *Presenter) OnClicked(e Clicked) { p.clicks++ }

//eventbinder:handler handles=Closed
func (p *Presenter) OnClosed() {}
`

// writeModule creates a module example.com/app containing the binder
// fixture and the given files.
func writeModule(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	all := map[string]string{
		"go.mod":           "module example.com/app\n\ngo 1.21\n",
		"binder/binder.go": binderFixture,
	}
	for name, content := range files {
		all[name] = content
	}
	for name, content := range all {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func newTestEngine(dir string, mutate func(*EngineConfig)) *Engine {
	config := &EngineConfig{InputDir: dir, BinderImport: "example.com/app/binder"}
	if mutate != nil {
		mutate(config)
	}
	return NewEngine(config)
}

func TestEngine_Run_GeneratesBinder(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": presenterSrc})

	report, err := newTestEngine(dir, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Packages, 2)
	ui := report.Packages[1]
	assert.Equal(t, "example.com/app/ui", ui.Path)
	assert.Equal(t, ActionWritten, ui.Action)
	assert.Equal(t, 1, ui.Owners)
	assert.Equal(t, 2, ui.Registrations)
	assert.Equal(t, ActionSkipped, report.Packages[0].Action)

	data, err := os.ReadFile(filepath.Join(dir, "ui", DefaultOutputName))
	require.NoError(t, err)
	src := string(data)
	assert.True(t, len(src) > 0 && src[:len(codegen.Header)] == codegen.Header)
	assert.Contains(t, src, `"example.com/app/binder"`)
	assert.Contains(t, src, "var PresenterEventBinder = binder.New(")
	assert.Contains(t, src, `binder.Handle("OnClicked", func(owner *Presenter, event Clicked) { owner.OnClicked(event) })`)
	assert.Contains(t, src, `binder.Handle("OnClosed", func(owner *Presenter, _ Closed) { owner.OnClosed() })`)

	require.Len(t, report.Table.Packages, 1)
	assert.Equal(t, "ui/"+DefaultOutputName, report.Table.Packages[0].Output)
	assert.Equal(t, 2, report.Table.Len())

	// A second run finds the file up to date.
	report, err = newTestEngine(dir, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, report.Packages[1].Action)
}

func TestEngine_Run_RegeneratesStaleBinder(t *testing.T) {
	// The stale binder refers to a method that no longer exists.
	stale := codegen.Header + `

package ui

import "example.com/app/binder"

var PresenterEventBinder = binder.New(
	binder.Handle("OnGone", func(owner *Presenter, event Clicked) { owner.OnGone(event) }),
)
`
	dir := writeModule(t, map[string]string{
		"ui/presenter.go":         presenterSrc,
		"ui/" + DefaultOutputName: stale,
	})

	report, err := newTestEngine(dir, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionWritten, report.Packages[1].Action)

	data, err := os.ReadFile(filepath.Join(dir, "ui", DefaultOutputName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "OnGone")
}

func TestEngine_Run_CheckOnly(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": presenterSrc})

	report, err := newTestEngine(dir, func(c *EngineConfig) { c.CheckOnly = true }).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "ui", DefaultOutputName)}, report.Stale())
	assert.NoFileExists(t, filepath.Join(dir, "ui", DefaultOutputName))
}

func TestEngine_Run_DryRun(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": presenterSrc})

	report, err := newTestEngine(dir, func(c *EngineConfig) { c.DryRun = true }).Run(context.Background())
	require.NoError(t, err)

	ui := report.Packages[1]
	assert.Equal(t, ActionPending, ui.Action)
	assert.Contains(t, string(ui.Source), "PresenterEventBinder")
	assert.NoFileExists(t, ui.Output)
}

func TestEngine_Run_RemovesBinderWithoutHandlers(t *testing.T) {
	dir := writeModule(t, map[string]string{
		"ui/presenter.go":         "package ui\n\ntype Presenter struct{}\n",
		"ui/" + DefaultOutputName: codegen.Header + "\n\npackage ui\n",
	})

	report, err := newTestEngine(dir, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActionRemoved, report.Packages[1].Action)
	assert.NoFileExists(t, filepath.Join(dir, "ui", DefaultOutputName))
	assert.Empty(t, report.Table.Packages)
}

func TestEngine_Run_RefusesHandWrittenFile(t *testing.T) {
	dir := writeModule(t, map[string]string{
		"ui/presenter.go":         presenterSrc,
		"ui/" + DefaultOutputName: "package ui\n\nvar keep = 1\n",
	})

	_, err := newTestEngine(dir, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "was not generated by eventbinder")
}

func TestEngine_Run_Diagnostics(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": `package ui

type A struct{}
type B struct{}

type Presenter struct{}

//eventbinder:handler
func (p *Presenter) onBoth(a A, b B) {}

//eventbinder:handler handles=A
func (p *Presenter) onA(b B) {}
`})

	report, err := newTestEngine(dir, nil).Run(context.Background())
	require.Error(t, err)

	var diagErr *DiagnosticsError
	require.True(t, errors.As(err, &diagErr))
	require.Len(t, diagErr.Diagnostics, 2)
	assert.Contains(t, diagErr.Diagnostics[0].Message, "must take exactly one parameter, found 2")
	assert.Contains(t, diagErr.Diagnostics[1].Message, "event type A is not assignable to parameter type B")
	assert.Contains(t, err.Error(), "2 invalid handler declaration(s)")

	assert.Empty(t, report.Table.Packages)
	assert.NoFileExists(t, filepath.Join(dir, "ui", DefaultOutputName))
}

func TestEngine_Run_BinderNameTaken(t *testing.T) {
	dir := writeModule(t, map[string]string{
		"ui/presenter.go": presenterSrc,
		"ui/names.go":     "package ui\n\nvar PresenterEventBinder = \"mine\"\n",
	})

	_, err := newTestEngine(dir, nil).Run(context.Background())
	require.Error(t, err)

	var diagErr *DiagnosticsError
	require.True(t, errors.As(err, &diagErr))
	require.Len(t, diagErr.Diagnostics, 1)
	assert.Contains(t, diagErr.Diagnostics[0].Message, "binder variable PresenterEventBinder for Presenter conflicts")
	assert.Contains(t, diagErr.Diagnostics[0].Message, "names.go:3")
	assert.NoFileExists(t, filepath.Join(dir, "ui", DefaultOutputName))
}

func TestEngine_Run_TableFile(t *testing.T) {
	dir := writeModule(t, map[string]string{
		"ui/presenter.go": `package ui

type Clicked struct{}

type Presenter struct{}

func (p Presenter) OnClicked(e Clicked) {}
`,
		"handlers.yaml": `handlers:
  - package: example.com/app/ui
    type: Presenter
    method: OnClicked
  - package: example.com/app/missing
    type: T
    method: m
`,
	})

	_, err := newTestEngine(dir, func(c *EngineConfig) {
		c.TableFiles = []string{"handlers.yaml"}
	}).Run(context.Background())

	var diagErr *DiagnosticsError
	require.True(t, errors.As(err, &diagErr))
	require.Len(t, diagErr.Diagnostics, 1)
	assert.Contains(t, diagErr.Diagnostics[0].Message, "package example.com/app/missing is not loaded")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "handlers.yaml"), []byte(`handlers:
  - package: example.com/app/ui
    type: Presenter
    method: OnClicked
`), 0644))

	report, err := newTestEngine(dir, func(c *EngineConfig) {
		c.TableFiles = []string{"handlers.yaml"}
	}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Table.Packages, 1)
	handler := report.Table.Packages[0].Owners[0].Handlers[0]
	assert.Equal(t, "OnClicked", handler.Method)
	assert.Equal(t, "table", string(handler.Source))
}

func TestEngine_Run_Filters(t *testing.T) {
	dir := writeModule(t, map[string]string{
		"admin/panel.go": `package admin

type Opened struct{}

type Panel struct{}

//eventbinder:handler
func (p Panel) OnOpened(e Opened) {}
`,
		"ui/presenter.go": presenterSrc,
	})

	report, err := newTestEngine(dir, func(c *EngineConfig) {
		c.ExcludePackages = []string{"example.com/app/admin"}
		c.ExcludeTypes = []string{"Presenter"}
		c.DryRun = true
	}).Run(context.Background())
	require.NoError(t, err)

	for _, p := range report.Packages {
		assert.NotEqual(t, "example.com/app/admin", p.Path)
		assert.Zero(t, p.Registrations, p.Path)
	}
}

func TestEngine_findModuleRoot(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": presenterSrc})
	engine := NewEngine(nil)

	root, err := engine.findModuleRoot(filepath.Join(dir, "ui"))
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}
