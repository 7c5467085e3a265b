package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehabterra/eventbinder/internal/engine"
)

const presenterSrc = `package ui

type Clicked struct{}

type Presenter struct{}

//eventbinder:handler
func (p *Presenter) OnClicked(e Clicked) {}
`

func writeModule(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	files["go.mod"] = "module example.com/app\n\ngo 1.21\n"
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

// run executes the command line with logs sent to a file under dir.
func run(t *testing.T, dir string, args ...string) (code int, stdout, stderr, logs string) {
	t.Helper()

	logFile := filepath.Join(t.TempDir(), "eventbinder.log")
	args = append(args, "--dir", dir, "--log-output", logFile, "--log-format", "json")

	var out, errOut bytes.Buffer
	code = execute(context.Background(), args, &out, &errOut)

	data, _ := os.ReadFile(logFile)
	return code, out.String(), errOut.String(), string(data)
}

func TestExecute_Version(t *testing.T) {
	var out bytes.Buffer
	code := execute(context.Background(), []string{"version"}, &out, &bytes.Buffer{})

	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "eventbinder version:")
	assert.Contains(t, out.String(), engine.CopyrightNotice)
}

func TestExecute_Help(t *testing.T) {
	var out bytes.Buffer
	code := execute(context.Background(), []string{"--help"}, &out, &bytes.Buffer{})

	assert.Equal(t, 0, code)
	for _, sub := range []string{"generate", "check", "table", "version", "--exclude-type"} {
		assert.Contains(t, out.String(), sub)
	}
}

func TestExecute_Generate(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": presenterSrc})

	code, _, stderr, logs := run(t, dir, "generate")
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(filepath.Join(dir, "ui", engine.DefaultOutputName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "var PresenterEventBinder = binder.New(")
	assert.Contains(t, logs, `"msg":"generation complete"`)
	assert.Contains(t, logs, `"registrations":1`)
}

func TestExecute_GenerateDryRun(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": presenterSrc})

	code, stdout, stderr, _ := run(t, dir, "generate", "--dry-run")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, filepath.Join(dir, "ui", engine.DefaultOutputName))
	assert.Contains(t, stdout, `binder.Handle("OnClicked"`)
	assert.NoFileExists(t, filepath.Join(dir, "ui", engine.DefaultOutputName))
}

func TestExecute_GenerateCheck(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": presenterSrc})

	code, _, _, logs := run(t, dir, "generate", "--check")
	assert.Equal(t, 1, code)
	assert.Contains(t, logs, "out of date")
	assert.NoFileExists(t, filepath.Join(dir, "ui", engine.DefaultOutputName))
}

func TestExecute_CheckReportsDiagnostics(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": `package ui

type A struct{}

type Presenter struct{}

//eventbinder:handler
func (p *Presenter) onNothing() {}
`})

	code, _, stderr, logs := run(t, dir, "check")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "presenter.go:7:1: handler Presenter.onNothing has no handles list and must take exactly one parameter, found 0")
	assert.Contains(t, logs, "invalid handler declarations")
}

func TestExecute_CheckValid(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": presenterSrc})

	code, _, stderr, logs := run(t, dir, "check")
	assert.Equal(t, 0, code, stderr)
	assert.Contains(t, logs, "generated file out of date")
	assert.Contains(t, logs, "handler declarations ok")
}

func TestExecute_Table(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": presenterSrc})
	output := filepath.Join(t.TempDir(), "handlers.json")

	code, _, stderr, _ := run(t, dir, "table", "-o", output)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(output)
	require.NoError(t, err)

	var table struct {
		Packages []struct {
			Path   string
			Owners []struct {
				Type     string
				Handlers []struct {
					Method  string
					Handles []string
				}
			}
		}
	}
	require.NoError(t, json.Unmarshal(data, &table))
	require.Len(t, table.Packages, 1)
	assert.Equal(t, "example.com/app/ui", table.Packages[0].Path)
	handler := table.Packages[0].Owners[0].Handlers[0]
	assert.Equal(t, "OnClicked", handler.Method)
	assert.Equal(t, []string{"example.com/app/ui.Clicked"}, handler.Handles)

	assert.NoFileExists(t, filepath.Join(dir, "ui", engine.DefaultOutputName))
}

func TestExecute_ConfigFile(t *testing.T) {
	dir := writeModule(t, map[string]string{
		"ui/presenter.go":   presenterSrc,
		".eventbinder.yaml": "output_name: binders_gen.go\nexclude_packages:\n  - example.com/app/none\n",
	})

	code, _, stderr, _ := run(t, dir, "generate")
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, filepath.Join(dir, "ui", "binders_gen.go"))
}

func TestExecute_EnvOverridesConfigFile(t *testing.T) {
	dir := writeModule(t, map[string]string{
		"ui/presenter.go":   presenterSrc,
		".eventbinder.yaml": "output_name: binders_gen.go\n",
	})
	t.Setenv("EVENTBINDER_OUTPUT_NAME", "env_gen.go")

	code, _, stderr, _ := run(t, dir, "generate")
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, filepath.Join(dir, "ui", "env_gen.go"))
	assert.NoFileExists(t, filepath.Join(dir, "ui", "binders_gen.go"))
}

func TestExecute_Profile(t *testing.T) {
	dir := writeModule(t, map[string]string{"ui/presenter.go": presenterSrc})
	profDir := t.TempDir()

	code, _, stderr, _ := run(t, dir, "check", "--cpu-profile", "--mem-profile", "--profile-dir", profDir)
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, filepath.Join(profDir, "cpu.prof"))
	assert.FileExists(t, filepath.Join(profDir, "mem.prof"))
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"not a go file", "output_name: binders.txt\n", "must be a .go file name"},
		{"test file", "output_name: binders_test.go\n", "must not be a test file"},
		{"path", "output_name: sub/binders.go\n", "must be a .go file name"},
		{"workers", "workers: -1\n", "workers must be at least 1"},
		{"log format", "log:\n  format: xml\n", "log format must be console or json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := loadConfig(viper.New(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("dir", t.TempDir())

	cfg, err := loadConfig(v, "")
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultOutputName, cfg.OutputName)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, "profiles", cfg.Profile.Dir)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
