package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ehabterra/eventbinder/internal/codegen"
	"github.com/ehabterra/eventbinder/internal/engine"
	"github.com/ehabterra/eventbinder/internal/logging"
	"github.com/ehabterra/eventbinder/internal/profiler"
)

const (
	configName = ".eventbinder"
	envPrefix  = "EVENTBINDER"
)

// Config is the merged configuration of flags, environment and the
// .eventbinder.yaml file, in that order of precedence.
type Config struct {
	Dir             string        `mapstructure:"dir"`
	OutputName      string        `mapstructure:"output_name"`
	Tables          []string      `mapstructure:"tables"`
	IncludePackages []string      `mapstructure:"include_packages"`
	ExcludePackages []string      `mapstructure:"exclude_packages"`
	IncludeTypes    []string      `mapstructure:"include_types"`
	ExcludeTypes    []string      `mapstructure:"exclude_types"`
	Tags            []string      `mapstructure:"tags"`
	Workers         int           `mapstructure:"workers"`
	BinderImport    string        `mapstructure:"binder_import"`
	Trace           bool          `mapstructure:"trace"`
	Log             LoggerConfig  `mapstructure:"log"`
	Profile         ProfileConfig `mapstructure:"profile"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// ProfileConfig selects the profiles to write.
type ProfileConfig struct {
	CPU   bool   `mapstructure:"cpu"`
	Mem   bool   `mapstructure:"mem"`
	Trace bool   `mapstructure:"trace"`
	Dir   string `mapstructure:"dir"`
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"dir":             "dir",
	"output-name":     "output_name",
	"table":           "tables",
	"include-package": "include_packages",
	"exclude-package": "exclude_packages",
	"include-type":    "include_types",
	"exclude-type":    "exclude_types",
	"tags":            "tags",
	"workers":         "workers",
	"binder-import":   "binder_import",
	"trace":           "trace",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-output":      "log.output_path",
	"cpu-profile":     "profile.cpu",
	"mem-profile":     "profile.mem",
	"trace-profile":   "profile.trace",
	"profile-dir":     "profile.dir",
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	engineDefaults := engine.DefaultEngineConfig()
	logDefaults := logging.DefaultConfig()
	profDefaults := profiler.DefaultProfilerConfig()

	v.SetDefault("dir", engine.DefaultInputDir)
	v.SetDefault("output_name", engine.DefaultOutputName)
	v.SetDefault("workers", engineDefaults.Workers)
	v.SetDefault("binder_import", codegen.DefaultBinderImport)

	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.format", logDefaults.Format)
	v.SetDefault("log.output_path", logDefaults.OutputPath)

	v.SetDefault("profile.dir", profDefaults.OutputDir)
}

// bindFlags makes every persistent flag override its configuration key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig reads configFile, or .eventbinder.yaml from the configured
// directory when configFile is empty, and merges environment variables.
func loadConfig(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("dir"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OutputName == "" || !strings.HasSuffix(c.OutputName, ".go") || strings.ContainsAny(c.OutputName, `/\`) {
		return fmt.Errorf("output name %q must be a .go file name", c.OutputName)
	}
	if strings.HasSuffix(c.OutputName, "_test.go") {
		return fmt.Errorf("output name %q must not be a test file", c.OutputName)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// engineConfig builds the engine configuration for patterns.
func (c *Config) engineConfig(patterns []string) *engine.EngineConfig {
	return &engine.EngineConfig{
		InputDir:        c.Dir,
		Patterns:        patterns,
		OutputName:      c.OutputName,
		TableFiles:      c.Tables,
		IncludePackages: c.IncludePackages,
		ExcludePackages: c.ExcludePackages,
		IncludeTypes:    c.IncludeTypes,
		ExcludeTypes:    c.ExcludeTypes,
		BuildTags:       c.Tags,
		Workers:         c.Workers,
		BinderImport:    c.BinderImport,
	}
}

func (c *Config) profilerConfig() *profiler.ProfilerConfig {
	pc := profiler.DefaultProfilerConfig()
	pc.CPUProfile = c.Profile.CPU
	pc.MemProfile = c.Profile.Mem
	pc.TraceProfile = c.Profile.Trace
	pc.OutputDir = c.Profile.Dir
	return pc
}
