package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

// Output formats accepted by output_format and --format.
var Formats = []string{"markdown", "json", "yaml"}

// Global configuration structure.
type Global struct {
	// HeightCm feeds the BMI derivation; it is never inferred from data.
	HeightCm float64 `mapstructure:"height_cm" yaml:"height_cm"`
	// CanonicalSources restricts a dataset to the listed device names in the
	// overview and correlation views, e.g. {"StepCount": ["My iPhone"]}.
	CanonicalSources map[string][]string `mapstructure:"canonical_sources" yaml:"canonical_sources"`
	DefaultGroupBy   string              `mapstructure:"default_group_by" yaml:"default_group_by"`
	OutputFormat     string              `mapstructure:"output_format" yaml:"output_format"`
	LastDays         int                 `mapstructure:"last_days" yaml:"last_days"`

	// HTTP API
	ServerAddr string `mapstructure:"server_addr" yaml:"server_addr"`

	// Result memoization
	CacheEnabled    bool `mapstructure:"cache_enabled" yaml:"cache_enabled"`
	CacheMaxEntries int  `mapstructure:"cache_max_entries" yaml:"cache_max_entries"`

	// DataPath is the bundle used when --data is not given.
	DataPath   string `mapstructure:"data_path" yaml:"data_path,omitempty"`
	ExportPath string `mapstructure:"export_path" yaml:"export_path"`
}

// Default returns the built-in configuration.
func Default() *Global {
	return &Global{
		HeightCm:         176,
		CanonicalSources: map[string][]string{},
		DefaultGroupBy:   "date",
		OutputFormat:     "markdown",
		LastDays:         7,
		ServerAddr:       ":8080",
		CacheEnabled:     true,
		CacheMaxEntries:  256,
		ExportPath:       "healthloom.sqlite",
	}
}

// Dir returns ~/.healthloom.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".healthloom"), nil
}

// Path resolves the config file in use: cfgFile when set, else ~/.healthloom/config.yaml.
func Path(cfgFile string) (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.healthloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path, err := Path(cfgFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("HEALTHLOOM")
	v.AutomaticEnv()

	// Defaults
	d := Default()
	v.SetDefault("height_cm", d.HeightCm)
	v.SetDefault("canonical_sources", d.CanonicalSources)
	v.SetDefault("default_group_by", d.DefaultGroupBy)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("last_days", d.LastDays)
	v.SetDefault("server_addr", d.ServerAddr)
	v.SetDefault("cache_enabled", d.CacheEnabled)
	v.SetDefault("cache_max_entries", d.CacheMaxEntries)
	v.SetDefault("data_path", d.DataPath)
	v.SetDefault("export_path", d.ExportPath)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.CanonicalSources == nil {
		c.CanonicalSources = map[string][]string{}
	}
	return &c, nil
}

// Validate rejects values no command can work with.
func (c *Global) Validate() error {
	if c.HeightCm <= 0 {
		return fmt.Errorf("height_cm must be positive, got %v", c.HeightCm)
	}
	if !ValidFormat(c.OutputFormat) {
		return fmt.Errorf("invalid output_format: %s (use %s)", c.OutputFormat, strings.Join(Formats, ", "))
	}
	if c.DefaultGroupBy != "" {
		if _, err := metrics.ParseGroupKey(c.DefaultGroupBy); err != nil {
			return fmt.Errorf("invalid default_group_by: %w", err)
		}
	}
	if c.LastDays < 0 {
		return fmt.Errorf("last_days must not be negative, got %d", c.LastDays)
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("cache_max_entries must not be negative, got %d", c.CacheMaxEntries)
	}
	return nil
}

// ValidFormat reports whether f is a supported output format.
func ValidFormat(f string) bool {
	for _, x := range Formats {
		if strings.EqualFold(f, x) {
			return true
		}
	}
	return false
}

// Sources returns the canonical sources configured for dataset, if any.
// Viper lowercases map keys, so the lookup ignores case.
func (c *Global) Sources(dataset string) []string {
	if c == nil {
		return nil
	}
	if s, ok := c.CanonicalSources[dataset]; ok {
		return s
	}
	for k, s := range c.CanonicalSources {
		if strings.EqualFold(k, dataset) {
			return s
		}
	}
	return nil
}
