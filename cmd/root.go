package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/healthloom-cli/internal/config"
	"github.com/KaramelBytes/healthloom-cli/internal/dashboard"
	"github.com/KaramelBytes/healthloom-cli/internal/dataset"
	"github.com/KaramelBytes/healthloom-cli/internal/logger"
	"github.com/KaramelBytes/healthloom-cli/internal/memo"
	"github.com/KaramelBytes/healthloom-cli/internal/report"
	"github.com/KaramelBytes/healthloom-cli/internal/utils"
)

var (
	// Global flags
	cfgFile  string
	debug    bool
	verbose  bool
	dataPath string
	format   string
	outPath  string
	noCache  bool

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "healthloom",
	Short: "HealthLoom CLI: explore exported health metrics",
	Long: `HealthLoom loads a health data export (a zip archive, a directory of CSV files or a single CSV)
and turns it into dashboard views: per-day, per-weekday and per-month aggregates, BMI, energy,
sleep patterns and date-aligned correlations between metrics.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)

	// Persistent global flags available to all subcommands
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.healthloom/config.yaml)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable info logging")
	pf.StringVarP(&dataPath, "data", "d", "", "health export: zip archive, directory or CSV file (overrides data_path)")
	pf.StringVarP(&format, "format", "f", "", "output format: markdown, json or yaml (overrides output_format)")
	pf.StringVarP(&outPath, "out", "o", "", "write output to a file instead of stdout")
	pf.BoolVar(&noCache, "no-cache", false, "disable result memoization")
}

func loadConfig() {
	logger.Init(debug, verbose)
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to built-in defaults
		logger.Warn().Err(err).Msg("failed to load config, using defaults")
		c = cfgpkg.Default()
	}
	cfg = c
}

// settings returns the loaded configuration with flag overrides applied.
func settings() (*cfgpkg.Global, error) {
	if cfg == nil {
		loadConfig()
	}
	c := *cfg
	if format != "" {
		c.OutputFormat = format
	}
	if dataPath != "" {
		c.DataPath = dataPath
	}
	if noCache {
		c.CacheEnabled = false
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// openEngine loads the bundle named by --data or data_path.
func openEngine() (*dashboard.Engine, *dataset.Bundle, error) {
	c, err := settings()
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(c.DataPath) == "" {
		return nil, nil, fmt.Errorf("no health export given: pass --data <export.zip|dir|file.csv> or set data_path")
	}
	b, err := dataset.Load(c.DataPath)
	if err != nil {
		return nil, nil, err
	}
	if len(b.Tables) == 0 {
		return nil, nil, fmt.Errorf("no datasets found in %s", c.DataPath)
	}

	var cache *memo.Cache
	if c.CacheEnabled {
		cache = memo.New(c.CacheMaxEntries)
	}
	e := dashboard.New(b.Datasets(), dashboard.Options{
		HeightCm:         c.HeightCm,
		CanonicalSources: c.CanonicalSources,
		LastDays:         c.LastDays,
	}, cache)
	logger.Debug().Str("bundle", b.ID.String()).Int("datasets", len(b.Tables)).Msg("engine ready")
	return e, b, nil
}

// emit renders v in the selected format to --out or the command's stdout.
func emit(cmd *cobra.Command, v any) error {
	c, err := settings()
	if err != nil {
		return err
	}
	b, err := report.Bytes(c.OutputFormat, v)
	if err != nil {
		return err
	}
	if outPath != "" {
		if err := utils.SafeWriteFile(outPath, b); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %s output to %s\n", c.OutputFormat, outPath)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}

// emitResult renders a view, turning missing data into an unavailable notice.
func emitResult(cmd *cobra.Command, metric string, v any, err error) error {
	if err != nil {
		u := dashboard.AsUnavailable(metric, err)
		if u == nil {
			return err
		}
		return emit(cmd, u)
	}
	return emit(cmd, v)
}
