package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/healthloom-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set HealthLoom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No config loaded")
			return nil
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "height_cm: %g\n", cfg.HeightCm)
		fmt.Fprintf(w, "default_group_by: %s\n", cfg.DefaultGroupBy)
		fmt.Fprintf(w, "output_format: %s\n", cfg.OutputFormat)
		fmt.Fprintf(w, "last_days: %d\n", cfg.LastDays)
		if cfg.DataPath != "" {
			fmt.Fprintf(w, "data_path: %s\n", cfg.DataPath)
		}
		fmt.Fprintf(w, "export_path: %s\n", cfg.ExportPath)
		fmt.Fprintf(w, "server_addr: %s\n", cfg.ServerAddr)
		fmt.Fprintf(w, "cache_enabled: %t\n", cfg.CacheEnabled)
		fmt.Fprintf(w, "cache_max_entries: %d\n", cfg.CacheMaxEntries)
		if len(cfg.CanonicalSources) > 0 {
			fmt.Fprintln(w, "canonical_sources:")
			keys := make([]string, 0, len(cfg.CanonicalSources))
			for k := range cfg.CanonicalSources {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "  %s: %s\n", k, strings.Join(cfg.CanonicalSources[k], ", "))
			}
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := cfgpkg.Path(cfgFile)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), p)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long: `Set one configuration key. canonical_sources takes the form
<dataset>=<device>[,<device>...]; an empty device list removes the entry.`,
	Example: `  healthloom config set height_cm 182
  healthloom config set canonical_sources "StepCount=My iPhone"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		switch key {
		case "height_cm":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil || f <= 0 {
				return fmt.Errorf("invalid height_cm: %v (must be a positive number)", val)
			}
			cfg.HeightCm = f
		case "default_group_by":
			cfg.DefaultGroupBy = val
		case "output_format":
			if !cfgpkg.ValidFormat(val) {
				return fmt.Errorf("invalid output_format: %s (use %s)", val, strings.Join(cfgpkg.Formats, ", "))
			}
			cfg.OutputFormat = strings.ToLower(val)
		case "last_days":
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for last_days: %v", val)
			}
			cfg.LastDays = i
		case "data_path":
			cfg.DataPath = val
		case "export_path":
			cfg.ExportPath = val
		case "server_addr":
			cfg.ServerAddr = val
		case "cache_enabled":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid bool for cache_enabled: %w", err)
			}
			cfg.CacheEnabled = b
		case "cache_max_entries":
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for cache_max_entries: %v", val)
			}
			cfg.CacheMaxEntries = i
		case "canonical_sources":
			ds, devices, ok := strings.Cut(val, "=")
			if !ok || strings.TrimSpace(ds) == "" {
				return fmt.Errorf("invalid canonical_sources: %q (use <dataset>=<device>[,<device>...])", val)
			}
			if cfg.CanonicalSources == nil {
				cfg.CanonicalSources = map[string][]string{}
			}
			var list []string
			for _, d := range strings.Split(devices, ",") {
				if d = strings.TrimSpace(d); d != "" {
					list = append(list, d)
				}
			}
			ds = strings.TrimSpace(ds)
			for k := range cfg.CanonicalSources {
				if strings.EqualFold(k, ds) {
					delete(cfg.CanonicalSources, k)
				}
			}
			if len(list) > 0 {
				cfg.CanonicalSources[ds] = list
			}
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}
