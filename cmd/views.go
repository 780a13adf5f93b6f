package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/healthloom-cli/internal/dashboard"
	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

var (
	panelID      string
	bmiHeight    float64
	energyByDOW  bool
	sleepSources []string
	sleepCanon   bool
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the datasets found in the export",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, b, err := openEngine()
		if err != nil {
			return err
		}
		for _, s := range b.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ skipped %s\n", s)
		}
		return emit(cmd, e.Inventory())
	},
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show headline KPIs and the most recent daily steps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, err := openEngine()
		if err != nil {
			return err
		}
		o, err := e.Overview()
		if err != nil {
			return err
		}
		return emit(cmd, o)
	},
}

var panelsCmd = &cobra.Command{
	Use:   "panels",
	Short: "Render every dashboard panel, or one with --id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, err := openEngine()
		if err != nil {
			return err
		}
		panels, err := e.Panels()
		if err != nil {
			return err
		}
		if panelID == "" {
			return emit(cmd, panels)
		}
		for _, p := range panels {
			if p.ID == panelID {
				return emit(cmd, []dashboard.Panel{p})
			}
		}
		return fmt.Errorf("unknown panel %q (known: %v)", panelID, dashboard.PanelIDs())
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources <dataset>",
	Short: "Summarize each device's contribution to a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, err := openEngine()
		if err != nil {
			return err
		}
		s, err := e.Sources(args[0])
		return emitResult(cmd, args[0], s, err)
	},
}

var bmiCmd = &cobra.Command{
	Use:   "bmi",
	Short: "Derive BMI from body mass readings and the configured height",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("height") {
			if bmiHeight <= 0 {
				return fmt.Errorf("--height must be positive")
			}
			if cfg == nil {
				loadConfig()
			}
			cfg.HeightCm = bmiHeight
		}
		e, _, err := openEngine()
		if err != nil {
			return err
		}
		b, err := e.BMI()
		return emitResult(cmd, "BMI", b, err)
	},
}

var energyCmd = &cobra.Command{
	Use:   "energy",
	Short: "Show daily active, basal and total energy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, _, err := openEngine()
		if err != nil {
			return err
		}
		if energyByDOW {
			a, err := e.EnergyByDOW()
			return emitResult(cmd, "Active energy by weekday", a, err)
		}
		days, err := e.Energy()
		return emitResult(cmd, "Daily energy", days, err)
	},
}

var sleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Show average sleep per weekday and per sleep stage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		e, _, err := openEngine()
		if err != nil {
			return err
		}
		sources := sleepSources
		if sleepCanon && len(sources) == 0 {
			sources = c.Sources(metrics.SleepAnalysis)
		}
		s, err := e.Sleep(sources...)
		return emitResult(cmd, "Sleep", s, err)
	},
}

func init() {
	rootCmd.AddCommand(datasetsCmd, overviewCmd, panelsCmd, sourcesCmd, bmiCmd, energyCmd, sleepCmd)
	panelsCmd.Flags().StringVar(&panelID, "id", "", "render only this panel, e.g. steps-by-weekday")
	bmiCmd.Flags().Float64Var(&bmiHeight, "height", 0, "height in cm (overrides height_cm)")
	energyCmd.Flags().BoolVar(&energyByDOW, "by-dow", false, "average active energy per weekday instead")
	sleepCmd.Flags().StringSliceVar(&sleepSources, "source", nil, "restrict to these devices (repeatable)")
	sleepCmd.Flags().BoolVar(&sleepCanon, "canonical", false, "use the canonical sleep sources from config")
}
