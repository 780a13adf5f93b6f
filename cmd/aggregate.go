package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/healthloom-cli/internal/dashboard"
	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

var (
	aggBy       string
	aggBySource bool
	aggSources  []string
	aggSince    string
	aggFrom     string
	aggTo       string
	aggTail     int
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <dataset>",
	Short: "Group one metric by date, weekday, month, year or hour",
	Long: `Aggregate buckets a dataset along a calendar dimension and reduces each bucket.
Cumulative metrics (steps, distance, energy, sleep) are summed; instantaneous ones
(heart rate, weight, speed) are averaged.

month_name merges the same month of different years; use year_month to keep them apart.`,
	Example: `  healthloom aggregate StepCount --by dow -d export.zip
  healthloom aggregate HeartRate --by month_name --by-source --since P3M
  healthloom aggregate TotalEnergy --from 2024-01-01 --to 2024-01-31`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		by := aggBy
		if by == "" {
			by = c.DefaultGroupBy
		}
		key, err := metrics.ParseGroupKey(by)
		if err != nil {
			return err
		}
		win, err := dashboard.ParseWindow(aggSince, aggFrom, aggTo)
		if err != nil {
			return err
		}
		if aggTail < 0 {
			return fmt.Errorf("--tail must not be negative")
		}

		e, _, err := openEngine()
		if err != nil {
			return err
		}
		a, err := e.Aggregate(dashboard.AggregateRequest{
			Dataset:  args[0],
			GroupBy:  key,
			BySource: aggBySource,
			Sources:  aggSources,
			Window:   win,
		})
		if err == nil && aggTail > 0 {
			a = a.Tail(aggTail)
		}
		return emitResult(cmd, args[0], a, err)
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	aggregateCmd.Flags().StringVar(&aggBy, "by", "", "group key: date, dow, month_name, year, hour, year_month (default from config)")
	aggregateCmd.Flags().BoolVar(&aggBySource, "by-source", false, "keep one bucket per device")
	aggregateCmd.Flags().StringSliceVar(&aggSources, "source", nil, "restrict to these devices (repeatable)")
	aggregateCmd.Flags().StringVar(&aggSince, "since", "", "ISO-8601 lookback from the latest date, e.g. P7D or P1M")
	aggregateCmd.Flags().StringVar(&aggFrom, "from", "", "first date to include (YYYY-MM-DD)")
	aggregateCmd.Flags().StringVar(&aggTo, "to", "", "last date to include (YYYY-MM-DD)")
	aggregateCmd.Flags().IntVar(&aggTail, "tail", 0, "keep only the last N categories")
}
