package cmd

import (
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/healthloom-cli/internal/dashboard"
)

var (
	corAllSources bool
	corSince      string
	corFrom       string
	corTo         string
)

var correlateCmd = &cobra.Command{
	Use:   "correlate <dataset> <dataset> [dataset...]",
	Short: "Align metrics on date and compute Pearson's r for a pair",
	Long: `Correlate reduces each dataset to daily means, keeps only the dates present in all
of them and prints the aligned table. With exactly two datasets it also reports
Pearson's r, or why it is undefined (fewer than two days, or a constant column).

Datasets are restricted to their canonical_sources unless --all-sources is set.`,
	Example: `  healthloom correlate StepCount HeartRate -d export.zip
  healthloom correlate TotalEnergy SleepAnalysis --since P1M --all-sources`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		win, err := dashboard.ParseWindow(corSince, corFrom, corTo)
		if err != nil {
			return err
		}
		e, _, err := openEngine()
		if err != nil {
			return err
		}
		a, err := e.Correlate(dashboard.CorrelateRequest{Datasets: args, AllSources: corAllSources, Window: win})
		return emitResult(cmd, "Correlation", a, err)
	},
}

func init() {
	rootCmd.AddCommand(correlateCmd)
	correlateCmd.Flags().BoolVar(&corAllSources, "all-sources", false, "ignore canonical_sources and use every device")
	correlateCmd.Flags().StringVar(&corSince, "since", "", "ISO-8601 lookback from the latest date, e.g. P30D")
	correlateCmd.Flags().StringVar(&corFrom, "from", "", "first date to include (YYYY-MM-DD)")
	correlateCmd.Flags().StringVar(&corTo, "to", "", "last date to include (YYYY-MM-DD)")
}
