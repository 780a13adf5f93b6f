package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/healthloom-cli/internal/export"
)

var exportDB string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the overview and every panel into a SQLite database",
	Long: `Export computes the overview and all dashboard panels and stores them as one run
in a SQLite database (export_path by default). Each run is keyed by the bundle's id,
so repeated exports of different bundles accumulate side by side.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := settings()
		if err != nil {
			return err
		}
		path := exportDB
		if path == "" {
			path = c.ExportPath
		}
		e, b, err := openEngine()
		if err != nil {
			return err
		}
		o, err := e.Overview()
		if err != nil {
			return err
		}
		panels, err := e.Panels()
		if err != nil {
			return err
		}

		sink, err := export.Open(path)
		if err != nil {
			return err
		}
		defer sink.Close()

		sum, err := sink.Write(cmd.Context(), export.Run{ID: b.ID.String(), Bundle: b.Path, CreatedAt: b.LoadedAt}, o, panels)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported run %s to %s\n", sum.RunID, path)
		return emit(cmd, sum)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportDB, "db", "", "SQLite database path (overrides export_path)")
}
