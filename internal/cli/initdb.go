package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fs-delta-tracker/internal/startup"
)

func newInitDBCommand(a *app) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the metadata database schema",
		Long: `Creates the scan_runs, staging_files, files and file_changes tables if they
do not exist. With --reset every table is dropped first and all recorded
scan history is lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer closeDB(db, a.logger)

			if reset {
				a.logger.Warn("Dropping all scan history",
					zap.String("database", startup.RedactPath(a.cfg.DatabasePath)))
				if err := db.Reset(ctx); err != nil {
					return fmt.Errorf("reset database: %w", err)
				}
			} else if err := db.InitSchema(ctx); err != nil {
				return fmt.Errorf("initialize schema: %w", err)
			}

			version, err := db.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "database %s ready (schema version %d)\n",
				startup.RedactPath(a.cfg.DatabasePath), version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop all tables and recorded scans first")
	return cmd
}
