package cmd

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meditrack-backend/database"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := database.MigrationStatus(db)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Applied migrations (%d):\n", len(records))
			for _, r := range records {
				fmt.Fprintf(out, "  %-32s %s\n", r.Name, r.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			a.logger.Info("migrations applied", zap.Int("count", len(records)))
			return nil
		},
	}
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Migrate the database, verify its integrity and print a status report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Initializing MediTrack database...")

			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintln(out, "Migrations completed")

			if err := database.CheckIntegrity(db); err != nil {
				return fmt.Errorf("database integrity check failed: %w", err)
			}
			fmt.Fprintln(out, "Integrity check passed")

			return printStatus(out, db)
		},
	}
}

func printStatus(out io.Writer, db *sql.DB) error {
	records, err := database.MigrationStatus(db)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\nDatabase status")
	fmt.Fprintln(out, "===============")
	fmt.Fprintf(out, "Migrations applied: %d\n", len(records))
	for _, table := range database.RequiredTables {
		var count int
		// Table names come from a fixed list
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			return fmt.Errorf("failed to count %s: %w", table, err)
		}
		fmt.Fprintf(out, "  %-16s %d rows\n", table, count)
	}
	return nil
}
