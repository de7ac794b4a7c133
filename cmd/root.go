package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meditrack-backend/config"
	"meditrack-backend/database"
	"meditrack-backend/internal/logger"
)

// app is the state shared by every command once the root pre-run has loaded it
type app struct {
	envFile string
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRootCmd builds the meditrack command tree
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "meditrack",
		Short: "MediTrack online pharmacy backend",
		Long: `MediTrack serves the online pharmacy storefront and its admin panel.

Run without a subcommand to start the HTTP server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: a.runServe,
	}

	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file to load before reading configuration")

	rootCmd.AddCommand(a.serveCmd())
	rootCmd.AddCommand(a.migrateCmd())
	rootCmd.AddCommand(a.initCmd())
	rootCmd.AddCommand(a.seedCmd())
	rootCmd.AddCommand(a.createAdminCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) load() error {
	if a.envFile != "" {
		// Variables already set in the environment win over the file
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", a.envFile, err)
		}
	}

	a.cfg = config.Load()
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(a.cfg.LogLevel, a.cfg.LogFile, a.cfg.Environment)
	if err != nil {
		return err
	}
	a.logger = log
	return nil
}

// openDatabase connects to the configured database and applies pending migrations
func (a *app) openDatabase() (*sql.DB, error) {
	db, err := database.Initialize(a.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
