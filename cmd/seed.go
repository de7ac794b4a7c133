package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"meditrack-backend/internal/services"
)

func (a *app) seedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load categories and products from a YAML catalog",
		Long: `Load categories and products from a YAML catalog file.

Products whose slug already exists are skipped, so the same file can be loaded twice.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open catalog: %w", err)
			}
			defer f.Close()

			seed, err := services.ParseCatalogSeed(f)
			if err != nil {
				return err
			}

			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			catalog := services.NewCatalogService(db, services.NewMemoryCache(), a.cfg.CacheTTL, a.logger)
			result, err := services.SeedCatalog(cmd.Context(), catalog, seed, a.logger)
			if err != nil {
				return err
			}

			a.logger.Info("catalog seeded",
				zap.String("file", file),
				zap.Int("categories_created", result.CategoriesCreated),
				zap.Int("products_created", result.ProductsCreated),
				zap.Int("products_skipped", result.ProductsSkipped),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d categories and %d products, skipped %d existing products\n",
				result.CategoriesCreated, result.ProductsCreated, result.ProductsSkipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the catalog YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
