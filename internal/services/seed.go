package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/utils"
)

// CatalogSeed is the YAML layout accepted by the seed command
type CatalogSeed struct {
	Categories []CategorySeed `yaml:"categories"`
}

// CategorySeed is a category and the products filed under it
type CategorySeed struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Products    []ProductSeed `yaml:"products"`
}

// ProductSeed describes one product to load
type ProductSeed struct {
	Name           string  `yaml:"name"`
	Description    string  `yaml:"description"`
	Price          float64 `yaml:"price"`
	Stock          int     `yaml:"stock"`
	IsPrescription bool    `yaml:"prescription"`
	Dosage         string  `yaml:"dosage"`
	Form           string  `yaml:"form"`
	Brand          string  `yaml:"brand"`
	ImageURL       string  `yaml:"image_url"`
}

// SeedResult counts what a seed run created and skipped
type SeedResult struct {
	CategoriesCreated int
	ProductsCreated   int
	ProductsSkipped   int
}

// ParseCatalogSeed decodes a YAML catalog
func ParseCatalogSeed(r io.Reader) (*CatalogSeed, error) {
	var seed CatalogSeed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse catalog seed: %w", err)
	}
	return &seed, nil
}

// SeedCatalog loads categories and products, skipping any whose slug already exists
func SeedCatalog(ctx context.Context, catalog *CatalogService, seed *CatalogSeed, logger *zap.Logger) (*SeedResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	result := &SeedResult{}

	for _, cs := range seed.Categories {
		category, err := catalog.GetCategoryBySlug(ctx, utils.Slugify(cs.Name))
		if errors.Is(err, ErrNotFound) {
			category, err = catalog.CreateCategory(ctx, &models.CreateCategoryRequest{
				Name:        cs.Name,
				Description: cs.Description,
			})
			if err != nil {
				return result, fmt.Errorf("failed to seed category %q: %w", cs.Name, err)
			}
			result.CategoriesCreated++
		} else if err != nil {
			return result, err
		}

		for _, ps := range cs.Products {
			_, err := catalog.GetProductBySlug(ctx, utils.Slugify(ps.Name))
			if err == nil {
				result.ProductsSkipped++
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return result, err
			}

			categoryID := category.ID
			_, err = catalog.CreateProduct(ctx, &models.CreateProductRequest{
				Name:           ps.Name,
				Description:    ps.Description,
				Price:          ps.Price,
				Stock:          ps.Stock,
				CategoryID:     &categoryID,
				IsPrescription: ps.IsPrescription,
				Dosage:         utils.SafeStringPointer(ps.Dosage),
				Form:           utils.SafeStringPointer(ps.Form),
				Brand:          utils.SafeStringPointer(ps.Brand),
				ImageURL:       ps.ImageURL,
			})
			if err != nil {
				return result, fmt.Errorf("failed to seed product %q: %w", ps.Name, err)
			}
			result.ProductsCreated++
		}
	}

	logger.Info("catalog seeded",
		zap.Int("categories_created", result.CategoriesCreated),
		zap.Int("products_created", result.ProductsCreated),
		zap.Int("products_skipped", result.ProductsSkipped),
	)
	return result, nil
}
