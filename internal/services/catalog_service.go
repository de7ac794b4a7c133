package services

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/utils"
)

// CatalogService handles products and categories
type CatalogService struct {
	db       *sql.DB
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(db *sql.DB, cache Cache, cacheTTL time.Duration, logger *zap.Logger) *CatalogService {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{db: db, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

const productColumns = `
	p.id, p.name, p.slug, p.description, p.price, p.stock, p.category_id, p.is_prescription,
	p.dosage, p.form, p.brand, p.image_url, p.status, p.created_at, p.updated_at,
	c.id, c.name, c.slug, c.description, c.created_at`

const productFrom = `
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var (
		p                         models.Product
		categoryID                sql.NullInt64
		dosage, form, brand       sql.NullString
		catID                     sql.NullInt64
		catName, catSlug, catDesc sql.NullString
		catCreated                sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.Stock, &categoryID, &p.IsPrescription,
		&dosage, &form, &brand, &p.ImageURL, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		&catID, &catName, &catSlug, &catDesc, &catCreated,
	)
	if err != nil {
		return nil, err
	}

	if categoryID.Valid {
		p.CategoryID = &categoryID.Int64
	}
	if dosage.Valid {
		p.Dosage = &dosage.String
	}
	if form.Valid {
		p.Form = &form.String
	}
	if brand.Valid {
		p.Brand = &brand.String
	}
	if catID.Valid {
		p.Category = &models.Category{
			ID:          catID.Int64,
			Name:        catName.String,
			Slug:        catSlug.String,
			Description: catDesc.String,
			CreatedAt:   catCreated.Time,
		}
	}
	return &p, nil
}

func cacheKey(parts ...any) string {
	data, _ := json.Marshal(parts)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (s *CatalogService) cached(ctx context.Context, key string, dest any) bool {
	found, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return found
}

func (s *CatalogService) store(ctx context.Context, key string, value any) {
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateCache drops every cached catalog read
func (s *CatalogService) InvalidateCache(ctx context.Context) {
	if err := s.cache.DeleteByPrefix(ctx, CatalogCachePrefix); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

// ListProducts returns one page of products matching the filter
func (s *CatalogService) ListProducts(ctx context.Context, filter models.ProductFilter) (*models.ProductPage, error) {
	filter.Normalize()
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Search = strings.TrimSpace(filter.Search)

	key := CatalogCachePrefix + "products:" + cacheKey(filter)
	var page models.ProductPage
	if s.cached(ctx, key, &page) {
		return &page, nil
	}

	var (
		conditions []string
		args       []any
	)
	// An unknown category slug leaves the listing unfiltered
	if filter.Category != "" {
		category, err := s.GetCategoryBySlug(ctx, filter.Category)
		switch {
		case err == nil:
			conditions = append(conditions, "p.category_id = ?")
			args = append(args, category.ID)
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	if filter.Search != "" {
		conditions = append(conditions, `LOWER(p.name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Search))+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+productFrom+where, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	// SortBy and SortOrder are whitelisted by Normalize
	order := fmt.Sprintf(" ORDER BY p.%s %s, p.id %s LIMIT ? OFFSET ?", filter.SortBy, filter.SortOrder, filter.SortOrder)
	rows, err := s.db.QueryContext(ctx, "SELECT"+productColumns+productFrom+where+order,
		append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	page.Products = []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		page.Products = append(page.Products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	page.Limit = filter.Limit
	page.Offset = filter.Offset
	s.store(ctx, key, page)
	return &page, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// GetProductBySlug returns a single product with its category
func (s *CatalogService) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	key := CatalogCachePrefix + "product:" + slug
	var cachedProduct models.Product
	if s.cached(ctx, key, &cachedProduct) {
		return &cachedProduct, nil
	}

	p, err := s.getProduct(ctx, "p.slug = ?", slug)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, p)
	return p, nil
}

// GetProductByID returns a single product with its category
func (s *CatalogService) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return s.getProduct(ctx, "p.id = ?", id)
}

func (s *CatalogService) getProduct(ctx context.Context, condition string, arg any) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, "SELECT"+productColumns+productFrom+" WHERE "+condition, arg)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ListCategories returns all categories ordered by name
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	key := CatalogCachePrefix + "categories"
	var categories []models.Category
	if s.cached(ctx, key, &categories) {
		return categories, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, description, created_at
		FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories = []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}

	s.store(ctx, key, categories)
	return categories, nil
}

// GetCategoryBySlug returns a single category
func (s *CatalogService) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var c models.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, created_at
		FROM categories WHERE slug = ?`, slug).Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("category %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// CreateCategory adds a category with a slug derived from its name
func (s *CatalogService) CreateCategory(ctx context.Context, req *models.CreateCategoryRequest) (*models.Category, error) {
	name := utils.SanitizeString(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	slug, err := utils.UniqueSlug(utils.Slugify(name), slugTaken(ctx, tx, "categories"))
	if err != nil {
		return nil, fmt.Errorf("failed to generate category slug: %w", err)
	}

	category := &models.Category{
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   time.Now().UTC(),
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO categories (name, slug, description, created_at) VALUES (?, ?, ?, ?)`,
		category.Name, category.Slug, category.Description, category.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	if category.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read category id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit category: %w", err)
	}

	s.InvalidateCache(ctx)
	return category, nil
}

func slugTaken(ctx context.Context, tx *sql.Tx, table string) func(string) (bool, error) {
	return func(slug string) (bool, error) {
		var exists bool
		err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM "+table+" WHERE slug = ?)", slug).Scan(&exists)
		return exists, err
	}
}

func categoryExists(ctx context.Context, tx *sql.Tx, id int64) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM categories WHERE id = ?)", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check category: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: category %d does not exist", ErrInvalidInput, id)
	}
	return nil
}

// CreateProduct adds a product; the slug, image and status are derived when not given
func (s *CatalogService) CreateProduct(ctx context.Context, req *models.CreateProductRequest) (*models.Product, error) {
	name := utils.SanitizeString(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if req.Price < 0 || req.Stock < 0 {
		return nil, fmt.Errorf("%w: price and stock cannot be negative", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if req.CategoryID != nil {
		if err := categoryExists(ctx, tx, *req.CategoryID); err != nil {
			return nil, err
		}
	}

	slug, err := utils.UniqueSlug(utils.Slugify(name), slugTaken(ctx, tx, "products"))
	if err != nil {
		return nil, fmt.Errorf("failed to generate product slug: %w", err)
	}

	imageURL := strings.TrimSpace(req.ImageURL)
	if imageURL == "" {
		imageURL = models.DefaultImageURL(name)
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO products (name, slug, description, price, stock, category_id, is_prescription,
			dosage, form, brand, image_url, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, slug, strings.TrimSpace(req.Description), utils.RoundToCents(req.Price), req.Stock,
		req.CategoryID, req.IsPrescription, req.Dosage, req.Form, req.Brand, imageURL,
		models.StatusForStock(req.Stock), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read product id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit product: %w", err)
	}

	s.InvalidateCache(ctx)
	s.logger.Info("product created", zap.Int64("product_id", id), zap.String("slug", slug))
	return s.GetProductByID(ctx, id)
}

// UpdateProduct applies a partial update and recomputes the status from stock
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, req *models.UpdateProductRequest) (*models.Product, error) {
	p, err := s.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if p.Name = utils.SanitizeString(*req.Name); p.Name == "" {
			return nil, fmt.Errorf("%w: product name is required", ErrInvalidInput)
		}
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidInput)
		}
		p.Price = utils.RoundToCents(*req.Price)
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, fmt.Errorf("%w: stock cannot be negative", ErrInvalidInput)
		}
		p.Stock = *req.Stock
	}
	if req.CategoryID != nil {
		p.CategoryID = req.CategoryID
	}
	if req.IsPrescription != nil {
		p.IsPrescription = *req.IsPrescription
	}
	if req.Dosage != nil {
		p.Dosage = utils.SafeStringPointer(*req.Dosage)
	}
	if req.Form != nil {
		p.Form = utils.SafeStringPointer(*req.Form)
	}
	if req.Brand != nil {
		p.Brand = utils.SafeStringPointer(*req.Brand)
	}
	if req.ImageURL != nil {
		if p.ImageURL = strings.TrimSpace(*req.ImageURL); p.ImageURL == "" {
			p.ImageURL = models.DefaultImageURL(p.Name)
		}
	}
	p.Status = models.StatusForStock(p.Stock)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if p.CategoryID != nil {
		if err := categoryExists(ctx, tx, *p.CategoryID); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET name = ?, description = ?, price = ?, stock = ?, category_id = ?,
			is_prescription = ?, dosage = ?, form = ?, brand = ?, image_url = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Price, p.Stock, p.CategoryID, p.IsPrescription,
		p.Dosage, p.Form, p.Brand, p.ImageURL, p.Status, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit product: %w", err)
	}

	s.InvalidateCache(ctx)
	return s.GetProductByID(ctx, id)
}

// DeleteProduct removes a product; cart lines go with it, order history keeps its snapshot
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted product: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("product %w", ErrNotFound)
	}

	s.InvalidateCache(ctx)
	s.logger.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

// LowStockProducts returns products with stock at or below threshold, lowest first
func (s *CatalogService) LowStockProducts(ctx context.Context, threshold int) ([]models.Product, error) {
	if threshold < 0 {
		threshold = models.LowStockThreshold
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT"+productColumns+productFrom+" WHERE p.stock <= ? ORDER BY p.stock ASC, p.name ASC", threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}
