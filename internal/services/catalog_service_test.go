package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/testutil"
)

func seedListing(td *testutil.TestDatabase) (painRelief int64) {
	painRelief = td.CreateTestCategory("Pain Relief", "pain-relief")
	vitamins := td.CreateTestCategory("Vitamins", "vitamins")
	base := time.Now().UTC().Add(-time.Hour)

	td.CreateTestProduct(testutil.ProductFixture{Name: "Ibuprofen 200mg", Slug: "ibuprofen-200mg", Price: 8.99, Stock: 40, CategoryID: &painRelief, CreatedAt: base})
	td.CreateTestProduct(testutil.ProductFixture{Name: "Aspirin 81mg", Slug: "aspirin-81mg", Price: 4.50, Stock: 5, CategoryID: &painRelief, CreatedAt: base.Add(time.Minute)})
	td.CreateTestProduct(testutil.ProductFixture{Name: "Vitamin C 500mg", Slug: "vitamin-c-500mg", Price: 12.00, Stock: 0, CategoryID: &vitamins, CreatedAt: base.Add(2 * time.Minute)})
	td.CreateTestProduct(testutil.ProductFixture{Name: "Vitamin D3", Slug: "vitamin-d3", Price: 9.75, Stock: 25, CategoryID: &vitamins, CreatedAt: base.Add(3 * time.Minute)})
	td.CreateTestProduct(testutil.ProductFixture{Name: "Hand Sanitizer", Slug: "hand-sanitizer", Price: 3.25, Stock: 100, CreatedAt: base.Add(4 * time.Minute)})
	return painRelief
}

func productNames(page *models.ProductPage) []string {
	names := make([]string, len(page.Products))
	for i, p := range page.Products {
		names[i] = p.Name
	}
	return names
}

func TestListProducts(t *testing.T) {
	ctx := context.Background()
	env := newStoreEnv(t)
	seedListing(env.td)

	tests := []struct {
		name      string
		filter    models.ProductFilter
		wantNames []string
		wantTotal int
	}{
		{
			name:      "NewestFirstByDefault",
			filter:    models.ProductFilter{},
			wantNames: []string{"Hand Sanitizer", "Vitamin D3", "Vitamin C 500mg", "Aspirin 81mg", "Ibuprofen 200mg"},
			wantTotal: 5,
		},
		{
			name:      "Category",
			filter:    models.ProductFilter{Category: "vitamins"},
			wantNames: []string{"Vitamin D3", "Vitamin C 500mg"},
			wantTotal: 2,
		},
		{
			name:      "UnknownCategoryIsIgnored",
			filter:    models.ProductFilter{Category: "no-such-category"},
			wantNames: []string{"Hand Sanitizer", "Vitamin D3", "Vitamin C 500mg", "Aspirin 81mg", "Ibuprofen 200mg"},
			wantTotal: 5,
		},
		{
			name:      "SearchIsCaseInsensitive",
			filter:    models.ProductFilter{Search: "VITAMIN"},
			wantNames: []string{"Vitamin D3", "Vitamin C 500mg"},
			wantTotal: 2,
		},
		{
			name:      "SearchWithinCategory",
			filter:    models.ProductFilter{Category: "pain-relief", Search: "asp"},
			wantNames: []string{"Aspirin 81mg"},
			wantTotal: 1,
		},
		{
			name:      "SearchWildcardIsLiteral",
			filter:    models.ProductFilter{Search: "%"},
			wantNames: []string{},
			wantTotal: 0,
		},
		{
			name:      "PriceAscending",
			filter:    models.ProductFilter{SortBy: "price", SortOrder: "asc"},
			wantNames: []string{"Hand Sanitizer", "Aspirin 81mg", "Ibuprofen 200mg", "Vitamin D3", "Vitamin C 500mg"},
			wantTotal: 5,
		},
		{
			name:      "Pagination",
			filter:    models.ProductFilter{SortBy: "name", SortOrder: "asc", Limit: 2, Offset: 2},
			wantNames: []string{"Ibuprofen 200mg", "Vitamin C 500mg"},
			wantTotal: 5,
		},
		{
			name:      "UnknownSortFallsBack",
			filter:    models.ProductFilter{SortBy: "price; DROP TABLE products", Limit: 1},
			wantNames: []string{"Hand Sanitizer"},
			wantTotal: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := env.catalog.ListProducts(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNames, productNames(page))
			assert.Equal(t, tt.wantTotal, page.Total)
		})
	}
}

func TestListProductsIncludesCategory(t *testing.T) {
	ctx := context.Background()
	env := newStoreEnv(t)
	seedListing(env.td)

	page, err := env.catalog.ListProducts(ctx, models.ProductFilter{SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Products, 5)

	aspirin := page.Products[0]
	require.NotNil(t, aspirin.Category)
	assert.Equal(t, "pain-relief", aspirin.Category.Slug)
	assert.Equal(t, models.ProductStatusLowStock, aspirin.Status)

	sanitizer := page.Products[1]
	assert.Nil(t, sanitizer.Category)
	assert.Nil(t, sanitizer.CategoryID)
}

func TestGetProductBySlug(t *testing.T) {
	ctx := context.Background()
	env := newStoreEnv(t)
	seedListing(env.td)

	product, err := env.catalog.GetProductBySlug(ctx, "vitamin-d3")
	require.NoError(t, err)
	assert.Equal(t, "Vitamin D3", product.Name)
	assert.Equal(t, 9.75, product.Price)

	_, err = env.catalog.GetProductBySlug(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateProduct(t *testing.T) {
	ctx := context.Background()
	env := newStoreEnv(t)
	categoryID := env.td.CreateTestCategory("Cold & Flu", "cold-flu")

	product, err := env.catalog.CreateProduct(ctx, &models.CreateProductRequest{
		Name:        "Cough Syrup",
		Description: "Soothes coughs",
		Price:       7.499,
		Stock:       5,
		CategoryID:  &categoryID,
		Dosage:      strPtr("10ml"),
	})
	require.NoError(t, err)
	assert.Equal(t, "cough-syrup", product.Slug)
	assert.Equal(t, 7.5, product.Price)
	assert.Equal(t, models.ProductStatusLowStock, product.Status)
	assert.Equal(t, models.DefaultImageURL("Cough Syrup"), product.ImageURL)
	require.NotNil(t, product.Category)
	assert.Equal(t, "Cold & Flu", product.Category.Name)
	require.NotNil(t, product.Dosage)
	assert.Equal(t, "10ml", *product.Dosage)

	t.Run("SlugCollision", func(t *testing.T) {
		second, err := env.catalog.CreateProduct(ctx, &models.CreateProductRequest{Name: "Cough  Syrup!", Price: 1, Stock: 50})
		require.NoError(t, err)
		assert.Equal(t, "cough-syrup-2", second.Slug)
		assert.Equal(t, models.ProductStatusActive, second.Status)

		third, err := env.catalog.CreateProduct(ctx, &models.CreateProductRequest{Name: "Cough Syrup", Price: 1})
		require.NoError(t, err)
		assert.Equal(t, "cough-syrup-3", third.Slug)
		assert.Equal(t, models.ProductStatusOutOfStock, third.Status)
	})

	t.Run("UnknownCategory", func(t *testing.T) {
		_, err := env.catalog.CreateProduct(ctx, &models.CreateProductRequest{Name: "Orphan", Price: 1, CategoryID: int64Ptr(999)})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("NegativePrice", func(t *testing.T) {
		_, err := env.catalog.CreateProduct(ctx, &models.CreateProductRequest{Name: "Bad", Price: -1})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("BlankName", func(t *testing.T) {
		_, err := env.catalog.CreateProduct(ctx, &models.CreateProductRequest{Name: " <b></b> ", Price: 1})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestUpdateProduct(t *testing.T) {
	ctx := context.Background()
	env := newStoreEnv(t)
	id := env.td.CreateTestProduct(testutil.ProductFixture{Name: "Allergy Relief", Slug: "allergy-relief", Price: 10, Stock: 30})

	updated, err := env.catalog.UpdateProduct(ctx, id, &models.UpdateProductRequest{
		Name:  strPtr("Allergy Relief Max"),
		Stock: intPtr(0),
	})
	require.NoError(t, err)
	assert.Equal(t, "Allergy Relief Max", updated.Name)
	assert.Equal(t, "allergy-relief", updated.Slug, "the slug is kept on rename")
	assert.Equal(t, 0, updated.Stock)
	assert.Equal(t, models.ProductStatusOutOfStock, updated.Status)
	assert.Equal(t, 10.0, updated.Price)

	t.Run("Restock", func(t *testing.T) {
		updated, err := env.catalog.UpdateProduct(ctx, id, &models.UpdateProductRequest{Stock: intPtr(8)})
		require.NoError(t, err)
		assert.Equal(t, models.ProductStatusLowStock, updated.Status)
	})

	t.Run("ClearImageRestoresPlaceholder", func(t *testing.T) {
		updated, err := env.catalog.UpdateProduct(ctx, id, &models.UpdateProductRequest{ImageURL: strPtr("")})
		require.NoError(t, err)
		assert.Equal(t, models.DefaultImageURL("Allergy Relief Max"), updated.ImageURL)
	})

	t.Run("UnknownCategory", func(t *testing.T) {
		_, err := env.catalog.UpdateProduct(ctx, id, &models.UpdateProductRequest{CategoryID: int64Ptr(42)})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := env.catalog.UpdateProduct(ctx, 999, &models.UpdateProductRequest{Stock: intPtr(1)})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteProduct(t *testing.T) {
	ctx := context.Background()
	env := newStoreEnv(t)
	id := env.td.CreateTestProduct(testutil.ProductFixture{Name: "Bandages", Slug: "bandages", Price: 2, Stock: 10})

	require.NoError(t, env.catalog.DeleteProduct(ctx, id))

	_, err := env.catalog.GetProductByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, env.catalog.DeleteProduct(ctx, id), ErrNotFound)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	env := newStoreEnv(t)

	first, err := env.catalog.CreateCategory(ctx, &models.CreateCategoryRequest{Name: "Skin Care", Description: "Creams"})
	require.NoError(t, err)
	assert.Equal(t, "skin-care", first.Slug)

	second, err := env.catalog.CreateCategory(ctx, &models.CreateCategoryRequest{Name: "Skin care"})
	require.NoError(t, err)
	assert.Equal(t, "skin-care-2", second.Slug)

	_, err = env.catalog.CreateCategory(ctx, &models.CreateCategoryRequest{Name: "Allergy"})
	require.NoError(t, err)

	categories, err := env.catalog.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 3)
	assert.Equal(t, "Allergy", categories[0].Name)

	found, err := env.catalog.GetCategoryBySlug(ctx, "skin-care")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = env.catalog.GetCategoryBySlug(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.catalog.CreateCategory(ctx, &models.CreateCategoryRequest{Name: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLowStockProducts(t *testing.T) {
	ctx := context.Background()
	env := newStoreEnv(t)
	seedListing(env.td)

	products, err := env.catalog.LowStockProducts(ctx, models.LowStockThreshold)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Vitamin C 500mg", products[0].Name)
	assert.Equal(t, "Aspirin 81mg", products[1].Name)
}

func TestCatalogCache(t *testing.T) {
	caches := map[string]func(t *testing.T) Cache{
		"Memory": func(t *testing.T) Cache { return NewMemoryCache() },
		"Redis": func(t *testing.T) Cache {
			_, client := newMiniredisClient(t)
			return NewRedisCache(client)
		},
	}

	for name, newCache := range caches {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			td := testutil.SetupTestDatabase(t)
			catalog := NewCatalogService(td.DB, newCache(t), time.Minute, zap.NewNop())
			td.CreateTestProduct(testutil.ProductFixture{Name: "Zinc", Slug: "zinc", Price: 5, Stock: 20})

			page, err := catalog.ListProducts(ctx, models.ProductFilter{})
			require.NoError(t, err)
			assert.Equal(t, 1, page.Total)

			// writes that bypass the service are not seen until the cache is dropped
			td.CreateTestProduct(testutil.ProductFixture{Name: "Iron", Slug: "iron", Price: 6, Stock: 20})
			page, err = catalog.ListProducts(ctx, models.ProductFilter{})
			require.NoError(t, err)
			assert.Equal(t, 1, page.Total)

			catalog.InvalidateCache(ctx)
			page, err = catalog.ListProducts(ctx, models.ProductFilter{})
			require.NoError(t, err)
			assert.Equal(t, 2, page.Total)

			// writes through the service invalidate on their own
			_, err = catalog.CreateProduct(ctx, &models.CreateProductRequest{Name: "Magnesium", Price: 7, Stock: 20})
			require.NoError(t, err)
			page, err = catalog.ListProducts(ctx, models.ProductFilter{})
			require.NoError(t, err)
			assert.Equal(t, 3, page.Total)
			assert.Equal(t, "Magnesium", page.Products[0].Name)

			product, err := catalog.GetProductBySlug(ctx, "zinc")
			require.NoError(t, err)
			assert.Equal(t, 20, product.Stock)

			_, err = catalog.UpdateProduct(ctx, product.ID, &models.UpdateProductRequest{Stock: intPtr(3)})
			require.NoError(t, err)
			product, err = catalog.GetProductBySlug(ctx, "zinc")
			require.NoError(t, err)
			assert.Equal(t, 3, product.Stock)
		})
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()

	require.NoError(t, cache.Set(ctx, "catalog:a", []string{"x"}, time.Minute))
	require.NoError(t, cache.Set(ctx, "other:b", 1, -time.Second))

	var got []string
	found, err := cache.Get(ctx, "catalog:a", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"x"}, got)

	var n int
	found, err = cache.Get(ctx, "other:b", &n)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.DeleteByPrefix(ctx, CatalogCachePrefix))
	found, err = cache.Get(ctx, "catalog:a", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
