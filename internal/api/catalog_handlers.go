package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/services"
)

// CatalogHandlers serves the public product catalog
type CatalogHandlers struct {
	catalog *services.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandlers creates catalog handlers
func NewCatalogHandlers(catalog *services.CatalogService, logger *zap.Logger) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog, logger: logger}
}

// ListProducts returns a filtered, sorted page of products
func (h *CatalogHandlers) ListProducts(c *gin.Context) {
	var filter models.ProductFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid query parameters: "+err.Error())
		return
	}

	page, err := h.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to list products")
		return
	}

	respondOK(c, http.StatusOK, page)
}

// GetProduct returns one product by slug
func (h *CatalogHandlers) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProductBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to get product")
		return
	}

	respondOK(c, http.StatusOK, product)
}

// ListCategories returns every category ordered by name
func (h *CatalogHandlers) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to list categories")
		return
	}

	respondOK(c, http.StatusOK, categories)
}
