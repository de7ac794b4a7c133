package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/services"
)

// AdminHandlers serves the admin panel
type AdminHandlers struct {
	catalog   *services.CatalogService
	orders    *services.OrderService
	dashboard *services.DashboardService
	feed      *services.OrderFeed
	logger    *zap.Logger
}

// NewAdminHandlers creates admin handlers
func NewAdminHandlers(catalog *services.CatalogService, orders *services.OrderService, dashboard *services.DashboardService, feed *services.OrderFeed, logger *zap.Logger) *AdminHandlers {
	return &AdminHandlers{
		catalog:   catalog,
		orders:    orders,
		dashboard: dashboard,
		feed:      feed,
		logger:    logger,
	}
}

// Dashboard returns store statistics
func (h *AdminHandlers) Dashboard(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to load dashboard")
		return
	}

	respondOK(c, http.StatusOK, stats)
}

// LowStockProducts lists products at or below the threshold query parameter
func (h *AdminHandlers) LowStockProducts(c *gin.Context) {
	threshold := models.LowStockThreshold
	if raw := c.Query("threshold"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			respondError(c, http.StatusBadRequest, "Invalid threshold")
			return
		}
		threshold = value
	}

	products, err := h.catalog.LowStockProducts(c.Request.Context(), threshold)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to list low stock products")
		return
	}

	respondOK(c, http.StatusOK, products)
}

// CreateProduct adds a product to the catalog
func (h *AdminHandlers) CreateProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to create product")
		return
	}

	respondOK(c, http.StatusCreated, product)
}

// UpdateProduct changes the given product fields
func (h *AdminHandlers) UpdateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to update product")
		return
	}

	respondOK(c, http.StatusOK, product)
}

// DeleteProduct removes a product
func (h *AdminHandlers) DeleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		handleServiceError(c, h.logger, err, "Failed to delete product")
		return
	}

	respondMessage(c, "Product deleted")
}

// CreateCategory adds a category
func (h *AdminHandlers) CreateCategory(c *gin.Context) {
	var req models.CreateCategoryRequest
	if !bindJSON(c, &req) {
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), &req)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to create category")
		return
	}

	respondOK(c, http.StatusCreated, category)
}

// ListOrders returns a page of all orders, optionally filtered by status
func (h *AdminHandlers) ListOrders(c *gin.Context) {
	var filter models.OrderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid query parameters: "+err.Error())
		return
	}

	page, err := h.orders.ListAllOrders(c.Request.Context(), filter)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to list orders")
		return
	}

	respondOK(c, http.StatusOK, page)
}

// GetOrder returns any order with its items
func (h *AdminHandlers) GetOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), currentUserID(c), true, id)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to get order")
		return
	}

	respondOK(c, http.StatusOK, order)
}

// UpdateOrderStatus sets an order's status
func (h *AdminHandlers) UpdateOrderStatus(c *gin.Context) {
	h.updateStatus(c, h.orders.UpdateOrderStatus, "Failed to update order status")
}

// UpdatePaymentStatus sets an order's payment status
func (h *AdminHandlers) UpdatePaymentStatus(c *gin.Context) {
	h.updateStatus(c, h.orders.UpdatePaymentStatus, "Failed to update payment status")
}

func (h *AdminHandlers) updateStatus(c *gin.Context, update func(context.Context, int64, string) (*models.Order, error), failure string) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := update(c.Request.Context(), id, req.Status)
	if err != nil {
		handleServiceError(c, h.logger, err, failure)
		return
	}

	respondOK(c, http.StatusOK, order)
}

// OrderFeed upgrades to the live order websocket
func (h *AdminHandlers) OrderFeed(c *gin.Context) {
	h.feed.HandleWebSocket(c)
}
