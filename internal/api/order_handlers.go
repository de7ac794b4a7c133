package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"meditrack-backend/internal/middleware"
	"meditrack-backend/internal/models"
	"meditrack-backend/internal/services"
)

// OrderHandlers serves checkout and order history
type OrderHandlers struct {
	orders *services.OrderService
	logger *zap.Logger
}

// NewOrderHandlers creates order handlers
func NewOrderHandlers(orders *services.OrderService, logger *zap.Logger) *OrderHandlers {
	return &OrderHandlers{orders: orders, logger: logger}
}

// Checkout turns the cart into an order
func (h *OrderHandlers) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to place order")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Order placed successfully",
		"data":    order,
	})
}

// ListOrders returns the user's orders, newest first
func (h *OrderHandlers) ListOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), currentUserID(c))
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to list orders")
		return
	}

	respondOK(c, http.StatusOK, orders)
}

// GetOrder returns one order with its items. Admins may read any order.
func (h *OrderHandlers) GetOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), currentUserID(c), c.GetBool(middleware.ContextIsAdmin), id)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to get order")
		return
	}

	respondOK(c, http.StatusOK, order)
}
