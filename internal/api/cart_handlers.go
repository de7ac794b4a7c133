package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/services"
)

// CartHandlers serves the signed-in user's cart
type CartHandlers struct {
	cart   *services.CartService
	logger *zap.Logger
}

// NewCartHandlers creates cart handlers
func NewCartHandlers(cart *services.CartService, logger *zap.Logger) *CartHandlers {
	return &CartHandlers{cart: cart, logger: logger}
}

// GetCart returns the cart with its total
func (h *CartHandlers) GetCart(c *gin.Context) {
	cart, err := h.cart.GetCart(c.Request.Context(), currentUserID(c))
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to get cart")
		return
	}

	respondOK(c, http.StatusOK, cart)
}

// AddItem adds a product to the cart, one unit unless a quantity is given
func (h *CartHandlers) AddItem(c *gin.Context) {
	var req models.AddToCartRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := h.cart.AddToCart(c.Request.Context(), currentUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to add to cart")
		return
	}

	respondOK(c, http.StatusCreated, item)
}

// UpdateItem changes a cart line's quantity
func (h *CartHandlers) UpdateItem(c *gin.Context) {
	itemID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.cart.UpdateQuantity(c.Request.Context(), currentUserID(c), itemID, req.Quantity)
	if err != nil {
		handleServiceError(c, h.logger, err, "Failed to update cart item")
		return
	}

	respondOK(c, http.StatusOK, item)
}

// RemoveItem deletes a cart line
func (h *CartHandlers) RemoveItem(c *gin.Context) {
	itemID, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.cart.RemoveItem(c.Request.Context(), currentUserID(c), itemID); err != nil {
		handleServiceError(c, h.logger, err, "Failed to remove cart item")
		return
	}

	respondMessage(c, "Item removed from cart")
}

// ClearCart empties the cart
func (h *CartHandlers) ClearCart(c *gin.Context) {
	if err := h.cart.Clear(c.Request.Context(), currentUserID(c)); err != nil {
		handleServiceError(c, h.logger, err, "Failed to clear cart")
		return
	}

	respondMessage(c, "Cart cleared")
}
