package models

import "time"

// CartItem represents a line in a user's cart
type CartItem struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	ProductID int64     `json:"productId" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Product *Product `json:"product,omitempty"`
}

// LineTotal is the line's cost at the product's current price
func (ci *CartItem) LineTotal() float64 {
	if ci.Product == nil {
		return 0
	}
	return ci.Product.Price * float64(ci.Quantity)
}

// Cart is the full content of a user's cart
type Cart struct {
	Items     []CartItem `json:"items"`
	ItemCount int        `json:"itemCount"`
	Total     float64    `json:"total"`
}

// AddToCartRequest represents adding a product to the cart
type AddToCartRequest struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"omitempty,gte=1"`
}

// UpdateCartItemRequest represents changing a cart line's quantity
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}
