package models

import (
	"fmt"
	"strings"
	"time"

	"meditrack-backend/internal/utils"
)

// OrderStatus values used by the storefront; admins may set any free-text status
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// PaymentStatus values used by the storefront
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// ShippingMethod represents a delivery option at checkout
type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
	ShippingPickup   ShippingMethod = "pickup"
)

// PaymentMethod represents how the customer intends to pay
type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentPayPal     PaymentMethod = "paypal"
)

const (
	StandardShippingCost  = 5.99
	ExpressShippingCost   = 12.99
	FreeShippingThreshold = 50.0
	TaxRate               = 0.07
	MaxStatusLength       = 32
)

// ShippingCost returns the delivery charge for the method at the given subtotal
func ShippingCost(method ShippingMethod, subtotal float64) (float64, error) {
	switch method {
	case ShippingStandard:
		if subtotal > FreeShippingThreshold {
			return 0, nil
		}
		return StandardShippingCost, nil
	case ShippingExpress:
		return ExpressShippingCost, nil
	case ShippingPickup:
		return 0, nil
	default:
		return 0, fmt.Errorf("unknown shipping method %q", method)
	}
}

// OrderTotals is the price breakdown of an order
type OrderTotals struct {
	Subtotal     float64 `json:"subtotal"`
	ShippingCost float64 `json:"shippingCost"`
	Tax          float64 `json:"tax"`
	Total        float64 `json:"total"`
}

// CalculateTotals computes shipping, tax and total for a subtotal, rounded to cents
func CalculateTotals(subtotal float64, method ShippingMethod) (OrderTotals, error) {
	subtotal = utils.RoundToCents(subtotal)
	shipping, err := ShippingCost(method, subtotal)
	if err != nil {
		return OrderTotals{}, err
	}
	tax := utils.RoundToCents(subtotal * TaxRate)
	return OrderTotals{
		Subtotal:     subtotal,
		ShippingCost: shipping,
		Tax:          tax,
		Total:        utils.RoundToCents(subtotal + shipping + tax),
	}, nil
}

// ShippingAddress is where an order is delivered
type ShippingAddress struct {
	FirstName string `json:"firstName" binding:"required,max=50"`
	LastName  string `json:"lastName" binding:"required,max=50"`
	Address   string `json:"address" binding:"required,max=200"`
	City      string `json:"city" binding:"required,max=100"`
	State     string `json:"state" binding:"required,max=100"`
	ZipCode   string `json:"zipCode" binding:"required,max=20"`
	Country   string `json:"country" binding:"required,max=100"`
}

// Order represents a placed order
type Order struct {
	ID              int64           `json:"id" db:"id"`
	UserID          string          `json:"userId" db:"user_id"`
	Subtotal        float64         `json:"subtotal" db:"subtotal"`
	ShippingCost    float64         `json:"shippingCost" db:"shipping_cost"`
	Tax             float64         `json:"tax" db:"tax"`
	Total           float64         `json:"total" db:"total"`
	ShippingAddress ShippingAddress `json:"shippingAddress" db:"shipping_address"`
	ShippingMethod  ShippingMethod  `json:"shippingMethod" db:"shipping_method"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" db:"payment_method"`
	ContactEmail    string          `json:"contactEmail" db:"contact_email"`
	ContactPhone    string          `json:"contactPhone" db:"contact_phone"`
	Status          string          `json:"status" db:"status"`
	PaymentStatus   string          `json:"paymentStatus" db:"payment_status"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`

	Items        []OrderItem `json:"items,omitempty"`
	CustomerName string      `json:"customerName,omitempty"`
}

// OrderItem is a snapshot of a purchased product
type OrderItem struct {
	ID          int64   `json:"id" db:"id"`
	OrderID     int64   `json:"orderId" db:"order_id"`
	ProductID   *int64  `json:"productId,omitempty" db:"product_id"`
	ProductName string  `json:"productName" db:"product_name"`
	Quantity    int     `json:"quantity" db:"quantity"`
	Price       float64 `json:"price" db:"price"`

	Product *Product `json:"product,omitempty"`
}

// CheckoutRequest represents the checkout form
type CheckoutRequest struct {
	ShippingAddress ShippingAddress `json:"shippingAddress" binding:"required"`
	ShippingMethod  ShippingMethod  `json:"shippingMethod" binding:"required,oneof=standard express pickup"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod" binding:"required,oneof=credit_card paypal"`
	Email           string          `json:"email" binding:"omitempty,email"`
	Phone           string          `json:"phone" binding:"omitempty,phone"`
}

// OrderFilter narrows the admin order listing
type OrderFilter struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// Normalize applies listing defaults and clamps out-of-range values
func (f *OrderFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Status = strings.TrimSpace(f.Status)
}

// OrderPage is one page of the admin order listing
type OrderPage struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// UpdateStatusRequest sets an order's status or payment status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// NormalizeStatus trims a free-text status and checks its length
func NormalizeStatus(status string) (string, bool) {
	status = strings.TrimSpace(status)
	if status == "" || len(status) > MaxStatusLength {
		return "", false
	}
	return status, true
}
