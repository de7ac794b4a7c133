package models

import (
	"net/url"
	"strings"
	"time"
)

// ProductStatus represents product availability derived from stock
type ProductStatus string

const (
	ProductStatusActive     ProductStatus = "active"
	ProductStatusLowStock   ProductStatus = "low_stock"
	ProductStatusOutOfStock ProductStatus = "out_of_stock"
)

// LowStockThreshold is the stock level at or below which a product is low on stock
const LowStockThreshold = 10

// StatusForStock derives the product status from its stock level
func StatusForStock(stock int) ProductStatus {
	switch {
	case stock > LowStockThreshold:
		return ProductStatusActive
	case stock > 0:
		return ProductStatusLowStock
	default:
		return ProductStatusOutOfStock
	}
}

// DefaultImageURL is the placeholder image used when a product has none
func DefaultImageURL(name string) string {
	return "/placeholder.svg?height=300&width=300&text=" + strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}

// Category groups products in the storefront
type Category struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Product represents an item for sale
type Product struct {
	ID             int64         `json:"id" db:"id"`
	Name           string        `json:"name" db:"name"`
	Slug           string        `json:"slug" db:"slug"`
	Description    string        `json:"description" db:"description"`
	Price          float64       `json:"price" db:"price"`
	Stock          int           `json:"stock" db:"stock"`
	CategoryID     *int64        `json:"categoryId,omitempty" db:"category_id"`
	IsPrescription bool          `json:"isPrescription" db:"is_prescription"`
	Dosage         *string       `json:"dosage,omitempty" db:"dosage"`
	Form           *string       `json:"form,omitempty" db:"form"`
	Brand          *string       `json:"brand,omitempty" db:"brand"`
	ImageURL       string        `json:"imageUrl" db:"image_url"`
	Status         ProductStatus `json:"status" db:"status"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time     `json:"updatedAt" db:"updated_at"`

	Category *Category `json:"category,omitempty"`
}

// IsAvailable checks if the requested quantity can be sold
func (p *Product) IsAvailable(quantity int) bool {
	return quantity > 0 && p.Stock >= quantity
}

// ProductFilter narrows and orders a product listing
type ProductFilter struct {
	Category  string `form:"category"`
	Search    string `form:"search"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

var productSortColumns = map[string]bool{
	"created_at": true,
	"name":       true,
	"price":      true,
	"stock":      true,
}

// Normalize applies listing defaults and clamps out-of-range values
func (f *ProductFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if !productSortColumns[f.SortBy] {
		f.SortBy = "created_at"
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
}

// ProductPage is one page of a product listing
type ProductPage struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// CreateProductRequest represents product creation data
type CreateProductRequest struct {
	Name           string  `json:"name" binding:"required,min=1,max=200"`
	Description    string  `json:"description" binding:"max=5000"`
	Price          float64 `json:"price" binding:"gte=0"`
	Stock          int     `json:"stock" binding:"gte=0"`
	CategoryID     *int64  `json:"categoryId,omitempty"`
	IsPrescription bool    `json:"isPrescription"`
	Dosage         *string `json:"dosage,omitempty" binding:"omitempty,max=100"`
	Form           *string `json:"form,omitempty" binding:"omitempty,max=100"`
	Brand          *string `json:"brand,omitempty" binding:"omitempty,max=100"`
	ImageURL       string  `json:"imageUrl" binding:"max=500"`
}

// UpdateProductRequest represents a partial product update
type UpdateProductRequest struct {
	Name           *string  `json:"name,omitempty" binding:"omitempty,min=1,max=200"`
	Description    *string  `json:"description,omitempty" binding:"omitempty,max=5000"`
	Price          *float64 `json:"price,omitempty" binding:"omitempty,gte=0"`
	Stock          *int     `json:"stock,omitempty" binding:"omitempty,gte=0"`
	CategoryID     *int64   `json:"categoryId,omitempty"`
	IsPrescription *bool    `json:"isPrescription,omitempty"`
	Dosage         *string  `json:"dosage,omitempty" binding:"omitempty,max=100"`
	Form           *string  `json:"form,omitempty" binding:"omitempty,max=100"`
	Brand          *string  `json:"brand,omitempty" binding:"omitempty,max=100"`
	ImageURL       *string  `json:"imageUrl,omitempty" binding:"omitempty,max=500"`
}

// CreateCategoryRequest represents category creation data
type CreateCategoryRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Description string `json:"description" binding:"max=1000"`
}
