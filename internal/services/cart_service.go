package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/utils"
)

// CartService manages the signed-in user's cart
type CartService struct {
	db *sql.DB
}

// NewCartService creates a new cart service
func NewCartService(db *sql.DB) *CartService {
	return &CartService{db: db}
}

// prefixScanner scans leading columns into prefix before handing the rest to an inner scan
type prefixScanner struct {
	row    rowScanner
	prefix []any
}

func (ps prefixScanner) Scan(dest ...any) error {
	return ps.row.Scan(append(ps.prefix, dest...)...)
}

const cartItemSelect = `
	SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.created_at, ci.updated_at,` + productColumns + `
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
	LEFT JOIN categories c ON c.id = p.category_id`

func scanCartItem(row rowScanner) (*models.CartItem, error) {
	var item models.CartItem
	product, err := scanProduct(prefixScanner{row: row, prefix: []any{
		&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt, &item.UpdatedAt,
	}})
	if err != nil {
		return nil, err
	}
	item.Product = product
	return &item, nil
}

// GetCart returns the user's cart priced at current product prices
func (s *CartService) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	rows, err := s.db.QueryContext(ctx, cartItemSelect+" WHERE ci.user_id = ? ORDER BY ci.created_at ASC, ci.id ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	defer rows.Close()

	cart := &models.Cart{Items: []models.CartItem{}}
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, *item)
		cart.ItemCount += item.Quantity
		cart.Total += item.LineTotal()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cart: %w", err)
	}

	cart.Total = utils.RoundToCents(cart.Total)
	return cart, nil
}

func (s *CartService) getItem(ctx context.Context, itemID int64) (*models.CartItem, error) {
	item, err := scanCartItem(s.db.QueryRowContext(ctx, cartItemSelect+" WHERE ci.id = ?", itemID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cart item %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return item, nil
}

// AddToCart adds quantity of a product, summing with any existing line for it
func (s *CartService) AddToCart(ctx context.Context, userID string, productID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stock int
	err = tx.QueryRowContext(ctx, "SELECT stock FROM products WHERE id = ?", productID).Scan(&stock)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	var existing int
	err = tx.QueryRowContext(ctx, "SELECT quantity FROM cart_items WHERE user_id = ? AND product_id = ?",
		userID, productID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check cart: %w", err)
	}

	if existing+quantity > stock {
		return nil, fmt.Errorf("%w: only %d available", ErrInsufficientStock, stock)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, product_id) DO UPDATE SET
			quantity = cart_items.quantity + excluded.quantity,
			updated_at = excluded.updated_at`,
		userID, productID, quantity, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to add to cart: %w", err)
	}

	var itemID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM cart_items WHERE user_id = ? AND product_id = ?",
		userID, productID).Scan(&itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cart: %w", err)
	}

	return s.getItem(ctx, itemID)
}

// UpdateQuantity sets a cart line's quantity; only the owner may change it
func (s *CartService) UpdateQuantity(ctx context.Context, userID string, itemID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	item, err := s.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, ErrForbidden
	}
	if quantity > item.Product.Stock {
		return nil, fmt.Errorf("%w: only %d available", ErrInsufficientStock, item.Product.Stock)
	}

	_, err = s.db.ExecContext(ctx, "UPDATE cart_items SET quantity = ?, updated_at = ? WHERE id = ?",
		quantity, time.Now().UTC(), itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}

	return s.getItem(ctx, itemID)
}

// RemoveItem deletes a cart line; only the owner may remove it
func (s *CartService) RemoveItem(ctx context.Context, userID string, itemID int64) error {
	var owner string
	err := s.db.QueryRowContext(ctx, "SELECT user_id FROM cart_items WHERE id = ?", itemID).Scan(&owner)
	if err == sql.ErrNoRows {
		return fmt.Errorf("cart item %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get cart item: %w", err)
	}
	if owner != userID {
		return ErrForbidden
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE id = ?", itemID); err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	return nil
}

// Clear empties the user's cart
func (s *CartService) Clear(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
