package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/telemetry"
)

// OrderEventPublisher receives order changes for the admin live feed
type OrderEventPublisher interface {
	PublishOrderEvent(eventType string, order *models.Order)
}

// ConfirmationMailTimeout bounds each order confirmation sent after checkout
const ConfirmationMailTimeout = 30 * time.Second

// OrderService places orders and manages their lifecycle
type OrderService struct {
	db      *sql.DB
	catalog *CatalogService
	events  OrderEventPublisher
	mailer  Mailer
	logger  *zap.Logger

	mail sync.WaitGroup
}

// NewOrderService creates a new order service
func NewOrderService(db *sql.DB, catalog *CatalogService, events OrderEventPublisher, mailer Mailer, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	return &OrderService{db: db, catalog: catalog, events: events, mailer: mailer, logger: logger}
}

type checkoutLine struct {
	productID int64
	name      string
	price     float64
	stock     int
	quantity  int
}

// CreateOrder turns the user's cart into an order. Stock checks, the order,
// its items, stock decrements and clearing the cart commit or roll back together.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req *models.CheckoutRequest) (order *models.Order, err error) {
	ctx, span := telemetry.StartSpan(ctx, "orders.create",
		attribute.String("user.id", userID),
		attribute.String("order.shipping_method", string(req.ShippingMethod)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	return s.createOrder(ctx, userID, req)
}

func (s *OrderService) createOrder(ctx context.Context, userID string, req *models.CheckoutRequest) (*models.Order, error) {
	addressJSON, err := json.Marshal(req.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to encode shipping address: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lines, err := s.checkoutLines(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	var subtotal float64
	for _, line := range lines {
		if line.quantity > line.stock {
			return nil, fmt.Errorf("%w for %s: only %d available", ErrInsufficientStock, line.name, line.stock)
		}
		subtotal += line.price * float64(line.quantity)
	}

	totals, err := models.CalculateTotals(subtotal, req.ShippingMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	contactEmail := strings.TrimSpace(req.Email)
	if contactEmail == "" {
		if err := tx.QueryRowContext(ctx, "SELECT email FROM users WHERE id = ?", userID).Scan(&contactEmail); err != nil {
			return nil, fmt.Errorf("failed to get customer email: %w", err)
		}
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (user_id, subtotal, shipping_cost, tax, total, shipping_address, shipping_method,
			payment_method, contact_email, contact_phone, status, payment_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, totals.Subtotal, totals.ShippingCost, totals.Tax, totals.Total, string(addressJSON),
		req.ShippingMethod, req.PaymentMethod, contactEmail, strings.TrimSpace(req.Phone),
		models.OrderStatusPending, models.PaymentStatusPending, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	orderID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read order id: %w", err)
	}

	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, price)
			VALUES (?, ?, ?, ?, ?)`,
			orderID, line.productID, line.name, line.quantity, line.price)
		if err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}

		if err := decrementStock(ctx, tx, line, now); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = ?", userID); err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	s.logger.Info("order placed",
		zap.Int64("order_id", orderID),
		zap.String("user_id", userID),
		zap.Float64("total", totals.Total),
		zap.Int("lines", len(lines)),
	)

	if s.catalog != nil {
		s.catalog.InvalidateCache(ctx)
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.publish(EventOrderCreated, order)
	s.sendConfirmation(ctx, order)

	return order, nil
}

// sendConfirmation mails the order in the background so a slow relay never holds up checkout
func (s *OrderService) sendConfirmation(ctx context.Context, order *models.Order) {
	mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ConfirmationMailTimeout)
	s.mail.Add(1)
	go func() {
		defer s.mail.Done()
		defer cancel()
		if err := s.mailer.SendOrderConfirmation(mailCtx, order.ContactEmail, order); err != nil {
			s.logger.Warn("order confirmation email failed", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}()
}

// Wait blocks until confirmation emails already started have finished
func (s *OrderService) Wait() {
	s.mail.Wait()
}

func (s *OrderService) checkoutLines(ctx context.Context, tx *sql.Tx, userID string) ([]checkoutLine, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT ci.product_id, p.name, p.price, p.stock, ci.quantity
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = ?
		ORDER BY ci.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	defer rows.Close()

	var lines []checkoutLine
	for rows.Next() {
		var line checkoutLine
		if err := rows.Scan(&line.productID, &line.name, &line.price, &line.stock, &line.quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// decrementStock only succeeds while enough stock remains and recomputes the status from the new level
func decrementStock(ctx context.Context, tx *sql.Tx, line checkoutLine, now time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE products SET
			stock = stock - ?,
			status = CASE
				WHEN stock - ? > ? THEN ?
				WHEN stock - ? > 0 THEN ?
				ELSE ?
			END,
			updated_at = ?
		WHERE id = ? AND stock >= ?`,
		line.quantity,
		line.quantity, models.LowStockThreshold, models.ProductStatusActive,
		line.quantity, models.ProductStatusLowStock,
		models.ProductStatusOutOfStock,
		now, line.productID, line.quantity)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check stock update: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("%w for %s", ErrInsufficientStock, line.name)
	}
	return nil
}

const orderSelect = `
	SELECT o.id, o.user_id, o.subtotal, o.shipping_cost, o.tax, o.total, o.shipping_address,
		o.shipping_method, o.payment_method, o.contact_email, o.contact_phone, o.status,
		o.payment_status, o.created_at, o.updated_at,
		TRIM(COALESCE(up.first_name, '') || ' ' || COALESCE(up.last_name, ''))
	FROM orders o
	LEFT JOIN user_profiles up ON up.user_id = o.user_id`

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o       models.Order
		address string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Subtotal, &o.ShippingCost, &o.Tax, &o.Total, &address,
		&o.ShippingMethod, &o.PaymentMethod, &o.ContactEmail, &o.ContactPhone, &o.Status,
		&o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt, &o.CustomerName,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(address), &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}
	return &o, nil
}

func (s *OrderService) queryOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	return orders, nil
}

// attachItems loads the items of every order in one query
func (s *OrderService) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[int64]int, len(orders))
	placeholders := make([]string, len(orders))
	args := make([]any, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		placeholders[i] = "?"
		args[i] = o.ID
		orders[i].Items = []models.OrderItem{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.product_name, oi.quantity, oi.price,
			p.slug, p.image_url, p.price, p.stock
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY oi.id ASC`, args...)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item           models.OrderItem
			productID      sql.NullInt64
			slug, imageURL sql.NullString
			currentPrice   sql.NullFloat64
			currentStock   sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &productID, &item.ProductName, &item.Quantity, &item.Price,
			&slug, &imageURL, &currentPrice, &currentStock); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if productID.Valid {
			item.ProductID = &productID.Int64
			if slug.Valid {
				item.Product = &models.Product{
					ID:       productID.Int64,
					Name:     item.ProductName,
					Slug:     slug.String,
					ImageURL: imageURL.String,
					Price:    currentPrice.Float64,
					Stock:    int(currentStock.Int64),
					Status:   models.StatusForStock(int(currentStock.Int64)),
				}
			}
		}
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

func (s *OrderService) getOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, orderSelect+" WHERE o.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	orders := []models.Order{*order}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListOrders returns the user's own orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	orders, err := s.queryOrders(ctx, orderSelect+" WHERE o.user_id = ? ORDER BY o.created_at DESC, o.id DESC", userID)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrder returns an order with its items. Customers only see their own orders.
func (s *OrderService) GetOrder(ctx context.Context, userID string, isAdmin bool, id int64) (*models.Order, error) {
	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && order.UserID != userID {
		return nil, fmt.Errorf("order %w", ErrNotFound)
	}
	return order, nil
}

// ListAllOrders returns one page of all orders for the admin panel, newest first
func (s *OrderService) ListAllOrders(ctx context.Context, filter models.OrderFilter) (*models.OrderPage, error) {
	filter.Normalize()

	where := ""
	var args []any
	if filter.Status != "" {
		where = " WHERE o.status = ?"
		args = append(args, filter.Status)
	}

	page := &models.OrderPage{Limit: filter.Limit, Offset: filter.Offset}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders o"+where, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	orders, err := s.queryOrders(ctx, orderSelect+where+" ORDER BY o.created_at DESC, o.id DESC LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, err
	}
	page.Orders = orders
	return page, nil
}

// UpdateOrderStatus sets an order's free-text status
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, status string) (*models.Order, error) {
	return s.updateStatusColumn(ctx, id, "status", status, EventOrderStatusUpdated)
}

// UpdatePaymentStatus sets an order's free-text payment status
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, id int64, status string) (*models.Order, error) {
	return s.updateStatusColumn(ctx, id, "payment_status", status, EventOrderPaymentUpdated)
}

func (s *OrderService) updateStatusColumn(ctx context.Context, id int64, column, status, eventType string) (*models.Order, error) {
	status, ok := models.NormalizeStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: status must be 1 to %d characters", ErrInvalidInput, models.MaxStatusLength)
	}

	result, err := s.db.ExecContext(ctx, "UPDATE orders SET "+column+" = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update order %s: %w", column, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check order update: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("order %w", ErrNotFound)
	}

	order, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order updated", zap.Int64("order_id", id), zap.String(column, status))
	s.publish(eventType, order)
	return order, nil
}

func (s *OrderService) publish(eventType string, order *models.Order) {
	if s.events != nil {
		s.events.PublishOrderEvent(eventType, order)
	}
}
