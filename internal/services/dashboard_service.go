package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"meditrack-backend/internal/models"
)

// RecentOrdersLimit is how many orders the dashboard shows
const RecentOrdersLimit = 5

// DashboardService aggregates store statistics for the admin panel
type DashboardService struct {
	db          *sql.DB
	catalog     *CatalogService
	orders      *OrderService
	adminDomain string
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(db *sql.DB, catalog *CatalogService, orders *OrderService, adminDomain string) *DashboardService {
	return &DashboardService{db: db, catalog: catalog, orders: orders, adminDomain: adminDomain}
}

// Stats runs the dashboard queries concurrently
func (s *DashboardService) Stats(ctx context.Context) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.scalar(ctx, &stats.TotalRevenue,
			"SELECT COALESCE(SUM(total), 0) FROM orders WHERE status != ?", models.OrderStatusCancelled)
	})
	g.Go(func() error {
		return s.scalar(ctx, &stats.OrderCount, "SELECT COUNT(*) FROM orders")
	})
	g.Go(func() error {
		return s.scalar(ctx, &stats.PendingOrders,
			"SELECT COUNT(*) FROM orders WHERE status = ?", models.OrderStatusPending)
	})
	g.Go(func() error {
		return s.scalar(ctx, &stats.ProductCount, "SELECT COUNT(*) FROM products")
	})
	g.Go(func() error {
		return s.scalar(ctx, &stats.CustomerCount,
			"SELECT COUNT(*) FROM users WHERE LOWER(email) NOT LIKE ?", "%"+strings.ToLower(s.adminDomain))
	})
	g.Go(func() error {
		products, err := s.catalog.LowStockProducts(ctx, models.LowStockThreshold)
		if err != nil {
			return err
		}
		stats.LowStockProducts = products
		return nil
	})
	g.Go(func() error {
		orders, err := s.orders.queryOrders(ctx, orderSelect+" ORDER BY o.created_at DESC, o.id DESC LIMIT ?", RecentOrdersLimit)
		if err != nil {
			return err
		}
		stats.RecentOrders = orders
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load dashboard: %w", err)
	}
	return stats, nil
}

func (s *DashboardService) scalar(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(dest); err != nil {
		return fmt.Errorf("dashboard query failed: %w", err)
	}
	return nil
}
