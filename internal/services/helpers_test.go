package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/testutil"
)

type recordedEvent struct {
	Type  string
	Order *models.Order
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) PublishOrderEvent(eventType string, order *models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Order: order})
}

func (r *eventRecorder) Events() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

type sentMail struct {
	To      string
	OrderID int64
}

type stubMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error

	// block, when set, holds every send until it is closed
	block chan struct{}
}

func (m *stubMailer) SendOrderConfirmation(ctx context.Context, to string, order *models.Order) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, OrderID: order.ID})
	return nil
}

func (m *stubMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

// storeEnv wires every storefront service to one in-memory database
type storeEnv struct {
	td        *testutil.TestDatabase
	cache     *MemoryCache
	catalog   *CatalogService
	cart      *CartService
	orders    *OrderService
	users     *UserService
	dashboard *DashboardService
	events    *eventRecorder
	mailer    *stubMailer
}

func newStoreEnv(t *testing.T) *storeEnv {
	t.Helper()

	env := &storeEnv{
		td:     testutil.SetupTestDatabase(t),
		cache:  NewMemoryCache(),
		events: &eventRecorder{},
		mailer: &stubMailer{},
	}
	logger := zap.NewNop()
	env.catalog = NewCatalogService(env.td.DB, env.cache, time.Minute, logger)
	env.cart = NewCartService(env.td.DB)
	env.orders = NewOrderService(env.td.DB, env.catalog, env.events, env.mailer, logger)
	t.Cleanup(env.orders.Wait)
	env.users = NewUserService(env.td.DB, testutil.TestAdminDomain)
	env.dashboard = NewDashboardService(env.td.DB, env.catalog, env.orders, testutil.TestAdminDomain)
	return env
}

func (env *storeEnv) checkout(method models.ShippingMethod) *models.CheckoutRequest {
	return &models.CheckoutRequest{
		ShippingAddress: testutil.AddressFixture(),
		ShippingMethod:  method,
		PaymentMethod:   models.PaymentCreditCard,
	}
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
