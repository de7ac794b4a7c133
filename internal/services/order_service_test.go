package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"meditrack-backend/internal/models"
	"meditrack-backend/internal/testutil"
)

type OrderServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	env      *storeEnv
	customer testutil.TestUser
	other    testutil.TestUser
	vitamins int64
	bandages int64
	inhaler  int64
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceTestSuite))
}

func (s *OrderServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.env = newStoreEnv(s.T())
	s.customer = s.env.td.CreateTestUser("jane@example.com")
	s.other = s.env.td.CreateTestUser("other@example.com")
	s.vitamins = s.env.td.CreateTestProduct(testutil.ProductFixture{Name: "Multivitamin", Slug: "multivitamin", Price: 10, Stock: 12})
	s.bandages = s.env.td.CreateTestProduct(testutil.ProductFixture{Name: "Bandages", Slug: "bandages", Price: 15, Stock: 3})
	s.inhaler = s.env.td.CreateTestProduct(testutil.ProductFixture{Name: "Inhaler", Slug: "inhaler", Price: 45, Stock: 30})
}

func (s *OrderServiceTestSuite) addToCart(userID string, productID int64, quantity int) {
	_, err := s.env.cart.AddToCart(s.ctx, userID, productID, quantity)
	s.Require().NoError(err)
}

func (s *OrderServiceTestSuite) placeOrder(userID string, productID int64, quantity int) *models.Order {
	s.addToCart(userID, productID, quantity)
	order, err := s.env.orders.CreateOrder(s.ctx, userID, s.env.checkout(models.ShippingStandard))
	s.Require().NoError(err)
	return order
}

func (s *OrderServiceTestSuite) TestCreateOrder() {
	s.addToCart(s.customer.ID, s.vitamins, 2)
	s.addToCart(s.customer.ID, s.bandages, 1)

	order, err := s.env.orders.CreateOrder(s.ctx, s.customer.ID, s.env.checkout(models.ShippingStandard))
	s.Require().NoError(err)

	s.Equal(s.customer.ID, order.UserID)
	s.Equal(35.0, order.Subtotal)
	s.Equal(models.StandardShippingCost, order.ShippingCost)
	s.Equal(2.45, order.Tax)
	s.Equal(43.44, order.Total)
	s.Equal(models.OrderStatusPending, order.Status)
	s.Equal(models.PaymentStatusPending, order.PaymentStatus)
	s.Equal(s.customer.Email, order.ContactEmail)
	s.Equal(testutil.AddressFixture(), order.ShippingAddress)
	s.Equal("Test User", order.CustomerName)

	s.Require().Len(order.Items, 2)
	s.Equal("Multivitamin", order.Items[0].ProductName)
	s.Equal(2, order.Items[0].Quantity)
	s.Equal(10.0, order.Items[0].Price)
	s.Require().NotNil(order.Items[0].Product)
	s.Equal("multivitamin", order.Items[0].Product.Slug)

	stock, status := s.env.td.ProductStock(s.vitamins)
	s.Equal(10, stock)
	s.Equal(models.ProductStatusLowStock, status)
	stock, status = s.env.td.ProductStock(s.bandages)
	s.Equal(2, stock)
	s.Equal(models.ProductStatusLowStock, status)

	cart, err := s.env.cart.GetCart(s.ctx, s.customer.ID)
	s.Require().NoError(err)
	s.Empty(cart.Items)

	events := s.env.events.Events()
	s.Require().Len(events, 1)
	s.Equal(EventOrderCreated, events[0].Type)
	s.Equal(order.ID, events[0].Order.ID)

	s.env.orders.Wait()
	s.Equal([]sentMail{{To: s.customer.Email, OrderID: order.ID}}, s.env.mailer.Sent())
}

func (s *OrderServiceTestSuite) TestCreateOrderSellsOutProduct() {
	s.addToCart(s.customer.ID, s.bandages, 3)

	order, err := s.env.orders.CreateOrder(s.ctx, s.customer.ID, s.env.checkout(models.ShippingExpress))
	s.Require().NoError(err)
	s.Equal(models.ExpressShippingCost, order.ShippingCost)

	stock, status := s.env.td.ProductStock(s.bandages)
	s.Equal(0, stock)
	s.Equal(models.ProductStatusOutOfStock, status)
}

func (s *OrderServiceTestSuite) TestCreateOrderFreeShipping() {
	s.addToCart(s.customer.ID, s.inhaler, 2)

	order, err := s.env.orders.CreateOrder(s.ctx, s.customer.ID, s.env.checkout(models.ShippingStandard))
	s.Require().NoError(err)
	s.Equal(90.0, order.Subtotal)
	s.Equal(0.0, order.ShippingCost)
	s.Equal(6.3, order.Tax)
	s.Equal(96.3, order.Total)

	stock, status := s.env.td.ProductStock(s.inhaler)
	s.Equal(28, stock)
	s.Equal(models.ProductStatusActive, status)
}

func (s *OrderServiceTestSuite) TestCreateOrderContactOverride() {
	s.addToCart(s.customer.ID, s.vitamins, 1)

	req := s.env.checkout(models.ShippingPickup)
	req.Email = "billing@example.com"
	req.Phone = "+15550001111"
	order, err := s.env.orders.CreateOrder(s.ctx, s.customer.ID, req)
	s.Require().NoError(err)

	s.Equal("billing@example.com", order.ContactEmail)
	s.Equal("+15550001111", order.ContactPhone)
	s.Equal(0.0, order.ShippingCost)
	s.env.orders.Wait()
	s.Require().Len(s.env.mailer.Sent(), 1)
	s.Equal("billing@example.com", s.env.mailer.Sent()[0].To)
}

func (s *OrderServiceTestSuite) TestCreateOrderEmptyCart() {
	_, err := s.env.orders.CreateOrder(s.ctx, s.customer.ID, s.env.checkout(models.ShippingStandard))
	s.ErrorIs(err, ErrEmptyCart)
	s.Equal(0, s.env.td.Count("orders"))
	s.Empty(s.env.events.Events())
}

func (s *OrderServiceTestSuite) TestCreateOrderInsufficientStockRollsBack() {
	s.addToCart(s.customer.ID, s.vitamins, 2)
	s.addToCart(s.customer.ID, s.bandages, 3)

	// stock sold elsewhere after the cart was filled
	_, err := s.env.td.DB.Exec("UPDATE products SET stock = 1 WHERE id = ?", s.bandages)
	s.Require().NoError(err)

	_, err = s.env.orders.CreateOrder(s.ctx, s.customer.ID, s.env.checkout(models.ShippingStandard))
	s.ErrorIs(err, ErrInsufficientStock)
	s.Contains(err.Error(), "Bandages")

	s.Equal(0, s.env.td.Count("orders"))
	s.Equal(0, s.env.td.Count("order_items"))
	stock, _ := s.env.td.ProductStock(s.vitamins)
	s.Equal(12, stock)

	cart, err := s.env.cart.GetCart(s.ctx, s.customer.ID)
	s.Require().NoError(err)
	s.Equal(5, cart.ItemCount, "the cart survives a failed checkout")
	s.env.orders.Wait()
	s.Empty(s.env.mailer.Sent())
}

func (s *OrderServiceTestSuite) TestCreateOrderUnknownShippingMethod() {
	s.addToCart(s.customer.ID, s.vitamins, 1)

	_, err := s.env.orders.CreateOrder(s.ctx, s.customer.ID, s.env.checkout("drone"))
	s.ErrorIs(err, ErrInvalidInput)
	s.Equal(0, s.env.td.Count("orders"))
}

func (s *OrderServiceTestSuite) TestMailerFailureKeepsOrder() {
	s.env.mailer.err = errors.New("smtp unavailable")
	s.addToCart(s.customer.ID, s.vitamins, 1)

	order, err := s.env.orders.CreateOrder(s.ctx, s.customer.ID, s.env.checkout(models.ShippingStandard))
	s.Require().NoError(err)
	s.NotZero(order.ID)
	s.Equal(1, s.env.td.Count("orders"))
	s.env.orders.Wait()
	s.Empty(s.env.mailer.Sent())
}

func (s *OrderServiceTestSuite) TestSlowMailerDoesNotDelayCheckout() {
	release := make(chan struct{})
	s.env.mailer.block = release
	s.addToCart(s.customer.ID, s.vitamins, 1)

	done := make(chan *models.Order, 1)
	go func() {
		order, err := s.env.orders.CreateOrder(s.ctx, s.customer.ID, s.env.checkout(models.ShippingStandard))
		s.NoError(err)
		done <- order
	}()

	var order *models.Order
	select {
	case order = <-done:
	case <-time.After(5 * time.Second):
		close(release)
		s.FailNow("checkout waited for the confirmation email")
	}
	s.Require().NotNil(order)
	s.Empty(s.env.mailer.Sent())

	close(release)
	s.env.orders.Wait()
	s.Equal([]sentMail{{To: s.customer.Email, OrderID: order.ID}}, s.env.mailer.Sent())
}

func (s *OrderServiceTestSuite) TestCreateOrderRefreshesCatalogCache() {
	before, err := s.env.catalog.GetProductBySlug(s.ctx, "multivitamin")
	s.Require().NoError(err)
	s.Equal(12, before.Stock)

	s.placeOrder(s.customer.ID, s.vitamins, 4)

	after, err := s.env.catalog.GetProductBySlug(s.ctx, "multivitamin")
	s.Require().NoError(err)
	s.Equal(8, after.Stock)
	s.Equal(models.ProductStatusLowStock, after.Status)
}

func (s *OrderServiceTestSuite) TestListOrders() {
	first := s.placeOrder(s.customer.ID, s.vitamins, 1)
	second := s.placeOrder(s.customer.ID, s.inhaler, 1)
	s.placeOrder(s.other.ID, s.vitamins, 1)

	orders, err := s.env.orders.ListOrders(s.ctx, s.customer.ID)
	s.Require().NoError(err)
	s.Require().Len(orders, 2)
	s.Equal(second.ID, orders[0].ID)
	s.Equal(first.ID, orders[1].ID)
	s.Require().Len(orders[0].Items, 1)
	s.Equal("Inhaler", orders[0].Items[0].ProductName)

	none, err := s.env.orders.ListOrders(s.ctx, "nobody")
	s.Require().NoError(err)
	s.NotNil(none)
	s.Empty(none)
}

func (s *OrderServiceTestSuite) TestGetOrderVisibility() {
	order := s.placeOrder(s.customer.ID, s.vitamins, 1)

	own, err := s.env.orders.GetOrder(s.ctx, s.customer.ID, false, order.ID)
	s.Require().NoError(err)
	s.Equal(order.ID, own.ID)

	_, err = s.env.orders.GetOrder(s.ctx, s.other.ID, false, order.ID)
	s.ErrorIs(err, ErrNotFound)

	asAdmin, err := s.env.orders.GetOrder(s.ctx, "admin-id", true, order.ID)
	s.Require().NoError(err)
	s.Equal(order.ID, asAdmin.ID)

	_, err = s.env.orders.GetOrder(s.ctx, s.customer.ID, true, 999)
	s.ErrorIs(err, ErrNotFound)
}

func (s *OrderServiceTestSuite) TestOrderHistorySurvivesProductDeletion() {
	order := s.placeOrder(s.customer.ID, s.vitamins, 2)
	s.Require().NoError(s.env.catalog.DeleteProduct(s.ctx, s.vitamins))

	got, err := s.env.orders.GetOrder(s.ctx, s.customer.ID, false, order.ID)
	s.Require().NoError(err)
	s.Require().Len(got.Items, 1)
	s.Equal("Multivitamin", got.Items[0].ProductName)
	s.Equal(10.0, got.Items[0].Price)
	s.Nil(got.Items[0].ProductID)
	s.Nil(got.Items[0].Product)
}

func (s *OrderServiceTestSuite) TestUpdateOrderStatus() {
	order := s.placeOrder(s.customer.ID, s.vitamins, 1)

	updated, err := s.env.orders.UpdateOrderStatus(s.ctx, order.ID, "  Awaiting pharmacist review ")
	s.Require().NoError(err)
	s.Equal("Awaiting pharmacist review", updated.Status)
	s.Equal(models.PaymentStatusPending, updated.PaymentStatus)

	paid, err := s.env.orders.UpdatePaymentStatus(s.ctx, order.ID, models.PaymentStatusPaid)
	s.Require().NoError(err)
	s.Equal(models.PaymentStatusPaid, paid.PaymentStatus)
	s.Equal("Awaiting pharmacist review", paid.Status)

	events := s.env.events.Events()
	s.Require().Len(events, 3)
	s.Equal(EventOrderStatusUpdated, events[1].Type)
	s.Equal(EventOrderPaymentUpdated, events[2].Type)

	_, err = s.env.orders.UpdateOrderStatus(s.ctx, order.ID, "   ")
	s.ErrorIs(err, ErrInvalidInput)
	_, err = s.env.orders.UpdateOrderStatus(s.ctx, order.ID, strings.Repeat("x", models.MaxStatusLength+1))
	s.ErrorIs(err, ErrInvalidInput)
	_, err = s.env.orders.UpdateOrderStatus(s.ctx, 999, models.OrderStatusShipped)
	s.ErrorIs(err, ErrNotFound)
	s.Len(s.env.events.Events(), 3)
}

func (s *OrderServiceTestSuite) TestListAllOrders() {
	first := s.placeOrder(s.customer.ID, s.vitamins, 1)
	s.placeOrder(s.other.ID, s.inhaler, 1)
	third := s.placeOrder(s.customer.ID, s.vitamins, 1)

	_, err := s.env.orders.UpdateOrderStatus(s.ctx, first.ID, models.OrderStatusShipped)
	s.Require().NoError(err)

	page, err := s.env.orders.ListAllOrders(s.ctx, models.OrderFilter{})
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Require().Len(page.Orders, 3)
	s.Equal(third.ID, page.Orders[0].ID)
	s.Equal("Test User", page.Orders[0].CustomerName)

	shipped, err := s.env.orders.ListAllOrders(s.ctx, models.OrderFilter{Status: models.OrderStatusShipped})
	s.Require().NoError(err)
	s.Equal(1, shipped.Total)
	s.Equal(first.ID, shipped.Orders[0].ID)

	paged, err := s.env.orders.ListAllOrders(s.ctx, models.OrderFilter{Limit: 1, Offset: 1})
	s.Require().NoError(err)
	s.Equal(3, paged.Total)
	s.Require().Len(paged.Orders, 1)
	s.Equal(1, paged.Limit)
}
