package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/store"
)

// fakeStore is an in-memory Store with the same atomicity contract as the
// Postgres implementation: a single lock serializes mutations, and
// multi-step operations either fully apply or leave state untouched.
type fakeStore struct {
	mu       sync.Mutex
	products map[int64]*models.Product
	carts    map[int64][]models.CartItem
	profiles map[int64]*models.UserProfile
	coupons  map[string]*models.Coupon
	orders   map[int64]*models.Order
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: make(map[int64]*models.Product),
		carts:    make(map[int64][]models.CartItem),
		profiles: make(map[int64]*models.UserProfile),
		coupons:  make(map[string]*models.Coupon),
		orders:   make(map[int64]*models.Order),
	}
}

func (s *fakeStore) stock(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

func (s *fakeStore) couponUsedCount(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[code].UsedCount
}

func (s *fakeStore) setOrderStatus(orderID int64, status models.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[orderID].Status = status
}

func (s *fakeStore) GetCartItems(ctx context.Context, userID int64) ([]models.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]models.CartItem, 0, len(s.carts[userID]))
	for _, ci := range s.carts[userID] {
		p := s.products[ci.ProductID]
		items = append(items, models.CartItem{
			ProductID:   ci.ProductID,
			ProductName: p.Name,
			Quantity:    ci.Quantity,
			Price:       p.Price,
			Stock:       p.Stock,
		})
	}
	return items, nil
}

func (s *fakeStore) GetUserProfile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, fmt.Errorf("profile for user %d: %w", userID, models.ErrNotFound)
}

func (s *fakeStore) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.coupons[code]; ok && c.IsActive {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("coupon %q: %w", code, models.ErrNotFound)
}

func (s *fakeStore) CreateOrderFromCart(ctx context.Context, order *models.Order, coupon *models.OrderCoupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range order.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			return fmt.Errorf("product %d: %w", item.ProductID, models.ErrNotFound)
		}
		if p.Stock < item.Quantity {
			return &models.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: p.Stock,
			}
		}
	}

	for _, item := range order.Items {
		s.products[item.ProductID].Stock -= item.Quantity
	}

	s.nextID++
	order.ID = s.nextID
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}
	if coupon != nil {
		coupon.OrderID = order.ID
		coupon.AppliedAt = now
		order.Coupon = coupon
	}

	s.orders[order.ID] = cloneOrder(order)
	delete(s.carts, order.UserID)
	return nil
}

func (s *fakeStore) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		return cloneOrder(o), nil
	}
	return nil, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
}

func (s *fakeStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.IdempotencyKey == key {
			return cloneOrder(o), nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GetOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			orders = append(orders, *cloneOrder(o))
		}
	}
	return orders, nil
}

func (s *fakeStore) GetStalePaymentPending(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []models.Order
	for _, o := range s.orders {
		if o.Status == models.OrderStatusPaymentPending && o.PaymentID != "" && o.UpdatedAt.Before(cutoff) {
			orders = append(orders, *cloneOrder(o))
		}
	}
	return orders, nil
}

func (s *fakeStore) WithOrderTx(ctx context.Context, orderID int64, fn func(order *models.Order, tx store.OrderTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}

	work := cloneOrder(stored)
	tx := &fakeOrderTx{order: work, stockDelta: make(map[int64]int)}
	if err := fn(work, tx); err != nil {
		return err
	}

	// Commit: apply the working copy and the recorded side effects.
	work.UpdatedAt = time.Now()
	s.orders[orderID] = work
	for productID, delta := range tx.stockDelta {
		s.products[productID].Stock += delta
	}
	if tx.couponIncrements > 0 && work.Coupon != nil {
		for _, c := range s.coupons {
			if c.ID == work.Coupon.CouponID {
				c.UsedCount += tx.couponIncrements
			}
		}
	}
	return nil
}

type fakeOrderTx struct {
	order            *models.Order
	stockDelta       map[int64]int
	couponIncrements int
}

func (t *fakeOrderTx) SetPaymentIntent(paymentID string) error {
	t.order.PaymentID = paymentID
	t.order.PaymentStatus = models.PaymentStatusPending
	t.order.Status = models.OrderStatusPaymentPending
	return nil
}

func (t *fakeOrderTx) CompletePayment() error {
	t.order.PaymentStatus = models.PaymentStatusCompleted
	t.order.Status = models.OrderStatusProcessing
	if t.order.Coupon != nil {
		t.couponIncrements++
	}
	return nil
}

func (t *fakeOrderTx) Cancel() error {
	for _, item := range t.order.Items {
		t.stockDelta[item.ProductID] += item.Quantity
	}
	t.order.Status = models.OrderStatusCanceled
	return nil
}

func (t *fakeOrderTx) SetStatus(status models.OrderStatus) error {
	now := time.Now()
	switch status {
	case models.OrderStatusShipped:
		t.order.ShippedAt = &now
	case models.OrderStatusDelivered:
		t.order.DeliveredAt = &now
	}
	t.order.Status = status
	return nil
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	if o.Coupon != nil {
		coupon := *o.Coupon
		cp.Coupon = &coupon
	}
	return &cp
}

// fakeProvider simulates the external payment-intent API.
type fakeProvider struct {
	mu       sync.Mutex
	intents  map[string]*payment.Intent
	created  int
	retrieve int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{intents: make(map[string]*payment.Intent)}
}

func (p *fakeProvider) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created++
	intent := &payment.Intent{
		ID:           fmt.Sprintf("pi_%d", p.created),
		ClientSecret: fmt.Sprintf("pi_%d_secret", p.created),
		Status:       payment.StatusRequiresPaymentMethod,
	}
	p.intents[intent.ID] = intent
	return &payment.Intent{ID: intent.ID, ClientSecret: intent.ClientSecret, Status: intent.Status}, nil
}

func (p *fakeProvider) RetrieveIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrieve++
	intent, ok := p.intents[intentID]
	if !ok {
		return nil, &models.PaymentError{Op: "retrieve_intent", Message: "no such payment_intent"}
	}
	return &payment.Intent{ID: intent.ID, ClientSecret: intent.ClientSecret, Status: intent.Status}, nil
}

func (p *fakeProvider) ConfirmIntent(ctx context.Context, intentID, method string) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[intentID]
	if !ok {
		return nil, &models.PaymentError{Op: "confirm_intent", Message: "no such payment_intent"}
	}
	intent.Status = payment.StatusSucceeded
	return &payment.Intent{ID: intent.ID, ClientSecret: intent.ClientSecret, Status: intent.Status}, nil
}

func (p *fakeProvider) succeed(intentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents[intentID].Status = payment.StatusSucceeded
}

// fakePublisher records post-commit events by type.
type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) record(eventType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func (p *fakePublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	p.record(models.EventTypeOrderCreated)
	return nil
}

func (p *fakePublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	p.record(models.EventTypeOrderPaid)
	return nil
}

func (p *fakePublisher) PublishOrderCanceled(ctx context.Context, event *models.OrderCanceledEvent) error {
	p.record(models.EventTypeOrderCanceled)
	return nil
}

// fakeCache is a no-op OrderCache.
type fakeCache struct{}

func (fakeCache) CacheOrder(ctx context.Context, order *models.Order, ttl time.Duration) error {
	return nil
}

func (fakeCache) GetCachedOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return nil, nil
}

func (fakeCache) InvalidateOrder(ctx context.Context, orderID int64) error { return nil }

func (fakeCache) SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	return nil
}

func (fakeCache) GetIdempotentOrderID(ctx context.Context, key string) (int64, error) {
	return 0, nil
}
