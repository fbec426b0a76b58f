package service

import (
	"context"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/store"
)

// Store is the persistence surface the checkout flow needs. *store.Store
// implements it against Postgres; tests substitute an in-memory fake with
// the same atomicity contract.
type Store interface {
	GetCartItems(ctx context.Context, userID int64) ([]models.CartItem, error)
	GetUserProfile(ctx context.Context, userID int64) (*models.UserProfile, error)
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)

	CreateOrderFromCart(ctx context.Context, order *models.Order, coupon *models.OrderCoupon) error
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	GetStalePaymentPending(ctx context.Context, cutoff time.Time) ([]models.Order, error)

	WithOrderTx(ctx context.Context, orderID int64, fn func(order *models.Order, tx store.OrderTx) error) error
}

// PaymentProvider is the external payment service boundary: create,
// retrieve and confirm payment intents. Confirm is only exercised by the
// non-production test path.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*payment.Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*payment.Intent, error)
	ConfirmIntent(ctx context.Context, intentID, method string) (*payment.Intent, error)
}

// EventPublisher receives post-commit domain events. Publish failures are
// logged by callers, never returned: the transaction already committed.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderCanceled(ctx context.Context, event *models.OrderCanceledEvent) error
}

// OrderCache fronts order reads and holds idempotency keys. A nil-safe
// no-op implementation is fine; the flow never depends on cache hits.
type OrderCache interface {
	CacheOrder(ctx context.Context, order *models.Order, ttl time.Duration) error
	GetCachedOrder(ctx context.Context, orderID int64) (*models.Order, error)
	InvalidateOrder(ctx context.Context, orderID int64) error
	SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error
	GetIdempotentOrderID(ctx context.Context, key string) (int64, error)
}
