package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService owns the order aggregate: creation from a cart snapshot,
// cancellation with restock, fulfillment transitions and owner-scoped
// reads.
type OrderService struct {
	store     Store
	cache     OrderCache
	publisher EventPublisher
	coupons   *CouponService
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store Store, cache OrderCache, publisher EventPublisher, coupons *CouponService, cacheTTL time.Duration) *OrderService {
	return &OrderService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		coupons:   coupons,
		cacheTTL:  cacheTTL,
		logger:    util.GetLogger(),
	}
}

// CreateOrderRequest carries the shipping override fields and optional
// coupon code for order creation. Omitted shipping fields fall back to
// the user's stored profile.
type CreateOrderRequest struct {
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postal_code"`
	Country        string `json:"country"`
	CouponCode     string `json:"coupon_code"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CreateOrder converts the user's cart into a pending order: snapshots
// items and prices, debits stock per line, optionally applies a coupon
// and consumes the cart, all in one transaction. A failing coupon code
// skips the discount instead of failing the order; every other failure
// rolls everything back.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return existing, nil
		}
	}

	cartItems, err := s.store.GetCartItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(cartItems) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, &models.ValidationError{Msg: "cart is empty"}
	}

	// Early check against the snapshot; the authoritative check happens
	// under the row lock when the ledger is debited.
	for _, item := range cartItems {
		if item.Quantity > item.Stock {
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			util.StockDebitsFailedTotal.Inc()
			return nil, &models.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: item.Stock,
			}
		}
	}

	order := &models.Order{
		UserID:        userID,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,

		ShippingAddress:    req.Address,
		ShippingCity:       req.City,
		ShippingState:      req.State,
		ShippingPostalCode: req.PostalCode,
		ShippingCountry:    req.Country,

		IdempotencyKey: req.IdempotencyKey,
	}
	s.applyShippingDefaults(ctx, order)

	order.Items = lo.Map(cartItems, func(item models.CartItem, _ int) models.OrderItem {
		return models.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	})

	total := decimal.Zero
	for _, item := range cartItems {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	order.TotalPrice = total
	order.DiscountPrice = decimal.Zero
	order.FinalPrice = total

	var orderCoupon *models.OrderCoupon
	if req.CouponCode != "" {
		discount, coupon, err := s.coupons.Evaluate(ctx, req.CouponCode, total, time.Now())
		switch {
		case err == nil:
			order.DiscountPrice = discount
			order.FinalPrice = total.Sub(discount)
			orderCoupon = &models.OrderCoupon{
				CouponID:       coupon.ID,
				Code:           coupon.Code,
				DiscountAmount: discount,
			}
		default:
			var couponErr *models.CouponError
			if !errors.As(err, &couponErr) {
				return nil, err
			}
			// A bad promo code must not block checkout; the order
			// proceeds without a discount.
			s.logger.Warn("Coupon rejected, creating order without discount",
				zap.String("code", req.CouponCode),
				zap.String("reason", couponErr.Reason))
		}
	}

	if err := s.store.CreateOrderFromCart(ctx, order, orderCoupon); err != nil {
		var stockErr *models.InsufficientStockError
		if errors.As(err, &stockErr) {
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			util.StockDebitsFailedTotal.Inc()
			return nil, err
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	if orderCoupon != nil {
		util.CouponsAppliedTotal.Inc()
	}
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("final_price", order.FinalPrice.String()))

	s.afterCreate(ctx, order)
	return order, nil
}

// afterCreate runs the post-commit hooks for order creation. Failures are
// logged only; the order is already durable.
func (s *OrderService) afterCreate(ctx context.Context, order *models.Order) {
	if order.IdempotencyKey != "" {
		if err := s.cache.SetIdempotencyKey(ctx, order.IdempotencyKey, order.ID, 24*time.Hour); err != nil {
			s.logger.Warn("Failed to store idempotency key", zap.Error(err))
		}
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCreated),
		OrderID:    order.ID,
		UserID:     order.UserID,
		FinalPrice: order.FinalPrice,
		Items: lo.Map(order.Items, func(item models.OrderItem, _ int) models.OrderItemData {
			return models.OrderItemData{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
			}
		}),
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

func (s *OrderService) applyShippingDefaults(ctx context.Context, order *models.Order) {
	if order.ShippingAddress != "" && order.ShippingCity != "" && order.ShippingState != "" &&
		order.ShippingPostalCode != "" && order.ShippingCountry != "" {
		return
	}

	profile, err := s.store.GetUserProfile(ctx, order.UserID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("Failed to load shipping defaults", zap.Error(err))
		}
		return
	}

	if order.ShippingAddress == "" {
		order.ShippingAddress = profile.Address
	}
	if order.ShippingCity == "" {
		order.ShippingCity = profile.City
	}
	if order.ShippingState == "" {
		order.ShippingState = profile.State
	}
	if order.ShippingPostalCode == "" {
		order.ShippingPostalCode = profile.PostalCode
	}
	if order.ShippingCountry == "" {
		order.ShippingCountry = profile.Country
	}
}

// CancelOrder cancels a pending or payment-pending order, crediting every
// line item's stock back in the same transaction that flips the status.
// The external payment intent, if any, is left as is; see the checkout
// service docs for why.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	var canceled *models.Order
	err := s.store.WithOrderTx(ctx, orderID, func(order *models.Order, tx store.OrderTx) error {
		if order.UserID != userID {
			return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
		}
		if !order.Status.Cancelable() {
			return &models.InvalidTransitionError{From: order.Status, To: models.OrderStatusCanceled}
		}
		if err := tx.Cancel(); err != nil {
			return err
		}
		canceled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.OrdersCanceledTotal.Inc()
	s.logger.Info("Order canceled", zap.Int64("order_id", orderID))

	s.invalidate(ctx, orderID)
	event := &models.OrderCanceledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCanceled),
		OrderID:   canceled.ID,
		UserID:    canceled.UserID,
		Reason:    "user_request",
	}
	if err := s.publisher.PublishOrderCanceled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCanceled event", zap.Error(err))
	}

	return canceled, nil
}

// MarkShipped records the processing -> shipped fulfillment transition.
func (s *OrderService) MarkShipped(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.advance(ctx, orderID, models.OrderStatusShipped)
}

// MarkDelivered records the shipped -> delivered fulfillment transition.
func (s *OrderService) MarkDelivered(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.advance(ctx, orderID, models.OrderStatusDelivered)
}

// RefundOrder records the processing -> refunded transition.
func (s *OrderService) RefundOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.advance(ctx, orderID, models.OrderStatusRefunded)
}

func (s *OrderService) advance(ctx context.Context, orderID int64, to models.OrderStatus) (*models.Order, error) {
	var updated *models.Order
	err := s.store.WithOrderTx(ctx, orderID, func(order *models.Order, tx store.OrderTx) error {
		if !order.Status.CanTransitionTo(to) {
			return &models.InvalidTransitionError{From: order.Status, To: to}
		}
		if err := tx.SetStatus(to); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, orderID)
	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("status", string(to)))
	return updated, nil
}

// GetOrder retrieves an order owned by the user, served from the cache
// when warm.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	cached, err := s.cache.GetCachedOrder(ctx, orderID)
	if err != nil {
		s.logger.Warn("Order cache read failed", zap.Error(err))
	}
	if cached != nil && cached.UserID == userID {
		return cached, nil
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}

	if err := s.cache.CacheOrder(ctx, order, s.cacheTTL); err != nil {
		s.logger.Warn("Order cache write failed", zap.Error(err))
	}
	return order, nil
}

// ListOrders retrieves the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.GetOrdersByUser(ctx, userID)
}

func (s *OrderService) invalidate(ctx context.Context, orderID int64) {
	if err := s.cache.InvalidateOrder(ctx, orderID); err != nil {
		s.logger.Warn("Order cache invalidation failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
