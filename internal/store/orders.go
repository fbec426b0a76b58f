package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrderFromCart persists a new pending order in one transaction:
// every line item's stock is debited under a row lock, then the order,
// its item snapshots and the optional applied coupon are inserted, and
// the user's cart rows are consumed. Any failure rolls the whole thing
// back, including the debits.
func (s *Store) CreateOrderFromCart(ctx context.Context, order *models.Order, coupon *models.OrderCoupon) error {
	return s.withinTx(ctx, func(tx *sqlx.Tx) error {
		for _, item := range order.Items {
			if err := debitStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO orders (user_id, status, total_price, discount_price, final_price,
				shipping_address, shipping_city, shipping_state, shipping_postal_code, shipping_country,
				payment_status, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at, updated_at`

		err := tx.QueryRowxContext(ctx, query,
			order.UserID, order.Status, order.TotalPrice, order.DiscountPrice, order.FinalPrice,
			order.ShippingAddress, order.ShippingCity, order.ShippingState,
			order.ShippingPostalCode, order.ShippingCountry,
			order.PaymentStatus, order.IdempotencyKey,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			err := tx.QueryRowxContext(ctx,
				"INSERT INTO order_items (order_id, product_id, quantity, price) VALUES ($1, $2, $3, $4) RETURNING id",
				item.OrderID, item.ProductID, item.Quantity, item.Price,
			).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}

		if coupon != nil {
			coupon.OrderID = order.ID
			err := tx.QueryRowxContext(ctx,
				"INSERT INTO order_coupons (order_id, coupon_id, discount_amount) VALUES ($1, $2, $3) RETURNING id, applied_at",
				coupon.OrderID, coupon.CouponID, coupon.DiscountAmount,
			).Scan(&coupon.ID, &coupon.AppliedAt)
			if err != nil {
				return fmt.Errorf("failed to insert order coupon: %w", err)
			}
			order.Coupon = coupon
		}

		return clearCart(ctx, tx, order.UserID)
	})
}

// GetOrder retrieves an order with its item snapshots and applied coupon.
func (s *Store) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachOrderDetails(ctx, s.db, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) attachOrderDetails(ctx context.Context, q sqlx.QueryerContext, order *models.Order) error {
	order.Items = nil
	if err := sqlx.SelectContext(ctx, q, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", order.ID); err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	var coupon models.OrderCoupon
	err := sqlx.GetContext(ctx, q, &coupon, `
		SELECT oc.id, oc.order_id, oc.coupon_id, c.code, oc.discount_amount, oc.applied_at
		FROM order_coupons oc
		JOIN coupons c ON c.id = oc.coupon_id
		WHERE oc.order_id = $1`, order.ID)
	if err == nil {
		order.Coupon = &coupon
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("failed to load order coupon: %w", err)
	}
	return nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key, or nil
// when no order used the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachOrderDetails(ctx, s.db, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUser retrieves a user's orders, newest first, without item
// details.
func (s *Store) GetOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetStalePaymentPending retrieves payment-pending orders last touched
// before the cutoff, for payment reconciliation.
func (s *Store) GetStalePaymentPending(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE status = $1 AND payment_id <> '' AND updated_at < $2 ORDER BY updated_at",
		models.OrderStatusPaymentPending, cutoff)
	return orders, err
}

// OrderTx exposes the mutations allowed on an order while its row lock is
// held inside WithOrderTx.
type OrderTx interface {
	// SetPaymentIntent stores the external intent reference and moves the
	// order to payment_pending.
	SetPaymentIntent(paymentID string) error
	// CompletePayment moves the order to processing, marks the payment
	// completed and increments the applied coupon's usage, all in the
	// surrounding transaction.
	CompletePayment() error
	// Cancel credits back every item's stock and marks the order canceled.
	Cancel() error
	// SetStatus records a fulfillment transition, stamping shipped_at or
	// delivered_at when applicable.
	SetStatus(status models.OrderStatus) error
}

type orderTx struct {
	ctx   context.Context
	tx    *sqlx.Tx
	order *models.Order
}

// WithOrderTx loads the order with a SELECT ... FOR UPDATE row lock and
// runs fn while the lock is held. Concurrent checkout, confirmation and
// cancellation attempts on the same order serialize here. The transaction
// commits only if fn returns nil.
func (s *Store) WithOrderTx(ctx context.Context, orderID int64, fn func(order *models.Order, tx OrderTx) error) error {
	return s.withinTx(ctx, func(tx *sqlx.Tx) error {
		var order models.Order
		err := tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}

		if err := s.attachOrderDetails(ctx, tx, &order); err != nil {
			return err
		}

		return fn(&order, &orderTx{ctx: ctx, tx: tx, order: &order})
	})
}

func (t *orderTx) SetPaymentIntent(paymentID string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE orders
		SET payment_id = $1, payment_status = $2, status = $3, updated_at = NOW()
		WHERE id = $4`,
		paymentID, models.PaymentStatusPending, models.OrderStatusPaymentPending, t.order.ID)
	if err != nil {
		return fmt.Errorf("failed to store payment intent: %w", err)
	}
	t.order.PaymentID = paymentID
	t.order.PaymentStatus = models.PaymentStatusPending
	t.order.Status = models.OrderStatusPaymentPending
	return nil
}

func (t *orderTx) CompletePayment() error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE orders
		SET payment_status = $1, status = $2, updated_at = NOW()
		WHERE id = $3`,
		models.PaymentStatusCompleted, models.OrderStatusProcessing, t.order.ID)
	if err != nil {
		return fmt.Errorf("failed to complete payment: %w", err)
	}

	if t.order.Coupon != nil {
		_, err = t.tx.ExecContext(t.ctx,
			"UPDATE coupons SET used_count = used_count + 1 WHERE id = $1",
			t.order.Coupon.CouponID)
		if err != nil {
			return fmt.Errorf("failed to increment coupon usage: %w", err)
		}
	}

	t.order.PaymentStatus = models.PaymentStatusCompleted
	t.order.Status = models.OrderStatusProcessing
	return nil
}

func (t *orderTx) Cancel() error {
	for _, item := range t.order.Items {
		if err := creditStock(t.ctx, t.tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}

	_, err := t.tx.ExecContext(t.ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		models.OrderStatusCanceled, t.order.ID)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	t.order.Status = models.OrderStatusCanceled
	return nil
}

func (t *orderTx) SetStatus(status models.OrderStatus) error {
	var column string
	switch status {
	case models.OrderStatusShipped:
		column = "shipped_at"
	case models.OrderStatusDelivered:
		column = "delivered_at"
	}

	query := "UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2"
	if column != "" {
		query = fmt.Sprintf("UPDATE orders SET status = $1, updated_at = NOW(), %s = NOW() WHERE id = $2", column)
	}

	if _, err := t.tx.ExecContext(t.ctx, query, status, t.order.ID); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

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
