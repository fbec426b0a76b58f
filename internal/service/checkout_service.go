package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"checkout-service/config"
	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var minorUnit = decimal.NewFromInt(100)

// CheckoutService drives an order through its payment states against the
// external payment provider and reconciles the provider's asynchronous
// status back into the order.
//
// Canceling a payment_pending order does not void its external intent;
// the intent stays live on the provider side. Confirm guards against the
// resulting replay by refusing any transition out of canceled.
type CheckoutService struct {
	store     Store
	provider  PaymentProvider
	publisher EventPublisher
	cache     OrderCache
	cfg       config.PaymentConfig
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(store Store, provider PaymentProvider, publisher EventPublisher, cache OrderCache, cfg config.PaymentConfig) *CheckoutService {
	return &CheckoutService{
		store:     store,
		provider:  provider,
		publisher: publisher,
		cache:     cache,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// CheckoutResponse is the client-facing payment handle.
type CheckoutResponse struct {
	OrderID      int64           `json:"order_id"`
	PaymentID    string          `json:"payment_id"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Paid         bool            `json:"paid"`
}

// Initiate requests a payment intent for the order. It is idempotent:
// when the order already carries an intent, the provider is consulted
// first: an already-succeeded intent short-circuits straight to
// processing (the client retried checkout after paying but before local
// state caught up), and a live one is returned as is rather than creating
// a duplicate charge. The order row stays locked across the provider
// call so concurrent checkouts cannot each create an intent.
func (cs *CheckoutService) Initiate(ctx context.Context, userID, orderID int64) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Initiate")
	defer span.End()

	var (
		resp *CheckoutResponse
		paid *models.Order
	)

	err := cs.store.WithOrderTx(ctx, orderID, func(order *models.Order, tx store.OrderTx) error {
		if order.UserID != userID {
			return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
		}
		if !order.Status.CheckoutEligible() {
			return &models.InvalidTransitionError{From: order.Status, To: models.OrderStatusPaymentPending}
		}

		if order.PaymentID != "" {
			intent, err := cs.provider.RetrieveIntent(ctx, order.PaymentID)
			if err != nil {
				return err
			}

			if intent.Status == payment.StatusSucceeded {
				if err := tx.CompletePayment(); err != nil {
					return err
				}
				paid = order
				resp = &CheckoutResponse{
					OrderID:   order.ID,
					PaymentID: order.PaymentID,
					Amount:    order.FinalPrice,
					Paid:      true,
				}
				return nil
			}

			resp = &CheckoutResponse{
				OrderID:      order.ID,
				PaymentID:    intent.ID,
				ClientSecret: intent.ClientSecret,
				Amount:       order.FinalPrice,
			}
			return nil
		}

		intent, err := cs.provider.CreateIntent(ctx, toMinorUnit(order.FinalPrice), cs.cfg.Currency, map[string]string{
			"order_id": strconv.FormatInt(order.ID, 10),
			"user_id":  strconv.FormatInt(order.UserID, 10),
		})
		if err != nil {
			return err
		}

		if err := tx.SetPaymentIntent(intent.ID); err != nil {
			return err
		}

		resp = &CheckoutResponse{
			OrderID:      order.ID,
			PaymentID:    intent.ID,
			ClientSecret: intent.ClientSecret,
			Amount:       order.FinalPrice,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.CheckoutInitiatedTotal.Inc()
	cs.logger.Info("Checkout initiated",
		zap.Int64("order_id", orderID),
		zap.String("payment_id", resp.PaymentID),
		zap.Bool("paid", resp.Paid))

	cs.invalidate(ctx, orderID)
	if paid != nil {
		cs.afterPaid(ctx, paid)
	}
	return resp, nil
}

// Confirm reconciles the provider's intent state into the order. On a
// succeeded intent it performs the payment_pending -> processing
// transition and the coupon usage increment as one transaction; a retry
// after that is a no-op returning the processed order. Any other intent
// status fails with PaymentNotCompleted and leaves the order untouched.
func (cs *CheckoutService) Confirm(ctx context.Context, userID, orderID int64, paymentID string, testAccept bool) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Confirm")
	defer span.End()

	var (
		confirmed *models.Order
		completed bool
	)

	err := cs.store.WithOrderTx(ctx, orderID, func(order *models.Order, tx store.OrderTx) error {
		if order.UserID != userID {
			return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
		}
		if order.PaymentID == "" || order.PaymentID != paymentID {
			return &models.PaymentMismatchError{OrderID: orderID, PaymentID: paymentID}
		}

		// Idempotent re-entry: a retried confirm after the transition
		// already committed must not increment the coupon again.
		if order.Status == models.OrderStatusProcessing ||
			order.Status == models.OrderStatusShipped ||
			order.Status == models.OrderStatusDelivered {
			confirmed = order
			return nil
		}

		if !order.Status.CanTransitionTo(models.OrderStatusProcessing) {
			return &models.InvalidTransitionError{From: order.Status, To: models.OrderStatusProcessing}
		}

		intent, err := cs.provider.RetrieveIntent(ctx, paymentID)
		if err != nil {
			return err
		}

		if testAccept && cs.cfg.TestMode && intent.Status == payment.StatusRequiresPaymentMethod {
			intent, err = cs.provider.ConfirmIntent(ctx, paymentID, payment.TestPaymentMethod)
			if err != nil {
				return err
			}
		}

		if intent.Status != payment.StatusSucceeded {
			util.PaymentsFailedTotal.WithLabelValues(intent.Status).Inc()
			return &models.PaymentNotCompletedError{Status: intent.Status}
		}

		if err := tx.CompletePayment(); err != nil {
			return err
		}
		confirmed = order
		completed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	cs.invalidate(ctx, orderID)
	if completed {
		util.PaymentsConfirmedTotal.Inc()
		cs.logger.Info("Payment confirmed",
			zap.Int64("order_id", orderID),
			zap.String("payment_id", paymentID))
		cs.afterPaid(ctx, confirmed)
	}
	return confirmed, nil
}

// Reconcile sweeps payment-pending orders that predate the cutoff and
// completes the ones whose intents already succeeded at the provider.
// This closes the window where a client paid but never called
// confirm-payment.
func (cs *CheckoutService) Reconcile(ctx context.Context, cutoff time.Time) error {
	orders, err := cs.store.GetStalePaymentPending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale orders: %w", err)
	}

	for i := range orders {
		stale := &orders[i]
		var reconciled *models.Order

		err := cs.store.WithOrderTx(ctx, stale.ID, func(order *models.Order, tx store.OrderTx) error {
			if order.Status != models.OrderStatusPaymentPending || order.PaymentID == "" {
				return nil
			}

			intent, err := cs.provider.RetrieveIntent(ctx, order.PaymentID)
			if err != nil {
				return err
			}
			if intent.Status != payment.StatusSucceeded {
				return nil
			}

			if err := tx.CompletePayment(); err != nil {
				return err
			}
			reconciled = order
			return nil
		})
		if err != nil {
			cs.logger.Warn("Order reconciliation failed",
				zap.Int64("order_id", stale.ID),
				zap.Error(err))
			continue
		}

		if reconciled != nil {
			util.OrdersReconciledTotal.Inc()
			cs.logger.Info("Order reconciled to processing", zap.Int64("order_id", reconciled.ID))
			cs.invalidate(ctx, reconciled.ID)
			cs.afterPaid(ctx, reconciled)
		}
	}
	return nil
}

// afterPaid runs the post-commit hooks for a confirmed payment.
func (cs *CheckoutService) afterPaid(ctx context.Context, order *models.Order) {
	event := &models.OrderPaidEvent{
		BaseEvent:    newBaseEvent(models.EventTypeOrderPaid),
		OrderID:      order.ID,
		UserID:       order.UserID,
		PaymentID:    order.PaymentID,
		FinalPrice:   order.FinalPrice,
		ShippingCity: order.ShippingCity,
	}
	if err := cs.publisher.PublishOrderPaid(ctx, event); err != nil {
		cs.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}
}

func (cs *CheckoutService) invalidate(ctx context.Context, orderID int64) {
	if err := cs.cache.InvalidateOrder(ctx, orderID); err != nil {
		cs.logger.Warn("Order cache invalidation failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

// toMinorUnit converts a 2dp price into the provider's integer minor
// unit (cents).
func toMinorUnit(price decimal.Decimal) int64 {
	return price.Mul(minorUnit).Round(0).IntPart()
}
