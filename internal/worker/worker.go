package worker

import (
	"context"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes order events and emits the customer-facing
// notifications that used to be fired implicitly on every save. Actual
// delivery (email) belongs to the notification platform; this worker
// hands the message off via the log sink.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPaid(w.handleOrderPaid)
	eventHandler.OnOrderCanceled(w.handleOrderCanceled)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	w.logger.Info("Order confirmation notification",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("user_id", event.UserID),
		zap.String("final_price", event.FinalPrice.String()),
		zap.String("shipping_city", event.ShippingCity))
	return nil
}

func (w *NotificationWorker) handleOrderCanceled(ctx context.Context, event *models.OrderCanceledEvent) error {
	w.logger.Info("Order cancellation notification",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("user_id", event.UserID),
		zap.String("reason", event.Reason))
	return nil
}

// ReconcileWorker periodically sweeps stale payment-pending orders and
// completes the ones whose payment intents already succeeded at the
// provider.
type ReconcileWorker struct {
	checkout *service.CheckoutService
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewReconcileWorker creates a worker that runs every interval and treats
// payment-pending orders older than timeout as stale.
func NewReconcileWorker(checkout *service.CheckoutService, interval, timeout time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		checkout: checkout,
		interval: interval,
		timeout:  timeout,
		logger:   util.GetLogger(),
	}
}

// Start runs the reconciliation loop until the context is canceled.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting payment reconcile worker",
		zap.Duration("interval", w.interval),
		zap.Duration("timeout", w.timeout))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconcile worker stopping")
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-w.timeout)
			if err := w.checkout.Reconcile(ctx, cutoff); err != nil {
				w.logger.Error("Payment reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}
