package service

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateCreatesIntent(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, &CreateOrderRequest{})

	resp, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, resp.OrderID)
	assert.NotEmpty(t, resp.PaymentID)
	assert.NotEmpty(t, resp.ClientSecret)
	assert.False(t, resp.Paid)
	assert.True(t, resp.Amount.Equal(decimal.RequireFromString("25.00")))

	stored, err := env.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaymentPending, stored.Status)
	assert.Equal(t, resp.PaymentID, stored.PaymentID)
}

func TestInitiateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, &CreateOrderRequest{})

	first, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)
	second, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)

	// A retry returns the existing handle instead of a second intent.
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, 1, env.provider.created)
}

func TestInitiateShortCircuitsSucceededIntent(t *testing.T) {
	env := newTestEnv(t)
	env.addCoupon(testCoupon())
	order := env.createOrder(t, 7, &CreateOrderRequest{CouponCode: "SAVE10"})

	first, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)

	// The client paid out of band; a retried checkout must complete the
	// order rather than hand back a live intent.
	env.provider.succeed(first.PaymentID)
	second, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)
	assert.True(t, second.Paid)

	stored, err := env.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, stored.Status)
	assert.Equal(t, models.PaymentStatusCompleted, stored.PaymentStatus)
	assert.Equal(t, 1, env.store.couponUsedCount("SAVE10"))
	assert.Equal(t, 1, env.publisher.count(models.EventTypeOrderPaid))
}

func TestInitiateCanceledOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, &CreateOrderRequest{})
	env.store.setOrderStatus(order.ID, models.OrderStatusCanceled)

	_, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	var transitionErr *models.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, 0, env.provider.created)
}

func TestInitiateWrongUser(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, &CreateOrderRequest{})

	_, err := env.checkout.Initiate(context.Background(), 8, order.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConfirmSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.addCoupon(testCoupon())
	order := env.createOrder(t, 7, &CreateOrderRequest{CouponCode: "SAVE10"})

	resp, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)
	env.provider.succeed(resp.PaymentID)

	confirmed, err := env.checkout.Confirm(context.Background(), 7, order.ID, resp.PaymentID, false)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, confirmed.Status)
	assert.Equal(t, models.PaymentStatusCompleted, confirmed.PaymentStatus)
	assert.Equal(t, 1, env.store.couponUsedCount("SAVE10"))
	assert.Equal(t, 1, env.publisher.count(models.EventTypeOrderPaid))
}

func TestConfirmRetryIncrementsCouponOnce(t *testing.T) {
	env := newTestEnv(t)
	env.addCoupon(testCoupon())
	order := env.createOrder(t, 7, &CreateOrderRequest{CouponCode: "SAVE10"})

	resp, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)
	env.provider.succeed(resp.PaymentID)

	_, err = env.checkout.Confirm(context.Background(), 7, order.ID, resp.PaymentID, false)
	require.NoError(t, err)
	retried, err := env.checkout.Confirm(context.Background(), 7, order.ID, resp.PaymentID, false)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusProcessing, retried.Status)
	assert.Equal(t, 1, env.store.couponUsedCount("SAVE10"))
	assert.Equal(t, 1, env.publisher.count(models.EventTypeOrderPaid))
}

func TestConfirmPaymentMismatch(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, &CreateOrderRequest{})

	_, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)

	_, err = env.checkout.Confirm(context.Background(), 7, order.ID, "pi_someone_elses", false)
	var mismatchErr *models.PaymentMismatchError
	require.ErrorAs(t, err, &mismatchErr)
	assert.Equal(t, order.ID, mismatchErr.OrderID)
}

func TestConfirmNotCompleted(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, &CreateOrderRequest{})

	resp, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)

	_, err = env.checkout.Confirm(context.Background(), 7, order.ID, resp.PaymentID, false)
	var notCompleted *models.PaymentNotCompletedError
	require.ErrorAs(t, err, &notCompleted)
	assert.Equal(t, payment.StatusRequiresPaymentMethod, notCompleted.Status)

	// The order stays where it was.
	stored, err := env.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaymentPending, stored.Status)
	assert.Equal(t, 0, env.publisher.count(models.EventTypeOrderPaid))
}

func TestConfirmTestAccept(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, &CreateOrderRequest{})

	resp, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)

	// test_accept drives the intent through the test payment method.
	confirmed, err := env.checkout.Confirm(context.Background(), 7, order.ID, resp.PaymentID, true)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, confirmed.Status)
}

func TestConfirmTestAcceptIgnoredOutsideTestMode(t *testing.T) {
	env := newTestEnv(t)
	env.checkout.cfg.TestMode = false
	order := env.createOrder(t, 7, &CreateOrderRequest{})

	resp, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)

	_, err = env.checkout.Confirm(context.Background(), 7, order.ID, resp.PaymentID, true)
	var notCompleted *models.PaymentNotCompletedError
	require.ErrorAs(t, err, &notCompleted)
}

func TestConfirmCanceledOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t, 7, &CreateOrderRequest{})

	resp, err := env.checkout.Initiate(context.Background(), 7, order.ID)
	require.NoError(t, err)
	env.provider.succeed(resp.PaymentID)

	_, err = env.orders.CancelOrder(context.Background(), 7, order.ID)
	require.NoError(t, err)

	// The intent is still live at the provider, but a canceled order
	// never comes back.
	_, err = env.checkout.Confirm(context.Background(), 7, order.ID, resp.PaymentID, false)
	var transitionErr *models.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.OrderStatusCanceled, transitionErr.From)
}

func TestReconcileCompletesPaidOrders(t *testing.T) {
	env := newTestEnv(t)
	paidOrder := env.createOrder(t, 7, &CreateOrderRequest{})
	env.addCartItem(8, 1, 1)
	unpaidOrder, err := env.orders.CreateOrder(context.Background(), 8, &CreateOrderRequest{})
	require.NoError(t, err)

	paidResp, err := env.checkout.Initiate(context.Background(), 7, paidOrder.ID)
	require.NoError(t, err)
	_, err = env.checkout.Initiate(context.Background(), 8, unpaidOrder.ID)
	require.NoError(t, err)

	env.provider.succeed(paidResp.PaymentID)

	require.NoError(t, env.checkout.Reconcile(context.Background(), time.Now().Add(time.Minute)))

	reconciled, err := env.store.GetOrder(context.Background(), paidOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, reconciled.Status)

	untouched, err := env.store.GetOrder(context.Background(), unpaidOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaymentPending, untouched.Status)
	assert.Equal(t, 1, env.publisher.count(models.EventTypeOrderPaid))
}
