package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to OrderStatus
	}{
		{OrderStatusPending, OrderStatusPaymentPending},
		{OrderStatusPending, OrderStatusProcessing},
		{OrderStatusPending, OrderStatusCanceled},
		{OrderStatusPaymentPending, OrderStatusPaymentPending},
		{OrderStatusPaymentPending, OrderStatusProcessing},
		{OrderStatusPaymentPending, OrderStatusCanceled},
		{OrderStatusProcessing, OrderStatusShipped},
		{OrderStatusProcessing, OrderStatusRefunded},
		{OrderStatusShipped, OrderStatusDelivered},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct {
		from, to OrderStatus
	}{
		{OrderStatusPending, OrderStatusShipped},
		{OrderStatusPending, OrderStatusDelivered},
		{OrderStatusProcessing, OrderStatusCanceled},
		{OrderStatusProcessing, OrderStatusPending},
		{OrderStatusShipped, OrderStatusRefunded},
		{OrderStatusCanceled, OrderStatusProcessing},
		{OrderStatusCanceled, OrderStatusPending},
		{OrderStatusDelivered, OrderStatusRefunded},
		{OrderStatusRefunded, OrderStatusProcessing},
	}
	for _, tc := range denied {
		assert.False(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, OrderStatusDelivered.Terminal())
	assert.True(t, OrderStatusCanceled.Terminal())
	assert.True(t, OrderStatusRefunded.Terminal())

	assert.False(t, OrderStatusPending.Terminal())
	assert.False(t, OrderStatusPaymentPending.Terminal())
	assert.False(t, OrderStatusProcessing.Terminal())
	assert.False(t, OrderStatusShipped.Terminal())
}

func TestOrderStatusCancelable(t *testing.T) {
	assert.True(t, OrderStatusPending.Cancelable())
	assert.True(t, OrderStatusPaymentPending.Cancelable())
	assert.False(t, OrderStatusProcessing.Cancelable())
	assert.False(t, OrderStatusShipped.Cancelable())
	assert.False(t, OrderStatusCanceled.Cancelable())
}

func TestOrderStatusValid(t *testing.T) {
	assert.True(t, OrderStatusPending.Valid())
	assert.True(t, OrderStatusRefunded.Valid())
	assert.False(t, OrderStatus("created").Valid())
	assert.False(t, OrderStatus("").Valid())
}
