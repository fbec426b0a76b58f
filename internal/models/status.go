package models

// OrderStatus is the order lifecycle state. The happy path is
// pending -> payment_pending -> processing -> shipped -> delivered;
// cancellation branches off pending/payment_pending and refund off
// processing.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusPaymentPending OrderStatus = "payment_pending"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCanceled       OrderStatus = "canceled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusPaymentPending, OrderStatusProcessing, OrderStatusCanceled},
	OrderStatusPaymentPending: {OrderStatusPaymentPending, OrderStatusProcessing, OrderStatusCanceled},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusRefunded},
	OrderStatusShipped:        {OrderStatusDelivered},
}

// CanTransitionTo reports whether the state machine allows moving from s
// to the target status.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// Cancelable reports whether the order may still be canceled with a
// full stock restore.
func (s OrderStatus) Cancelable() bool {
	return s == OrderStatusPending || s == OrderStatusPaymentPending
}

// CheckoutEligible reports whether a payment intent may be requested.
func (s OrderStatus) CheckoutEligible() bool {
	return s == OrderStatusPending || s == OrderStatusPaymentPending
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaymentPending, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled, OrderStatusRefunded:
		return true
	}
	return false
}
