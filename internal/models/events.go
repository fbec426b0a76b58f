package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types published on the order-events topic. These are the explicit
// post-commit hooks of the checkout flow: publishers fire them only after
// the surrounding transaction has committed.
const (
	EventTypeOrderCreated  = "ORDER_CREATED"
	EventTypeOrderPaid     = "ORDER_PAID"
	EventTypeOrderCanceled = "ORDER_CANCELED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after an order committed in pending state.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID    int64           `json:"order_id"`
	UserID     int64           `json:"user_id"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Items      []OrderItemData `json:"items"`
}

// OrderPaidEvent published after payment confirmation moved the order to
// processing. The notification worker turns it into the order
// confirmation message.
type OrderPaidEvent struct {
	BaseEvent
	OrderID      int64           `json:"order_id"`
	UserID       int64           `json:"user_id"`
	PaymentID    string          `json:"payment_id"`
	FinalPrice   decimal.Decimal `json:"final_price"`
	ShippingCity string          `json:"shipping_city"`
}

// OrderCanceledEvent published after cancellation restocked the ledger.
type OrderCanceledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Reason  string `json:"reason"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}
