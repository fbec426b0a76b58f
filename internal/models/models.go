package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog's view of an item. Stock is mutated only through
// the store's debit/credit operations, never directly.
type Product struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Category  string          `db:"category" json:"category"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Stock     int             `db:"stock" json:"stock"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// UserProfile holds the shipping defaults used when an order request
// omits shipping fields.
type UserProfile struct {
	UserID     int64  `db:"user_id" json:"user_id"`
	Address    string `db:"address" json:"address"`
	City       string `db:"city" json:"city"`
	State      string `db:"state" json:"state"`
	PostalCode string `db:"postal_code" json:"postal_code"`
	Country    string `db:"country" json:"country"`
}

// CartItem is a read-once snapshot of a cart line joined with the
// product's live price and stock at snapshot time.
type CartItem struct {
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
}

// Order is the aggregate root of the checkout lifecycle.
type Order struct {
	ID     int64       `db:"id" json:"id"`
	UserID int64       `db:"user_id" json:"user_id"`
	Status OrderStatus `db:"status" json:"status"`

	TotalPrice    decimal.Decimal `db:"total_price" json:"total_price"`
	DiscountPrice decimal.Decimal `db:"discount_price" json:"discount_price"`
	FinalPrice    decimal.Decimal `db:"final_price" json:"final_price"`

	ShippingAddress    string `db:"shipping_address" json:"shipping_address"`
	ShippingCity       string `db:"shipping_city" json:"shipping_city"`
	ShippingState      string `db:"shipping_state" json:"shipping_state"`
	ShippingPostalCode string `db:"shipping_postal_code" json:"shipping_postal_code"`
	ShippingCountry    string `db:"shipping_country" json:"shipping_country"`

	PaymentID     string `db:"payment_id" json:"payment_id,omitempty"`
	PaymentMethod string `db:"payment_method" json:"payment_method,omitempty"`
	PaymentStatus string `db:"payment_status" json:"payment_status"`

	IdempotencyKey string `db:"idempotency_key" json:"idempotency_key,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	ShippedAt   *time.Time `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`

	Items  []OrderItem  `db:"-" json:"items"`
	Coupon *OrderCoupon `db:"-" json:"coupon,omitempty"`
}

// OrderItem is an immutable snapshot of one product line: quantity and
// unit price as they were at order creation. Later catalog price changes
// never touch it.
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
}

// Coupon is a shared, read-mostly promo entity. When DiscountPercent is
// nonzero it takes precedence over DiscountAmount; both can legitimately
// be set in stored data.
type Coupon struct {
	ID              int64           `db:"id" json:"id"`
	Code            string          `db:"code" json:"code"`
	Description     string          `db:"description" json:"description"`
	DiscountPercent int             `db:"discount_percent" json:"discount_percent"`
	DiscountAmount  decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	MinOrderAmount  decimal.Decimal `db:"min_order_amount" json:"min_order_amount"`
	MaxUses         *int            `db:"max_uses" json:"max_uses,omitempty"`
	UsedCount       int             `db:"used_count" json:"used_count"`
	ValidFrom       time.Time       `db:"valid_from" json:"valid_from"`
	ValidTo         time.Time       `db:"valid_to" json:"valid_to"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// OrderCoupon binds at most one coupon to an order and freezes the
// discount that was actually applied, so later coupon edits do not
// rewrite historical orders. Created at most once per order, never updated.
type OrderCoupon struct {
	ID             int64           `db:"id" json:"-"`
	OrderID        int64           `db:"order_id" json:"-"`
	CouponID       int64           `db:"coupon_id" json:"coupon_id"`
	Code           string          `db:"code" json:"code"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	AppliedAt      time.Time       `db:"applied_at" json:"applied_at"`
}

// Payment statuses mirrored from the provider onto the order.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)
