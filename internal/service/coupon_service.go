package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var percentBase = decimal.NewFromInt(100)

// CouponService evaluates coupon codes against an order total.
type CouponService struct {
	store  Store
	logger *zap.Logger
}

// NewCouponService creates a new coupon service
func NewCouponService(store Store) *CouponService {
	return &CouponService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Evaluate looks up an active coupon and computes the discount it would
// grant on orderTotal at the given time. It never increments the coupon's
// usage count; that happens only on confirmed payment, so abandoned
// orders don't burn uses.
func (cs *CouponService) Evaluate(ctx context.Context, code string, orderTotal decimal.Decimal, now time.Time) (decimal.Decimal, *models.Coupon, error) {
	coupon, err := cs.store.GetCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			util.CouponsRejectedTotal.WithLabelValues(models.CouponNotFound).Inc()
			return decimal.Zero, nil, &models.CouponError{Code: code, Reason: models.CouponNotFound}
		}
		return decimal.Zero, nil, fmt.Errorf("failed to look up coupon: %w", err)
	}

	discount, err := ComputeDiscount(coupon, orderTotal, now)
	if err != nil {
		var couponErr *models.CouponError
		if errors.As(err, &couponErr) {
			util.CouponsRejectedTotal.WithLabelValues(couponErr.Reason).Inc()
		}
		return decimal.Zero, nil, err
	}

	return discount, coupon, nil
}

// ComputeDiscount is the pure evaluation rule: validity window (inclusive
// at both ends), minimum order amount, then usage limit. A nonzero
// percent takes precedence over a flat amount even when both are set in
// stored data. The result is capped at orderTotal so the final price can
// never go negative.
func ComputeDiscount(coupon *models.Coupon, orderTotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if now.Before(coupon.ValidFrom) || now.After(coupon.ValidTo) {
		return decimal.Zero, &models.CouponError{Code: coupon.Code, Reason: models.CouponExpired}
	}

	if orderTotal.LessThan(coupon.MinOrderAmount) {
		return decimal.Zero, &models.CouponError{
			Code:           coupon.Code,
			Reason:         models.CouponMinimumNotMet,
			MinOrderAmount: coupon.MinOrderAmount,
		}
	}

	if coupon.MaxUses != nil && coupon.UsedCount >= *coupon.MaxUses {
		return decimal.Zero, &models.CouponError{Code: coupon.Code, Reason: models.CouponUsageExhausted}
	}

	var discount decimal.Decimal
	if coupon.DiscountPercent > 0 {
		discount = orderTotal.
			Mul(decimal.NewFromInt(int64(coupon.DiscountPercent))).
			Div(percentBase).
			Round(2)
	} else {
		discount = coupon.DiscountAmount
	}

	if discount.GreaterThan(orderTotal) {
		discount = orderTotal
	}
	return discount, nil
}
