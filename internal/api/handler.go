package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Handler contains HTTP handlers
type Handler struct {
	orders   *service.OrderService
	checkout *service.CheckoutService
	coupons  *service.CouponService
}

// NewHandler creates a new HTTP handler
func NewHandler(orders *service.OrderService, checkout *service.CheckoutService, coupons *service.CouponService) *Handler {
	return &Handler{
		orders:   orders,
		checkout: checkout,
		coupons:  coupons,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", requireUser())
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/checkout", h.initiateCheckout)
		v1.POST("/orders/confirm-payment", h.confirmPayment)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/ship", h.shipOrder)
		v1.POST("/orders/:id/deliver", h.deliverOrder)
		v1.POST("/orders/:id/refund", h.refundOrder)
		v1.POST("/coupons/validate", h.validateCoupon)
	}
}

// requireUser extracts the authenticated user injected by the gateway.
// Authentication itself lives upstream; this service only trusts the
// header.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid user identity",
			})
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64("user_id")
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles POST /orders: cart -> pending order.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), userID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// listOrders handles GET /orders for the authenticated user.
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles GET /orders/:id.
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), userID(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// initiateCheckout handles POST /orders/:id/checkout.
func (h *Handler) initiateCheckout(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	resp, err := h.checkout.Initiate(c.Request.Context(), userID(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type confirmPaymentRequest struct {
	PaymentID  string `json:"payment_id" binding:"required"`
	OrderID    int64  `json:"order_id" binding:"required"`
	TestAccept bool   `json:"test_accept"`
}

// confirmPayment handles POST /orders/confirm-payment.
func (h *Handler) confirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.checkout.Confirm(c.Request.Context(), userID(c), req.OrderID, req.PaymentID, req.TestAccept)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment successful", "order": order})
}

// cancelOrder handles POST /orders/:id/cancel.
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), userID(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order canceled", "order": order})
}

func (h *Handler) shipOrder(c *gin.Context) {
	h.fulfill(c, h.orders.MarkShipped)
}

func (h *Handler) deliverOrder(c *gin.Context) {
	h.fulfill(c, h.orders.MarkDelivered)
}

func (h *Handler) refundOrder(c *gin.Context) {
	h.fulfill(c, h.orders.RefundOrder)
}

func (h *Handler) fulfill(c *gin.Context, fn func(ctx context.Context, orderID int64) (*models.Order, error)) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := fn(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type validateCouponRequest struct {
	Code       string          `json:"code" binding:"required"`
	TotalPrice decimal.Decimal `json:"total_price" binding:"required"`
}

// validateCoupon handles POST /coupons/validate: a dry-run evaluation
// that never touches usage counts.
func (h *Handler) validateCoupon(c *gin.Context) {
	var req validateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	discount, _, err := h.coupons.Evaluate(c.Request.Context(), req.Code, req.TotalPrice, time.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":       true,
		"discount":    discount,
		"final_price": req.TotalPrice.Sub(discount),
	})
}

func orderIDParam(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return 0, false
	}
	return orderID, true
}

// respondError maps domain errors onto HTTP statuses. Business-rule
// rejections are 400s with machine-parseable detail; provider outages
// are 502s; anything unexpected is a 500.
func respondError(c *gin.Context, err error) {
	var (
		validationErr   *models.ValidationError
		stockErr        *models.InsufficientStockError
		transitionErr   *models.InvalidTransitionError
		couponErr       *models.CouponError
		mismatchErr     *models.PaymentMismatchError
		notCompletedErr *models.PaymentNotCompletedError
		paymentErr      *models.PaymentError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Msg})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      stockErr.Error(),
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": transitionErr.Error(),
			"from":  transitionErr.From,
			"to":    transitionErr.To,
		})
	case errors.As(err, &couponErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  couponErr.Error(),
			"reason": couponErr.Reason,
		})
	case errors.As(err, &mismatchErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": mismatchErr.Error()})
	case errors.As(err, &notCompletedErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  notCompletedErr.Error(),
			"status": notCompletedErr.Status,
		})
	case errors.As(err, &paymentErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": paymentErr.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
