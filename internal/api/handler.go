package api

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// OrderService is the order surface the HTTP layer calls.
type OrderService interface {
	Quote(ctx context.Context, req *service.QuoteRequest) (*models.OrderCalculation, error)
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest, userID string) (*service.CreateOrderResult, error)
	GetOrder(ctx context.Context, orderID int64, userID string) (*models.Order, error)
	ListOrders(ctx context.Context, userID string, limit int) ([]models.Order, error)
	AdminListOrders(ctx context.Context, userID string, filter store.OrderFilter) ([]models.Order, error)
	CancelOrder(ctx context.Context, orderID int64, userID string) (*service.CancelResult, error)
	RefundOrder(ctx context.Context, orderID int64, req *service.RefundRequest, userID string) (*service.RefundResult, error)
	UpdateOrder(ctx context.Context, orderID int64, req *service.UpdateOrderRequest, userID string) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID int64, userID string) error
}

type ProductService interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

// Options tunes the HTTP layer
type Options struct {
	Production        bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Handler contains HTTP handlers
type Handler struct {
	orders   OrderService
	products ProductService
	db       Pinger
	cache    Pinger
	limiter  RateLimiter
	opts     Options
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. cache and limiter may be nil.
func NewHandler(orders OrderService, products ProductService, db, cache Pinger, limiter RateLimiter, opts Options) *Handler {
	registerValidatorTagNames()
	return &Handler{
		orders:   orders,
		products: products,
		db:       db,
		cache:    cache,
		limiter:  limiter,
		opts:     opts,
		logger:   util.GetLogger().Named("http"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(h.requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(identityMiddleware())
	{
		checkout := v1.Group("", h.rateLimitMiddleware("checkout"))
		checkout.POST("/orders", h.createOrder)
		checkout.POST("/orders/quote", h.quoteOrder)

		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/refund", h.refundOrder)
		v1.PUT("/orders/:id", h.updateOrder)

		v1.GET("/products/:id", h.getProduct)

		admin := v1.Group("/admin")
		admin.GET("/orders", h.adminListOrders)
		admin.DELETE("/orders/:id", h.deleteOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready while the database answers. The cache is
// optional and only reported.
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok"}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		checks["database"] = "down"
		status = http.StatusServiceUnavailable
	}

	switch {
	case h.cache == nil:
		checks["cache"] = "disabled"
	case h.cache.Ping(ctx) != nil:
		checks["cache"] = "degraded"
	default:
		checks["cache"] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}
