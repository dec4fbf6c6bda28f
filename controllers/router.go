package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront-orders/middlewares"
)

type RouterConfig struct {
	Orders         OrderService
	DB             Pinger
	CustomerTokens middlewares.CredentialVerifier
	AdminTokens    middlewares.CredentialVerifier
	QueryTimeout   time.Duration
}

// NewRouter builds the HTTP surface: customer order routes behind a bearer
// token, admin routes behind the admin cookie, plus health and metrics.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestID(), middlewares.PrometheusMiddleware())
	if gin.Mode() == gin.DebugMode {
		r.Use(gin.Logger())
	}

	orders := NewOrderController(cfg.Orders)
	health := NewHealthController(cfg.DB)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", health.Health)

	api := r.Group("/api")
	api.Use(middlewares.RequestTimeout(cfg.QueryTimeout))

	customer := api.Group("/orders")
	customer.Use(middlewares.CustomerAuth(cfg.CustomerTokens))
	{
		customer.POST("", orders.CreateOrder)
		customer.GET("", orders.GetUserOrders)
		customer.GET("/:code", orders.GetOrderDetails)
	}

	admin := api.Group("/admin")
	admin.Use(middlewares.AdminAuth(cfg.AdminTokens))
	{
		admin.GET("/orders", orders.AdminListOrders)
		admin.PUT("/orders/:id/status", orders.UpdateOrderStatus)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return r
}
