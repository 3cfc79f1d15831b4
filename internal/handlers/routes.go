package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zidallie-kenya/zidallie-backend-sub000/internal/middleware"
)

// RegisterRoutes mounts the API on e. metrics may be nil.
func RegisterRoutes(e *echo.Echo, payments *PaymentHandler, health *HealthHandler, callbackToken string, metrics http.Handler) {
	e.GET("/healthz", health.Healthz)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	api := e.Group("/api/v1")
	api.POST("/subscriptions/payments", payments.InitiatePayment)

	// Gateway webhooks
	hooks := api.Group("/mpesa", middleware.RequireCallbackToken(callbackToken))
	hooks.POST("/stk/callback", payments.STKCallback)
	hooks.POST("/b2c/result", payments.PayoutResult)
	hooks.POST("/b2b/result", payments.PayoutResult)
	hooks.POST("/b2c/timeout", payments.PayoutTimeout)
	hooks.POST("/b2b/timeout", payments.PayoutTimeout)
}
