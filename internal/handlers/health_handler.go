package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz reports whether the ledger database is reachable.
func (h *HealthHandler) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if h.db == nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: "not configured"})
	}
	if err := h.db.PingContext(ctx); err != nil {
		slog.Warn("Health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: "unreachable"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
}
