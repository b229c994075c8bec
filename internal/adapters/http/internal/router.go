package internalhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is a dependency whose reachability /health reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

func status(ctx context.Context, p Pinger) string {
	if p == nil || p.Ping(ctx) != nil {
		return "error"
	}
	return "connected"
}

// Register attaches internal/health endpoints.
func Register(e *echo.Echo, postgres, redis Pinger) {
	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		resp := healthResponse{Status: "healthy", Postgres: status(ctx, postgres), Redis: status(ctx, redis)}
		code := http.StatusOK
		if resp.Postgres != "connected" || resp.Redis != "connected" {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, resp)
	})
}
