package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/BengeeL/Dental-Chatbot/config"
	v1 "github.com/BengeeL/Dental-Chatbot/internal/adapters/http/api/v1"
	internalhttp "github.com/BengeeL/Dental-Chatbot/internal/adapters/http/internal"
	pkglog "github.com/BengeeL/Dental-Chatbot/pkg/log"
)

type Router struct {
	cfg       *config.Config
	apiRouter *v1.Router
	postgres  internalhttp.Pinger
	redis     internalhttp.Pinger
	logger    pkglog.Logger
}

func NewRouter(cfg *config.Config, apiRouter *v1.Router, postgres, redis internalhttp.Pinger, logger pkglog.Logger) *Router {
	return &Router{cfg: cfg, apiRouter: apiRouter, postgres: postgres, redis: redis, logger: logger}
}

func (r *Router) Setup(e *echo.Echo) {
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			r.logger.Info().
				Str("trace_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     r.cfg.CORSOrigins,
		AllowCredentials: !allowsAnyOrigin(r.cfg.CORSOrigins),
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))

	internalhttp.Register(e, r.postgres, r.redis)
	apiGroup := e.Group(r.cfg.HTTPBasePath)
	r.apiRouter.Register(apiGroup)
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return len(origins) == 0
}
