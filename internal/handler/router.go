package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/rs/zerolog"
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r fiber.Router)
}

// NewApp returns a fiber app with the JSON error handler, a health check and
// the given routes.
func NewApp(logger zerolog.Logger, routes ...Registrar) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: NewErrorHandler(logger),
	})
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	for _, r := range routes {
		r.Register(app)
	}
	return app
}

func (h *EstimateHandler) Register(r fiber.Router) {
	r.Get("/estimate", h.Handle())
}

// MetricsHandler serves a net/http metrics handler at /metrics.
type MetricsHandler struct {
	handler http.Handler
}

func NewMetricsHandler(h http.Handler) *MetricsHandler {
	return &MetricsHandler{handler: h}
}

func (m *MetricsHandler) Register(r fiber.Router) {
	r.Get("/metrics", adaptor.HTTPHandler(m.handler))
}
