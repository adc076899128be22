package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/acme/parallel-dialer/internal/app"
	campaignsvc "github.com/acme/parallel-dialer/internal/service/campaign"
	dialersvc "github.com/acme/parallel-dialer/internal/service/dialer"
)

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	container *app.Container
	campaigns *campaignsvc.Service
	dialer    *dialersvc.Service
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(container *app.Container) *HandlerSet {
	services := container.Services()
	return &HandlerSet{
		container: container,
		campaigns: services.Campaign,
		dialer:    services.Dialer,
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	v1 := api.Group("/v1")

	campaigns := v1.Group("/campaigns")
	campaigns.Post("/", h.createCampaign)
	campaigns.Get("/", h.listCampaigns)
	campaigns.Get("/running", h.runningCampaigns)
	campaigns.Get("/:id", h.getCampaign)
	campaigns.Put("/:id", h.updateCampaign)
	campaigns.Get("/:id/settings", h.getSettings)
	campaigns.Put("/:id/settings", h.updateSettings)
	campaigns.Get("/:id/stats", h.campaignStats)
	campaigns.Post("/:id/contacts", h.addContacts)
	campaigns.Get("/:id/contacts", h.listContacts)
	campaigns.Get("/:id/outcomes", h.listOutcomes)

	dialer := campaigns.Group("/:id/dialer")
	dialer.Post("/start", h.startCampaign)
	dialer.Post("/pause", h.pauseCampaign)
	dialer.Post("/resume", h.resumeCampaign)
	dialer.Post("/stop", h.stopCampaign)
	dialer.Post("/dial-next", h.dialNext)
	dialer.Post("/lines/:line/disconnect", h.disconnectLine)
	dialer.Get("/snapshot", h.campaignSnapshot)
	dialer.Get("/events", h.streamEvents)

	contacts := v1.Group("/contacts")
	contacts.Post("/:id/dnc", h.markDoNotCall)

	webhooks := v1.Group("/webhooks")
	webhooks.Post("/telephony", h.telephonyWebhook)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.container.Logger.Error("request failed", zap.Error(err))
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.Context(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)

	if err := h.container.Postgres.DB().PingContext(healthCtx); err != nil {
		errs["postgres"] = err.Error()
	}

	if err := h.container.Redis.Inner().Ping(healthCtx).Err(); err != nil {
		errs["redis"] = err.Error()
	}

	if err := h.container.Scylla.Session().Query("SELECT now() FROM system.local").WithContext(healthCtx).Exec(); err != nil {
		errs["scylla"] = err.Error()
	}

	status := fiber.StatusOK
	if len(errs) > 0 {
		status = fiber.StatusServiceUnavailable
	}

	return ctx.Status(status).JSON(fiber.Map{"status": "ok", "errors": errs})
}
