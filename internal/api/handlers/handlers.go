package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/campaign-dialer/internal/app"
	"github.com/acme/campaign-dialer/internal/repository"
	campaignsvc "github.com/acme/campaign-dialer/internal/service/campaign"
	callsvc "github.com/acme/campaign-dialer/internal/service/call"
	"github.com/acme/campaign-dialer/pkg/logger"
)

// TickRunner triggers a scheduling pass on demand.
type TickRunner interface {
	RunOnce(ctx context.Context) error
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	container *app.Container
	log       *logger.Logger
	campaigns *campaignsvc.Service
	calls     *callsvc.Service
	journal   repository.CallJournal
	ticker    TickRunner
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(container *app.Container, ticker TickRunner) *HandlerSet {
	services := container.Services()
	return &HandlerSet{
		container: container,
		log:       container.Logger,
		campaigns: services.Campaign,
		calls:     services.Call,
		journal:   container.Repositories().Journal,
		ticker:    ticker,
	}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Post("/webhooks/provider", h.providerWebhook)
	v1.Post("/scheduler/run", h.runScheduler)

	campaigns := v1.Group("/campaigns")
	campaigns.Get("/:id", h.getCampaign)
	campaigns.Post("/:id/start", h.startCampaign)
	campaigns.Post("/:id/stop", h.stopCampaign)
	campaigns.Get("/:id/calls", h.listCampaignCalls)
	campaigns.Get("/:id/transitions", h.listCampaignTransitions)

	calls := v1.Group("/calls")
	calls.Post("/", h.triggerCall)
	calls.Get("/:id", h.getCall)
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
		h.log.Error("request failed", zap.Error(err))
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

func (h *HandlerSet) runScheduler(ctx *fiber.Ctx) error {
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := h.ticker.RunOnce(runCtx); err != nil {
			h.log.Error("triggered tick failed", zap.Error(err))
		}
	}()

	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "scheduled"})
}
