package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/campaign-dialer/internal/repository"
	callsvc "github.com/acme/campaign-dialer/internal/service/call"
	"github.com/acme/campaign-dialer/internal/telephony"
)

// providerWebhook ingests call status notifications. Replays and unknown
// call ids are acknowledged so the provider stops retrying them.
func (h *HandlerSet) providerWebhook(ctx *fiber.Ctx) error {
	event, err := telephony.ParseEvent(ctx.Body())
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid webhook payload")
	}
	if event.CallID == "" {
		return fiber.NewError(http.StatusBadRequest, "missing call id")
	}

	call, err := h.calls.GetByProviderID(ctx.Context(), event.CallID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.log.Warn("webhook for unknown call",
				zap.String("provider_call_id", event.CallID))
			return ctx.Status(http.StatusOK).JSON(fiber.Map{"status": "ignored"})
		}
		return translateError(err)
	}

	if err := h.calls.ApplyProviderUpdate(ctx.Context(), call, &event.Info, callsvc.SourceWebhook); err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"status": "processed"})
}
