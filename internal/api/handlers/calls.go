package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/telephony"
)

type triggerCallRequest struct {
	OrganizationID uuid.UUID  `json:"organization_id"`
	CampaignID     uuid.UUID  `json:"campaign_id"`
	ContactID      *uuid.UUID `json:"contact_id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Address        string     `json:"address"`
}

type callResponse struct {
	ID              int64              `json:"id"`
	OrganizationID  uuid.UUID          `json:"organization_id"`
	CampaignID      *uuid.UUID         `json:"campaign_id,omitempty"`
	ContactID       *uuid.UUID         `json:"contact_id,omitempty"`
	CustomerName    string             `json:"customer_name,omitempty"`
	CustomerPhone   string             `json:"customer_phone"`
	ProviderCallID  *string            `json:"provider_call_id,omitempty"`
	Status          domain.CallStatus  `json:"status"`
	Outcome         domain.CallOutcome `json:"outcome,omitempty"`
	ScheduledAt     *time.Time         `json:"scheduled_at,omitempty"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	DurationSeconds int                `json:"duration_seconds,omitempty"`
	Cost            float64            `json:"cost,omitempty"`
	Summary         string             `json:"summary,omitempty"`
	RecordingURL    string             `json:"recording_url,omitempty"`
	Message         string             `json:"message,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// triggerCall places a one-off call through the same dispatch path the
// scheduler uses, so the concurrency ceiling still applies.
func (h *HandlerSet) triggerCall(ctx *fiber.Ctx) error {
	var req triggerCallRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.Phone == "" {
		return fiber.NewError(http.StatusBadRequest, "phone is required")
	}
	if req.OrganizationID == uuid.Nil || req.CampaignID == uuid.Nil {
		return fiber.NewError(http.StatusBadRequest, "organization_id and campaign_id are required")
	}

	repos := h.container.Repositories()

	org, err := repos.Organizations.Get(ctx.Context(), req.OrganizationID)
	if err != nil {
		return translateError(err)
	}
	if !org.Configured() {
		return fiber.NewError(http.StatusConflict, "organization has no provider credentials")
	}

	campaign, err := h.campaigns.Get(ctx.Context(), req.CampaignID)
	if err != nil {
		return translateError(err)
	}

	now := time.Now().UTC()
	campaignID := campaign.ID
	row := &domain.Call{
		OrganizationID:  org.ID,
		CampaignID:      &campaignID,
		ContactID:       req.ContactID,
		CustomerName:    req.Name,
		CustomerPhone:   telephony.NormalizePhone(req.Phone),
		CustomerAddress: req.Address,
		Status:          domain.CallStatusScheduled,
		ScheduledAt:     &now,
		Message:         "manual call trigger",
		CreatedAt:       now,
	}
	if err := repos.Calls.Create(ctx.Context(), row); err != nil {
		return translateError(err)
	}

	dispatcher := h.container.Dispatcher()
	log := h.log
	go func() {
		dispatchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		dispatcher.Dispatch(dispatchCtx, org, campaign, []*domain.Call{row})
		log.Info("manual call dispatched", zap.Int64("call_id", row.ID))
	}()

	return ctx.Status(http.StatusAccepted).JSON(toCallResponse(row))
}

func (h *HandlerSet) getCall(ctx *fiber.Ctx) error {
	id, err := strconv.ParseInt(ctx.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid call id")
	}

	call, err := h.calls.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCallResponse(call))
}

func toCallResponse(c *domain.Call) callResponse {
	return callResponse{
		ID:              c.ID,
		OrganizationID:  c.OrganizationID,
		CampaignID:      c.CampaignID,
		ContactID:       c.ContactID,
		CustomerName:    c.CustomerName,
		CustomerPhone:   c.CustomerPhone,
		ProviderCallID:  c.ProviderCallID,
		Status:          c.Status,
		Outcome:         c.Outcome,
		ScheduledAt:     c.ScheduledAt,
		StartedAt:       c.StartedAt,
		DurationSeconds: c.DurationSeconds,
		Cost:            c.Cost,
		Summary:         c.Summary,
		RecordingURL:    c.RecordingURL,
		Message:         c.Message,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}
