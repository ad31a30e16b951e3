package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/campaign-dialer/internal/domain"
)

type campaignResponse struct {
	ID             uuid.UUID        `json:"id"`
	OrganizationID uuid.UUID        `json:"organization_id"`
	Name           string           `json:"name"`
	Active         bool             `json:"active"`
	ScheduleDays   []int            `json:"schedule_days,omitempty"`
	StartTime      string           `json:"start_time,omitempty"`
	EndTime        string           `json:"end_time,omitempty"`
	TimeZone       string           `json:"time_zone,omitempty"`
	Frequency      domain.Frequency `json:"frequency,omitempty"`
	RetryLimit     int              `json:"retry_limit"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type listCallsResponse struct {
	Calls []callResponse `json:"calls"`
}

func (h *HandlerSet) getCampaign(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	campaign, err := h.campaigns.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) startCampaign(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.campaigns.Start(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) stopCampaign(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.campaigns.Stop(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) listCampaignCalls(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))
	calls, err := h.container.Repositories().Calls.ListByCampaign(ctx.Context(), id, limit)
	if err != nil {
		return translateError(err)
	}

	resp := listCallsResponse{Calls: make([]callResponse, 0, len(calls))}
	for _, c := range calls {
		resp.Calls = append(resp.Calls, toCallResponse(c))
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func toCampaignResponse(campaign *domain.Campaign) campaignResponse {
	return campaignResponse{
		ID:             campaign.ID,
		OrganizationID: campaign.OrganizationID,
		Name:           campaign.Name,
		Active:         campaign.Active,
		ScheduleDays:   campaign.ScheduleDays,
		StartTime:      campaign.StartTime,
		EndTime:        campaign.EndTime,
		TimeZone:       campaign.TimeZone,
		Frequency:      campaign.Frequency,
		RetryLimit:     campaign.RetryLimit,
		CreatedAt:      campaign.CreatedAt,
		UpdatedAt:      campaign.UpdatedAt,
	}
}
