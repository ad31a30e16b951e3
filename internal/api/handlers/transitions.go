package handlers

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/campaign-dialer/internal/domain"
)

type transitionResponse struct {
	CallID         int64              `json:"call_id"`
	ProviderCallID string             `json:"provider_call_id,omitempty"`
	FromStatus     domain.CallStatus  `json:"from_status"`
	ToStatus       domain.CallStatus  `json:"to_status"`
	Outcome        domain.CallOutcome `json:"outcome,omitempty"`
	Source         string             `json:"source"`
	Detail         string             `json:"detail,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

type listTransitionsResponse struct {
	Transitions []transitionResponse `json:"transitions"`
	NextPage    string               `json:"next_page,omitempty"`
}

// listCampaignTransitions serves the journal: every status transition the
// campaign's calls went through on one calendar day, newest first.
func (h *HandlerSet) listCampaignTransitions(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	day := time.Now().UTC()
	if raw := ctx.Query("day"); raw != "" {
		day, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "day must be YYYY-MM-DD")
		}
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))

	var pagingState []byte
	if raw := ctx.Query("page"); raw != "" {
		pagingState, err = base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid page token")
		}
	}

	entries, next, err := h.journal.ListByCampaign(ctx.Context(), id, day, limit, pagingState)
	if err != nil {
		return translateError(err)
	}

	resp := listTransitionsResponse{Transitions: make([]transitionResponse, 0, len(entries))}
	for _, entry := range entries {
		resp.Transitions = append(resp.Transitions, transitionResponse{
			CallID:         entry.CallID,
			ProviderCallID: entry.ProviderCallID,
			FromStatus:     entry.FromStatus,
			ToStatus:       entry.ToStatus,
			Outcome:        entry.Outcome,
			Source:         entry.Source,
			Detail:         entry.Detail,
			OccurredAt:     entry.OccurredAt,
		})
	}
	if len(next) > 0 {
		resp.NextPage = base64.RawURLEncoding.EncodeToString(next)
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}
