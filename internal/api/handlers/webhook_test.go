package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository/memory"
	callsvc "github.com/acme/campaign-dialer/internal/service/call"
	"github.com/acme/campaign-dialer/pkg/logger"
)

func newWebhookApp(store *memory.CallStore) *fiber.App {
	h := &HandlerSet{
		log:   logger.Nop(),
		calls: callsvc.NewService(store, nil, nil, logger.Nop()),
	}
	app := fiber.New(fiber.Config{ErrorHandler: h.ErrorHandler})
	app.Post("/api/v1/webhooks/provider", h.providerWebhook)
	return app
}

func postWebhook(t *testing.T, app *fiber.App, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/webhooks/provider", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestProviderWebhookMissingCallID(t *testing.T) {
	app := newWebhookApp(memory.NewCallStore())

	code := postWebhook(t, app, `{"status": "ended"}`)
	require.Equal(t, fiber.StatusBadRequest, code)
}

func TestProviderWebhookMalformedBody(t *testing.T) {
	app := newWebhookApp(memory.NewCallStore())

	code := postWebhook(t, app, `{not json`)
	require.Equal(t, fiber.StatusBadRequest, code)
}

func TestProviderWebhookUnknownCallAcknowledged(t *testing.T) {
	app := newWebhookApp(memory.NewCallStore())

	code := postWebhook(t, app, `{"callId": "prov-unknown", "status": "ended"}`)
	require.Equal(t, fiber.StatusOK, code)
}

func TestProviderWebhookAppliesTerminalReport(t *testing.T) {
	store := memory.NewCallStore()
	providerID := "prov-1"
	call := store.Add(&domain.Call{
		CustomerPhone:  "+15551234567",
		ProviderCallID: &providerID,
		Status:         domain.CallStatusCalling,
	})

	app := newWebhookApp(store)

	code := postWebhook(t, app, `{
		"message": {
			"type": "end-of-call-report",
			"call": {"id": "prov-1"},
			"endedReason": "customer-ended-call",
			"summary": "left a voicemail greeting",
			"durationSeconds": 42.9
		}
	}`)
	require.Equal(t, fiber.StatusOK, code)

	require.Equal(t, domain.CallStatusCompleted, call.Status)
	require.Equal(t, domain.OutcomeSuccess, call.Outcome)
	require.Equal(t, "left a voicemail greeting", call.Summary)
	require.Equal(t, 42, call.DurationSeconds)
}
