package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/queue"
	"github.com/acme/campaign-dialer/internal/repository/memory"
	"github.com/acme/campaign-dialer/internal/telephony"
	"github.com/acme/campaign-dialer/pkg/logger"
)

type capturedEvents struct {
	mu     sync.Mutex
	events []queue.CallEvent
}

func (c *capturedEvents) Publish(_ context.Context, event queue.CallEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturedEvents) All() []queue.CallEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]queue.CallEvent, len(c.events))
	copy(out, c.events)
	return out
}

func newTestService(store *memory.CallStore) (*Service, *memory.Journal, *capturedEvents) {
	journal := memory.NewJournal()
	events := &capturedEvents{}
	svc := NewService(store, journal, events, logger.Nop()).
		WithClock(func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) })
	return svc, journal, events
}

func scheduledCall(store *memory.CallStore) *domain.Call {
	campaignID := uuid.New()
	return store.Add(&domain.Call{
		OrganizationID: uuid.New(),
		CampaignID:     &campaignID,
		CustomerPhone:  "+15551234567",
		Status:         domain.CallStatusScheduled,
		CreatedAt:      time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC),
	})
}

func TestMarkDispatched(t *testing.T) {
	store := memory.NewCallStore()
	svc, journal, events := newTestService(store)
	call := scheduledCall(store)

	require.NoError(t, svc.MarkDispatched(context.Background(), call, "prov-1"))

	require.Equal(t, domain.CallStatusCalling, call.Status)
	require.NotNil(t, call.ProviderCallID)
	require.Equal(t, "prov-1", *call.ProviderCallID)
	require.NotNil(t, call.StartedAt)

	require.Len(t, journal.Entries, 1)
	require.Equal(t, domain.CallStatusScheduled, journal.Entries[0].FromStatus)
	require.Equal(t, domain.CallStatusCalling, journal.Entries[0].ToStatus)
	require.Equal(t, SourceDispatch, journal.Entries[0].Source)

	require.Len(t, events.All(), 1)
}

func TestMarkPlacementFailed(t *testing.T) {
	store := memory.NewCallStore()
	svc, _, _ := newTestService(store)
	call := scheduledCall(store)

	require.NoError(t, svc.MarkPlacementFailed(context.Background(), call, "provider rejected"))

	require.Equal(t, domain.CallStatusFailed, call.Status)
	require.Equal(t, domain.OutcomeFailed, call.Outcome)
	require.Equal(t, "provider rejected", call.Message)
}

func TestCancelOnlyFromScheduled(t *testing.T) {
	store := memory.NewCallStore()
	svc, journal, _ := newTestService(store)

	call := scheduledCall(store)
	require.NoError(t, svc.Cancel(context.Background(), call, SourceScheduler, "retry limit of 1 reached"))
	require.Equal(t, domain.CallStatusCancelled, call.Status)
	require.Equal(t, "retry limit of 1 reached", call.Message)
	require.Len(t, journal.Entries, 1)

	// A dispatched call is left alone.
	inFlight := scheduledCall(store)
	inFlight.Status = domain.CallStatusCalling
	require.NoError(t, svc.Cancel(context.Background(), inFlight, SourceScheduler, "whatever"))
	require.Equal(t, domain.CallStatusCalling, inFlight.Status)
	require.Len(t, journal.Entries, 1)
}

func TestApplyProviderUpdateCompletes(t *testing.T) {
	store := memory.NewCallStore()
	svc, journal, _ := newTestService(store)

	call := scheduledCall(store)
	require.NoError(t, svc.MarkDispatched(context.Background(), call, "prov-1"))

	info := &telephony.CallInfo{
		Status:          telephony.ProviderStatusEnded,
		EndedReason:     "customer-ended-call",
		DurationSeconds: 95,
		Cost:            0.42,
		Summary:         "spoke with customer",
		Transcript:      "hello",
		RecordingURL:    "https://example.com/rec.wav",
	}
	require.NoError(t, svc.ApplyProviderUpdate(context.Background(), call, info, SourceWebhook))

	require.Equal(t, domain.CallStatusCompleted, call.Status)
	require.Equal(t, domain.OutcomeSuccess, call.Outcome)
	require.Equal(t, 95, call.DurationSeconds)
	require.Equal(t, "spoke with customer", call.Summary)
	require.Equal(t, "https://example.com/rec.wav", call.RecordingURL)

	require.Len(t, journal.Entries, 2)
	require.Equal(t, domain.CallStatusCompleted, journal.Entries[1].ToStatus)
}

func TestApplyProviderUpdatePartialMerge(t *testing.T) {
	store := memory.NewCallStore()
	svc, _, _ := newTestService(store)

	call := scheduledCall(store)
	require.NoError(t, svc.MarkDispatched(context.Background(), call, "prov-1"))
	call.Transcript = "captured earlier"
	call.Summary = "first summary"

	// A later update without transcript or summary must not erase them.
	info := &telephony.CallInfo{Status: telephony.ProviderStatusInProgress, Cost: 0.1}
	require.NoError(t, svc.ApplyProviderUpdate(context.Background(), call, info, SourceReconciler))

	require.Equal(t, domain.CallStatusInProgress, call.Status)
	require.Equal(t, "captured earlier", call.Transcript)
	require.Equal(t, "first summary", call.Summary)
	require.Equal(t, 0.1, call.Cost)
}

func TestApplyProviderUpdateTerminalNeverRegresses(t *testing.T) {
	store := memory.NewCallStore()
	svc, journal, _ := newTestService(store)

	call := scheduledCall(store)
	require.NoError(t, svc.MarkDispatched(context.Background(), call, "prov-1"))
	require.NoError(t, svc.ApplyProviderUpdate(context.Background(), call,
		&telephony.CallInfo{Status: telephony.ProviderStatusEnded}, SourceWebhook))
	require.Equal(t, domain.CallStatusCompleted, call.Status)

	entries := len(journal.Entries)

	// A late in-progress notification must not reopen the call.
	require.NoError(t, svc.ApplyProviderUpdate(context.Background(), call,
		&telephony.CallInfo{Status: telephony.ProviderStatusInProgress}, SourceWebhook))
	require.Equal(t, domain.CallStatusCompleted, call.Status)
	require.Len(t, journal.Entries, entries)
}

func TestApplyProviderUpdateIdempotentReplay(t *testing.T) {
	store := memory.NewCallStore()
	svc, journal, events := newTestService(store)

	call := scheduledCall(store)
	require.NoError(t, svc.MarkDispatched(context.Background(), call, "prov-1"))

	info := &telephony.CallInfo{Status: telephony.ProviderStatusEnded, Outcome: "voicemail"}
	require.NoError(t, svc.ApplyProviderUpdate(context.Background(), call, info, SourceWebhook))
	require.NoError(t, svc.ApplyProviderUpdate(context.Background(), call, info, SourceWebhook))

	require.Equal(t, domain.CallStatusCompleted, call.Status)
	require.Equal(t, domain.OutcomeVoicemail, call.Outcome)

	// dispatch + completion, the replay adds nothing
	require.Len(t, journal.Entries, 2)
	require.Len(t, events.All(), 2)
}

func TestApplyProviderUpdateUnrecognizedStatusKeepsState(t *testing.T) {
	store := memory.NewCallStore()
	svc, journal, _ := newTestService(store)

	call := scheduledCall(store)
	require.NoError(t, svc.MarkDispatched(context.Background(), call, "prov-1"))
	entries := len(journal.Entries)

	info := &telephony.CallInfo{Status: "forwarding", Transcript: "partial"}
	require.NoError(t, svc.ApplyProviderUpdate(context.Background(), call, info, SourceWebhook))

	require.Equal(t, domain.CallStatusCalling, call.Status)
	require.Equal(t, "partial", call.Transcript)
	require.Len(t, journal.Entries, entries)
}

func TestApplyProviderUpdateFailedOutcome(t *testing.T) {
	store := memory.NewCallStore()
	svc, _, _ := newTestService(store)

	call := scheduledCall(store)
	require.NoError(t, svc.MarkDispatched(context.Background(), call, "prov-1"))

	info := &telephony.CallInfo{Status: telephony.ProviderStatusFailed, EndedReason: "twilio-error"}
	require.NoError(t, svc.ApplyProviderUpdate(context.Background(), call, info, SourceReconciler))

	require.Equal(t, domain.CallStatusFailed, call.Status)
	require.Equal(t, domain.OutcomeFailed, call.Outcome)
}
