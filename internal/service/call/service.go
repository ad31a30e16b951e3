package call

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/queue"
	"github.com/acme/campaign-dialer/internal/repository"
	"github.com/acme/campaign-dialer/internal/telephony"
	"github.com/acme/campaign-dialer/pkg/logger"
)

// Transition sources recorded in the journal and event feed.
const (
	SourceDispatch   = "dispatch"
	SourceWebhook    = "webhook"
	SourceReconciler = "reconciler"
	SourceCampaign   = "campaign"
	SourceScheduler  = "scheduler"
)

// EventSink receives call lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, event queue.CallEvent) error
}

// Service owns call state transitions. The webhook ingestor, the status
// reconciler and the dispatcher all converge here so the state machine is
// applied in exactly one place.
type Service struct {
	calls   repository.CallRepository
	journal repository.CallJournal
	events  EventSink
	log     *logger.Logger
	now     func() time.Time
}

// NewService builds the call lifecycle service. Journal and events may be nil
// in tests; both are best-effort and never block a state change.
func NewService(calls repository.CallRepository, journal repository.CallJournal, events EventSink, log *logger.Logger) *Service {
	return &Service{
		calls:   calls,
		journal: journal,
		events:  events,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get retrieves a call by id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Call, error) {
	return s.calls.Get(ctx, id)
}

// GetByProviderID locates a call by its provider-assigned identifier. The
// lookup is tenant-agnostic; provider call ids are globally unique.
func (s *Service) GetByProviderID(ctx context.Context, providerCallID string) (*domain.Call, error) {
	return s.calls.GetByProviderID(ctx, providerCallID)
}

// MarkDispatched records a successful provider placement:
// scheduled -> calling with the provider call id attached.
func (s *Service) MarkDispatched(ctx context.Context, call *domain.Call, providerCallID string) error {
	now := s.now()
	call.ProviderCallID = &providerCallID
	call.StartedAt = &now
	call.Message = "call dispatched to provider"
	return s.transition(ctx, call, domain.CallStatusCalling, call.Outcome, SourceDispatch, call.Message)
}

// MarkPlacementFailed records a rejected or errored placement. The row never
// stays in scheduled after a dispatch attempt.
func (s *Service) MarkPlacementFailed(ctx context.Context, call *domain.Call, detail string) error {
	call.Message = detail
	return s.transition(ctx, call, domain.CallStatusFailed, domain.OutcomeFailed, SourceDispatch, detail)
}

// Cancel transitions a still-scheduled call to cancelled with a descriptive
// message. Calls already past scheduled are left alone.
func (s *Service) Cancel(ctx context.Context, call *domain.Call, source, reason string) error {
	if call.Status != domain.CallStatusScheduled {
		return nil
	}
	call.Message = reason
	return s.transition(ctx, call, domain.CallStatusCancelled, call.Outcome, source, reason)
}

// ApplyProviderUpdate merges a provider notification or status-query result
// into the call row. Every update is a partial merge: fields absent from the
// payload never erase previously captured detail. Terminal statuses never
// regress, and re-applying an identical update is harmless.
func (s *Service) ApplyProviderUpdate(ctx context.Context, call *domain.Call, info *telephony.CallInfo, source string) error {
	mergeInfo(call, info)

	mapped, recognized := MapProviderStatus(info.Status)
	if !recognized || call.Status.Terminal() || mapped == call.Status {
		// No state change; persist whatever detail the payload carried.
		call.UpdatedAt = s.now()
		if err := s.calls.Update(ctx, call); err != nil {
			return fmt.Errorf("call service: update call %d: %w", call.ID, err)
		}
		return nil
	}

	outcome := call.Outcome
	switch mapped {
	case domain.CallStatusCompleted:
		outcome = DeriveOutcome(info.Outcome, info.EndedReason)
	case domain.CallStatusFailed:
		outcome = domain.OutcomeFailed
	}

	detail := info.EndedReason
	if detail == "" {
		detail = "provider reported " + info.Status
	}
	return s.transition(ctx, call, mapped, outcome, source, detail)
}

// transition applies a status change, persists it, journals it and emits a
// lifecycle event. Terminal states never regress.
func (s *Service) transition(ctx context.Context, call *domain.Call, to domain.CallStatus, outcome domain.CallOutcome, source, detail string) error {
	if call.Status.Terminal() {
		return nil
	}

	from := call.Status
	now := s.now()
	call.Status = to
	call.Outcome = outcome
	call.UpdatedAt = now

	if err := s.calls.Update(ctx, call); err != nil {
		return fmt.Errorf("call service: transition call %d to %s: %w", call.ID, to, err)
	}

	s.record(ctx, call, from, source, detail, now)
	return nil
}

// record writes the journal entry and publishes the event feed message.
// Failures are logged, never propagated; audit trails must not block calls.
func (s *Service) record(ctx context.Context, call *domain.Call, from domain.CallStatus, source, detail string, at time.Time) {
	providerID := ""
	if call.ProviderCallID != nil {
		providerID = *call.ProviderCallID
	}

	if s.journal != nil {
		entry := repository.JournalEntry{
			CallID:         call.ID,
			ProviderCallID: providerID,
			FromStatus:     from,
			ToStatus:       call.Status,
			Outcome:        call.Outcome,
			Source:         source,
			Detail:         detail,
			OccurredAt:     at,
		}
		if call.CampaignID != nil {
			entry.CampaignID = *call.CampaignID
		}
		if err := s.journal.Append(ctx, entry); err != nil && s.log != nil {
			s.log.Warn("call service: journal append failed", zap.Int64("call_id", call.ID), zap.Error(err))
		}
	}

	if s.events != nil {
		event := queue.CallEvent{
			CallID:         call.ID,
			ProviderCallID: providerID,
			OrganizationID: call.OrganizationID,
			CampaignID:     call.CampaignID,
			Phone:          call.CustomerPhone,
			FromStatus:     from,
			ToStatus:       call.Status,
			Outcome:        call.Outcome,
			Source:         source,
			Message:        detail,
			OccurredAt:     at,
		}
		if err := s.events.Publish(ctx, event); err != nil && s.log != nil {
			s.log.Warn("call service: publish event failed", zap.Int64("call_id", call.ID), zap.Error(err))
		}
	}
}

func mergeInfo(call *domain.Call, info *telephony.CallInfo) {
	if info.RecordingURL != "" {
		call.RecordingURL = info.RecordingURL
	}
	if info.Summary != "" {
		call.Summary = info.Summary
	}
	if info.Transcript != "" {
		call.Transcript = info.Transcript
	}
	if len(info.StructuredData) > 0 {
		call.StructuredData = info.StructuredData
	}
	if info.DurationSeconds > 0 {
		call.DurationSeconds = info.DurationSeconds
	}
	if info.Cost > 0 {
		call.Cost = info.Cost
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
