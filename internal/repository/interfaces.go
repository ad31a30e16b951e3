package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/campaign-dialer/internal/domain"
	apperrors "github.com/acme/campaign-dialer/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// OrganizationRepository manages tenant records and provider credentials.
type OrganizationRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Organization, error)
}

// CampaignRepository manages campaign metadata persistence.
type CampaignRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	// ListEvaluable returns campaigns that are active and not soft-deleted.
	ListEvaluable(ctx context.Context) ([]*domain.Campaign, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// ContactRepository stores reusable lead records.
type ContactRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	Create(ctx context.Context, contact *domain.Contact) error
	GetByPhone(ctx context.Context, orgID uuid.UUID, phone string) (*domain.Contact, error)
	// ListByCampaign enumerates contacts previously associated with the
	// campaign, oldest first, up to limit.
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]*domain.Contact, error)
}

// CallRepository persists call records and answers the live-status queries
// the eligibility and dispatch invariants depend on.
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	Get(ctx context.Context, id int64) (*domain.Call, error)
	GetByProviderID(ctx context.Context, providerCallID string) (*domain.Call, error)
	Update(ctx context.Context, call *domain.Call) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]*domain.Call, error)

	// ListDueScheduled returns rows in scheduled status for the campaign whose
	// scheduled time falls in [now-grace, now].
	ListDueScheduled(ctx context.Context, campaignID uuid.UUID, now time.Time, grace time.Duration) ([]*domain.Call, error)

	// ListStale returns calls whose status is one of statuses, with a provider
	// call id, not updated since cutoff, bounded by limit.
	ListStale(ctx context.Context, statuses []domain.CallStatus, cutoff time.Time, limit int) ([]*domain.Call, error)

	// CountByPhone counts calls for (campaign, phone) in any of statuses.
	// A zero since counts all history; otherwise only calls whose dispatch
	// time (or creation time when never dispatched) is at or after since.
	CountByPhone(ctx context.Context, campaignID uuid.UUID, phone string, statuses []domain.CallStatus, since time.Time) (int, error)

	// CountInFlight counts calls for the campaign in calling/in_progress.
	// Always computed from storage so the ceiling holds across restarts.
	CountInFlight(ctx context.Context, campaignID uuid.UUID) (int, error)

	// HasScheduledSince reports whether a scheduled row for (campaign,
	// contact) was created at or after since.
	HasScheduledSince(ctx context.Context, campaignID, contactID uuid.UUID, since time.Time) (bool, error)

	// CancelScheduled transitions every scheduled row of the campaign to
	// cancelled with the given message, returning how many were affected.
	CancelScheduled(ctx context.Context, campaignID uuid.UUID, message string) (int64, error)
}

// CallJournal records every status transition for audit and debugging.
type CallJournal interface {
	Append(ctx context.Context, entry JournalEntry) error
	// ListByCampaign returns the campaign's transitions for one calendar day,
	// bounded by limit, with an opaque paging token for the next slice.
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, day time.Time, limit int, pagingState []byte) ([]JournalEntry, []byte, error)
}

// JournalEntry is one recorded status transition.
type JournalEntry struct {
	CallID         int64
	ProviderCallID string
	CampaignID     uuid.UUID
	FromStatus     domain.CallStatus
	ToStatus       domain.CallStatus
	Outcome        domain.CallOutcome
	Source         string
	Detail         string
	OccurredAt     time.Time
}
