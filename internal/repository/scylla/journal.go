package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository"
)

// Journal records call status transitions in Scylla, bucketed by day so a
// campaign's history stays in bounded partitions.
type Journal struct {
	session *gocql.Session
}

// NewJournal creates a new journal.
func NewJournal(session *gocql.Session) *Journal {
	return &Journal{session: session}
}

// Append writes one transition record. Entries are keyed by (campaign,
// bucket, occurred_at, call_id) so replays overwrite rather than duplicate.
func (j *Journal) Append(ctx context.Context, entry repository.JournalEntry) error {
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	bucket := bucketDate(occurredAt)

	if err := j.session.Query(`INSERT INTO call_transitions (campaign_id, bucket, occurred_at, call_id, provider_call_id, from_status, to_status, outcome, source, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CampaignID.String(), bucket, occurredAt, entry.CallID, entry.ProviderCallID,
		string(entry.FromStatus), string(entry.ToStatus), string(entry.Outcome),
		entry.Source, entry.Detail,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call journal: append transition: %w", err)
	}

	return nil
}

// ListByCampaign returns transitions for a campaign on a given day, newest
// first, with pagination.
func (j *Journal) ListByCampaign(ctx context.Context, campaignID uuid.UUID, day time.Time, limit int, pagingState []byte) ([]repository.JournalEntry, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := j.session.Query(`SELECT occurred_at, call_id, provider_call_id, from_status, to_status, outcome, source, detail
		FROM call_transitions WHERE campaign_id = ? AND bucket = ?`,
		campaignID.String(), bucketDate(day)).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	entries := make([]repository.JournalEntry, 0, limit)

	var (
		occurredAt     time.Time
		callID         int64
		providerCallID string
		fromStatus     string
		toStatus       string
		outcome        string
		source         string
		detail         string
	)

	for iter.Scan(&occurredAt, &callID, &providerCallID, &fromStatus, &toStatus, &outcome, &source, &detail) {
		entries = append(entries, repository.JournalEntry{
			CallID:         callID,
			ProviderCallID: providerCallID,
			CampaignID:     campaignID,
			FromStatus:     domain.CallStatus(fromStatus),
			ToStatus:       domain.CallStatus(toStatus),
			Outcome:        domain.CallOutcome(outcome),
			Source:         source,
			Detail:         detail,
			OccurredAt:     occurredAt,
		})
	}

	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("call journal: iter close: %w", err)
	}

	return entries, iter.PageState(), nil
}

func bucketDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
