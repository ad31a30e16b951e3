package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository"
)

// CallRepository implements repository.CallRepository using PostgreSQL.
type CallRepository struct {
	db *sqlx.DB
}

// NewCallRepository constructs a new repository.
func NewCallRepository(db *sqlx.DB) *CallRepository {
	return &CallRepository{db: db}
}

const callColumns = `id, organization_id, campaign_id, contact_id,
	customer_name, customer_phone, customer_address, provider_call_id,
	status, outcome, scheduled_at, started_at, duration_seconds, cost,
	summary, transcript, structured_data, recording_url, message,
	created_at, updated_at`

// Create inserts a new call row and fills in the generated id.
func (r *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	now := time.Now().UTC()
	if call.CreatedAt.IsZero() {
		call.CreatedAt = now
	}
	call.UpdatedAt = now

	structured, err := marshalStructured(call.StructuredData)
	if err != nil {
		return fmt.Errorf("call repo: marshal structured data: %w", err)
	}

	q := `INSERT INTO calls (
		organization_id, campaign_id, contact_id,
		customer_name, customer_phone, customer_address, provider_call_id,
		status, outcome, scheduled_at, started_at, duration_seconds, cost,
		summary, transcript, structured_data, recording_url, message,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
	) RETURNING id`

	row := r.db.QueryRowxContext(ctx, q,
		call.OrganizationID, call.CampaignID, call.ContactID,
		call.CustomerName, call.CustomerPhone, call.CustomerAddress, call.ProviderCallID,
		call.Status, call.Outcome, call.ScheduledAt, call.StartedAt,
		call.DurationSeconds, call.Cost,
		call.Summary, call.Transcript, structured, call.RecordingURL, call.Message,
		call.CreatedAt, call.UpdatedAt,
	)
	if err := row.Scan(&call.ID); err != nil {
		return fmt.Errorf("call repo: insert: %w", err)
	}

	return nil
}

// Get fetches a call by id.
func (r *CallRepository) Get(ctx context.Context, id int64) (*domain.Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, q, id)
	var record callRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("call repo: get: %w", err)
	}

	return record.toDomain()
}

// GetByProviderID resolves a call by the provider-assigned id.
func (r *CallRepository) GetByProviderID(ctx context.Context, providerCallID string) (*domain.Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE provider_call_id = $1`

	row := r.db.QueryRowxContext(ctx, q, providerCallID)
	var record callRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("call repo: get by provider id: %w", err)
	}

	return record.toDomain()
}

// Update persists the mutable fields of a call.
func (r *CallRepository) Update(ctx context.Context, call *domain.Call) error {
	call.UpdatedAt = time.Now().UTC()

	structured, err := marshalStructured(call.StructuredData)
	if err != nil {
		return fmt.Errorf("call repo: marshal structured data: %w", err)
	}

	q := `UPDATE calls SET
		provider_call_id = :provider_call_id,
		status = :status,
		outcome = :outcome,
		started_at = :started_at,
		duration_seconds = :duration_seconds,
		cost = :cost,
		summary = :summary,
		transcript = :transcript,
		structured_data = :structured_data,
		recording_url = :recording_url,
		message = :message,
		updated_at = :updated_at
	 WHERE id = :id`

	params := map[string]any{
		"id":               call.ID,
		"provider_call_id": call.ProviderCallID,
		"status":           call.Status,
		"outcome":          call.Outcome,
		"started_at":       call.StartedAt,
		"duration_seconds": call.DurationSeconds,
		"cost":             call.Cost,
		"summary":          call.Summary,
		"transcript":       call.Transcript,
		"structured_data":  structured,
		"recording_url":    call.RecordingURL,
		"message":          call.Message,
		"updated_at":       call.UpdatedAt,
	}

	res, err := r.db.NamedExecContext(ctx, q, params)
	if err != nil {
		return fmt.Errorf("call repo: update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("call repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByCampaign returns the most recent calls for a campaign.
func (r *CallRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]*domain.Call, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+callColumns+`
		FROM calls WHERE campaign_id = $1
		ORDER BY created_at DESC LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("call repo: list by campaign: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// ListDueScheduled returns scheduled rows whose due time falls inside the
// grace window ending now.
func (r *CallRepository) ListDueScheduled(ctx context.Context, campaignID uuid.UUID, now time.Time, grace time.Duration) ([]*domain.Call, error) {
	from := now.Add(-grace)

	rows, err := r.db.QueryxContext(ctx, `SELECT `+callColumns+`
		FROM calls
		WHERE campaign_id = $1
		  AND status = $2
		  AND scheduled_at >= $3 AND scheduled_at <= $4
		ORDER BY scheduled_at ASC`,
		campaignID, domain.CallStatusScheduled, from, now)
	if err != nil {
		return nil, fmt.Errorf("call repo: list due scheduled: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// ListStale returns dispatched calls not updated since cutoff.
func (r *CallRepository) ListStale(ctx context.Context, statuses []domain.CallStatus, cutoff time.Time, limit int) ([]*domain.Call, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+callColumns+`
		FROM calls
		WHERE status = ANY($1)
		  AND provider_call_id IS NOT NULL
		  AND updated_at < $2
		ORDER BY updated_at ASC LIMIT $3`,
		statusStrings(statuses), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("call repo: list stale: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// CountByPhone counts calls for (campaign, phone) in any of the statuses.
// Windows are measured against the dispatch time, falling back to row
// creation for rows that were never dispatched.
func (r *CallRepository) CountByPhone(ctx context.Context, campaignID uuid.UUID, phone string, statuses []domain.CallStatus, since time.Time) (int, error) {
	q := `SELECT COUNT(*) FROM calls
		WHERE campaign_id = $1 AND customer_phone = $2 AND status = ANY($3)`
	args := []any{campaignID, phone, statusStrings(statuses)}

	if !since.IsZero() {
		q += ` AND COALESCE(started_at, created_at) >= $4`
		args = append(args, since)
	}

	var count int
	if err := r.db.QueryRowxContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("call repo: count by phone: %w", err)
	}
	return count, nil
}

// CountInFlight counts calls currently occupying provider capacity for the
// campaign.
func (r *CallRepository) CountInFlight(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM calls WHERE campaign_id = $1 AND status = ANY($2)`,
		campaignID, statusStrings(domain.InFlightStatuses)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("call repo: count in flight: %w", err)
	}
	return count, nil
}

// HasScheduledSince reports whether a scheduled row for the contact was
// created at or after since.
func (r *CallRepository) HasScheduledSince(ctx context.Context, campaignID, contactID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowxContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM calls
			WHERE campaign_id = $1 AND contact_id = $2
			  AND status = $3 AND created_at >= $4
		)`,
		campaignID, contactID, domain.CallStatusScheduled, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("call repo: has scheduled since: %w", err)
	}
	return exists, nil
}

// CancelScheduled transitions every scheduled row of the campaign to
// cancelled in one statement.
func (r *CallRepository) CancelScheduled(ctx context.Context, campaignID uuid.UUID, message string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE calls SET status = $1, message = $2, updated_at = NOW()
		  WHERE campaign_id = $3 AND status = $4`,
		domain.CallStatusCancelled, message, campaignID, domain.CallStatusScheduled)
	if err != nil {
		return 0, fmt.Errorf("call repo: cancel scheduled: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("call repo: rows affected: %w", err)
	}
	return n, nil
}

func scanCalls(rows *sqlx.Rows) ([]*domain.Call, error) {
	var results []*domain.Call
	for rows.Next() {
		var record callRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("call repo: scan: %w", err)
		}
		call, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		results = append(results, call)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("call repo: rows err: %w", err)
	}

	return results, nil
}

func statusStrings(statuses []domain.CallStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func marshalStructured(data map[string]any) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return json.Marshal(data)
}

type callRecord struct {
	ID              int64          `db:"id"`
	OrganizationID  uuid.UUID      `db:"organization_id"`
	CampaignID      *uuid.UUID     `db:"campaign_id"`
	ContactID       *uuid.UUID     `db:"contact_id"`
	CustomerName    sql.NullString `db:"customer_name"`
	CustomerPhone   string         `db:"customer_phone"`
	CustomerAddress sql.NullString `db:"customer_address"`
	ProviderCallID  sql.NullString `db:"provider_call_id"`
	Status          string         `db:"status"`
	Outcome         sql.NullString `db:"outcome"`
	ScheduledAt     sql.NullTime   `db:"scheduled_at"`
	StartedAt       sql.NullTime   `db:"started_at"`
	DurationSeconds int            `db:"duration_seconds"`
	Cost            float64        `db:"cost"`
	Summary         sql.NullString `db:"summary"`
	Transcript      sql.NullString `db:"transcript"`
	StructuredData  []byte         `db:"structured_data"`
	RecordingURL    sql.NullString `db:"recording_url"`
	Message         sql.NullString `db:"message"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r callRecord) toDomain() (*domain.Call, error) {
	call := domain.Call{
		ID:              r.ID,
		OrganizationID:  r.OrganizationID,
		CampaignID:      r.CampaignID,
		ContactID:       r.ContactID,
		CustomerName:    r.CustomerName.String,
		CustomerPhone:   r.CustomerPhone,
		CustomerAddress: r.CustomerAddress.String,
		Status:          domain.CallStatus(r.Status),
		Outcome:         domain.CallOutcome(r.Outcome.String),
		DurationSeconds: r.DurationSeconds,
		Cost:            r.Cost,
		Summary:         r.Summary.String,
		Transcript:      r.Transcript.String,
		RecordingURL:    r.RecordingURL.String,
		Message:         r.Message.String,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}

	if r.ProviderCallID.Valid {
		id := r.ProviderCallID.String
		call.ProviderCallID = &id
	}
	if r.ScheduledAt.Valid {
		t := r.ScheduledAt.Time
		call.ScheduledAt = &t
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		call.StartedAt = &t
	}
	if len(r.StructuredData) > 0 {
		if err := json.Unmarshal(r.StructuredData, &call.StructuredData); err != nil {
			return nil, fmt.Errorf("call repo: decode structured data: %w", err)
		}
	}

	return &call, nil
}
