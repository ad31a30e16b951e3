package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository"
)

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, organization_id, name, active, deleted_at,
	assistant_id, phone_number_id, schedule_days, start_time, end_time,
	time_zone, frequency, retry_limit, created_at, updated_at`

// Get fetches a campaign by id. Soft-deleted campaigns are still returned
// so historical calls keep resolving their parent.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, q, id)
	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	campaign, err := record.toDomain()
	if err != nil {
		return nil, fmt.Errorf("campaign repo: decode: %w", err)
	}
	return campaign, nil
}

// ListEvaluable returns campaigns the scheduler should consider.
func (r *CampaignRepository) ListEvaluable(ctx context.Context) ([]*domain.Campaign, error) {
	q := `SELECT ` + campaignColumns + `
	  FROM campaigns
	 WHERE active = TRUE AND deleted_at IS NULL
	 ORDER BY created_at ASC`

	rows, err := r.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list evaluable: %w", err)
	}
	defer rows.Close()

	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign, err := record.toDomain()
		if err != nil {
			return nil, fmt.Errorf("campaign repo: decode: %w", err)
		}
		results = append(results, campaign)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}

	return results, nil
}

// SetActive toggles the campaign's active flag.
func (r *CampaignRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE campaigns SET active = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`,
		active, id)
	if err != nil {
		return fmt.Errorf("campaign repo: set active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type campaignRecord struct {
	ID             uuid.UUID      `db:"id"`
	OrganizationID uuid.UUID      `db:"organization_id"`
	Name           string         `db:"name"`
	Active         bool           `db:"active"`
	DeletedAt      sql.NullTime   `db:"deleted_at"`
	AssistantID    sql.NullString `db:"assistant_id"`
	PhoneNumberID  sql.NullString `db:"phone_number_id"`
	ScheduleDays   []byte         `db:"schedule_days"`
	StartTime      sql.NullString `db:"start_time"`
	EndTime        sql.NullString `db:"end_time"`
	TimeZone       sql.NullString `db:"time_zone"`
	Frequency      sql.NullString `db:"frequency"`
	RetryLimit     int            `db:"retry_limit"`
	CreatedAt      sql.NullTime   `db:"created_at"`
	UpdatedAt      sql.NullTime   `db:"updated_at"`
}

func (r campaignRecord) toDomain() (*domain.Campaign, error) {
	campaign := domain.Campaign{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Name:           r.Name,
		Active:         r.Active,
		AssistantID:    r.AssistantID.String,
		PhoneNumberID:  r.PhoneNumberID.String,
		StartTime:      r.StartTime.String,
		EndTime:        r.EndTime.String,
		TimeZone:       r.TimeZone.String,
		Frequency:      domain.Frequency(r.Frequency.String),
		RetryLimit:     r.RetryLimit,
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
	}

	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time
		campaign.DeletedAt = &t
	}
	if len(r.ScheduleDays) > 0 {
		if err := json.Unmarshal(r.ScheduleDays, &campaign.ScheduleDays); err != nil {
			return nil, fmt.Errorf("schedule_days: %w", err)
		}
	}

	return &campaign, nil
}
