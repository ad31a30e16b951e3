package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository"
)

// ContactRepository implements repository.ContactRepository using PostgreSQL.
type ContactRepository struct {
	db *sqlx.DB
}

// NewContactRepository constructs a new repository.
func NewContactRepository(db *sqlx.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `id, organization_id, first_name, last_name, phone,
	address, email, lead_source, campaign_id, created_at, updated_at`

// Get fetches a contact by id.
func (r *ContactRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	q := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, q, id)
	var record contactRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("contact repo: get: %w", err)
	}

	contact := record.toDomain()
	return &contact, nil
}

// Create inserts a new contact.
func (r *ContactRepository) Create(ctx context.Context, contact *domain.Contact) error {
	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}
	now := time.Now().UTC()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	contact.UpdatedAt = now

	q := `INSERT INTO contacts (
		id, organization_id, first_name, last_name, phone,
		address, email, lead_source, campaign_id, created_at, updated_at
	) VALUES (
		:id, :organization_id, :first_name, :last_name, :phone,
		:address, :email, :lead_source, :campaign_id, :created_at, :updated_at
	)`

	params := map[string]any{
		"id":              contact.ID,
		"organization_id": contact.OrganizationID,
		"first_name":      contact.FirstName,
		"last_name":       contact.LastName,
		"phone":           contact.Phone,
		"address":         contact.Address,
		"email":           contact.Email,
		"lead_source":     contact.LeadSource,
		"campaign_id":     contact.CampaignID,
		"created_at":      contact.CreatedAt,
		"updated_at":      contact.UpdatedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("contact repo: insert: %w", err)
	}

	return nil
}

// GetByPhone resolves a contact by its normalized phone within an organization.
func (r *ContactRepository) GetByPhone(ctx context.Context, orgID uuid.UUID, phone string) (*domain.Contact, error) {
	q := `SELECT ` + contactColumns + `
	  FROM contacts WHERE organization_id = $1 AND phone = $2
	 ORDER BY created_at ASC LIMIT 1`

	row := r.db.QueryRowxContext(ctx, q, orgID, phone)
	var record contactRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("contact repo: get by phone: %w", err)
	}

	contact := record.toDomain()
	return &contact, nil
}

// ListByCampaign enumerates contacts associated with the campaign, oldest first.
func (r *ContactRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]*domain.Contact, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT `+contactColumns+`
		FROM contacts WHERE campaign_id = $1
		ORDER BY created_at ASC LIMIT $2`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("contact repo: list by campaign: %w", err)
	}
	defer rows.Close()

	var results []*domain.Contact
	for rows.Next() {
		var record contactRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("contact repo: scan: %w", err)
		}
		contact := record.toDomain()
		results = append(results, &contact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contact repo: rows err: %w", err)
	}

	return results, nil
}

type contactRecord struct {
	ID             uuid.UUID      `db:"id"`
	OrganizationID uuid.UUID      `db:"organization_id"`
	FirstName      sql.NullString `db:"first_name"`
	LastName       sql.NullString `db:"last_name"`
	Phone          string         `db:"phone"`
	Address        sql.NullString `db:"address"`
	Email          sql.NullString `db:"email"`
	LeadSource     sql.NullString `db:"lead_source"`
	CampaignID     *uuid.UUID     `db:"campaign_id"`
	CreatedAt      sql.NullTime   `db:"created_at"`
	UpdatedAt      sql.NullTime   `db:"updated_at"`
}

func (r contactRecord) toDomain() domain.Contact {
	return domain.Contact{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		FirstName:      r.FirstName.String,
		LastName:       r.LastName.String,
		Phone:          r.Phone,
		Address:        r.Address.String,
		Email:          r.Email.String,
		LeadSource:     r.LeadSource.String,
		CampaignID:     r.CampaignID,
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
	}
}
