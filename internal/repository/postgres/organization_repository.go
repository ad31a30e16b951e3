package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository"
)

// OrganizationRepository implements repository.OrganizationRepository using PostgreSQL.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository constructs a new repository.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Get fetches an organization by id.
func (r *OrganizationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	q := `SELECT id, name, provider_api_key, created_at, updated_at
	  FROM organizations WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, q, id)
	var record organizationRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("organization repo: get: %w", err)
	}

	org := record.toDomain()
	return &org, nil
}

type organizationRecord struct {
	ID             uuid.UUID      `db:"id"`
	Name           string         `db:"name"`
	ProviderAPIKey sql.NullString `db:"provider_api_key"`
	CreatedAt      sql.NullTime   `db:"created_at"`
	UpdatedAt      sql.NullTime   `db:"updated_at"`
}

func (r organizationRecord) toDomain() domain.Organization {
	return domain.Organization{
		ID:             r.ID,
		Name:           r.Name,
		ProviderAPIKey: r.ProviderAPIKey.String,
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
	}
}
