package domain

import (
	"time"

	"github.com/google/uuid"
)

// Organization owns campaigns, contacts and calls, and holds the call
// provider credentials scoping outbound requests.
type Organization struct {
	ID             uuid.UUID
	Name           string
	ProviderAPIKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Configured reports whether the organization can place provider calls.
func (o *Organization) Configured() bool {
	return o.ProviderAPIKey != ""
}

// Contact is a reusable lead record. Phone is the canonical dedup key
// within an organization.
type Contact struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	FirstName      string
	LastName       string
	Phone          string
	Address        string
	Email          string
	LeadSource     string
	CampaignID     *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FullName joins the name parts for provider templating.
func (c *Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}
