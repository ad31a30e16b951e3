package domain

import (
	"time"

	"github.com/google/uuid"
)

// Frequency controls how often a campaign re-calls the same contact.
type Frequency string

const (
	FrequencyNone   Frequency = ""
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// Campaign models an outbound calling effort.
type Campaign struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Active         bool
	DeletedAt      *time.Time

	// Provider references used when placing calls.
	AssistantID   string
	PhoneNumberID string

	// ScheduleDays restricts calling to the listed weekdays (0=Sunday).
	// Empty means unrestricted.
	ScheduleDays []int
	// StartTime/EndTime bound calling hours as local "HH:MM" strings in
	// TimeZone. Empty means unbounded on that side.
	StartTime string
	EndTime   string
	TimeZone  string

	Frequency  Frequency
	RetryLimit int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Evaluable reports whether the campaign may be picked up by a scheduling tick.
func (c *Campaign) Evaluable() bool {
	return c.Active && c.DeletedAt == nil
}

// EffectiveRetryLimit falls back to one attempt when no ceiling is configured.
func (c *Campaign) EffectiveRetryLimit() int {
	if c.RetryLimit <= 0 {
		return 1
	}
	return c.RetryLimit
}
