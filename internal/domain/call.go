package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus enumerates lifecycle stages for an individual call.
//
// scheduled -> calling -> in_progress -> completed
// with failed and cancelled as alternate terminal states.
type CallStatus string

const (
	CallStatusScheduled  CallStatus = "scheduled"
	CallStatusCalling    CallStatus = "calling"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusCancelled  CallStatus = "cancelled"
)

// Terminal reports whether the status never transitions further.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusCancelled:
		return true
	}
	return false
}

// InFlight reports whether the call currently occupies provider capacity.
func (s CallStatus) InFlight() bool {
	return s == CallStatusCalling || s == CallStatusInProgress
}

// InFlightStatuses lists the statuses counted against the dispatch ceiling.
var InFlightStatuses = []CallStatus{CallStatusCalling, CallStatusInProgress}

// AttemptStatuses lists the statuses counted against a retry ceiling.
var AttemptStatuses = []CallStatus{CallStatusCompleted, CallStatusCalling, CallStatusInProgress}

// CallOutcome classifies how a finished call ended.
type CallOutcome string

const (
	OutcomeUnknown   CallOutcome = ""
	OutcomeSuccess   CallOutcome = "success"
	OutcomeVoicemail CallOutcome = "voicemail"
	OutcomeNoAnswer  CallOutcome = "no_answer"
	OutcomeBusy      CallOutcome = "busy"
	OutcomeFailed    CallOutcome = "failed"
)

// Call represents one concrete call attempt.
//
// Contact details are denormalized so the record stays meaningful if the
// contact is later edited or deleted.
type Call struct {
	ID             int64
	OrganizationID uuid.UUID
	CampaignID     *uuid.UUID
	ContactID      *uuid.UUID

	CustomerName    string
	CustomerPhone   string
	CustomerAddress string

	// ProviderCallID is assigned by the call provider once dispatch succeeds.
	ProviderCallID *string

	Status  CallStatus
	Outcome CallOutcome

	ScheduledAt *time.Time
	StartedAt   *time.Time

	DurationSeconds int
	Cost            float64

	Summary        string
	Transcript     string
	StructuredData map[string]any
	RecordingURL   string
	Message        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AttemptTime is the instant eligibility windows are measured against:
// the dispatch timestamp when present, else the row creation time.
func (c *Call) AttemptTime() time.Time {
	if c.StartedAt != nil {
		return *c.StartedAt
	}
	return c.CreatedAt
}
