package telephony

import "context"

// Provider statuses reported on webhooks and status queries.
const (
	ProviderStatusQueued     = "queued"
	ProviderStatusRinging    = "ringing"
	ProviderStatusInProgress = "in-progress"
	ProviderStatusEnded      = "ended"
	ProviderStatusFailed     = "failed"
)

// CreateCallRequest shapes an outbound call-creation request. The request is
// scoped by the organization's API key alone; no tenant identifier is ever
// placed in the body.
type CreateCallRequest struct {
	AssistantID    string
	PhoneNumberID  string
	CustomerNumber string
	// Variables are templated into the assistant prompt (name, address,
	// canonical phone).
	Variables map[string]string
}

// CallInfo is the provider's view of a call, returned by status queries and
// carried by webhook notifications. Zero values mean "not reported" so
// consumers can merge partially populated payloads.
type CallInfo struct {
	ID           string
	Status       string
	EndedReason  string
	RecordingURL string
	// DurationSeconds and Cost are only present on terminal reports.
	DurationSeconds int
	Cost            float64
	Summary         string
	Transcript      string
	StructuredData  map[string]any
	// Outcome is the structured classification from the provider's analysis
	// payload, when present. It takes precedence over EndedReason.
	Outcome string
}

// Provider abstracts the external call provider API surface the dialer
// depends on.
type Provider interface {
	// CreateCall places a call and returns the provider-assigned call id.
	CreateCall(ctx context.Context, apiKey string, req CreateCallRequest) (string, error)
	// GetCall fetches the current provider state for a call.
	GetCall(ctx context.Context, apiKey, providerCallID string) (*CallInfo, error)
}
