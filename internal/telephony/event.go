package telephony

import (
	"encoding/json"
	"fmt"
)

// EventTypeEndOfCallReport marks the provider's terminal report envelope.
const EventTypeEndOfCallReport = "end-of-call-report"

// Event is a normalized webhook notification. The provider delivers either a
// flat payload or a nested {"message": {...}} envelope; both collapse here.
type Event struct {
	CallID string
	// Terminal is set when the notification is an end-of-call report.
	Terminal bool
	Info     CallInfo
}

type rawAnalysis struct {
	Summary        string         `json:"summary"`
	StructuredData map[string]any `json:"structuredData"`
}

// rawReport is the superset of fields both payload shapes may carry.
type rawReport struct {
	Type        string `json:"type"`
	CallID      string `json:"callId"`
	CallIDSnake string `json:"call_id"`
	ID          string `json:"id"`
	Call        *struct {
		ID string `json:"id"`
	} `json:"call"`
	Status          string       `json:"status"`
	EndedReason     string       `json:"endedReason"`
	RecordingURL    string       `json:"recordingUrl"`
	DurationSeconds float64      `json:"durationSeconds"`
	Cost            float64      `json:"cost"`
	Summary         string       `json:"summary"`
	Transcript      string       `json:"transcript"`
	Analysis        *rawAnalysis `json:"analysis"`
}

type rawEvent struct {
	rawReport
	Message *rawReport `json:"message"`
}

// ParseEvent decodes a webhook body into a normalized Event. When the nested
// envelope is present its fields win over the flat ones. The call id is taken
// from the first populated key in a fixed order: callId, call_id, id, call.id.
// An absent call id is not an error here; the handler decides how to respond.
func ParseEvent(body []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("telephony: decode event: %w", err)
	}

	report := raw.rawReport
	if raw.Message != nil {
		report = *raw.Message
	}

	event := &Event{
		CallID:   extractCallID(report),
		Terminal: report.Type == EventTypeEndOfCallReport,
		Info: CallInfo{
			Status:          report.Status,
			EndedReason:     report.EndedReason,
			RecordingURL:    report.RecordingURL,
			DurationSeconds: int(report.DurationSeconds),
			Cost:            report.Cost,
			Summary:         report.Summary,
			Transcript:      report.Transcript,
		},
	}
	event.Info.ID = event.CallID

	if report.Analysis != nil {
		if event.Info.Summary == "" {
			event.Info.Summary = report.Analysis.Summary
		}
		event.Info.StructuredData = report.Analysis.StructuredData
		event.Info.Outcome = extractOutcome(report.Analysis.StructuredData)
	}

	// An end-of-call report without an explicit status is still terminal.
	if event.Terminal && event.Info.Status == "" {
		event.Info.Status = ProviderStatusEnded
	}

	return event, nil
}

func extractCallID(r rawReport) string {
	if r.CallID != "" {
		return r.CallID
	}
	if r.CallIDSnake != "" {
		return r.CallIDSnake
	}
	if r.ID != "" {
		return r.ID
	}
	if r.Call != nil {
		return r.Call.ID
	}
	return ""
}

// extractOutcome pulls the structured outcome classification from the
// analysis payload, checking call_outcome before outcome.
func extractOutcome(structured map[string]any) string {
	for _, key := range []string{"call_outcome", "outcome"} {
		if v, ok := structured[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
