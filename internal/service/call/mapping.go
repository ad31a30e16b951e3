package call

import (
	"strings"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/telephony"
)

// MapProviderStatus translates a provider status into the call state machine.
// The second return is false for unrecognized or missing values, in which
// case the stored status must be left unchanged.
func MapProviderStatus(status string) (domain.CallStatus, bool) {
	switch status {
	case telephony.ProviderStatusQueued, telephony.ProviderStatusRinging:
		return domain.CallStatusCalling, true
	case telephony.ProviderStatusInProgress:
		return domain.CallStatusInProgress, true
	case telephony.ProviderStatusEnded:
		return domain.CallStatusCompleted, true
	case telephony.ProviderStatusFailed:
		return domain.CallStatusFailed, true
	default:
		return "", false
	}
}

// DeriveOutcome classifies how an ended call finished. A structured outcome
// from the provider's analysis payload wins over the ended-reason string.
func DeriveOutcome(structured, endedReason string) domain.CallOutcome {
	if structured != "" {
		if outcome := classifyOutcome(structured); outcome != domain.OutcomeUnknown {
			return outcome
		}
	}
	if outcome := classifyOutcome(endedReason); outcome != domain.OutcomeUnknown {
		return outcome
	}
	// An ended call with no recognizable reason counts as reached.
	return domain.OutcomeSuccess
}

func classifyOutcome(raw string) domain.CallOutcome {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return domain.OutcomeUnknown
	case strings.Contains(s, "voicemail"):
		return domain.OutcomeVoicemail
	case strings.Contains(s, "no-answer"), strings.Contains(s, "no_answer"),
		strings.Contains(s, "did-not-answer"):
		return domain.OutcomeNoAnswer
	case strings.Contains(s, "busy"):
		return domain.OutcomeBusy
	case strings.Contains(s, "fail"), strings.Contains(s, "error"):
		return domain.OutcomeFailed
	case strings.Contains(s, "success"):
		return domain.OutcomeSuccess
	default:
		return domain.OutcomeUnknown
	}
}
