package call

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acme/campaign-dialer/internal/domain"
)

func TestMapProviderStatus(t *testing.T) {
	cases := []struct {
		in         string
		want       domain.CallStatus
		recognized bool
	}{
		{"queued", domain.CallStatusCalling, true},
		{"ringing", domain.CallStatusCalling, true},
		{"in-progress", domain.CallStatusInProgress, true},
		{"ended", domain.CallStatusCompleted, true},
		{"failed", domain.CallStatusFailed, true},
		{"", "", false},
		{"forwarding", "", false},
	}

	for _, tc := range cases {
		got, recognized := MapProviderStatus(tc.in)
		require.Equal(t, tc.recognized, recognized, "status %q", tc.in)
		require.Equal(t, tc.want, got, "status %q", tc.in)
	}
}

func TestDeriveOutcomeStructuredWins(t *testing.T) {
	got := DeriveOutcome("voicemail", "customer-did-not-answer")
	require.Equal(t, domain.OutcomeVoicemail, got)
}

func TestDeriveOutcomeEndedReasonFallback(t *testing.T) {
	require.Equal(t, domain.OutcomeNoAnswer, DeriveOutcome("", "customer-did-not-answer"))
	require.Equal(t, domain.OutcomeBusy, DeriveOutcome("", "line-busy"))
	require.Equal(t, domain.OutcomeFailed, DeriveOutcome("", "assistant-error"))
}

func TestDeriveOutcomeDefaultsToSuccess(t *testing.T) {
	require.Equal(t, domain.OutcomeSuccess, DeriveOutcome("", ""))
	require.Equal(t, domain.OutcomeSuccess, DeriveOutcome("", "customer-ended-call"))
}

func TestDeriveOutcomeUnrecognizedStructuredFallsThrough(t *testing.T) {
	require.Equal(t, domain.OutcomeBusy, DeriveOutcome("gibberish", "busy"))
}
