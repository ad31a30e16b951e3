package telephony

import "testing"

func TestParseEventFlatPayload(t *testing.T) {
	body := []byte(`{"callId":"abc-123","status":"in-progress"}`)

	event, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if event.CallID != "abc-123" {
		t.Fatalf("CallID = %q, want abc-123", event.CallID)
	}
	if event.Terminal {
		t.Fatalf("status update should not be terminal")
	}
	if event.Info.Status != "in-progress" {
		t.Fatalf("Status = %q, want in-progress", event.Info.Status)
	}
}

func TestParseEventMessageEnvelopeWins(t *testing.T) {
	body := []byte(`{
		"callId": "outer",
		"status": "queued",
		"message": {
			"type": "end-of-call-report",
			"call": {"id": "inner"},
			"endedReason": "customer-ended-call",
			"durationSeconds": 42.9,
			"cost": 0.25,
			"transcript": "hello",
			"analysis": {"summary": "ok", "structuredData": {"call_outcome": "voicemail"}}
		}
	}`)

	event, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if event.CallID != "inner" {
		t.Fatalf("CallID = %q, want inner (envelope wins)", event.CallID)
	}
	if !event.Terminal {
		t.Fatalf("end-of-call-report should be terminal")
	}
	if event.Info.Status != ProviderStatusEnded {
		t.Fatalf("terminal report without status should default to ended, got %q", event.Info.Status)
	}
	if event.Info.DurationSeconds != 42 {
		t.Fatalf("DurationSeconds = %d, want 42", event.Info.DurationSeconds)
	}
	if event.Info.Summary != "ok" {
		t.Fatalf("Summary = %q, want analysis fallback", event.Info.Summary)
	}
	if event.Info.Outcome != "voicemail" {
		t.Fatalf("Outcome = %q, want voicemail", event.Info.Outcome)
	}
}

func TestParseEventCallIDPrecedence(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"callId first", `{"callId":"a","call_id":"b","id":"c","call":{"id":"d"}}`, "a"},
		{"call_id second", `{"call_id":"b","id":"c","call":{"id":"d"}}`, "b"},
		{"id third", `{"id":"c","call":{"id":"d"}}`, "c"},
		{"call.id last", `{"call":{"id":"d"}}`, "d"},
		{"absent", `{"status":"ringing"}`, ""},
	}

	for _, tc := range cases {
		event, err := ParseEvent([]byte(tc.body))
		if err != nil {
			t.Fatalf("%s: ParseEvent: %v", tc.name, err)
		}
		if event.CallID != tc.want {
			t.Errorf("%s: CallID = %q, want %q", tc.name, event.CallID, tc.want)
		}
	}
}

func TestParseEventInvalidJSON(t *testing.T) {
	if _, err := ParseEvent([]byte(`{not json`)); err == nil {
		t.Fatalf("expected error on malformed body")
	}
}

func TestParseEventOutcomeKeyFallback(t *testing.T) {
	body := []byte(`{
		"callId": "x",
		"type": "end-of-call-report",
		"analysis": {"structuredData": {"outcome": "busy"}}
	}`)

	event, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if event.Info.Outcome != "busy" {
		t.Fatalf("Outcome = %q, want busy via fallback key", event.Info.Outcome)
	}
}
