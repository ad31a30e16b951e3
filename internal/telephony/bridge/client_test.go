package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/acme/campaign-dialer/internal/config"
	"github.com/acme/campaign-dialer/internal/telephony"
)

func TestCreateCall(t *testing.T) {
	var gotAuth, gotContentType, gotPath string
	var gotBody createCallBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "call-abc", "status": "queued"}`))
	}))
	defer srv.Close()

	client := NewClient(config.ProviderConfig{BaseURL: srv.URL})
	id, err := client.CreateCall(context.Background(), "secret-key", telephony.CreateCallRequest{
		AssistantID:    "asst-1",
		PhoneNumberID:  "pn-1",
		CustomerNumber: "+15551234567",
		Variables:      map[string]string{"name": "Jane Doe"},
	})
	if err != nil {
		t.Fatalf("CreateCall failed: %v", err)
	}

	if id != "call-abc" {
		t.Fatalf("call id = %q, want call-abc", id)
	}
	if gotAuth != "Bearer secret-key" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type = %q", gotContentType)
	}
	if gotPath != "/call" {
		t.Fatalf("path = %q, want /call", gotPath)
	}
	if gotBody.AssistantID != "asst-1" || gotBody.PhoneNumberID != "pn-1" {
		t.Fatalf("provider refs = %q/%q", gotBody.AssistantID, gotBody.PhoneNumberID)
	}
	if gotBody.Customer.Number != "+15551234567" {
		t.Fatalf("customer number = %q", gotBody.Customer.Number)
	}
	if gotBody.AssistantOverrides == nil || gotBody.AssistantOverrides.VariableValues["name"] != "Jane Doe" {
		t.Fatalf("variable values not forwarded: %+v", gotBody.AssistantOverrides)
	}
}

func TestCreateCallRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	client := NewClient(config.ProviderConfig{BaseURL: srv.URL})
	_, err := client.CreateCall(context.Background(), "key", telephony.CreateCallRequest{})
	if err == nil {
		t.Fatalf("expected an error on a 422 response")
	}
	if !strings.Contains(err.Error(), "422") {
		t.Fatalf("error should carry the status code: %v", err)
	}
	// Long error bodies are truncated, not echoed whole.
	if !strings.Contains(err.Error(), "...") || len(err.Error()) > 700 {
		t.Fatalf("error body not truncated: %d bytes", len(err.Error()))
	}
}

func TestCreateCallMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "queued"}`))
	}))
	defer srv.Close()

	client := NewClient(config.ProviderConfig{BaseURL: srv.URL})
	if _, err := client.CreateCall(context.Background(), "key", telephony.CreateCallRequest{}); err == nil {
		t.Fatalf("expected an error when the response has no call id")
	}
}

func TestGetCall(t *testing.T) {
	var gotAuth, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"type": "end-of-call-report",
			"endedReason": "customer-ended-call",
			"summary": "spoke with the customer",
			"durationSeconds": 42.9
		}`))
	}))
	defer srv.Close()

	client := NewClient(config.ProviderConfig{BaseURL: srv.URL})
	info, err := client.GetCall(context.Background(), "secret-key", "prov-1")
	if err != nil {
		t.Fatalf("GetCall failed: %v", err)
	}

	if gotAuth != "Bearer secret-key" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotPath != "/call/prov-1" {
		t.Fatalf("path = %q, want /call/prov-1", gotPath)
	}

	// The body runs through the shared webhook parser.
	if info.Status != telephony.ProviderStatusEnded {
		t.Fatalf("status = %q, want ended", info.Status)
	}
	if info.Summary != "spoke with the customer" || info.DurationSeconds != 42 {
		t.Fatalf("report fields not parsed: %+v", info)
	}
	// A payload without an id keeps the queried identifier.
	if info.ID != "prov-1" {
		t.Fatalf("id = %q, want prov-1", info.ID)
	}
}

func TestGetCallFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such call", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(config.ProviderConfig{BaseURL: srv.URL})
	_, err := client.GetCall(context.Background(), "key", "prov-missing")
	if err == nil {
		t.Fatalf("expected an error on a 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("error should carry the status code: %v", err)
	}
}
