// Package bridge implements the call provider client over its HTTP API.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/acme/campaign-dialer/internal/config"
	"github.com/acme/campaign-dialer/internal/telephony"
)

// Client talks to the external call provider. Requests are authorized by the
// organization API key passed per call; nothing else scopes them.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a provider client from configuration.
func NewClient(cfg config.ProviderConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		},
	}
}

type createCallBody struct {
	AssistantID   string `json:"assistantId"`
	PhoneNumberID string `json:"phoneNumberId"`
	Customer      struct {
		Number string `json:"number"`
	} `json:"customer"`
	AssistantOverrides *assistantOverrides `json:"assistantOverrides,omitempty"`
}

type assistantOverrides struct {
	VariableValues map[string]string `json:"variableValues"`
}

type createCallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateCall places a call and returns the provider-assigned id.
func (c *Client) CreateCall(ctx context.Context, apiKey string, req telephony.CreateCallRequest) (string, error) {
	body := createCallBody{
		AssistantID:   req.AssistantID,
		PhoneNumberID: req.PhoneNumberID,
	}
	body.Customer.Number = req.CustomerNumber
	if len(req.Variables) > 0 {
		body.AssistantOverrides = &assistantOverrides{VariableValues: req.Variables}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("bridge: marshal create call: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("bridge: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("bridge: create call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("bridge: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("bridge: create call rejected (%d): %s", resp.StatusCode, truncate(data, 512))
	}

	var created createCallResponse
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("bridge: decode create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("bridge: create response missing call id")
	}
	return created.ID, nil
}

// GetCall fetches the provider's current view of a call. The response body is
// the same shape webhooks carry, so it runs through the shared event parser.
func (c *Client) GetCall(ctx context.Context, apiKey, providerCallID string) (*telephony.CallInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/call/"+providerCallID, nil)
	if err != nil {
		return nil, fmt.Errorf("bridge: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bridge: get call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("bridge: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("bridge: get call failed (%d): %s", resp.StatusCode, truncate(data, 512))
	}

	event, err := telephony.ParseEvent(data)
	if err != nil {
		return nil, err
	}
	info := event.Info
	if info.ID == "" {
		info.ID = providerCallID
	}
	return &info, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
