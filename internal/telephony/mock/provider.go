// Package mock provides a scriptable in-memory call provider for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/campaign-dialer/internal/telephony"
)

// Provider is a fake telephony.Provider. CreateCall hands out sequential ids
// unless CreateErr is set; GetCall serves whatever state was scripted via
// SetCall.
type Provider struct {
	mu sync.Mutex

	CreateErr error
	next      int
	created   []telephony.CreateCallRequest
	calls     map[string]telephony.CallInfo
}

// NewProvider constructs an empty fake.
func NewProvider() *Provider {
	return &Provider{calls: make(map[string]telephony.CallInfo)}
}

// CreateCall records the request and returns a deterministic id.
func (p *Provider) CreateCall(_ context.Context, _ string, req telephony.CreateCallRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.CreateErr != nil {
		return "", p.CreateErr
	}

	p.next++
	id := fmt.Sprintf("call-%d", p.next)
	p.created = append(p.created, req)
	p.calls[id] = telephony.CallInfo{ID: id, Status: telephony.ProviderStatusQueued}
	return id, nil
}

// GetCall returns the scripted state for the id.
func (p *Provider) GetCall(_ context.Context, _ string, providerCallID string) (*telephony.CallInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, ok := p.calls[providerCallID]
	if !ok {
		return nil, fmt.Errorf("mock provider: unknown call %s", providerCallID)
	}
	return &info, nil
}

// SetCall scripts the state GetCall will serve for the id.
func (p *Provider) SetCall(id string, info telephony.CallInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info.ID = id
	p.calls[id] = info
}

// Created returns a copy of all create requests seen so far.
func (p *Provider) Created() []telephony.CreateCallRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]telephony.CreateCallRequest, len(p.created))
	copy(out, p.created)
	return out
}
