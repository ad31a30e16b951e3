package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/acme/campaign-dialer/internal/config"
	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository/memory"
	callsvc "github.com/acme/campaign-dialer/internal/service/call"
	"github.com/acme/campaign-dialer/internal/telephony"
	"github.com/acme/campaign-dialer/internal/telephony/mock"
	"github.com/acme/campaign-dialer/pkg/logger"
)

func testOrg() *domain.Organization {
	return &domain.Organization{ID: uuid.New(), ProviderAPIKey: "key"}
}

func testCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:            uuid.New(),
		AssistantID:   "asst-1",
		PhoneNumberID: "pn-1",
	}
}

func scheduledRow(store *memory.CallStore, campaignID uuid.UUID, phone string) *domain.Call {
	id := campaignID
	now := time.Now().UTC()
	return store.Add(&domain.Call{
		OrganizationID: uuid.New(),
		CampaignID:     &id,
		CustomerName:   "Jane Doe",
		CustomerPhone:  phone,
		Status:         domain.CallStatusScheduled,
		ScheduledAt:    &now,
		CreatedAt:      now,
	})
}

func newTestDispatcher(store *memory.CallStore, provider telephony.Provider, cfg config.DispatchConfig) *Dispatcher {
	lifecycle := callsvc.NewService(store, nil, nil, logger.Nop())
	return NewDispatcher(store, lifecycle, provider, nil, logger.Nop(), cfg)
}

func TestDispatchPlacesCalls(t *testing.T) {
	store := memory.NewCallStore()
	provider := mock.NewProvider()
	campaign := testCampaign()
	row := scheduledRow(store, campaign.ID, "(555) 123-4567")

	d := newTestDispatcher(store, provider, config.DispatchConfig{MaxConcurrentCalls: 10})
	d.Dispatch(context.Background(), testOrg(), campaign, []*domain.Call{row})

	require.Equal(t, domain.CallStatusCalling, row.Status)
	require.NotNil(t, row.ProviderCallID)
	require.NotNil(t, row.StartedAt)

	created := provider.Created()
	require.Len(t, created, 1)
	require.Equal(t, "asst-1", created[0].AssistantID)
	require.Equal(t, "pn-1", created[0].PhoneNumberID)
	require.Equal(t, "+15551234567", created[0].CustomerNumber)
	require.Equal(t, "Jane Doe", created[0].Variables["name"])
	require.Equal(t, "+15551234567", created[0].Variables["phone"])
}

func TestDispatchMarksPlacementFailure(t *testing.T) {
	store := memory.NewCallStore()
	provider := mock.NewProvider()
	provider.CreateErr = errors.New("provider rejected the call")
	campaign := testCampaign()
	row := scheduledRow(store, campaign.ID, "+15551234567")

	d := newTestDispatcher(store, provider, config.DispatchConfig{MaxConcurrentCalls: 10})
	d.Dispatch(context.Background(), testOrg(), campaign, []*domain.Call{row})

	// The row must never stay in scheduled after a placement attempt.
	require.Equal(t, domain.CallStatusFailed, row.Status)
	require.Equal(t, domain.OutcomeFailed, row.Outcome)
	require.Contains(t, row.Message, "rejected")
}

func TestDispatchHonorsCeiling(t *testing.T) {
	store := memory.NewCallStore()
	provider := mock.NewProvider()
	campaign := testCampaign()

	// One call already occupies the single slot.
	occupied := scheduledRow(store, campaign.ID, "+15550000001")
	occupied.Status = domain.CallStatusCalling

	row := scheduledRow(store, campaign.ID, "+15550000002")

	d := newTestDispatcher(store, provider, config.DispatchConfig{
		MaxConcurrentCalls:   1,
		CapacityPollInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	d.Dispatch(ctx, testOrg(), campaign, []*domain.Call{row})

	// The capacity wait aborted; the row stays scheduled for the next tick.
	require.Equal(t, domain.CallStatusScheduled, row.Status)
	require.Empty(t, provider.Created())
}

func TestDispatchWaitsForFreedCapacity(t *testing.T) {
	store := memory.NewCallStore()
	provider := mock.NewProvider()
	campaign := testCampaign()

	occupied := scheduledRow(store, campaign.ID, "+15550000001")
	occupied.Status = domain.CallStatusCalling

	row := scheduledRow(store, campaign.ID, "+15550000002")

	d := newTestDispatcher(store, provider, config.DispatchConfig{
		MaxConcurrentCalls:   1,
		CapacityPollInterval: 5 * time.Millisecond,
	})

	// Free the slot while the dispatcher is polling.
	go func() {
		time.Sleep(15 * time.Millisecond)
		store.SetStatus(occupied.ID, domain.CallStatusCompleted)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Dispatch(ctx, testOrg(), campaign, []*domain.Call{row})

	require.Equal(t, domain.CallStatusCalling, row.Status)
	require.Len(t, provider.Created(), 1)
}

func TestDispatchEmptyRows(t *testing.T) {
	store := memory.NewCallStore()
	provider := mock.NewProvider()

	d := newTestDispatcher(store, provider, config.DispatchConfig{})
	d.Dispatch(context.Background(), testOrg(), testCampaign(), nil)

	require.Empty(t, provider.Created())
}
