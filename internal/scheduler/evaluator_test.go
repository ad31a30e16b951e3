package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/acme/campaign-dialer/internal/config"
	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository/memory"
	callsvc "github.com/acme/campaign-dialer/internal/service/call"
	"github.com/acme/campaign-dialer/internal/service/eligibility"
	"github.com/acme/campaign-dialer/pkg/logger"
)

// Wednesday, inside a 09:00-17:00 UTC window.
var tickNow = time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched map[uuid.UUID][]*domain.Call
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{dispatched: make(map[uuid.UUID][]*domain.Call)}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ *domain.Organization, campaign *domain.Campaign, rows []*domain.Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched[campaign.ID] = append(f.dispatched[campaign.ID], rows...)
}

func (f *fakeDispatcher) rows(campaignID uuid.UUID) []*domain.Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dispatched[campaignID]
}

type fakeReconciler struct {
	mu   sync.Mutex
	runs int
}

func (f *fakeReconciler) Run(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
}

type fixture struct {
	campaigns  *memory.CampaignStore
	orgs       *memory.OrganizationStore
	contacts   *memory.ContactStore
	calls      *memory.CallStore
	dispatcher *fakeDispatcher
	reconciler *fakeReconciler
	evaluator  *Evaluator
}

func newFixture() *fixture {
	f := &fixture{
		campaigns:  memory.NewCampaignStore(),
		orgs:       memory.NewOrganizationStore(),
		contacts:   memory.NewContactStore(),
		calls:      memory.NewCallStore(),
		dispatcher: newFakeDispatcher(),
		reconciler: &fakeReconciler{},
	}

	resolver := eligibility.NewResolver(f.calls).WithClock(func() time.Time { return tickNow })
	lifecycle := callsvc.NewService(f.calls, nil, nil, logger.Nop())

	f.evaluator = NewEvaluator(
		f.campaigns, f.orgs, f.contacts, f.calls,
		resolver, lifecycle, f.dispatcher, f.reconciler,
		logger.Nop(),
		config.SchedulerConfig{
			DueGraceWindow:          time.Hour,
			RecurringQueueThreshold: 20,
			RecurringContactLimit:   50,
		},
	).WithClock(func() time.Time { return tickNow })

	return f
}

func (f *fixture) addOrg(apiKey string) *domain.Organization {
	return f.orgs.Add(&domain.Organization{ProviderAPIKey: apiKey})
}

func (f *fixture) addCampaign(orgID uuid.UUID, frequency domain.Frequency) *domain.Campaign {
	return f.campaigns.Add(&domain.Campaign{
		OrganizationID: orgID,
		Active:         true,
		StartTime:      "09:00",
		EndTime:        "17:00",
		TimeZone:       "UTC",
		Frequency:      frequency,
		RetryLimit:     3,
	})
}

func (f *fixture) addDueCall(campaignID uuid.UUID, phone string) *domain.Call {
	id := campaignID
	due := tickNow.Add(-5 * time.Minute)
	return f.calls.Add(&domain.Call{
		CampaignID:    &id,
		CustomerPhone: phone,
		Status:        domain.CallStatusScheduled,
		ScheduledAt:   &due,
		CreatedAt:     due,
	})
}

func TestTickDispatchesDueCalls(t *testing.T) {
	f := newFixture()
	org := f.addOrg("key")
	campaign := f.addCampaign(org.ID, domain.FrequencyNone)
	row := f.addDueCall(campaign.ID, "+15551234567")

	require.NoError(t, f.evaluator.Tick(context.Background()))

	require.Equal(t, 1, f.reconciler.runs)
	dispatched := f.dispatcher.rows(campaign.ID)
	require.Len(t, dispatched, 1)
	require.Equal(t, row.ID, dispatched[0].ID)
}

func TestTickQueuesOnePlacementPerPhone(t *testing.T) {
	f := newFixture()
	org := f.addOrg("key")
	campaign := f.addCampaign(org.ID, domain.FrequencyNone)

	// Two due rows for the same phone, as left behind by repeated manual
	// triggers whose immediate dispatch aborted.
	first := f.addDueCall(campaign.ID, "+15551234567")
	second := f.addDueCall(campaign.ID, "+15551234567")

	require.NoError(t, f.evaluator.Tick(context.Background()))

	dispatched := f.dispatcher.rows(campaign.ID)
	require.Len(t, dispatched, 1)
	require.Equal(t, first.ID, dispatched[0].ID)

	require.Equal(t, domain.CallStatusCancelled, second.Status)
	require.Contains(t, second.Message, "same pass")
}

func TestTickSkipsUnconfiguredOrganization(t *testing.T) {
	f := newFixture()
	org := f.addOrg("")
	campaign := f.addCampaign(org.ID, domain.FrequencyNone)
	f.addDueCall(campaign.ID, "+15551234567")

	require.NoError(t, f.evaluator.Tick(context.Background()))

	require.Empty(t, f.dispatcher.rows(campaign.ID))
}

func TestTickSkipsWeeklyCampaignOnWrongDay(t *testing.T) {
	f := newFixture()
	org := f.addOrg("key")
	campaign := f.addCampaign(org.ID, domain.FrequencyWeekly)
	campaign.ScheduleDays = []int{1} // Mondays only; tickNow is a Wednesday
	f.addDueCall(campaign.ID, "+15551234567")

	require.NoError(t, f.evaluator.Tick(context.Background()))

	require.Empty(t, f.dispatcher.rows(campaign.ID))
}

func TestTickOutsideWindowSkipsWithoutDueRows(t *testing.T) {
	f := newFixture()
	org := f.addOrg("key")
	campaign := f.addCampaign(org.ID, domain.FrequencyDaily)
	campaign.StartTime = "16:00"
	campaign.EndTime = "17:00"
	campaign.TimeZone = "America/New_York" // 15:00 UTC is 10:00 New York

	contactCampaignID := campaign.ID
	f.contacts.Add(&domain.Contact{
		OrganizationID: org.ID,
		Phone:          "+15551234567",
		CampaignID:     &contactCampaignID,
	})

	require.NoError(t, f.evaluator.Tick(context.Background()))

	// No due rows and outside the window: nothing generated, nothing dispatched.
	require.Empty(t, f.dispatcher.rows(campaign.ID))
	require.Empty(t, f.calls.All())
}

func TestTickOutsideWindowStillDispatchesOverdueRows(t *testing.T) {
	f := newFixture()
	org := f.addOrg("key")
	campaign := f.addCampaign(org.ID, domain.FrequencyNone)
	campaign.StartTime = "16:00"
	campaign.EndTime = "17:00"
	campaign.TimeZone = "America/New_York"
	row := f.addDueCall(campaign.ID, "+15551234567")

	require.NoError(t, f.evaluator.Tick(context.Background()))

	dispatched := f.dispatcher.rows(campaign.ID)
	require.Len(t, dispatched, 1)
	require.Equal(t, row.ID, dispatched[0].ID)
}

func TestTickCancelsIneligibleDueRows(t *testing.T) {
	f := newFixture()
	org := f.addOrg("key")
	campaign := f.addCampaign(org.ID, domain.FrequencyDaily)

	// An earlier completed call today makes the phone ineligible.
	id := campaign.ID
	earlier := tickNow.Add(-2 * time.Hour)
	f.calls.Add(&domain.Call{
		CampaignID:    &id,
		CustomerPhone: "+15551234567",
		Status:        domain.CallStatusCompleted,
		StartedAt:     &earlier,
		CreatedAt:     earlier,
	})

	row := f.addDueCall(campaign.ID, "+15551234567")

	require.NoError(t, f.evaluator.Tick(context.Background()))

	require.Empty(t, f.dispatcher.rows(campaign.ID))
	require.Equal(t, domain.CallStatusCancelled, row.Status)
	require.Contains(t, row.Message, "daily")
}

func TestTickGeneratesRecurringCalls(t *testing.T) {
	f := newFixture()
	org := f.addOrg("key")
	campaign := f.addCampaign(org.ID, domain.FrequencyDaily)

	contactCampaignID := campaign.ID
	contact := f.contacts.Add(&domain.Contact{
		OrganizationID: org.ID,
		FirstName:      "Jane",
		LastName:       "Doe",
		Phone:          "+15551234567",
		CampaignID:     &contactCampaignID,
	})

	require.NoError(t, f.evaluator.Tick(context.Background()))

	dispatched := f.dispatcher.rows(campaign.ID)
	require.Len(t, dispatched, 1)
	require.Equal(t, "+15551234567", dispatched[0].CustomerPhone)
	require.Equal(t, "Jane Doe", dispatched[0].CustomerName)
	require.Equal(t, contact.ID, *dispatched[0].ContactID)
	require.Equal(t, domain.CallStatusScheduled, dispatched[0].Status)
}

func TestTickRecurringDedupsAgainstTodaysRows(t *testing.T) {
	f := newFixture()
	org := f.addOrg("key")
	campaign := f.addCampaign(org.ID, domain.FrequencyDaily)

	contactCampaignID := campaign.ID
	contact := f.contacts.Add(&domain.Contact{
		OrganizationID: org.ID,
		Phone:          "+15551234567",
		CampaignID:     &contactCampaignID,
	})

	// A scheduled row created earlier today, outside the grace window so it
	// is not due, must still suppress regeneration.
	id := campaign.ID
	contactID := contact.ID
	earlier := tickNow.Add(-6 * time.Hour)
	f.calls.Add(&domain.Call{
		CampaignID:    &id,
		ContactID:     &contactID,
		CustomerPhone: "+15551234567",
		Status:        domain.CallStatusScheduled,
		ScheduledAt:   &earlier,
		CreatedAt:     earlier,
	})

	require.NoError(t, f.evaluator.Tick(context.Background()))

	require.Empty(t, f.dispatcher.rows(campaign.ID))
	require.Len(t, f.calls.All(), 1)
}

func TestTickRecurringSkippedWhenQueueDeep(t *testing.T) {
	f := newFixture()
	org := f.addOrg("key")
	campaign := f.addCampaign(org.ID, domain.FrequencyDaily)

	// Shrink the threshold so a single queued row blocks generation.
	f.evaluator.cfg.RecurringQueueThreshold = 1

	f.addDueCall(campaign.ID, "+15550000001")

	contactCampaignID := campaign.ID
	f.contacts.Add(&domain.Contact{
		OrganizationID: org.ID,
		Phone:          "+15551234567",
		CampaignID:     &contactCampaignID,
	})

	require.NoError(t, f.evaluator.Tick(context.Background()))

	dispatched := f.dispatcher.rows(campaign.ID)
	require.Len(t, dispatched, 1)
	require.Equal(t, "+15550000001", dispatched[0].CustomerPhone)
}

func TestTickOneCampaignFailureDoesNotAbortOthers(t *testing.T) {
	f := newFixture()
	org := f.addOrg("key")
	healthy := f.addCampaign(org.ID, domain.FrequencyNone)
	f.addDueCall(healthy.ID, "+15551234567")

	// A campaign pointing at a missing organization fails its evaluation.
	f.campaigns.Add(&domain.Campaign{
		OrganizationID: uuid.New(),
		Active:         true,
		TimeZone:       "UTC",
	})

	require.NoError(t, f.evaluator.Tick(context.Background()))

	require.Len(t, f.dispatcher.rows(healthy.ID), 1)
}
