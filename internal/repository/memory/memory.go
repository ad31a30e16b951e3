// Package memory provides in-process implementations of the repository
// interfaces, used by the service and scheduler tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository"
)

// CallStore keeps calls in a slice guarded by a mutex.
type CallStore struct {
	mu    sync.Mutex
	seq   int64
	calls []*domain.Call

	// FailWith, when set, makes every method return this error.
	FailWith error
}

// NewCallStore creates an empty store.
func NewCallStore() *CallStore {
	return &CallStore{}
}

// Add seeds a call, assigning an id when absent.
func (s *CallStore) Add(call *domain.Call) *domain.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	if call.ID == 0 {
		s.seq++
		call.ID = s.seq
	} else if call.ID > s.seq {
		s.seq = call.ID
	}
	s.calls = append(s.calls, call)
	return call
}

// SetStatus flips a call's status under the store lock, so tests can change
// state concurrently with a running dispatcher.
func (s *CallStore) SetStatus(id int64, status domain.CallStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.ID == id {
			c.Status = status
			return
		}
	}
}

// All returns the backing slice, for assertions.
func (s *CallStore) All() []*domain.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *CallStore) Create(ctx context.Context, call *domain.Call) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	call.UpdatedAt = call.CreatedAt
	s.Add(call)
	return nil
}

func (s *CallStore) Get(ctx context.Context, id int64) (*domain.Call, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *CallStore) GetByProviderID(ctx context.Context, providerCallID string) (*domain.Call, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.ProviderCallID != nil && *c.ProviderCallID == providerCallID {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *CallStore) Update(ctx context.Context, call *domain.Call) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.calls {
		if c.ID == call.ID {
			call.UpdatedAt = time.Now().UTC()
			s.calls[i] = call
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *CallStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]*domain.Call, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Call
	for _, c := range s.calls {
		if c.CampaignID != nil && *c.CampaignID == campaignID {
			out = append(out, c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *CallStore) ListDueScheduled(ctx context.Context, campaignID uuid.UUID, now time.Time, grace time.Duration) ([]*domain.Call, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	from := now.Add(-grace)
	var out []*domain.Call
	for _, c := range s.calls {
		if c.CampaignID == nil || *c.CampaignID != campaignID {
			continue
		}
		if c.Status != domain.CallStatusScheduled || c.ScheduledAt == nil {
			continue
		}
		if c.ScheduledAt.Before(from) || c.ScheduledAt.After(now) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *CallStore) ListStale(ctx context.Context, statuses []domain.CallStatus, cutoff time.Time, limit int) ([]*domain.Call, error) {
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Call
	for _, c := range s.calls {
		if c.ProviderCallID == nil || !statusIn(c.Status, statuses) {
			continue
		}
		if !c.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *CallStore) CountByPhone(ctx context.Context, campaignID uuid.UUID, phone string, statuses []domain.CallStatus, since time.Time) (int, error) {
	if s.FailWith != nil {
		return 0, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, c := range s.calls {
		if c.CampaignID == nil || *c.CampaignID != campaignID {
			continue
		}
		if c.CustomerPhone != phone || !statusIn(c.Status, statuses) {
			continue
		}
		if !since.IsZero() && c.AttemptTime().Before(since) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *CallStore) CountInFlight(ctx context.Context, campaignID uuid.UUID) (int, error) {
	if s.FailWith != nil {
		return 0, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, c := range s.calls {
		if c.CampaignID != nil && *c.CampaignID == campaignID && c.Status.InFlight() {
			count++
		}
	}
	return count, nil
}

func (s *CallStore) HasScheduledSince(ctx context.Context, campaignID, contactID uuid.UUID, since time.Time) (bool, error) {
	if s.FailWith != nil {
		return false, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.CampaignID == nil || *c.CampaignID != campaignID {
			continue
		}
		if c.ContactID == nil || *c.ContactID != contactID {
			continue
		}
		if c.Status == domain.CallStatusScheduled && !c.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *CallStore) CancelScheduled(ctx context.Context, campaignID uuid.UUID, message string) (int64, error) {
	if s.FailWith != nil {
		return 0, s.FailWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.calls {
		if c.CampaignID != nil && *c.CampaignID == campaignID && c.Status == domain.CallStatusScheduled {
			c.Status = domain.CallStatusCancelled
			c.Message = message
			c.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func statusIn(status domain.CallStatus, statuses []domain.CallStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// OrganizationStore holds organizations keyed by id.
type OrganizationStore struct {
	mu   sync.Mutex
	orgs map[uuid.UUID]*domain.Organization
}

// NewOrganizationStore creates an empty store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{orgs: make(map[uuid.UUID]*domain.Organization)}
}

// Add seeds an organization.
func (s *OrganizationStore) Add(org *domain.Organization) *domain.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	s.orgs[org.ID] = org
	return org
}

func (s *OrganizationStore) Get(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org, ok := s.orgs[id]; ok {
		return org, nil
	}
	return nil, repository.ErrNotFound
}

// CampaignStore holds campaigns keyed by id.
type CampaignStore struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]*domain.Campaign
}

// NewCampaignStore creates an empty store.
func NewCampaignStore() *CampaignStore {
	return &CampaignStore{campaigns: make(map[uuid.UUID]*domain.Campaign)}
}

// Add seeds a campaign.
func (s *CampaignStore) Add(campaign *domain.Campaign) *domain.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	if campaign.ID == uuid.Nil {
		campaign.ID = uuid.New()
	}
	s.campaigns[campaign.ID] = campaign
	return campaign
}

func (s *CampaignStore) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if campaign, ok := s.campaigns[id]; ok {
		return campaign, nil
	}
	return nil, repository.ErrNotFound
}

func (s *CampaignStore) ListEvaluable(ctx context.Context) ([]*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Campaign
	for _, campaign := range s.campaigns {
		if campaign.Evaluable() {
			out = append(out, campaign)
		}
	}
	return out, nil
}

func (s *CampaignStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign, ok := s.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	campaign.Active = active
	return nil
}

// ContactStore holds contacts keyed by id.
type ContactStore struct {
	mu       sync.Mutex
	contacts []*domain.Contact
}

// NewContactStore creates an empty store.
func NewContactStore() *ContactStore {
	return &ContactStore{}
}

// Add seeds a contact.
func (s *ContactStore) Add(contact *domain.Contact) *domain.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}
	s.contacts = append(s.contacts, contact)
	return contact
}

func (s *ContactStore) Get(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *ContactStore) Create(ctx context.Context, contact *domain.Contact) error {
	s.Add(contact)
	return nil
}

func (s *ContactStore) GetByPhone(ctx context.Context, orgID uuid.UUID, phone string) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.OrganizationID == orgID && c.Phone == phone {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *ContactStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Contact
	for _, c := range s.contacts {
		if c.CampaignID != nil && *c.CampaignID == campaignID {
			out = append(out, c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Journal records appended entries in order.
type Journal struct {
	mu      sync.Mutex
	Entries []repository.JournalEntry
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Append(ctx context.Context, entry repository.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Entries = append(j.Entries, entry)
	return nil
}

func (j *Journal) ListByCampaign(ctx context.Context, campaignID uuid.UUID, day time.Time, limit int, pagingState []byte) ([]repository.JournalEntry, []byte, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	dayUTC := day.UTC()
	var out []repository.JournalEntry
	for _, entry := range j.Entries {
		occurred := entry.OccurredAt.UTC()
		if entry.CampaignID != campaignID ||
			occurred.Year() != dayUTC.Year() || occurred.YearDay() != dayUTC.YearDay() {
			continue
		}
		out = append(out, entry)
		if len(out) >= limit {
			break
		}
	}
	return out, nil, nil
}
