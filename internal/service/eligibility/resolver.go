// Package eligibility decides whether a (campaign, contact) pair should be
// called right now. The resolver is read-only; callers combine its verdict
// with dispatch.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository"
	"github.com/acme/campaign-dialer/internal/schedule"
)

// Verdict explains why a contact was or was not eligible. The reason feeds
// the cancellation message on skipped rows.
type Verdict struct {
	Eligible bool
	Reason   string
}

// Resolver applies retry ceilings, in-flight dedup and frequency windows.
type Resolver struct {
	calls repository.CallRepository
	now   func() time.Time
}

// NewResolver constructs a resolver over the call store.
func NewResolver(calls repository.CallRepository) *Resolver {
	return &Resolver{calls: calls, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// ShouldCall evaluates the rules in order, short-circuiting on the first
// disqualifier:
//
//  1. attempts (completed + in-flight) at or above the retry ceiling
//  2. any call currently in flight for the same (campaign, phone)
//  3. frequency window: one call per calendar day (none/daily, the default
//     for unrecognized values) or per week starting Sunday midnight (weekly)
func (r *Resolver) ShouldCall(ctx context.Context, campaign *domain.Campaign, phone string) (Verdict, error) {
	now := r.now()

	if limit := campaign.EffectiveRetryLimit(); limit > 0 {
		attempts, err := r.calls.CountByPhone(ctx, campaign.ID, phone, domain.AttemptStatuses, time.Time{})
		if err != nil {
			return Verdict{}, fmt.Errorf("eligibility: count attempts: %w", err)
		}
		if attempts >= limit {
			return Verdict{Reason: fmt.Sprintf("retry limit of %d reached", limit)}, nil
		}
	}

	inFlight, err := r.calls.CountByPhone(ctx, campaign.ID, phone, domain.InFlightStatuses, time.Time{})
	if err != nil {
		return Verdict{}, fmt.Errorf("eligibility: count in-flight: %w", err)
	}
	if inFlight > 0 {
		return Verdict{Reason: "a call for this contact is already in flight"}, nil
	}

	var since time.Time
	switch campaign.Frequency {
	case domain.FrequencyWeekly:
		since = schedule.StartOfWeek(now)
	default:
		// none, daily and any unrecognized frequency all use the calendar day.
		since = schedule.StartOfDay(now)
	}

	recent, err := r.calls.CountByPhone(ctx, campaign.ID, phone, domain.AttemptStatuses, since)
	if err != nil {
		return Verdict{}, fmt.Errorf("eligibility: count window: %w", err)
	}
	if recent > 0 {
		return Verdict{Reason: fmt.Sprintf("already called within the current %s window", windowName(campaign.Frequency))}, nil
	}

	return Verdict{Eligible: true}, nil
}

func windowName(f domain.Frequency) string {
	if f == domain.FrequencyWeekly {
		return "weekly"
	}
	return "daily"
}
