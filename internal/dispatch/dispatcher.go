// Package dispatch places eligible calls against the provider under a
// per-campaign concurrency ceiling.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/campaign-dialer/internal/config"
	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository"
	callsvc "github.com/acme/campaign-dialer/internal/service/call"
	"github.com/acme/campaign-dialer/internal/service/concurrency"
	"github.com/acme/campaign-dialer/internal/telephony"
	"github.com/acme/campaign-dialer/pkg/logger"
)

// Dispatcher submits scheduled calls to the provider. The in-flight ceiling
// is always enforced against the live count in storage so it survives
// process restarts and multiple scheduler instances; the redis limiter and
// the local pending counter only shape throughput within one process.
type Dispatcher struct {
	calls     repository.CallRepository
	lifecycle *callsvc.Service
	provider  telephony.Provider
	limiter   *concurrency.Limiter
	log       *logger.Logger

	ceiling      int
	pollInterval time.Duration
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(
	calls repository.CallRepository,
	lifecycle *callsvc.Service,
	provider telephony.Provider,
	limiter *concurrency.Limiter,
	log *logger.Logger,
	cfg config.DispatchConfig,
) *Dispatcher {
	ceiling := cfg.MaxConcurrentCalls
	if ceiling <= 0 {
		ceiling = 10
	}
	poll := cfg.CapacityPollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Dispatcher{
		calls:        calls,
		lifecycle:    lifecycle,
		provider:     provider,
		limiter:      limiter,
		log:          log,
		ceiling:      ceiling,
		pollInterval: poll,
	}
}

// Dispatch places every queued row for one campaign. It returns once all
// placements have been attempted; it never waits for calls to complete.
// Rows that cannot be placed are marked failed, never left in scheduled.
func (d *Dispatcher) Dispatch(ctx context.Context, org *domain.Organization, campaign *domain.Campaign, rows []*domain.Call) {
	if len(rows) == 0 {
		return
	}

	tracer := otel.Tracer("dialer.dispatch")
	ctx, span := tracer.Start(ctx, "dispatch.campaign", trace.WithAttributes(
		attribute.String("campaign.id", campaign.ID.String()),
		attribute.Int("rows", len(rows)),
	))
	defer span.End()

	var wg sync.WaitGroup
	var pending int64

	for _, row := range rows {
		if err := d.waitForCapacity(ctx, campaign, &pending); err != nil {
			span.RecordError(err)
			// Remaining rows stay in scheduled; a later tick picks them up
			// while they are still inside the grace window.
			d.log.Warn("dispatch: capacity wait aborted",
				zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
			break
		}

		atomic.AddInt64(&pending, 1)
		wg.Add(1)
		go func(row *domain.Call) {
			defer wg.Done()
			defer atomic.AddInt64(&pending, -1)
			d.place(ctx, org, campaign, row)
		}(row)
	}

	// Wait for placements only; the calls themselves run on.
	wg.Wait()
}

// waitForCapacity blocks until the campaign's live in-flight count, plus
// placements currently racing in this process, drops below the ceiling.
func (d *Dispatcher) waitForCapacity(ctx context.Context, campaign *domain.Campaign, pending *int64) error {
	for {
		inFlight, err := d.calls.CountInFlight(ctx, campaign.ID)
		if err != nil {
			return err
		}
		if inFlight+int(atomic.LoadInt64(pending)) < d.ceiling {
			return nil
		}

		d.log.Debug("dispatch: at capacity, waiting",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Int("in_flight", inFlight),
			zap.Int("ceiling", d.ceiling))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// place performs one provider placement and records the outcome.
func (d *Dispatcher) place(ctx context.Context, org *domain.Organization, campaign *domain.Campaign, row *domain.Call) {
	tracer := otel.Tracer("dialer.dispatch")
	ctx, span := tracer.Start(ctx, "dispatch.place", trace.WithAttributes(
		attribute.Int64("call.id", row.ID),
		attribute.String("campaign.id", campaign.ID.String()),
	))
	defer span.End()

	if acquired, err := d.limiter.Acquire(ctx, campaign.ID, d.ceiling); err != nil {
		// Advisory only; placement proceeds on limiter failure.
		d.log.Warn("dispatch: limiter acquire failed", zap.Error(err))
	} else if acquired {
		defer func() {
			if err := d.limiter.Release(context.Background(), campaign.ID); err != nil {
				d.log.Warn("dispatch: limiter release failed", zap.Error(err))
			}
		}()
	}

	number := telephony.NormalizePhone(row.CustomerPhone)
	req := telephony.CreateCallRequest{
		AssistantID:    campaign.AssistantID,
		PhoneNumberID:  campaign.PhoneNumberID,
		CustomerNumber: number,
		Variables: map[string]string{
			"name":    row.CustomerName,
			"address": row.CustomerAddress,
			"phone":   number,
		},
	}

	providerCallID, err := d.provider.CreateCall(ctx, org.ProviderAPIKey, req)
	if err != nil {
		span.RecordError(err)
		d.log.Error("dispatch: placement failed",
			zap.Int64("call_id", row.ID),
			zap.String("campaign_id", campaign.ID.String()),
			zap.Error(err))
		if markErr := d.lifecycle.MarkPlacementFailed(ctx, row, err.Error()); markErr != nil {
			d.log.Error("dispatch: mark failed", zap.Int64("call_id", row.ID), zap.Error(markErr))
		}
		return
	}

	if err := d.lifecycle.MarkDispatched(ctx, row, providerCallID); err != nil {
		span.RecordError(err)
		d.log.Error("dispatch: mark dispatched",
			zap.Int64("call_id", row.ID),
			zap.String("provider_call_id", providerCallID),
			zap.Error(err))
		return
	}

	d.log.Info("dispatch: call placed",
		zap.Int64("call_id", row.ID),
		zap.String("campaign_id", campaign.ID.String()),
		zap.String("provider_call_id", providerCallID))
}
