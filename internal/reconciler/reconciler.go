// Package reconciler repairs calls whose terminal status notification never
// arrived. It is the correctness backstop for unreliable webhook delivery,
// not an optimization.
package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/acme/campaign-dialer/internal/config"
	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository"
	callsvc "github.com/acme/campaign-dialer/internal/service/call"
	"github.com/acme/campaign-dialer/internal/telephony"
	"github.com/acme/campaign-dialer/pkg/logger"
)

// Reconciler polls the provider for calls stuck in a non-terminal status
// beyond the staleness threshold and applies the same status mapping as the
// webhook path.
type Reconciler struct {
	calls     repository.CallRepository
	orgs      repository.OrganizationRepository
	provider  telephony.Provider
	lifecycle *callsvc.Service
	log       *logger.Logger

	staleAfter time.Duration
	batchLimit int
	now        func() time.Time
}

// New constructs a reconciler.
func New(
	calls repository.CallRepository,
	orgs repository.OrganizationRepository,
	provider telephony.Provider,
	lifecycle *callsvc.Service,
	log *logger.Logger,
	cfg config.ReconcileConfig,
) *Reconciler {
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	limit := cfg.BatchLimit
	if limit <= 0 {
		limit = 100
	}
	return &Reconciler{
		calls:      calls,
		orgs:       orgs,
		provider:   provider,
		lifecycle:  lifecycle,
		log:        log,
		staleAfter: staleAfter,
		batchLimit: limit,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Run performs one reconciliation pass. A failure on one call is logged and
// leaves that call stuck for the next pass; it never aborts the batch.
func (r *Reconciler) Run(ctx context.Context) {
	tracer := otel.Tracer("dialer.reconciler")
	ctx, span := tracer.Start(ctx, "reconciler.pass")
	defer span.End()

	cutoff := r.now().Add(-r.staleAfter)
	stale, err := r.calls.ListStale(ctx, domain.InFlightStatuses, cutoff, r.batchLimit)
	if err != nil {
		span.RecordError(err)
		r.log.Error("reconciler: list stale calls", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	span.SetAttributes(attribute.Int("stale.count", len(stale)))
	r.log.Info("reconciler: repairing stuck calls", zap.Int("count", len(stale)))

	keys := make(map[uuid.UUID]string)
	for _, call := range stale {
		if err := r.reconcile(ctx, call, keys); err != nil {
			span.RecordError(err)
			r.log.Warn("reconciler: call left for next pass",
				zap.Int64("call_id", call.ID), zap.Error(err))
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context, call *domain.Call, keys map[uuid.UUID]string) error {
	if call.ProviderCallID == nil || *call.ProviderCallID == "" {
		// Nothing to query; the row predates a successful placement.
		return nil
	}

	apiKey, ok := keys[call.OrganizationID]
	if !ok {
		org, err := r.orgs.Get(ctx, call.OrganizationID)
		if err != nil {
			return err
		}
		apiKey = org.ProviderAPIKey
		keys[call.OrganizationID] = apiKey
	}
	if apiKey == "" {
		return nil
	}

	info, err := r.provider.GetCall(ctx, apiKey, *call.ProviderCallID)
	if err != nil {
		return err
	}

	return r.lifecycle.ApplyProviderUpdate(ctx, call, info, callsvc.SourceReconciler)
}
