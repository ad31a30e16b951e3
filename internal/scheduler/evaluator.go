package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/campaign-dialer/internal/config"
	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository"
	"github.com/acme/campaign-dialer/internal/schedule"
	callsvc "github.com/acme/campaign-dialer/internal/service/call"
	"github.com/acme/campaign-dialer/internal/service/eligibility"
	"github.com/acme/campaign-dialer/pkg/logger"
)

// Dispatcher places queued rows for one campaign.
type Dispatcher interface {
	Dispatch(ctx context.Context, org *domain.Organization, campaign *domain.Campaign, rows []*domain.Call)
}

// Reconciler repairs stuck calls; it runs at the start of every tick so
// eligibility counts reflect fresh state.
type Reconciler interface {
	Run(ctx context.Context)
}

// Evaluator executes one scheduling tick across all evaluable campaigns.
type Evaluator struct {
	campaigns  repository.CampaignRepository
	orgs       repository.OrganizationRepository
	contacts   repository.ContactRepository
	calls      repository.CallRepository
	resolver   *eligibility.Resolver
	lifecycle  *callsvc.Service
	dispatcher Dispatcher
	reconciler Reconciler
	log        *logger.Logger
	cfg        config.SchedulerConfig
	now        func() time.Time
}

// NewEvaluator wires the tick pipeline.
func NewEvaluator(
	campaigns repository.CampaignRepository,
	orgs repository.OrganizationRepository,
	contacts repository.ContactRepository,
	calls repository.CallRepository,
	resolver *eligibility.Resolver,
	lifecycle *callsvc.Service,
	dispatcher Dispatcher,
	reconciler Reconciler,
	log *logger.Logger,
	cfg config.SchedulerConfig,
) *Evaluator {
	return &Evaluator{
		campaigns:  campaigns,
		orgs:       orgs,
		contacts:   contacts,
		calls:      calls,
		resolver:   resolver,
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		reconciler: reconciler,
		log:        log,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Tick runs one full evaluation pass. A failure in one campaign never
// aborts the others; each is evaluated in its own goroutine so one
// campaign's capacity wait cannot stall the rest.
func (e *Evaluator) Tick(ctx context.Context) error {
	tracer := otel.Tracer("dialer.scheduler")
	ctx, span := tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	now := e.now()
	e.log.Info("scheduler: tick started", zap.Time("now", now))

	// Repair stuck calls first so retry ceilings and in-flight counts are
	// computed against fresh state.
	if e.reconciler != nil {
		e.reconciler.Run(ctx)
	}

	campaigns, err := e.campaigns.ListEvaluable(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("scheduler: list campaigns: %w", err)
	}
	span.SetAttributes(attribute.Int("campaign.count", len(campaigns)))

	var wg sync.WaitGroup
	for _, campaign := range campaigns {
		wg.Add(1)
		go func(campaign *domain.Campaign) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					e.log.Error("scheduler: campaign evaluation panicked",
						zap.String("campaign_id", campaign.ID.String()),
						zap.Any("panic", rec))
				}
			}()
			if err := e.evaluateCampaign(ctx, now, campaign); err != nil {
				e.log.Error("scheduler: campaign evaluation failed",
					zap.String("campaign_id", campaign.ID.String()),
					zap.Error(err))
			}
		}(campaign)
	}
	wg.Wait()

	e.log.Info("scheduler: tick finished", zap.Duration("elapsed", e.now().Sub(now)))
	return nil
}

func (e *Evaluator) evaluateCampaign(ctx context.Context, now time.Time, campaign *domain.Campaign) error {
	tracer := otel.Tracer("dialer.scheduler")
	ctx, span := tracer.Start(ctx, "scheduler.campaign", trace.WithAttributes(
		attribute.String("campaign.id", campaign.ID.String()),
	))
	defer span.End()

	org, err := e.orgs.Get(ctx, campaign.OrganizationID)
	if err != nil {
		return fmt.Errorf("load organization: %w", err)
	}
	if !org.Configured() {
		e.log.Debug("scheduler: organization has no provider credentials, skipping",
			zap.String("campaign_id", campaign.ID.String()))
		return nil
	}

	if campaign.Frequency == domain.FrequencyWeekly &&
		!schedule.IsCallingDay(now, campaign.ScheduleDays, campaign.TimeZone) {
		e.log.Debug("scheduler: not a scheduled day for weekly campaign",
			zap.String("campaign_id", campaign.ID.String()))
		return nil
	}

	due, err := e.calls.ListDueScheduled(ctx, campaign.ID, now, e.cfg.DueGraceWindow)
	if err != nil {
		return fmt.Errorf("load due calls: %w", err)
	}

	within := schedule.WithinCallingHours(now, campaign.StartTime, campaign.EndTime, campaign.TimeZone)
	if !within {
		if len(due) == 0 {
			e.log.Debug("scheduler: outside calling hours",
				zap.String("campaign_id", campaign.ID.String()))
			return nil
		}
		// Overdue work beats window strictness; tolerate tick jitter.
		e.log.Warn("scheduler: processing overdue calls outside calling hours",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Int("due", len(due)))
	}

	queued := make([]*domain.Call, 0, len(due))
	queuedPhones := make(map[string]bool)
	for _, row := range due {
		// Eligibility counts only persisted statuses, so a second due row for
		// the same phone would pass it; dedup within the pass keeps at most
		// one placement per (campaign, phone).
		if queuedPhones[row.CustomerPhone] {
			if err := e.lifecycle.Cancel(ctx, row, callsvc.SourceScheduler,
				"another call for this phone is queued in the same pass"); err != nil {
				e.log.Error("scheduler: cancel duplicate call",
					zap.Int64("call_id", row.ID), zap.Error(err))
			}
			continue
		}
		verdict, err := e.resolver.ShouldCall(ctx, campaign, row.CustomerPhone)
		if err != nil {
			e.log.Error("scheduler: eligibility check failed",
				zap.Int64("call_id", row.ID), zap.Error(err))
			continue
		}
		if !verdict.Eligible {
			if err := e.lifecycle.Cancel(ctx, row, callsvc.SourceScheduler, verdict.Reason); err != nil {
				e.log.Error("scheduler: cancel ineligible call",
					zap.Int64("call_id", row.ID), zap.Error(err))
			}
			continue
		}
		queued = append(queued, row)
		queuedPhones[row.CustomerPhone] = true
	}

	// Recurring campaigns self-generate new attempts from their contact pool.
	// Generation is skipped outside the calling window; only overdue rows are
	// honored there.
	if within && campaign.Frequency != domain.FrequencyNone && len(queued) < e.cfg.RecurringQueueThreshold {
		derived, err := e.deriveRecurring(ctx, now, campaign, queuedPhones)
		if err != nil {
			e.log.Error("scheduler: derive recurring calls",
				zap.String("campaign_id", campaign.ID.String()), zap.Error(err))
		} else {
			queued = append(queued, derived...)
		}
	}

	span.SetAttributes(attribute.Int("queued", len(queued)))
	if len(queued) == 0 {
		return nil
	}

	e.dispatcher.Dispatch(ctx, org, campaign, queued)
	return nil
}

// deriveRecurring creates fresh scheduled rows for contacts of a recurring
// campaign that are eligible now and not already represented by a scheduled
// row created today.
func (e *Evaluator) deriveRecurring(ctx context.Context, now time.Time, campaign *domain.Campaign, queuedPhones map[string]bool) ([]*domain.Call, error) {
	contacts, err := e.contacts.ListByCampaign(ctx, campaign.ID, e.cfg.RecurringContactLimit)
	if err != nil {
		return nil, fmt.Errorf("list campaign contacts: %w", err)
	}

	dayStart := schedule.StartOfDay(now)
	var derived []*domain.Call
	for _, contact := range contacts {
		if contact.Phone == "" || queuedPhones[contact.Phone] {
			continue
		}

		verdict, err := e.resolver.ShouldCall(ctx, campaign, contact.Phone)
		if err != nil {
			e.log.Error("scheduler: recurring eligibility check failed",
				zap.String("contact_id", contact.ID.String()), zap.Error(err))
			continue
		}
		if !verdict.Eligible {
			continue
		}

		exists, err := e.calls.HasScheduledSince(ctx, campaign.ID, contact.ID, dayStart)
		if err != nil {
			e.log.Error("scheduler: scheduled-today check failed",
				zap.String("contact_id", contact.ID.String()), zap.Error(err))
			continue
		}
		if exists {
			continue
		}

		row := e.newScheduledCall(now, campaign, contact)
		if err := e.calls.Create(ctx, row); err != nil {
			e.log.Error("scheduler: create recurring call",
				zap.String("contact_id", contact.ID.String()), zap.Error(err))
			continue
		}

		derived = append(derived, row)
		queuedPhones[contact.Phone] = true
	}

	return derived, nil
}

func (e *Evaluator) newScheduledCall(now time.Time, campaign *domain.Campaign, contact *domain.Contact) *domain.Call {
	campaignID := campaign.ID
	contactID := contact.ID
	scheduledAt := now
	return &domain.Call{
		OrganizationID:  campaign.OrganizationID,
		CampaignID:      &campaignID,
		ContactID:       &contactID,
		CustomerName:    contact.FullName(),
		CustomerPhone:   contact.Phone,
		CustomerAddress: contact.Address,
		Status:          domain.CallStatusScheduled,
		ScheduledAt:     &scheduledAt,
		Message:         "recurring call derived by scheduler",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

