package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/acme/campaign-dialer/internal/app"
)

// Scheduler drives periodic evaluation ticks from a cron expression.
type Scheduler struct {
	container *app.Container
	evaluator *Evaluator

	mu      sync.Mutex
	running bool
}

// New builds a scheduler on top of an initialized container.
func New(container *app.Container) *Scheduler {
	repos := container.Repositories()
	services := container.Services()

	evaluator := NewEvaluator(
		repos.Campaigns,
		repos.Organizations,
		repos.Contacts,
		repos.Calls,
		services.Resolver,
		services.Call,
		container.Dispatcher(),
		container.Reconciler(),
		container.Logger,
		container.Config.Scheduler,
	)

	return &Scheduler{container: container, evaluator: evaluator}
}

// Evaluator exposes the tick pipeline, for manual triggers.
func (s *Scheduler) Evaluator() *Evaluator {
	return s.evaluator
}

// RunOnce executes a single evaluation tick. Overlapping invocations are
// coalesced: a tick requested while one is running is skipped.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.container.Logger.Warn("scheduler: tick already running, skipping")
		return nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	return s.evaluator.Tick(ctx)
}

// Run blocks, firing ticks on the configured cron spec until ctx is
// cancelled. An in-flight tick is allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	spec := s.container.Config.Scheduler.CronSpec
	log := s.container.Logger

	runner := cron.New()
	_, err := runner.AddFunc(spec, func() {
		if err := s.RunOnce(ctx); err != nil {
			log.Error("scheduler: tick failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron spec %q: %w", spec, err)
	}

	log.Info("scheduler: started", zap.String("cron", spec))
	runner.Start()

	<-ctx.Done()

	stopCtx := runner.Stop()
	<-stopCtx.Done()
	log.Info("scheduler: stopped")
	return nil
}
