package campaign

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/campaign-dialer/internal/domain"
	"github.com/acme/campaign-dialer/internal/repository"
	"github.com/acme/campaign-dialer/pkg/logger"
)

// Service orchestrates campaign lifecycle operations.
type Service struct {
	campaigns repository.CampaignRepository
	calls     repository.CallRepository
	log       *logger.Logger
}

// NewService constructs a campaign service.
func NewService(campaigns repository.CampaignRepository, calls repository.CallRepository, log *logger.Logger) *Service {
	return &Service{campaigns: campaigns, calls: calls, log: log}
}

// Get retrieves a campaign by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

// Stop deactivates the campaign and synchronously cancels every call still
// in scheduled status. Calls already dispatched are left to finish; the
// webhook or reconciler path resolves them later.
func (s *Service) Stop(ctx context.Context, id uuid.UUID) error {
	if err := s.campaigns.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("campaign service: deactivate %s: %w", id, err)
	}

	cancelled, err := s.calls.CancelScheduled(ctx, id, "campaign stopped")
	if err != nil {
		return fmt.Errorf("campaign service: cancel scheduled calls: %w", err)
	}

	s.log.Info("campaign stopped",
		zap.String("campaign_id", id.String()),
		zap.Int64("cancelled_calls", cancelled))
	return nil
}

// Start re-activates the campaign so the next tick picks it up.
func (s *Service) Start(ctx context.Context, id uuid.UUID) error {
	if err := s.campaigns.SetActive(ctx, id, true); err != nil {
		return fmt.Errorf("campaign service: activate %s: %w", id, err)
	}
	s.log.Info("campaign started", zap.String("campaign_id", id.String()))
	return nil
}
