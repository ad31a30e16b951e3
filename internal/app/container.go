package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/campaign-dialer/internal/config"
	"github.com/acme/campaign-dialer/internal/dispatch"
	"github.com/acme/campaign-dialer/internal/infra/db"
	"github.com/acme/campaign-dialer/internal/infra/redis"
	"github.com/acme/campaign-dialer/internal/queue"
	"github.com/acme/campaign-dialer/internal/reconciler"
	"github.com/acme/campaign-dialer/internal/repository"
	pgrepo "github.com/acme/campaign-dialer/internal/repository/postgres"
	scyllarepo "github.com/acme/campaign-dialer/internal/repository/scylla"
	campaignsvc "github.com/acme/campaign-dialer/internal/service/campaign"
	callsvc "github.com/acme/campaign-dialer/internal/service/call"
	"github.com/acme/campaign-dialer/internal/service/concurrency"
	"github.com/acme/campaign-dialer/internal/service/eligibility"
	"github.com/acme/campaign-dialer/internal/telephony/bridge"
	"github.com/acme/campaign-dialer/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *Repositories
		services     *Services
		publisher    *queue.EventPublisher
		dispatcher   *dispatch.Dispatcher
		reconciler   *reconciler.Reconciler
	}
}

// Repositories groups the persistence interfaces.
type Repositories struct {
	Organizations repository.OrganizationRepository
	Campaigns     repository.CampaignRepository
	Contacts      repository.ContactRepository
	Calls         repository.CallRepository
	Journal       repository.CallJournal
}

// Services groups the domain services.
type Services struct {
	Campaign *campaignsvc.Service
	Call     *callsvc.Service
	Resolver *eligibility.Resolver
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	container := &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	return container, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &Repositories{
			Organizations: pgrepo.NewOrganizationRepository(c.Postgres.DB()),
			Campaigns:     pgrepo.NewCampaignRepository(c.Postgres.DB()),
			Contacts:      pgrepo.NewContactRepository(c.Postgres.DB()),
			Calls:         pgrepo.NewCallRepository(c.Postgres.DB()),
			Journal:       scyllarepo.NewJournal(c.Scylla.Session()),
		}

		publisher := queue.NewEventPublisher(c.Kafka, c.Config.Kafka.CallEventTopic)
		provider := bridge.NewClient(c.Config.Provider)
		limiter := concurrency.NewLimiter(
			c.Redis.Inner(),
			c.Config.Dispatch.MaxConcurrentCalls,
			c.Config.Dispatch.LimiterTTL,
		)

		services := &Services{
			Call:     callsvc.NewService(repos.Calls, repos.Journal, publisher, c.Logger),
			Resolver: eligibility.NewResolver(repos.Calls),
		}
		services.Campaign = campaignsvc.NewService(repos.Campaigns, repos.Calls, c.Logger)

		c.components.repositories = repos
		c.components.services = services
		c.components.publisher = publisher
		c.components.dispatcher = dispatch.NewDispatcher(
			repos.Calls, services.Call, provider, limiter, c.Logger, c.Config.Dispatch)
		c.components.reconciler = reconciler.New(
			repos.Calls, repos.Organizations, provider, services.Call, c.Logger, c.Config.Reconcile)
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *Repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *Services {
	c.initComponents()
	return c.components.services
}

// Dispatcher exposes the call dispatcher.
func (c *Container) Dispatcher() *dispatch.Dispatcher {
	c.initComponents()
	return c.components.dispatcher
}

// Reconciler exposes the stuck-call reconciler.
func (c *Container) Reconciler() *reconciler.Reconciler {
	c.initComponents()
	return c.components.reconciler
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	topics := []string{c.Config.Kafka.CallEventTopic}
	return c.Kafka.EnsureTopics(ctx, topics, c.Config.Kafka.Partitions, c.Config.Kafka.ReplicationFactor)
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.components.publisher != nil {
		if err := c.components.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event publisher close: %w", err))
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
