package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/parallel-dialer/internal/config"
	"github.com/acme/parallel-dialer/internal/dialer/budget"
	"github.com/acme/parallel-dialer/internal/infra/db"
	"github.com/acme/parallel-dialer/internal/infra/redis"
	"github.com/acme/parallel-dialer/internal/queue"
	"github.com/acme/parallel-dialer/internal/repository"
	pgrepo "github.com/acme/parallel-dialer/internal/repository/postgres"
	scyllarepo "github.com/acme/parallel-dialer/internal/repository/scylla"
	campaignsvc "github.com/acme/parallel-dialer/internal/service/campaign"
	dialersvc "github.com/acme/parallel-dialer/internal/service/dialer"
	telephonySvc "github.com/acme/parallel-dialer/internal/telephony"
	telephonyMock "github.com/acme/parallel-dialer/internal/telephony/mock"
	"github.com/acme/parallel-dialer/internal/webhook"
	"github.com/acme/parallel-dialer/pkg/logger"
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
		repositories *repositories
		publishers   *publishers
		services     *services
		providers    *providers
		limiters     *limiters
		verifier     *webhook.Verifier
	}
}

type repositories struct {
	Campaigns repository.CampaignRepository
	Contacts  repository.ContactRepository
	Settings  repository.SettingsRepository
	Stats     repository.StatsRepository
	Outcomes  repository.OutcomeStore
}

type publishers struct {
	Outcomes   *queue.OutcomePublisher
	Events     *queue.EventPublisher
	Callbacks  *queue.CallbackPublisher
	Rejections *queue.RejectionNotifier
}

type services struct {
	Campaign *campaignsvc.Service
	Dialer   *dialersvc.Service
}

type providers struct {
	Telephony telephonySvc.Provider
}

type limiters struct {
	Budget *budget.Limiter
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
		repos := &repositories{
			Campaigns: pgrepo.NewCampaignRepository(c.Postgres.DB()),
			Contacts:  pgrepo.NewContactRepository(c.Postgres.DB()),
			Settings:  pgrepo.NewSettingsRepository(c.Postgres.DB()),
			Stats:     pgrepo.NewStatsRepository(c.Postgres.DB()),
			Outcomes:  scyllarepo.NewOutcomeStore(c.Scylla.Session()),
		}

		pubs := &publishers{
			Outcomes:   queue.NewOutcomePublisher(c.Kafka, c.Config.Kafka.OutcomeTopic),
			Events:     queue.NewEventPublisher(c.Kafka, c.Config.Kafka.EventTopic),
			Callbacks:  queue.NewCallbackPublisher(c.Kafka, c.Config.Kafka.CallbackTopic),
			Rejections: queue.NewRejectionNotifier(c.Kafka, c.Config.Kafka.RejectionTopic),
		}

		providers := &providers{
			Telephony: telephonyMock.NewProvider(c.Config.Dialer),
		}

		limiters := &limiters{
			Budget: budget.NewLimiter(c.Redis.Inner(), c.Config.Dialer.BudgetKeyPrefix),
		}

		services := &services{
			Campaign: campaignsvc.NewService(
				repos.Campaigns,
				repos.Contacts,
				repos.Settings,
				repos.Stats,
				c.Config.Dialer.DefaultParallel,
			),
			Dialer: dialersvc.NewService(dialersvc.Deps{
				Campaigns: repos.Campaigns,
				Contacts:  repos.Contacts,
				Settings:  repos.Settings,
				Stats:     repos.Stats,
				History:   repos.Outcomes,
				Provider:  providers.Telephony,
				Budget:    limiters.Budget,
				DNC:       limiters.Budget,
				Notifier:  pubs.Rejections,
				Callbacks: pubs.Callbacks,
				Outcomes:  pubs.Outcomes,
				Events:    pubs.Events,
				Config:    c.Config.Dialer,
				Logger:    c.Logger,
			}),
		}

		c.components.repositories = repos
		c.components.publishers = pubs
		c.components.services = services
		c.components.providers = providers
		c.components.limiters = limiters
		c.components.verifier = webhook.NewVerifier(c.Config.Webhook)
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Publishers exposes Kafka publishers.
func (c *Container) Publishers() *publishers {
	c.initComponents()
	return c.components.publishers
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Providers exposes external providers.
func (c *Container) Providers() *providers {
	c.initComponents()
	return c.components.providers
}

// Limiters exposes limiter utilities.
func (c *Container) Limiters() *limiters {
	c.initComponents()
	return c.components.limiters
}

// WebhookVerifier exposes the webhook token verifier.
func (c *Container) WebhookVerifier() *webhook.Verifier {
	c.initComponents()
	return c.components.verifier
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if p := c.components.publishers; p != nil {
		if p.Outcomes != nil {
			if err := p.Outcomes.Close(); err != nil {
				errs = append(errs, fmt.Errorf("outcome publisher close: %w", err))
			}
		}
		if p.Events != nil {
			if err := p.Events.Close(); err != nil {
				errs = append(errs, fmt.Errorf("event publisher close: %w", err))
			}
		}
		if p.Callbacks != nil {
			if err := p.Callbacks.Close(); err != nil {
				errs = append(errs, fmt.Errorf("callback publisher close: %w", err))
			}
		}
		if p.Rejections != nil {
			if err := p.Rejections.Close(); err != nil {
				errs = append(errs, fmt.Errorf("rejection notifier close: %w", err))
			}
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

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	topics := make([]string, 0, 4)
	for _, topic := range []string{
		c.Config.Kafka.OutcomeTopic,
		c.Config.Kafka.EventTopic,
		c.Config.Kafka.CallbackTopic,
		c.Config.Kafka.RejectionTopic,
	} {
		if topic != "" {
			topics = append(topics, topic)
		}
	}
	if len(topics) == 0 {
		return nil
	}
	return c.Kafka.EnsureTopics(ctx, topics, 12, 1)
}
