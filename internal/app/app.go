// Package app assembles the scheduling components from configuration for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/hackgods/clinic-scheduler/internal/api"
	"github.com/hackgods/clinic-scheduler/internal/appointment"
	"github.com/hackgods/clinic-scheduler/internal/config"
	"github.com/hackgods/clinic-scheduler/internal/db"
	"github.com/hackgods/clinic-scheduler/internal/jobs"
	"github.com/hackgods/clinic-scheduler/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduler/internal/redis"
)

const (
	jobsPrefix  = "clinic:jobs"
	locksPrefix = "clinic:lock"
)

// Store is the selected repository together with its health probe.
type Store struct {
	Repo   appointment.Repository
	Health api.Dependency
	close  func()
}

func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore connects to Postgres when a DSN is configured and falls back to the
// embedded SQLite database otherwise. Both paths apply the schema.
func OpenStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Store, error) {
	if cfg.PostgresDSN != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(connectCtx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Msg("connected to Postgres")

		return &Store{
			Repo:   appointment.NewPgRepository(pool),
			Health: api.Dependency{Name: "postgres", Critical: true, Ping: pool.Ping},
			close:  pool.Close,
		}, nil
	}

	sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite database")

	return &Store{
		Repo:   appointment.NewSQLiteRepository(sqlDB),
		Health: api.SQLDependency("sqlite", sqlDB),
		close:  func() { _ = sqlDB.Close() },
	}, nil
}

func OpenRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	return redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
}

// NewEngine builds the Redis-backed job engine. Recurring tasks are guarded by a
// Redis lock so only one scheduler replica runs each sweep per interval.
func NewEngine(client *redis.Client, cfg config.Config, logger zerolog.Logger) *jobs.Engine {
	return jobs.NewEngine(
		jobs.NewRedisStore(client, jobsPrefix),
		logger,
		jobs.WithLocker(redisclient.NewRedisLocker(client, locksPrefix, cfg.LockTTL)),
		jobs.WithPollInterval(cfg.JobPollInterval),
	)
}

// Notifications is the outbound notifier and the resources behind it.
type Notifications struct {
	Notifier  *notify.Notifier
	publisher *notify.RabbitMQPublisher
	breaker   *notify.BreakerSink
}

// Health lists the readiness checks for the outbound path. It is empty when
// messages are only logged.
func (n *Notifications) Health() []api.Dependency {
	if n.breaker == nil {
		return nil
	}
	return []api.Dependency{BreakerDependency("sms_breaker", n.breaker)}
}

var errBreakerOpen = errors.New("circuit breaker open")

// BreakerDependency reports the breaker as a non-critical dependency that fails
// while the breaker is open.
func BreakerDependency(name string, b *notify.BreakerSink) api.Dependency {
	return api.Dependency{
		Name: name,
		Ping: func(context.Context) error {
			if b.State() == gobreaker.StateOpen {
				return errBreakerOpen
			}
			return nil
		},
	}
}

func (n *Notifications) Close() error {
	if n.publisher == nil {
		return nil
	}
	return n.publisher.Close()
}

// NewNotifications builds the sink chain. Without RABBITMQ_URL messages are only logged.
func NewNotifications(cfg config.Config, store notify.Store, logger zerolog.Logger) (*Notifications, error) {
	var (
		sink      notify.Sink
		publisher *notify.RabbitMQPublisher
		breaker   *notify.BreakerSink
	)

	if cfg.RabbitMQURL == "" {
		sink = notify.NewLogSink(logger)
	} else {
		pub, err := notify.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		publisher = pub
		breaker = notify.NewBreakerSink(notify.NewAMQPSink(pub), cfg.Breaker, logger)
		sink = breaker
	}
	sink = notify.NewTestNumberFilter(sink, cfg.SMSTestPrefix, logger)

	lines := notify.Lines{Patient: cfg.SMSFromPatient, Doctor: cfg.SMSFromDoctor}
	return &Notifications{
		Notifier:  notify.NewNotifier(sink, store, lines, nil, logger),
		publisher: publisher,
		breaker:   breaker,
	}, nil
}
