package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"chronos-api/internal/cache"
	"chronos-api/internal/config"
	"chronos-api/internal/database"
	"chronos-api/internal/engine"
	"chronos-api/internal/messaging"
	"chronos-api/internal/models"
	"chronos-api/internal/monitoring"
	"chronos-api/internal/repository"
	"chronos-api/internal/repository/memory"
)

// Backends accepted by database.backend
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// App holds the ledger engine and everything it was built from
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Engine   *engine.LedgerEngine
	Registry *prometheus.Registry
	Metrics  *monitoring.Metrics
	Health   *monitoring.HealthChecker

	conns      *database.Connections
	publisher  *messaging.EventPublisher
	localCache *cache.LocalCache
}

// New connects the configured backends and builds the engine. Optional
// backends that fail to connect are logged and replaced by in-process ones.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, version string) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Health:   monitoring.NewHealthChecker(version),
	}

	store, err := a.connectStore(ctx)
	if err != nil {
		return nil, err
	}

	opts := []engine.Option{
		engine.WithReconciliation(cfg.Reconciliation),
	}

	if cfg.Monitoring.EnableMetrics {
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Metrics = monitoring.NewMetrics(a.Registry)
		opts = append(opts, engine.WithRecorder(a.Metrics))
	}

	opts = append(opts, a.cacheOptions(ctx)...)
	opts = append(opts, engine.WithEventPublisher(a.eventPublisher()))

	a.Engine = engine.NewLedgerEngine(store, cfg.Ledger, logger, opts...)
	if a.Metrics != nil {
		monitoring.RegisterSubscriptionsGauge(a.Registry, a.Engine.ActiveSubscriptions)
	}

	a.Health.Register("database", true, 5*time.Second, a.Engine.Ping)
	return a, nil
}

func (a *App) connectStore(ctx context.Context) (repository.Store, error) {
	switch a.Config.Database.Backend {
	case BackendMemory:
		a.Logger.Warn("Using in-memory store, data is lost on restart")
		store := memory.NewStore()
		store.Seed(knownBancos(a.Config.Ledger.DefaultCurrency), nil)
		a.conns = database.NewConnections(nil, nil, a.Logger)
		return store, nil
	case BackendMongo:
		a.Logger.WithField("database", a.Config.Database.Database).Info("Connecting to MongoDB...")
		db, err := database.ConnectMongo(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		a.conns = database.NewConnections(db, nil, a.Logger)

		store := repository.NewMongoStore(db, a.Logger)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = a.conns.Close(context.Background())
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		a.Logger.Info("Successfully connected to MongoDB")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", a.Config.Database.Backend)
	}
}

// cacheOptions wires the account list cache and the idempotency store.
// Redis backs both when reachable so every replica shares them.
func (a *App) cacheOptions(ctx context.Context) []engine.Option {
	a.localCache = cache.NewLocalCache(a.Config.Cache.LocalSize, a.Config.Cache.TTL)

	if a.Config.Redis.Enabled {
		client, err := database.ConnectRedis(ctx, a.Config.Redis)
		if err == nil {
			a.conns.Redis = client
			remote := cache.NewRedisCache(client, a.Config.Cache.TTL, a.Config.Redis.KeyPrefix, a.Logger)
			a.Health.Register("redis", false, 2*time.Second, remote.Ping)

			opts := []engine.Option{engine.WithIdempotencyStore(remote)}
			if a.Config.Cache.Enabled {
				opts = append(opts, engine.WithCache(cache.NewTieredCache(a.localCache, remote, a.Logger)))
			}
			a.Logger.Info("Redis cache enabled")
			return opts
		}
		a.Logger.WithError(err).Warn("Redis unavailable, using process-local cache")
	}

	opts := []engine.Option{engine.WithIdempotencyStore(a.localCache)}
	if a.Config.Cache.Enabled {
		opts = append(opts, engine.WithCache(a.localCache))
	}
	return opts
}

func (a *App) eventPublisher() engine.EventPublisher {
	if !a.Config.RabbitMQ.Enabled {
		return messaging.NewLogPublisher(a.Logger)
	}

	publisher, err := messaging.NewEventPublisher(a.Config.RabbitMQ.URL, a.Config.RabbitMQ.Exchange, a.Logger)
	if err != nil {
		a.Logger.WithError(err).Warn("RabbitMQ unavailable, ledger events will only be logged")
		return messaging.NewLogPublisher(a.Logger)
	}

	a.publisher = publisher
	a.Health.Register("rabbitmq", false, 2*time.Second, publisher.Ping)
	return publisher
}

// Close releases subscriptions and connections in reverse order of creation
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.Engine != nil {
		a.Engine.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.localCache != nil {
		a.localCache.Stop()
	}
	if a.conns != nil {
		if err := a.conns.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func knownBancos(moneda string) []*models.Banco {
	now := time.Now().UTC()
	ids := models.KnownBancoIDs()
	bancos := make([]*models.Banco, 0, len(ids))
	for _, id := range ids {
		bancos = append(bancos, &models.Banco{
			ID:        id,
			Nombre:    models.BancoName(id),
			Moneda:    moneda,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return bancos
}
