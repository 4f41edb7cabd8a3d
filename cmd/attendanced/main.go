// Package main is the entry point of the attendance daemon.
//
// The daemon serves the HTTP API in front of the attendance ledger. Every
// check-in runs a proximity scan over the observation the device uploads,
// then records attendance in the durable store chosen by STORAGE_DRIVER.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/proximity-attendance/config"
	"github.com/alem-hub/proximity-attendance/internal/application/detection"
	"github.com/alem-hub/proximity-attendance/internal/application/ledger"
	"github.com/alem-hub/proximity-attendance/internal/application/query"
	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/identity"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/messaging"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/persistence/guarded"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/scheduler"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/sensor"
	httpapi "github.com/alem-hub/proximity-attendance/internal/interface/http"
	"github.com/alem-hub/proximity-attendance/internal/interface/http/handlers"
	"github.com/alem-hub/proximity-attendance/pkg/circuitbreaker"
	"github.com/alem-hub/proximity-attendance/pkg/logger"
	"github.com/alem-hub/proximity-attendance/pkg/retry"
	"github.com/alem-hub/proximity-attendance/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	figure.NewFigure(cfg.App.Name, "cybermedium", true).Print()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING AND TRACING
	// ─────────────────────────────────────────────────────────────────────────
	logOpts := logger.DefaultOptions()
	logOpts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	log := logger.New(logOpts).With(
		logger.String("service", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
	log.Info("starting attendance daemon",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("events", cfg.Events.Driver),
	)

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:        cfg.Observability.TracingEnabled,
		Endpoint:       cfg.Observability.TracingEndpoint,
		Insecure:       cfg.Observability.TracingInsecure,
		SampleRatio:    cfg.Observability.TracingSample,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    string(cfg.App.Environment),
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", logger.Err(err))
		}
	}()
	tp := otel.GetTracerProvider()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DURABLE STORE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("opening durable store...", logger.String("driver", cfg.Storage.Driver))
	backend, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	breaker := circuitbreaker.DurableStoreBreaker(cfg.Storage.Driver,
		func(name string, from, to circuitbreaker.State) {
			log.Warn("store circuit breaker changed state",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
		circuitbreaker.WithFailureThreshold(cfg.Storage.BreakerThreshold),
		circuitbreaker.WithTimeout(cfg.Storage.BreakerTimeout),
	)
	store := guarded.New(backend, breaker)
	defer func() {
		log.Info("closing durable store...")
		if err := store.Close(); err != nil {
			log.Warn("failed to close store", logger.Err(err))
		}
	}()
	log.Info("durable store ready")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	bus, err := openEventBus(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn("failed to close event bus", logger.Err(err))
		}
	}()
	eventLog := log.With(logger.Component("events"))
	if err := bus.SubscribeAll(func(ev shared.Event) error {
		eventLog.Info("domain event",
			logger.String("type", string(ev.EventType())),
			logger.String("aggregate_id", ev.AggregateID()),
			logger.Time("occurred_at", ev.OccurredAt()),
		)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. DETECTION ENGINE AND LEDGER
	// ─────────────────────────────────────────────────────────────────────────
	engine := detection.NewEngine(sensor.NewSnapshot(),
		detection.WithRSSIThreshold(cfg.Detection.RSSIThreshold),
		detection.WithSoftDeadline(cfg.Detection.SoftDeadline),
		detection.WithHardCap(cfg.Detection.HardCap),
		detection.WithLogger(log),
		detection.WithTracerProvider(tp),
	)

	l := ledger.New(store, engine,
		ledger.WithLocation(cfg.App.Location),
		ledger.WithLogger(log),
		ledger.WithEventPublisher(bus),
		ledger.WithTracerProvider(tp),
	)
	log.Info("loading persisted sessions and records...")
	if err := l.Rehydrate(ctx); err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. IDENTITY
	// ─────────────────────────────────────────────────────────────────────────
	dir := identity.NewDirectory()
	if cfg.App.SeedDemoPeople {
		added, err := dir.SeedDemo(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed demo people: %w", err)
		}
		log.Info("seeded demo people", logger.Int("count", added))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. MAINTENANCE JOBS
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(scheduler.Config{Logger: log})
		sweep := jobs.NewCloseStaleSessionsJob(l, jobs.CloseStaleSessionsConfig{
			MaxAge:  cfg.Scheduler.MaxSessionAge,
			Timeout: cfg.Storage.QueryTimeout * 4,
		}, log, nil)
		if err := sched.Register(sweep, scheduler.Every(cfg.Scheduler.SweepInterval)); err != nil {
			return fmt.Errorf("failed to register %s: %w", sweep.Name(), err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("storage", handlers.NewPingCheck(store))
	health.AddReadinessCheck("storage_breaker", handlers.NewBreakerCheck(store))

	server, err := httpapi.NewServer(httpapi.ConfigFrom(cfg.HTTP), httpapi.Dependencies{
		Attendance:     l,
		Directory:      dir,
		Tokens:         httpapi.NewTokenIssuer(cfg.HTTP.AuthSecret, cfg.App.Name, cfg.HTTP.TokenTTL),
		Dashboard:      query.NewGetAdminDashboardHandler(l, nil),
		Summary:        query.NewGetPersonSummaryHandler(l, nil),
		Roster:         query.NewGetSessionRosterHandler(l, dir),
		HealthChecker:  health,
		Logger:         log,
		TracerProvider: tp,
		Version:        cfg.App.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. RUN UNTIL SIGNAL
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	if sched != nil {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				log.Warn("failed to stop scheduler", logger.Err(err))
			}
		}()
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining requests...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	log.Info("attendance daemon is running", logger.String("address", cfg.HTTP.Addr))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("attendance daemon stopped gracefully")
	return nil
}

// openStore connects the configured backend, retrying transient failures.
func openStore(ctx context.Context, cfg *config.Config) (guarded.Backend, error) {
	var backend guarded.Backend
	err := retry.StoreConnectRetrier(cfg.Storage.ConnectAttempts).Do(ctx, func(ctx context.Context) error {
		var err error
		switch cfg.Storage.Driver {
		case config.StorageMemory:
			backend = memory.New()
		case config.StorageSQLite:
			backend, err = sqlite.Open(ctx, cfg.Storage.SQLitePath)
		case config.StorageRedis:
			rc := redis.DefaultConfig()
			rc.URL = cfg.Storage.RedisURL
			rc.Prefix = cfg.Storage.RedisPrefix
			backend, err = redis.NewKVStore(ctx, rc)
		case config.StoragePostgres:
			backend, err = openPostgres(ctx, cfg)
		default:
			return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return backend, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (guarded.Backend, error) {
	opts := postgres.DefaultPoolOptions()
	if cfg.Storage.MaxConns > 0 {
		opts.MaxConns = cfg.Storage.MaxConns
	}
	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Storage.PostgresURL, opts)
	if err != nil {
		return nil, err
	}
	if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return postgres.NewKVStore(conn, cfg.Storage.QueryTimeout), nil
}

// eventBus is what the daemon needs from either bus implementation.
type eventBus interface {
	shared.EventBus
	Close() error
}

func openEventBus(ctx context.Context, cfg *config.Config, log *logger.Logger) (eventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.WorkerPoolSize = cfg.Events.Workers
	local.Logger = log.With(logger.Component("eventbus"))

	switch cfg.Events.Driver {
	case config.EventsRedis:
		client, err := messaging.NewGoRedisClient(ctx, cfg.Events.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         client,
			ChannelName:    cfg.Events.Channel,
			LocalBusConfig: local,
			Logger:         local.Logger,
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return bus, nil
	default:
		return messaging.NewInMemoryEventBus(local), nil
	}
}
