// Package main runs the admissions API: it admits students into programs and
// issues their roll numbers, and serves the read side of the student register.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/academic-erp/erp-backend/config"

	// Application layer
	"github.com/academic-erp/erp-backend/internal/application/command"
	"github.com/academic-erp/erp-backend/internal/application/query"

	// Domain layer
	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/shared"
	"github.com/academic-erp/erp-backend/internal/domain/student"

	// Infrastructure layer
	"github.com/academic-erp/erp-backend/internal/infrastructure/messaging"
	"github.com/academic-erp/erp-backend/internal/infrastructure/metrics"
	"github.com/academic-erp/erp-backend/internal/infrastructure/persistence/memory"
	"github.com/academic-erp/erp-backend/internal/infrastructure/persistence/postgres"
	"github.com/academic-erp/erp-backend/internal/infrastructure/persistence/redis"
	"github.com/academic-erp/erp-backend/internal/infrastructure/scheduler"
	"github.com/academic-erp/erp-backend/internal/infrastructure/scheduler/jobs"

	// Interface layer
	httpserver "github.com/academic-erp/erp-backend/internal/interface/http"
	"github.com/academic-erp/erp-backend/internal/interface/http/handlers"

	// Packages
	"github.com/academic-erp/erp-backend/pkg/circuitbreaker"
	"github.com/academic-erp/erp-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

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

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING & METRICS
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting admissions service",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("storage", cfg.App.StorageDriver),
	)

	m := metrics.New(cfg.Observability.RuntimeMetrics)
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()
	if store.health != nil {
		health.AddDetailedCheck(cfg.App.StorageDriver, store.health)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache  *redis.Cache
		lookupCache *redis.LookupCache
	)
	if cfg.Redis.Enabled {
		redisCache, err = redis.NewCache(ctx, redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("redis unavailable, caching disabled", logger.Err(err))
		} else {
			defer redisCache.Close()
			breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
				log.Warn("cache breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
				m.SetBreakerState(name, int(to))
			})
			lookupCache = redis.NewLookupCache(redisCache, breaker)
			health.AddNonCriticalCheck("redis", handlers.NewPingCheck(redisCache))
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log.Slog()
	busConfig.Metrics = m
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus")
		_ = bus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	classifier := admission.NewProgramClassifier()
	allocator := admission.NewSequenceAllocator(admission.DefaultDepartmentRanges())

	admitHandler := command.NewAdmitStudentHandler(store.uow, classifier, allocator, bus, command.AdmitStudentHandlerConfig{
		MaxAttempts: cfg.Admission.MaxAttempts,
		RetryDelay:  cfg.Admission.RetryDelay,
		TxTimeout:   cfg.Admission.TxTimeout,
		Metrics:     m,
		Logger:      log,
	})

	var (
		studentCache query.StudentCache
		domainCache  query.DomainCache
	)
	if lookupCache != nil {
		studentCache = lookupCache
		domainCache = lookupCache
	}
	studentQueries := query.NewStudentQueries(store.students, studentCache, log)
	domainQueries := query.NewDomainQueries(store.programs, store.usage, classifier, allocator, domainCache, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	if err := registerEventHandlers(bus, cfg, redisCache, studentQueries, studentCache != nil, log); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(scheduler.Config{
			Logger:     log,
			Metrics:    m,
			Tick:       time.Second,
			JobTimeout: cfg.Scheduler.SeatUsageInterval,
			RunOnStart: true,
		})
		seatUsage := jobs.NewSeatUsageJob(domainQueries, m, log, jobs.SeatUsageConfig{
			LowWatermark: cfg.Scheduler.SeatLowWatermark,
		})
		if err := sched.Register(seatUsage, &scheduler.IntervalSchedule{
			Interval: cfg.Scheduler.SeatUsageInterval,
			Align:    true,
		}); err != nil {
			return fmt.Errorf("failed to register seat usage job: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	server, err := httpserver.NewServer(httpConfig(cfg), httpserver.Dependencies{
		Admissions:    admitHandler,
		Students:      studentQueries,
		Domains:       domainQueries,
		HealthChecker: health,
		Metrics:       m,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. RUN & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	if sched != nil {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if sched != nil {
			_ = sched.Stop()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop HTTP server gracefully: %w", err)
		}
		return nil
	})

	log.Info("admissions service is running", logger.String("http_address", server.Address()))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("service stopped with error", logger.Err(err))
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// storage bundles the ports the application layer needs from one backend.
type storage struct {
	uow      admission.UnitOfWork
	usage    admission.UsageReader
	students student.Repository
	programs student.ProgramRepository

	health handlers.DetailedCheckFunc
	close  func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	if !cfg.UsesPostgres() {
		store := memory.NewStore()
		added, err := store.Seed(ctx, student.DefaultPrograms())
		if err != nil {
			return nil, fmt.Errorf("failed to seed programs: %w", err)
		}
		log.Warn("using in-memory storage, data is lost on restart", logger.Int("programs", added))
		return &storage{
			uow:      store,
			usage:    store,
			students: store,
			programs: store.Programs(),
			close:    func() {},
		}, nil
	}

	log.Info("connecting to database")
	conn, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed", logger.Int("applied", applied))
	}

	domains := postgres.NewDomainRepository(conn)
	if cfg.Database.SeedDomains {
		added, err := domains.Seed(ctx, student.DefaultPrograms())
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to seed programs: %w", err)
		}
		log.Info("programs seeded", logger.Int("added", added))
	}

	admissions := postgres.NewAdmissionStore(conn, cfg.Admission.LockTimeout)
	log.Info("database connection established")

	return &storage{
		uow:      admissions,
		usage:    admissions,
		students: postgres.NewStudentRepository(conn),
		programs: domains,
		health:   conn.HealthCheck,
		close: func() {
			log.Info("closing database connection")
			conn.Close()
		},
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

const eventHandlerTimeout = 2 * time.Second

func registerEventHandlers(
	bus *messaging.InMemoryEventBus,
	cfg *config.Config,
	redisCache *redis.Cache,
	students *query.StudentQueries,
	warmCache bool,
	log *logger.Logger,
) error {
	if redisCache != nil && cfg.Redis.PublishEvents {
		publisher := redis.NewEventPublisher(redisCache, eventHandlerTimeout)
		if err := bus.SubscribeAll(publisher.Handle); err != nil {
			return err
		}
	}

	if warmCache {
		err := bus.Subscribe(shared.EventStudentAdmitted, func(e shared.Event) error {
			var id int64
			switch ev := e.(type) {
			case shared.StudentAdmittedEvent:
				id = ev.StudentID
			case *shared.StudentAdmittedEvent:
				id = ev.StudentID
			default:
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), eventHandlerTimeout)
			defer cancel()
			_, err := students.GetStudent(ctx, id)
			return err
		})
		if err != nil {
			return err
		}
	}

	return bus.Subscribe(shared.EventSeatRangeExhausted, func(e shared.Event) error {
		log.Warn("seat range exhausted", logger.String("aggregate", e.AggregateID()))
		return nil
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug && opts.Level > logger.LevelDebug {
		opts.Level = logger.LevelDebug
	}

	log := logger.New(opts).With(
		logger.String("service", cfg.App.Name),
	)
	slog.SetDefault(log.Slog())
	return log
}

func postgresConfig(c config.DatabaseConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = c.URL
	pc.MaxConns = int32(c.MaxConns)
	pc.MinConns = int32(c.MinConns)
	pc.MaxConnLifetime = c.ConnMaxLifetime
	pc.MaxConnIdleTime = c.ConnMaxIdleTime
	pc.ConnectTimeout = c.ConnectTimeout
	return pc
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

func httpConfig(cfg *config.Config) httpserver.Config {
	hc := httpserver.DefaultConfig()
	hc.Host = cfg.HTTP.Host
	hc.Port = cfg.HTTP.Port
	hc.ReadTimeout = cfg.HTTP.ReadTimeout
	hc.WriteTimeout = cfg.HTTP.WriteTimeout
	hc.IdleTimeout = cfg.HTTP.IdleTimeout
	hc.RequestTimeout = cfg.HTTP.RequestTimeout
	hc.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	hc.EnableCORS = cfg.HTTP.EnableCORS
	hc.AllowedOrigins = cfg.HTTP.AllowedOrigins
	hc.EnableMetrics = cfg.Observability.MetricsEnabled
	hc.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	hc.TrustProxyHeaders = cfg.HTTP.TrustProxyHeaders
	hc.APIKeyHeader = cfg.HTTP.APIKeyHeader
	hc.APIKeyHashes = cfg.HTTP.APIKeyHashes
	hc.Version = cfg.App.Version
	return hc
}
