// Package main is admissionctl, the operator CLI of the admissions service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/academic-erp/erp-backend/config"
	"github.com/academic-erp/erp-backend/internal/application/command"
	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/student"
	"github.com/academic-erp/erp-backend/internal/infrastructure/persistence/memory"
	"github.com/academic-erp/erp-backend/internal/infrastructure/persistence/postgres"
	"github.com/academic-erp/erp-backend/internal/infrastructure/persistence/redis"
	"github.com/academic-erp/erp-backend/internal/interface/cli"
	"github.com/academic-erp/erp-backend/pkg/circuitbreaker"
	"github.com/academic-erp/erp-backend/pkg/logger"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(open, version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// open connects to the storage named by the environment.
func open(ctx context.Context) (*cli.Runtime, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	log := logger.New(logger.Options{Output: os.Stderr, Level: logger.ParseLevel(cfg.Observability.LogLevel)})
	classifier := admission.NewProgramClassifier()
	allocator := admission.NewSequenceAllocator(admission.DefaultDepartmentRanges())
	handlerCfg := command.AdmitStudentHandlerConfig{
		MaxAttempts: cfg.Admission.MaxAttempts,
		RetryDelay:  cfg.Admission.RetryDelay,
		TxTimeout:   cfg.Admission.TxTimeout,
		Logger:      log,
	}

	if !cfg.UsesPostgres() {
		// Useful only for trying the commands; nothing outlives the process.
		store := memory.NewStore()
		if _, err := store.Seed(ctx, student.DefaultPrograms()); err != nil {
			return nil, nil, err
		}
		return &cli.Runtime{
			Seeder:     store,
			Admissions: command.NewAdmitStudentHandler(store, classifier, allocator, nil, handlerCfg),
		}, func() {}, nil
	}

	pc := postgres.DefaultConfig()
	pc.URL = cfg.Database.URL
	pc.ConnectTimeout = cfg.Database.ConnectTimeout
	conn, err := postgres.NewConnection(ctx, pc)
	if err != nil {
		return nil, nil, err
	}
	release := []func(){conn.Close}

	rt := &cli.Runtime{
		Migrator: postgres.NewMigrator(conn),
		Seeder:   postgres.NewDomainRepository(conn),
		Admissions: command.NewAdmitStudentHandler(
			postgres.NewAdmissionStore(conn, cfg.Admission.LockTimeout),
			classifier, allocator, nil, handlerCfg),
	}

	if cfg.Redis.Enabled {
		rc := redis.DefaultConfig()
		rc.URL, rc.Host, rc.Port = cfg.Redis.URL, cfg.Redis.Host, cfg.Redis.Port
		rc.Password, rc.DB = cfg.Redis.Password, cfg.Redis.DB
		if cache, err := redis.NewCache(ctx, rc); err != nil {
			log.Warn("redis unavailable, cached programs not invalidated", logger.Err(err))
		} else {
			rt.DomainCache = redis.NewLookupCache(cache, circuitbreaker.CacheBreaker(nil))
			release = append(release, func() { _ = cache.Close() })
		}
	}

	return rt, func() {
		for i := len(release) - 1; i >= 0; i-- {
			release[i]()
		}
	}, nil
}
