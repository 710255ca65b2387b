package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-scheduling/internal/api"
	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/internal/metrics"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("service", "api-server")
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		pgPool       *pgxpool.Pool
		rdb          *redis.Client
		repo         appointment.Repository
		notes        appointment.NotificationLog
		patientStore patient.Store
		locker       redisclient.Locker
	)

	if cfg.PostgresDSN != "" {
		if err := db.MigrateUp(cfg.PostgresDSN); err != nil {
			logger.Error("migration error", "error", err)
			os.Exit(1)
		}

		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			logger.Error("postgres connection error", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")

		repo = appointment.NewPgRepository(pgPool)
		notes = appointment.NewPgNotificationLog(pgPool)
		patientStore = patient.NewPgStore(pgPool)
	} else {
		logger.Warn("POSTGRES_DSN not set, using in-memory stores")
		repo = appointment.NewMemoryRepository()
		notes = appointment.NewMemoryNotificationLog()
		patientStore = patient.NewMemoryStore()
	}

	if cfg.RedisEnabled {
		rdb, err = redisclient.Connect(rootCtx, redisclient.OptionsFromConfig(cfg))
		if err != nil {
			logger.Error("redis connection error", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", "error", err)
			}
		}()
		logger.Info("connected to Redis", "addr", cfg.RedisAddr)
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	} else {
		logger.Warn("redis disabled, doctor-day locks are process-local")
		locker = redisclient.NewLocalLocker(cfg.LockWait)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	patients := patient.NewService(patientStore, logger)
	appointments := appointment.NewService(repo, notes, locker, cfg,
		appointment.WithPatients(patients),
		appointment.WithLogger(logger),
		appointment.WithMetrics(metrics.NewSchedulingMetrics(reg)),
	)

	var limiter *api.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		go limiter.Run(rootCtx)
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Appointments: appointments,
			Patients:     patients,
			Logger:       logger,
			Gatherer:     reg,
			RateLimiter:  limiter,
			PgPool:       pgPool,
			Redis:        rdb,
			Env:          cfg.Env,
			Version:      version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
