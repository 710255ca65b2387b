package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	redisclient "github.com/hackgods/clinic-appointment-scheduling/internal/redis"
)

// passLockKey keeps concurrent worker replicas from running the same pass.
const passLockKey = "reminder-pass"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).With("service", "reminder-worker")
	logger.Info("reminder worker starting up", "env", cfg.Env, "interval", cfg.WorkerInterval.String(), "lead", cfg.ReminderLead.String())

	if cfg.PostgresDSN == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// With Redis, replicas skip a pass another replica is running.
	passLocker := redisclient.NewLocalLocker(time.Millisecond)
	if cfg.RedisEnabled {
		rdb, err := redisclient.Connect(rootCtx, redisclient.OptionsFromConfig(cfg))
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
		passLocker = redisclient.NewRedisLocker(rdb, cfg.WorkerInterval, time.Millisecond)
	}

	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		appointment.NewPgNotificationLog(pgPool),
		redisclient.NewLocalLocker(cfg.LockWait),
		cfg,
		appointment.WithLogger(logger),
	)

	runOnce(rootCtx, svc, passLocker, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, passLocker, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, locker redisclient.Locker, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	var sent int
	err := locker.WithLock(runCtx, passLockKey, func(lockCtx context.Context) error {
		var err error
		sent, err = svc.SendDueReminders(lockCtx)
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		logger.Debug("reminder pass already running elsewhere")
	case err != nil:
		logger.Error("reminder run error", "error", err, "sent", sent)
	default:
		logger.Info("reminder run complete", "sent", sent, "duration", time.Since(start).String())
	}
}
