package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/appointment"
	"github.com/hackgods/dental-slot-booking/internal/clinic"
	"github.com/hackgods/dental-slot-booking/internal/config"
	"github.com/hackgods/dental-slot-booking/internal/db"
	"github.com/hackgods/dental-slot-booking/internal/logging"
	"github.com/hackgods/dental-slot-booking/internal/metrics"
	"github.com/hackgods/dental-slot-booking/internal/notify"
	redisclient "github.com/hackgods/dental-slot-booking/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	if cfg.StoreDriver != config.StoreDriverPostgres {
		logger.Fatal("reminder-worker needs STORE_DRIVER=postgres", zap.String("store", cfg.StoreDriver))
	}

	logger.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.String("clinic_timezone", cfg.ClinicTimezone),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PgMaxConns)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	var guard *redisclient.DailyGuard
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis")
		guard = redisclient.NewDailyGuard(rdb, "reminders:sent", 48*time.Hour)
	} else {
		logger.Warn("redis disabled, reminders are not deduplicated across replicas")
	}

	notifier, err := notify.NewDispatcherFromConfig(rootCtx, cfg, metrics.NewBookingMetrics(nil), logger)
	if err != nil {
		logger.Fatal("notification setup error", zap.Error(err))
	}

	loc := cfg.Location()
	w := &worker{
		reminders: appointment.NewReminderSender(appointment.NewPgRepository(pgPool), notifier, loc, logger),
		guard:     guard,
		loc:       loc,
		logger:    logger,
		sent:      make(map[string]bool),
	}

	// Run once at startup
	w.runOnce(rootCtx)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			w.runOnce(rootCtx)
		}
	}
}

type worker struct {
	reminders *appointment.ReminderSender
	guard     *redisclient.DailyGuard
	loc       *time.Location
	logger    *zap.Logger
	sent      map[string]bool // used when redis is disabled
}

// runOnce sends reminders for tomorrow's visits, once per clinic day.
func (w *worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	tomorrow := time.Now().In(w.loc).AddDate(0, 0, 1)
	day := tomorrow.Format(clinic.DateLayout)
	log := w.logger.With(zap.String("date", day))

	if w.guard != nil {
		ok, err := w.guard.Claim(runCtx, day)
		if err != nil {
			log.Error("reminder claim failed", zap.Error(err))
			return
		}
		if !ok {
			log.Debug("reminders already sent")
			return
		}
	} else if w.sent[day] {
		return
	}

	start := time.Now()
	n, err := w.reminders.SendForDate(runCtx, tomorrow)
	if err != nil {
		log.Error("reminder run error", zap.Error(err))
		if w.guard != nil {
			if relErr := w.guard.Release(context.WithoutCancel(ctx), day); relErr != nil {
				log.Warn("reminder claim release failed", zap.Error(relErr))
			}
		}
		return
	}
	w.sent[day] = true

	log.Info("reminder run completed", zap.Int("sent", n), zap.Duration("took", time.Since(start)))
}
