package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/api"
	"github.com/hackgods/dental-slot-booking/internal/appointment"
	"github.com/hackgods/dental-slot-booking/internal/clinic"
	"github.com/hackgods/dental-slot-booking/internal/config"
	"github.com/hackgods/dental-slot-booking/internal/db"
	"github.com/hackgods/dental-slot-booking/internal/events"
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

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
		zap.String("clinic_timezone", cfg.ClinicTimezone),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewBookingMetrics(reg)

	// Calendar store
	var (
		repo   appointment.Repository
		pgPool *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PgMaxConns)
		cancelPg()
		if err != nil {
			logger.Fatal("postgres connection error", zap.Error(err))
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")
		repo = appointment.NewPgRepository(pgPool)
	default:
		logger.Warn("using in-memory calendar store, data is lost on restart")
		repo = appointment.NewMemRepository()
	}

	// Redis backs the day lock, clinic hours and the calendar bus when present.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis")
	}

	fallback := clinic.DefaultSchedule(cfg.ClinicTimezone, cfg.DefaultVisitMinutes, cfg.SlotGranularityMinutes)

	var (
		locker   redisclient.Locker
		hours    clinic.Source
		hoursAPI api.HoursStore
		calendar events.Subscriber
		pubs     events.Multi
	)
	if rdb != nil {
		locker = redisclient.NewRedisDayLocker(rdb, cfg.LockTTL, cfg.LockWait)
		store := clinic.NewStore(rdb, fallback)
		hours, hoursAPI = store, store
		bus := events.NewRedisBus(rdb, events.DefaultChannel, logger)
		calendar = bus
		pubs = append(pubs, bus)
	} else {
		locker = redisclient.NewLocalDayLocker()
		hours = clinic.StaticSource{Schedule: fallback}
		bus := events.NewLocalBus(0)
		calendar = bus
		pubs = append(pubs, bus)
	}

	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal("rabbitmq connection error", zap.Error(err))
		}
		defer func() { _ = conn.Close() }()

		publisher, err := events.NewAMQPPublisher(conn, events.DefaultExchange, logger)
		if err != nil {
			logger.Fatal("rabbitmq publisher error", zap.Error(err))
		}
		defer func() { _ = publisher.Close() }()
		pubs = append(pubs, publisher)
		logger.Info("publishing calendar changes to RabbitMQ", zap.String("exchange", events.DefaultExchange))
	}

	notifier, err := notify.NewDispatcherFromConfig(rootCtx, cfg, m, logger)
	if err != nil {
		logger.Fatal("notification setup error", zap.Error(err))
	}

	svc := appointment.NewService(repo, locker, hours, cfg,
		appointment.WithPublisher(pubs),
		appointment.WithNotifier(notifier),
		appointment.WithMetrics(m),
		appointment.WithLogger(logger),
	)

	router := api.NewRouter(api.RouterConfig{
		Service:            svc,
		Location:           cfg.Location(),
		Hours:              hoursAPI,
		Calendar:           calendar,
		Metrics:            m,
		Gatherer:           reg,
		PgPool:             pgPool,
		Redis:              rdb,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Env:                cfg.Env,
		Version:            cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}

	// let detached waitlist notifications finish before closing the store
	svc.Wait()
	logger.Info("api-server stopped")
}
