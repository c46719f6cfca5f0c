package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
	"github.com/hackgods/dental-slot-booking/internal/config"
	"github.com/hackgods/dental-slot-booking/internal/db"
	"github.com/hackgods/dental-slot-booking/internal/logging"
	"github.com/hackgods/dental-slot-booking/internal/riskscore"
)

func main() {
	dateFlag := flag.String("date", "", "clinic day to score (YYYY-MM-DD), defaults to tomorrow")
	flag.Parse()

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
		logger.Fatal("score-no-shows needs STORE_DRIVER=postgres", zap.String("store", cfg.StoreDriver))
	}

	loc := cfg.Location()
	day := time.Now().In(loc).AddDate(0, 0, 1)
	if *dateFlag != "" {
		day, err = time.ParseInLocation(clinic.DateLayout, *dateFlag, loc)
		if err != nil {
			logger.Fatal("invalid -date", zap.String("date", *dateFlag), zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PgMaxConns)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pool.Close()

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	start := time.Now()
	batch := riskscore.NewBatch(riskscore.NewPgScoreStore(pool), loc, logger)
	n, err := batch.Run(runCtx, day)
	if err != nil {
		logger.Fatal("no-show scoring failed", zap.Error(err))
	}

	logger.Info("no-show scoring complete",
		zap.String("date", day.Format(clinic.DateLayout)),
		zap.Int("scored", n),
		zap.Duration("took", time.Since(start)),
	)
}
