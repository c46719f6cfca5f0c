package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
	"github.com/hackgods/dental-slot-booking/internal/config"
	"github.com/hackgods/dental-slot-booking/internal/db"
	"github.com/hackgods/dental-slot-booking/internal/logging"
	redisclient "github.com/hackgods/dental-slot-booking/internal/redis"
)

func main() {
	dentists := flag.Int("dentists", 10, "number of dentists to create")
	patients := flag.Int("patients", 2000, "number of patients to create")
	waitlist := flag.Int("waitlist", 50, "number of waitlist entries to create")
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
		logger.Fatal("seed needs STORE_DRIVER=postgres", zap.String("store", cfg.StoreDriver))
	}
	logger.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PgMaxConns)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())
	s := &seeder{pool: pool, logger: logger}

	dentistIDs, err := s.seedDentists(context.Background(), *dentists)
	if err != nil {
		logger.Fatal("seed dentists", zap.Error(err))
	}
	patientIDs, err := s.seedPatients(context.Background(), *patients)
	if err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}
	if err := s.seedWaitlist(context.Background(), cfg.Location(), patientIDs, dentistIDs, *waitlist); err != nil {
		logger.Fatal("seed waitlist", zap.Error(err))
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()

		sched := clinic.DefaultSchedule(cfg.ClinicTimezone, cfg.DefaultVisitMinutes, cfg.SlotGranularityMinutes)
		if err := clinic.NewStore(rdb, sched).SaveDefault(context.Background(), sched); err != nil {
			logger.Fatal("seed clinic hours", zap.Error(err))
		}
		logger.Info("clinic hours seeded", zap.String("timezone", sched.Timezone))
	}

	logger.Info("seed complete")
}

type seeder struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func (s *seeder) seedDentists(ctx context.Context, count int) ([]uuid.UUID, error) {
	s.logger.Info("seeding dentists", zap.Int("count", count))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.LastName()
		email := gofakeit.Email()

		_, err := tx.Exec(ctx, `
			INSERT INTO dentists (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, email)
		if err != nil {
			return nil, fmt.Errorf("insert dentist: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *seeder) seedPatients(ctx context.Context, count int) ([]uuid.UUID, error) {
	s.logger.Info("seeding patients", zap.Int("count", count))

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			phone := "+1555" + gofakeit.Numerify("#######")

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, gofakeit.Name(), gofakeit.Email(), phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, fmt.Errorf("insert patient: %w", err)
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		s.logger.Debug("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}
	return ids, nil
}

// seedWaitlist spreads entries over the next two weeks. About a third of
// them ask for a specific dentist.
func (s *seeder) seedWaitlist(ctx context.Context, loc *time.Location, patients, dentists []uuid.UUID, count int) error {
	if len(patients) == 0 || count <= 0 {
		return nil
	}
	s.logger.Info("seeding waitlist", zap.Int("count", count))

	today := time.Now().In(loc)
	for i := 0; i < count; i++ {
		patientID := patients[gofakeit.Number(0, len(patients)-1)]
		date := today.AddDate(0, 0, gofakeit.Number(1, 14)).Format(clinic.DateLayout)

		var dentistID *uuid.UUID
		if len(dentists) > 0 && gofakeit.Number(0, 2) == 0 {
			id := dentists[gofakeit.Number(0, len(dentists)-1)]
			dentistID = &id
		}

		_, err := s.pool.Exec(ctx, `
			INSERT INTO waitlist (id, patient_id, dentist_id, desired_date, created_at)
			VALUES ($1, $2, $3, $4, now())
		`, uuid.New(), patientID, dentistID, date)
		if err != nil {
			return fmt.Errorf("insert waitlist entry: %w", err)
		}
	}
	return nil
}
