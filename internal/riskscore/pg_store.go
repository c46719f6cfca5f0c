package riskscore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgScoreStore struct {
	db dbtx
}

func NewPgScoreStore(pool *pgxpool.Pool) *PgScoreStore {
	return &PgScoreStore{db: pool}
}

func newPgScoreStoreWithDB(db dbtx) *PgScoreStore {
	return &PgScoreStore{db: db}
}

func (s *PgScoreStore) ListTargets(ctx context.Context, from, to time.Time) ([]Target, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, patient_id, scheduled_start
		FROM appointments
		WHERE scheduled_start >= $1
		  AND scheduled_start < $2
		  AND status <> 'cancelled'
		ORDER BY scheduled_start
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.AppointmentID, &t.PatientID, &t.ScheduledStart); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// PatientHistory treats a past appointment that was never checked in as a
// no-show.
func (s *PgScoreStore) PatientHistory(ctx context.Context, patientID uuid.UUID, before time.Time) (History, error) {
	var h History
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE status = 'scheduled'),
		       count(*)
		FROM appointments
		WHERE patient_id = $1
		  AND scheduled_end <= $2
		  AND status <> 'cancelled'
	`, patientID, before).Scan(&h.NoShows, &h.Total)
	return h, err
}

func (s *PgScoreStore) SetScore(ctx context.Context, appointmentID uuid.UUID, score float64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET no_show_score = $2,
		    updated_at = now()
		WHERE id = $1
	`, appointmentID, score)
	return err
}
