// Package riskscore estimates how likely a booked patient is to miss their
// visit. Scores are written back to appointments.no_show_score by an offline
// batch and only read by the booking core.
package riskscore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/logging"
)

const (
	// noHistoryRisk is used for patients with no past appointments.
	noHistoryRisk = 0.1
	historyWeight = 0.7
	hourWeight    = 0.3
)

// Score combines the patient's past no-show rate with the hour of day of the
// appointment. Later hours score higher. The result is clamped to [0, 1].
func Score(noShows, total, hour int) float64 {
	base := noHistoryRisk
	if total > 0 {
		base = float64(noShows) / float64(total)
	}
	s := base*historyWeight + float64(hour)/24*hourWeight
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Target is an appointment waiting for a score.
type Target struct {
	AppointmentID  uuid.UUID
	PatientID      uuid.UUID
	ScheduledStart time.Time
}

// History counts a patient's past appointments before a cutoff.
type History struct {
	NoShows int
	Total   int
}

type ScoreStore interface {
	ListTargets(ctx context.Context, from, to time.Time) ([]Target, error)
	PatientHistory(ctx context.Context, patientID uuid.UUID, before time.Time) (History, error)
	SetScore(ctx context.Context, appointmentID uuid.UUID, score float64) error
}

type Batch struct {
	store  ScoreStore
	loc    *time.Location
	logger *zap.Logger
}

func NewBatch(store ScoreStore, loc *time.Location, logger *zap.Logger) *Batch {
	if loc == nil {
		loc = time.UTC
	}
	return &Batch{store: store, loc: loc, logger: logging.OrNop(logger)}
}

// Run scores every non-cancelled appointment on the clinic-local day
// containing day. History is counted up to the start of that day. A failed
// write is logged and the batch carries on; it returns how many were scored.
func (b *Batch) Run(ctx context.Context, day time.Time) (int, error) {
	local := day.In(b.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, b.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	targets, err := b.store.ListTargets(ctx, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("list score targets: %w", err)
	}

	histories := make(map[uuid.UUID]History)
	scored := 0
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return scored, err
		}

		h, ok := histories[t.PatientID]
		if !ok {
			h, err = b.store.PatientHistory(ctx, t.PatientID, dayStart)
			if err != nil {
				return scored, fmt.Errorf("patient history: %w", err)
			}
			histories[t.PatientID] = h
		}

		score := Score(h.NoShows, h.Total, t.ScheduledStart.In(b.loc).Hour())
		if err := b.store.SetScore(ctx, t.AppointmentID, score); err != nil {
			b.logger.Warn("failed to store no-show score",
				zap.String("appointment_id", t.AppointmentID.String()),
				zap.Error(err),
			)
			continue
		}
		scored++
	}

	b.logger.Info("no-show scoring finished",
		zap.String("date", dayStart.Format("2006-01-02")),
		zap.Int("appointments", len(targets)),
		zap.Int("scored", scored),
	)
	return scored, nil
}
