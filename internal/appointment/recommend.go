package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
)

const (
	defaultPatientRisk     = 0.5
	defaultRecommendDays   = 7
	defaultRecommendLimit  = 5
	patientHistoryLookback = 20

	MaxRecommendDays  = 60
	MaxRecommendLimit = 50
)

type RecommendQuery struct {
	PatientID uuid.UUID
	DentistID uuid.UUID
	From      string // YYYY-MM-DD, empty means today
	Days      int
	Limit     int
}

type Recommendation struct {
	Slot
	Score       float64
	LoadFactor  float64
	PatientRisk float64
}

// Recommend ranks open slots for a patient. Quiet hours are preferred, and a
// patient with a history of no-shows scores lower everywhere.
func (e *Engine) Recommend(ctx context.Context, q RecommendQuery) ([]Recommendation, error) {
	if q.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidInput)
	}
	if q.Days <= 0 {
		q.Days = defaultRecommendDays
	}
	if q.Limit <= 0 {
		q.Limit = defaultRecommendLimit
	}
	if q.Days > MaxRecommendDays {
		return nil, fmt.Errorf("%w: days must be at most %d", ErrInvalidInput, MaxRecommendDays)
	}
	if q.Limit > MaxRecommendLimit {
		return nil, fmt.Errorf("%w: limit must be at most %d", ErrInvalidInput, MaxRecommendLimit)
	}

	risk, err := e.patientRisk(ctx, q.PatientID)
	if err != nil {
		return nil, err
	}

	sched, err := e.hours.ScheduleFor(ctx, q.DentistID)
	if err != nil {
		return nil, storageErr("load schedule", err)
	}
	from := e.now().In(sched.Location())
	if q.From != "" {
		from, err = sched.ParseDate(q.From)
		if err != nil {
			return nil, fmt.Errorf("%w: from must be YYYY-MM-DD", ErrInvalidInput)
		}
	}

	var recs []Recommendation
	for i := 0; i < q.Days; i++ {
		date := from.AddDate(0, 0, i).Format(clinic.DateLayout)
		view, err := e.computeDay(ctx, SlotQuery{DentistID: q.DentistID, Date: date})
		if err != nil {
			return nil, err
		}
		for _, s := range view.slots {
			load := hourLoad(view.appts, s.Start)
			recs = append(recs, Recommendation{
				Slot:        s,
				Score:       (1 - risk) * (1 - load),
				LoadFactor:  load,
				PatientRisk: risk,
			})
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Start.Before(recs[j].Start)
	})
	if len(recs) > q.Limit {
		recs = recs[:q.Limit]
	}
	return recs, nil
}

func (e *Engine) patientRisk(ctx context.Context, patientID uuid.UUID) (float64, error) {
	history, err := e.repo.ListPatientAppointments(ctx, patientID, patientHistoryLookback)
	if err != nil {
		return 0, err
	}

	var sum float64
	var n int
	for _, a := range history {
		if a.NoShowScore != nil {
			sum += *a.NoShowScore
			n++
		}
	}
	if n == 0 {
		return defaultPatientRisk, nil
	}
	return sum / float64(n), nil
}

// hourLoad is the share of the clock hour containing at that is already booked.
func hourLoad(appts []Appointment, at time.Time) float64 {
	hourStart := time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), 0, 0, 0, at.Location())
	hourEnd := hourStart.Add(time.Hour)

	var booked time.Duration
	for _, a := range appts {
		s, e := a.ScheduledStart, a.ScheduledEnd()
		if !overlaps(s, e, hourStart, hourEnd) {
			continue
		}
		if s.Before(hourStart) {
			s = hourStart
		}
		if e.After(hourEnd) {
			e = hourEnd
		}
		booked += e.Sub(s)
	}

	load := booked.Minutes() / 60
	if load > 1 {
		load = 1
	}
	return load
}
