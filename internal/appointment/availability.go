package appointment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
)

// SlotQuery asks for the open start times of one dentist on one date.
// Zero granularity or duration use the clinic defaults.
type SlotQuery struct {
	DentistID          uuid.UUID
	Date               string // YYYY-MM-DD in the clinic zone
	GranularityMinutes int
	DurationMinutes    int
}

// Engine computes availability from working hours, appointments and blocks.
// It keeps no state between calls.
type Engine struct {
	repo  Repository
	hours clinic.Source
	now   func() time.Time
}

func NewEngine(repo Repository, hours clinic.Source, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{repo: repo, hours: hours, now: now}
}

type dayView struct {
	slots []Slot
	appts []Appointment
}

// ComputeSlots returns bookable slots in ascending order. Past dates, closed
// days and fully booked days all yield an empty result.
func (e *Engine) ComputeSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	view, err := e.computeDay(ctx, q)
	if err != nil {
		return nil, err
	}
	return view.slots, nil
}

func (e *Engine) computeDay(ctx context.Context, q SlotQuery) (dayView, error) {
	if q.DentistID == uuid.Nil {
		return dayView{}, fmt.Errorf("%w: dentist id is required", ErrInvalidInput)
	}
	if q.GranularityMinutes < 0 || q.DurationMinutes < 0 {
		return dayView{}, fmt.Errorf("%w: granularity and duration must be positive", ErrInvalidInput)
	}
	if q.GranularityMinutes > MaxVisitMinutes || q.DurationMinutes > MaxVisitMinutes {
		return dayView{}, fmt.Errorf("%w: granularity and duration must be at most %d minutes", ErrInvalidInput, MaxVisitMinutes)
	}

	sched, err := e.hours.ScheduleFor(ctx, q.DentistID)
	if err != nil {
		return dayView{}, storageErr("load schedule", err)
	}

	day, err := sched.ParseDate(q.Date)
	if err != nil {
		return dayView{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}

	loc := sched.Location()
	now := e.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if day.Before(today) {
		return dayView{}, nil
	}

	open, close, ok := sched.Window(day)
	if !ok {
		return dayView{}, nil
	}

	granularity := q.GranularityMinutes
	if granularity == 0 {
		granularity = sched.SlotGranularityMinutes
	}
	duration := q.DurationMinutes
	if duration == 0 {
		duration = sched.DefaultVisitMinutes
	}
	if checkVisitMinutes(granularity) != nil || checkVisitMinutes(duration) != nil {
		return dayView{}, fmt.Errorf("%w: schedule has no usable slot granularity or visit length", ErrInvalidInput)
	}
	step := time.Duration(granularity) * time.Minute
	length := time.Duration(duration) * time.Minute

	appts, err := e.repo.ListBlockingAppointments(ctx, q.DentistID, open, close)
	if err != nil {
		return dayView{}, err
	}
	blocks, err := e.repo.ListBlockedRanges(ctx, q.DentistID, open, close)
	if err != nil {
		return dayView{}, err
	}

	busy := make([]interval, 0, len(appts)+len(blocks))
	for _, a := range appts {
		busy = append(busy, interval{start: a.ScheduledStart, end: a.ScheduledEnd()})
	}
	for _, b := range blocks {
		busy = append(busy, interval{start: b.Start, end: b.End})
	}
	busy = mergeIntervals(busy)

	isToday := day.Equal(today)
	slots := make([]Slot, 0)
	next := 0
	for t := open; !t.Add(length).After(close); t = t.Add(step) {
		if isToday && t.Before(now) {
			continue
		}
		end := t.Add(length)

		// busy is sorted and disjoint, so intervals ending at or before t
		// can never affect a later candidate.
		for next < len(busy) && !busy[next].end.After(t) {
			next++
		}
		if next < len(busy) && busy[next].start.Before(end) {
			continue
		}

		slots = append(slots, Slot{
			DentistID:       q.DentistID,
			Date:            t.Format(clinic.DateLayout),
			Time:            t.Format(clinic.ClockLayout),
			Start:           t,
			DurationMinutes: duration,
		})
	}

	return dayView{slots: slots, appts: appts}, nil
}

type interval struct {
	start, end time.Time
}

// mergeIntervals sorts and collapses overlapping or touching intervals.
func mergeIntervals(in []interval) []interval {
	if len(in) == 0 {
		return in
	}
	sort.Slice(in, func(i, j int) bool { return in[i].start.Before(in[j].start) })

	merged := []interval{in[0]}
	for _, iv := range in[1:] {
		last := &merged[len(merged)-1]
		if !iv.start.After(last.end) {
			if iv.end.After(last.end) {
				last.end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}
