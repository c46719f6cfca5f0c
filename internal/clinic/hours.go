package clinic

import (
	"errors"
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var ErrInvalidSchedule = errors.New("invalid clinic schedule")

// DayHours is one day's working window in 24-hour clock time.
type DayHours struct {
	Open  string `json:"open"`  // "09:00"
	Close string `json:"close"` // "17:00"
}

// BusinessHours holds working hours per weekday. A nil day is closed.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

func (b BusinessHours) ForWeekday(day time.Weekday) *DayHours {
	switch day {
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	case time.Sunday:
		return b.Sunday
	}
	return nil
}

func (b BusinessHours) days() []*DayHours {
	return []*DayHours{b.Monday, b.Tuesday, b.Wednesday, b.Thursday, b.Friday, b.Saturday, b.Sunday}
}

// Schedule is the working configuration a dentist's calendar is resolved against.
type Schedule struct {
	Timezone               string        `json:"timezone"`
	Hours                  BusinessHours `json:"hours"`
	DefaultVisitMinutes    int           `json:"default_visit_minutes"`
	SlotGranularityMinutes int           `json:"slot_granularity_minutes"`
}

// DefaultSchedule is Monday to Friday, 09:00 to 17:00.
func DefaultSchedule(timezone string, visitMinutes, granularityMinutes int) Schedule {
	weekday := func() *DayHours { return &DayHours{Open: "09:00", Close: "17:00"} }
	return Schedule{
		Timezone: timezone,
		Hours: BusinessHours{
			Monday:    weekday(),
			Tuesday:   weekday(),
			Wednesday: weekday(),
			Thursday:  weekday(),
			Friday:    weekday(),
		},
		DefaultVisitMinutes:    visitMinutes,
		SlotGranularityMinutes: granularityMinutes,
	}
}

// Location falls back to UTC when the zone name cannot be loaded.
func (s Schedule) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Window returns the working interval for the calendar day of date in the
// clinic zone. ok is false on a closed day.
func (s Schedule) Window(date time.Time) (open, close time.Time, ok bool) {
	loc := s.Location()
	local := date.In(loc)

	hours := s.Hours.ForWeekday(local.Weekday())
	if hours == nil {
		return time.Time{}, time.Time{}, false
	}

	o, err := time.Parse(ClockLayout, hours.Open)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	c, err := time.Parse(ClockLayout, hours.Close)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	y, m, d := local.Date()
	open = time.Date(y, m, d, o.Hour(), o.Minute(), 0, 0, loc)
	close = time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc)
	if !close.After(open) {
		return time.Time{}, time.Time{}, false
	}
	return open, close, true
}

// ParseDate reads a YYYY-MM-DD calendar date as midnight in the clinic zone.
func (s Schedule) ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, s.Location())
}

// maxScheduleMinutes bounds visit length and slot step to one working day.
const maxScheduleMinutes = 480

func (s Schedule) Validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q", ErrInvalidSchedule, s.Timezone)
	}
	if s.DefaultVisitMinutes <= 0 || s.SlotGranularityMinutes <= 0 {
		return fmt.Errorf("%w: durations must be positive", ErrInvalidSchedule)
	}
	if s.DefaultVisitMinutes > maxScheduleMinutes || s.SlotGranularityMinutes > maxScheduleMinutes {
		return fmt.Errorf("%w: durations must be at most %d minutes", ErrInvalidSchedule, maxScheduleMinutes)
	}
	for _, day := range s.Hours.days() {
		if day == nil {
			continue
		}
		o, err := time.Parse(ClockLayout, day.Open)
		if err != nil {
			return fmt.Errorf("%w: open %q", ErrInvalidSchedule, day.Open)
		}
		c, err := time.Parse(ClockLayout, day.Close)
		if err != nil {
			return fmt.Errorf("%w: close %q", ErrInvalidSchedule, day.Close)
		}
		if !c.After(o) {
			return fmt.Errorf("%w: %s-%s closes before it opens", ErrInvalidSchedule, day.Open, day.Close)
		}
	}
	return nil
}
