package clinic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleWindow(t *testing.T) {
	sched := DefaultSchedule("America/New_York", 30, 15)

	monday, err := sched.ParseDate("2030-01-07")
	require.NoError(t, err)

	open, close, ok := sched.Window(monday)
	require.True(t, ok)
	assert.Equal(t, 9, open.Hour())
	assert.Equal(t, 17, close.Hour())
	assert.Equal(t, "America/New_York", open.Location().String())

	saturday, err := sched.ParseDate("2030-01-12")
	require.NoError(t, err)
	_, _, ok = sched.Window(saturday)
	assert.False(t, ok)
}

func TestScheduleLocationFallback(t *testing.T) {
	assert.Equal(t, time.UTC, Schedule{}.Location())
	assert.Equal(t, time.UTC, Schedule{Timezone: "Nowhere/Special"}.Location())
}

func TestScheduleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Schedule)
		wantErr bool
	}{
		{name: "default is valid", mutate: func(*Schedule) {}},
		{name: "bad zone", mutate: func(s *Schedule) { s.Timezone = "Nowhere/Special" }, wantErr: true},
		{name: "zero visit", mutate: func(s *Schedule) { s.DefaultVisitMinutes = 0 }, wantErr: true},
		{name: "visit longer than a day", mutate: func(s *Schedule) { s.DefaultVisitMinutes = 481 }, wantErr: true},
		{name: "huge granularity", mutate: func(s *Schedule) { s.SlotGranularityMinutes = 200000000 }, wantErr: true},
		{name: "bad clock", mutate: func(s *Schedule) { s.Hours.Monday.Open = "9am" }, wantErr: true},
		{name: "inverted day", mutate: func(s *Schedule) { s.Hours.Friday = &DayHours{Open: "17:00", Close: "09:00"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := DefaultSchedule("UTC", 30, 15)
			tt.mutate(&sched)
			err := sched.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSchedule)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
