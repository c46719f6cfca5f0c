package appointment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conflictReason(t *testing.T, err error) ConflictReason {
	t.Helper()
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict), "expected ConflictError, got %v", err)
	return conflict.Reason
}

func TestValidateBoundaryAtClose(t *testing.T) {
	f := newFixture(t)
	v := f.validator()
	ctx := context.Background()

	err := v.Validate(ctx, Proposal{DentistID: f.dentist.ID, Start: at(testDate, "16:30"), DurationMinutes: 30})
	assert.NoError(t, err)

	err = v.Validate(ctx, Proposal{DentistID: f.dentist.ID, Start: at(testDate, "16:31"), DurationMinutes: 30})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Equal(t, ReasonOutsideWorkingHours, conflictReason(t, err))
}

func TestValidateRejectsOversizedDuration(t *testing.T) {
	f := newFixture(t)
	v := f.validator()
	ctx := context.Background()

	for _, minutes := range []int{MaxVisitMinutes + 1, 200000000, 1 << 40} {
		err := v.Validate(ctx, Proposal{DentistID: f.dentist.ID, Start: at(testDate, "10:00"), DurationMinutes: minutes, IgnoreWorkingHours: true})
		assert.ErrorIs(t, err, ErrInvalidInput, "minutes=%d", minutes)
	}
}

func TestValidateBeforeOpenAndClosedDay(t *testing.T) {
	f := newFixture(t)
	v := f.validator()
	ctx := context.Background()

	err := v.Validate(ctx, Proposal{DentistID: f.dentist.ID, Start: at(testDate, "08:45"), DurationMinutes: 30})
	assert.Equal(t, ReasonOutsideWorkingHours, conflictReason(t, err))

	err = v.Validate(ctx, Proposal{DentistID: f.dentist.ID, Start: at("2030-01-13", "10:00"), DurationMinutes: 30})
	assert.Equal(t, ReasonOutsideWorkingHours, conflictReason(t, err))
}

func TestValidateAppointmentOverlap(t *testing.T) {
	f := newFixture(t)
	existing := f.book(t, "10:00", 30)
	v := f.validator()
	ctx := context.Background()

	tests := []struct {
		name    string
		start   string
		minutes int
		wantErr bool
	}{
		{name: "same start", start: "10:00", minutes: 30, wantErr: true},
		{name: "runs into it", start: "09:45", minutes: 30, wantErr: true},
		{name: "starts inside", start: "10:15", minutes: 15, wantErr: true},
		{name: "ends exactly at start", start: "09:30", minutes: 30},
		{name: "starts exactly at end", start: "10:30", minutes: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(ctx, Proposal{DentistID: f.dentist.ID, Start: at(testDate, tt.start), DurationMinutes: tt.minutes})
			if tt.wantErr {
				assert.Equal(t, ReasonOverlapsAppointment, conflictReason(t, err))
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("excluding itself", func(t *testing.T) {
		err := v.Validate(ctx, Proposal{
			DentistID:            f.dentist.ID,
			Start:                at(testDate, "10:15"),
			DurationMinutes:      30,
			ExcludeAppointmentID: &existing.ID,
		})
		assert.NoError(t, err)
	})
}

func TestValidateBlockedRange(t *testing.T) {
	f := newFixture(t)
	f.block(t, "12:00", "13:00")

	err := f.validator().Validate(context.Background(), Proposal{DentistID: f.dentist.ID, Start: at(testDate, "11:45"), DurationMinutes: 30})
	assert.Equal(t, ReasonOverlapsBlockedRange, conflictReason(t, err))
}

func TestValidateFirstRuleWins(t *testing.T) {
	f := newFixture(t)
	f.book(t, "16:30", 30)
	f.block(t, "16:00", "17:00")

	// outside hours, over a booking and over a block at once
	err := f.validator().Validate(context.Background(), Proposal{DentistID: f.dentist.ID, Start: at(testDate, "16:45"), DurationMinutes: 30})
	assert.Equal(t, ReasonOutsideWorkingHours, conflictReason(t, err))
}

func TestValidateAdminOverride(t *testing.T) {
	f := newFixture(t)
	v := f.validator()
	ctx := context.Background()

	err := v.Validate(ctx, Proposal{DentistID: f.dentist.ID, Start: at(testDate, "18:00"), DurationMinutes: 30, IgnoreWorkingHours: true})
	assert.NoError(t, err)

	f.block(t, "18:00", "19:00")
	err = v.Validate(ctx, Proposal{DentistID: f.dentist.ID, Start: at(testDate, "18:00"), DurationMinutes: 30, IgnoreWorkingHours: true})
	assert.Equal(t, ReasonOverlapsBlockedRange, conflictReason(t, err))
}

func TestValidateOtherDentistDoesNotConflict(t *testing.T) {
	f := newFixture(t)
	f.book(t, "10:00", 30)

	other := Dentist{ID: uuid.New(), Name: "Dr. Lind"}
	f.repo.PutDentist(other)

	err := f.validator().Validate(context.Background(), Proposal{DentistID: other.ID, Start: at(testDate, "10:00"), DurationMinutes: 30})
	assert.NoError(t, err)
}
