package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/dental-slot-booking/internal/clinic"
)

// SQLSTATE for exclusion_violation, raised by appointments_no_overlap.
const pgExclusionViolation = "23P01"

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db dbtx
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

func newPgRepositoryWithDB(db dbtx) *PgRepository {
	return &PgRepository{db: db}
}

const appointmentColumns = `id, dentist_id, patient_id, scheduled_start, duration_minutes, status,
		       reschedule_requested, no_show_score, notes, created_at, updated_at`

const waitlistColumns = `id, patient_id, dentist_id, desired_date, notified, notified_at, created_at`

// Helpers

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// writeErr maps driver errors raised by appointment writes.
func writeErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return &ConflictError{Reason: ReasonOverlapsAppointment}
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return storageErr(op, err)
}

func readErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return storageErr(op, err)
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanDentist(row pgx.Row) (*Dentist, error) {
	var d Dentist

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDentistNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DentistID,
		&a.PatientID,
		&a.ScheduledStart,
		&a.DurationMinutes,
		&a.Status,
		&a.RescheduleRequested,
		&a.NoShowScore,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanBlockedRange(row pgx.Row) (*BlockedRange, error) {
	var b BlockedRange

	if err := row.Scan(&b.ID, &b.DentistID, &b.Start, &b.End, &b.Reason, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanWaitlistEntry(row pgx.Row) (*WaitlistEntry, error) {
	var w WaitlistEntry
	var desired time.Time

	err := row.Scan(
		&w.ID,
		&w.PatientID,
		&w.DentistID,
		&desired,
		&w.Notified,
		&w.NotifiedAt,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.DesiredDate = desired.Format(clinic.DateLayout)
	return &w, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Lookups

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	p, err := scanPatient(row)
	if err != nil {
		return nil, readErr("get patient", err)
	}
	return p, nil
}

func (r *PgRepository) GetPatientByPhone(ctx context.Context, phone string) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE phone = $1
		ORDER BY created_at
		LIMIT 1
	`, phone)
	p, err := scanPatient(row)
	if err != nil {
		return nil, readErr("get patient by phone", err)
	}
	return p, nil
}

func (r *PgRepository) GetDentistByID(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM dentists
		WHERE id = $1
	`, id)
	d, err := scanDentist(row)
	if err != nil {
		return nil, readErr("get dentist", err)
	}
	return d, nil
}

// Appointments

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, readErr("get appointment", err)
	}
	return a, nil
}

func (r *PgRepository) ListBlockingAppointments(ctx context.Context, dentistID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE dentist_id = $1
		  AND status <> 'cancelled'
		  AND scheduled_start < $3
		  AND scheduled_end > $2
		ORDER BY scheduled_start
	`, dentistID, from, to)
	if err != nil {
		return nil, storageErr("list appointments", err)
	}

	result, err := collect(rows, scanAppointment)
	if err != nil {
		return nil, storageErr("list appointments", err)
	}
	return result, nil
}

func (r *PgRepository) ListAppointmentsByStatus(ctx context.Context, from, to time.Time, status AppointmentStatus) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_start >= $1
		  AND scheduled_start < $2
		  AND status = $3
		ORDER BY scheduled_start
	`, from, to, status)
	if err != nil {
		return nil, storageErr("list appointments by status", err)
	}

	result, err := collect(rows, scanAppointment)
	if err != nil {
		return nil, storageErr("list appointments by status", err)
	}
	return result, nil
}

func (r *PgRepository) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_start DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, storageErr("list patient appointments", err)
	}

	result, err := collect(rows, scanAppointment)
	if err != nil {
		return nil, storageErr("list patient appointments", err)
	}
	return result, nil
}

func (r *PgRepository) NextPatientAppointment(ctx context.Context, patientID uuid.UUID, from time.Time) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND status IN ('scheduled', 'cancel_requested')
		  AND scheduled_start >= $2
		ORDER BY scheduled_start ASC
		LIMIT 1
	`, patientID, from)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, readErr("next patient appointment", err)
	}
	return a, nil
}

func (r *PgRepository) InsertAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, dentist_id, patient_id, scheduled_start, scheduled_end, duration_minutes,
		                          status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'scheduled', $7, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, in.DentistID, in.PatientID, in.ScheduledStart, in.ScheduledEnd(), in.DurationMinutes, in.Notes)

	a, err := scanAppointment(row)
	if err != nil {
		return nil, writeErr("insert appointment", err)
	}
	return a, nil
}

func (r *PgRepository) MoveAppointment(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int) (*Appointment, error) {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_start = $2,
		    scheduled_end = $3,
		    duration_minutes = $4,
		    reschedule_requested = false,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('scheduled', 'cancel_requested')
		RETURNING `+appointmentColumns+`
	`, id, start, end, durationMinutes)

	a, err := scanAppointment(row)
	if err != nil {
		return nil, writeErr("move appointment", err)
	}
	return a, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	a, err := scanAppointment(row)
	if err != nil {
		return nil, writeErr("update appointment status", err)
	}
	return a, nil
}

func (r *PgRepository) SetRescheduleRequested(ctx context.Context, id uuid.UUID, requested bool) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET reschedule_requested = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, requested)

	a, err := scanAppointment(row)
	if err != nil {
		return nil, writeErr("set reschedule requested", err)
	}
	return a, nil
}

// Blocked ranges

func (r *PgRepository) ListBlockedRanges(ctx context.Context, dentistID uuid.UUID, from, to time.Time) ([]BlockedRange, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, dentist_id, start_at, end_at, reason, created_at
		FROM blocked_ranges
		WHERE dentist_id = $1
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, dentistID, from, to)
	if err != nil {
		return nil, storageErr("list blocked ranges", err)
	}

	result, err := collect(rows, scanBlockedRange)
	if err != nil {
		return nil, storageErr("list blocked ranges", err)
	}
	return result, nil
}

func (r *PgRepository) InsertBlockedRange(ctx context.Context, br BlockedRange) (*BlockedRange, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO blocked_ranges (id, dentist_id, start_at, end_at, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, dentist_id, start_at, end_at, reason, created_at
	`, uuid.New(), br.DentistID, br.Start, br.End, br.Reason)

	b, err := scanBlockedRange(row)
	if err != nil {
		return nil, storageErr("insert blocked range", err)
	}
	return b, nil
}

// Waitlist

func (r *PgRepository) InsertWaitlistEntry(ctx context.Context, entry WaitlistEntry) (*WaitlistEntry, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO waitlist (id, patient_id, dentist_id, desired_date, notified, created_at)
		VALUES ($1, $2, $3, $4::date, false, now())
		RETURNING `+waitlistColumns+`
	`, uuid.New(), entry.PatientID, entry.DentistID, entry.DesiredDate)

	w, err := scanWaitlistEntry(row)
	if err != nil {
		return nil, storageErr("insert waitlist entry", err)
	}
	return w, nil
}

func (r *PgRepository) ListWaitlist(ctx context.Context, date string) ([]WaitlistEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+waitlistColumns+`
		FROM waitlist
		WHERE desired_date = $1::date
		ORDER BY created_at, id
	`, date)
	if err != nil {
		return nil, storageErr("list waitlist", err)
	}

	result, err := collect(rows, scanWaitlistEntry)
	if err != nil {
		return nil, storageErr("list waitlist", err)
	}
	return result, nil
}

func (r *PgRepository) ClaimWaitlistEntry(ctx context.Context, filter WaitlistFilter, now time.Time) (*WaitlistEntry, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE waitlist
		SET notified = true,
		    notified_at = $3
		WHERE id = (
			SELECT id
			FROM waitlist
			WHERE desired_date = $1::date
			  AND notified = false
			  AND ($2::uuid IS NULL OR dentist_id IS NULL OR dentist_id = $2::uuid)
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+waitlistColumns+`
	`, filter.Date, filter.DentistID, now)

	w, err := scanWaitlistEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("claim waitlist entry", err)
	}
	return w, nil
}

// Audit

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return storageErr("insert event log", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
