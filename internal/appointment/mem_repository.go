package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemRepository is an in-process calendar store. Inserts and moves re-check
// overlap under the write lock, so it gives the same no-double-booking
// guarantee as the Postgres exclusion constraint.
type MemRepository struct {
	mu           sync.RWMutex
	now          func() time.Time
	patients     map[uuid.UUID]Patient
	dentists     map[uuid.UUID]Dentist
	appointments map[uuid.UUID]Appointment
	blocks       []BlockedRange
	waitlist     []WaitlistEntry
	events       []EventLog
}

func NewMemRepository() *MemRepository {
	return &MemRepository{
		now:          time.Now,
		patients:     make(map[uuid.UUID]Patient),
		dentists:     make(map[uuid.UUID]Dentist),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (r *MemRepository) PutPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemRepository) PutDentist(d Dentist) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dentists[d.ID] = d
}

// PutAppointment stores a row as-is, bypassing overlap checks. Seeding only.
func (r *MemRepository) PutAppointment(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = a
}

// Events returns a copy of the audit log.
func (r *MemRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemRepository) GetPatientByPhone(_ context.Context, phone string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *Patient
	for _, p := range r.patients {
		if p.Phone == nil || *p.Phone != phone {
			continue
		}
		if found == nil || p.CreatedAt.Before(found.CreatedAt) {
			cp := p
			found = &cp
		}
	}
	if found == nil {
		return nil, ErrPatientNotFound
	}
	return found, nil
}

func (r *MemRepository) GetDentistByID(_ context.Context, id uuid.UUID) (*Dentist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dentists[id]
	if !ok {
		return nil, ErrDentistNotFound
	}
	return &d, nil
}

func (r *MemRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemRepository) ListBlockingAppointments(_ context.Context, dentistID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.DentistID == dentistID && a.Status.Blocking() && overlaps(from, to, a.ScheduledStart, a.ScheduledEnd()) {
			result = append(result, a)
		}
	}
	sortByStart(result)
	return result, nil
}

func (r *MemRepository) ListAppointmentsByStatus(_ context.Context, from, to time.Time, status AppointmentStatus) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status == status && !a.ScheduledStart.Before(from) && a.ScheduledStart.Before(to) {
			result = append(result, a)
		}
	}
	sortByStart(result)
	return result, nil
}

func (r *MemRepository) ListPatientAppointments(_ context.Context, patientID uuid.UUID, limit int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledStart.After(result[j].ScheduledStart)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemRepository) NextPatientAppointment(_ context.Context, patientID uuid.UUID, from time.Time) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var next *Appointment
	for _, a := range r.appointments {
		if a.PatientID != patientID || !a.Status.Upcoming() || a.ScheduledStart.Before(from) {
			continue
		}
		if next == nil || a.ScheduledStart.Before(next.ScheduledStart) {
			a := a
			next = &a
		}
	}
	return next, nil
}

// conflictLocked must be called with the write lock held.
func (r *MemRepository) conflictLocked(dentistID, self uuid.UUID, start, end time.Time) bool {
	for _, a := range r.appointments {
		if a.ID == self || a.DentistID != dentistID || !a.Status.Blocking() {
			continue
		}
		if overlaps(start, end, a.ScheduledStart, a.ScheduledEnd()) {
			return true
		}
	}
	return false
}

func (r *MemRepository) InsertAppointment(_ context.Context, in NewAppointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conflictLocked(in.DentistID, uuid.Nil, in.ScheduledStart, in.ScheduledEnd()) {
		return nil, &ConflictError{Reason: ReasonOverlapsAppointment}
	}

	now := r.now()
	a := Appointment{
		ID:              uuid.New(),
		DentistID:       in.DentistID,
		PatientID:       in.PatientID,
		ScheduledStart:  in.ScheduledStart,
		DurationMinutes: in.DurationMinutes,
		Status:          StatusScheduled,
		Notes:           in.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemRepository) MoveAppointment(_ context.Context, id uuid.UUID, start time.Time, durationMinutes int) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || !a.Status.Upcoming() {
		return nil, ErrAppointmentNotFound
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	if r.conflictLocked(a.DentistID, a.ID, start, end) {
		return nil, &ConflictError{Reason: ReasonOverlapsAppointment}
	}

	a.ScheduledStart = start
	a.DurationMinutes = durationMinutes
	a.RescheduleRequested = false
	a.UpdatedAt = r.now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	if to.Blocking() && !from.Blocking() && r.conflictLocked(a.DentistID, a.ID, a.ScheduledStart, a.ScheduledEnd()) {
		return nil, &ConflictError{Reason: ReasonOverlapsAppointment}
	}

	a.Status = to
	a.UpdatedAt = r.now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemRepository) SetRescheduleRequested(_ context.Context, id uuid.UUID, requested bool) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.RescheduleRequested = requested
	a.UpdatedAt = r.now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemRepository) ListBlockedRanges(_ context.Context, dentistID uuid.UUID, from, to time.Time) ([]BlockedRange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []BlockedRange
	for _, b := range r.blocks {
		if b.DentistID == dentistID && overlaps(from, to, b.Start, b.End) {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result, nil
}

func (r *MemRepository) InsertBlockedRange(_ context.Context, br BlockedRange) (*BlockedRange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	br.ID = uuid.New()
	br.CreatedAt = r.now()
	r.blocks = append(r.blocks, br)
	return &br, nil
}

func (r *MemRepository) InsertWaitlistEntry(_ context.Context, entry WaitlistEntry) (*WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.ID = uuid.New()
	entry.Notified = false
	entry.NotifiedAt = nil
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	r.waitlist = append(r.waitlist, entry)
	return &entry, nil
}

func (r *MemRepository) ListWaitlist(_ context.Context, date string) ([]WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []WaitlistEntry
	for _, w := range r.waitlist {
		if w.DesiredDate == date {
			result = append(result, w)
		}
	}
	sortWaitlist(result)
	return result, nil
}

func (r *MemRepository) ClaimWaitlistEntry(_ context.Context, filter WaitlistFilter, now time.Time) (*WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := -1
	for i, w := range r.waitlist {
		if w.Notified || w.DesiredDate != filter.Date {
			continue
		}
		if filter.DentistID != nil && w.DentistID != nil && *w.DentistID != *filter.DentistID {
			continue
		}
		if best < 0 || waitlistLess(w, r.waitlist[best]) {
			best = i
		}
	}
	if best < 0 {
		return nil, nil
	}

	claimed := now
	r.waitlist[best].Notified = true
	r.waitlist[best].NotifiedAt = &claimed
	w := r.waitlist[best]
	return &w, nil
}

func (r *MemRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

func sortByStart(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		return appts[i].ScheduledStart.Before(appts[j].ScheduledStart)
	})
}

func waitlistLess(a, b WaitlistEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func sortWaitlist(entries []WaitlistEntry) {
	sort.Slice(entries, func(i, j int) bool { return waitlistLess(entries[i], entries[j]) })
}
