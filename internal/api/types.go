package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-slot-booking/internal/appointment"
	"github.com/hackgods/dental-slot-booking/internal/clinic"
)

// BookAppointmentRequest takes either an RFC 3339 start or a clinic-local
// date and time.
type BookAppointmentRequest struct {
	PatientID       string  `json:"patient_id" validate:"required,uuid"`
	DentistID       string  `json:"dentist_id" validate:"required,uuid"`
	Start           string  `json:"start"`
	Date            string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time            string  `json:"time" validate:"omitempty,datetime=15:04"`
	DurationMinutes int     `json:"duration_minutes" validate:"required,min=1,max=480"`
	Notes           *string `json:"notes" validate:"omitempty,max=2000"`
	AdminOverride   bool    `json:"admin_override"`
}

// UpdateAppointmentRequest either moves the appointment or changes its
// status, never both.
type UpdateAppointmentRequest struct {
	Start           string `json:"start"`
	Date            string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time            string `json:"time" validate:"omitempty,datetime=15:04"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,min=1,max=480"`
	AdminOverride   bool   `json:"admin_override"`
	Status          string `json:"status" validate:"omitempty,oneof=checked_in completed cancelled reschedule_requested"`
}

type BlockedRangeRequest struct {
	DentistID string  `json:"dentist_id" validate:"required,uuid"`
	Start     string  `json:"start" validate:"required"`
	End       string  `json:"end" validate:"required"`
	Reason    *string `json:"reason" validate:"omitempty,max=500"`
}

type WaitlistRequest struct {
	PatientID   string  `json:"patient_id" validate:"required,uuid"`
	DentistID   *string `json:"dentist_id" validate:"omitempty,uuid"`
	DesiredDate string  `json:"desired_date" validate:"required,datetime=2006-01-02"`
}

type SlotResponse struct {
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

type AvailabilityResponse struct {
	DentistID uuid.UUID      `json:"dentist_id"`
	Date      string         `json:"date"`
	Slots     []SlotResponse `json:"slots"`
}

type RecommendationResponse struct {
	SlotResponse
	Score       float64 `json:"score"`
	LoadFactor  float64 `json:"load_factor"`
	PatientRisk float64 `json:"patient_risk"`
}

type AppointmentResponse struct {
	ID                  uuid.UUID `json:"id"`
	DentistID           uuid.UUID `json:"dentist_id"`
	PatientID           uuid.UUID `json:"patient_id"`
	Start               time.Time `json:"start"`
	End                 time.Time `json:"end"`
	Date                string    `json:"date"`
	Time                string    `json:"time"`
	DurationMinutes     int       `json:"duration_minutes"`
	Status              string    `json:"status"`
	RescheduleRequested bool      `json:"reschedule_requested"`
	NoShowScore         *float64  `json:"no_show_score,omitempty"`
	Notes               *string   `json:"notes,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type BlockedRangeResponse struct {
	ID        uuid.UUID `json:"id"`
	DentistID uuid.UUID `json:"dentist_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Reason    *string   `json:"reason,omitempty"`
}

type WaitlistEntryResponse struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	DentistID   *uuid.UUID `json:"dentist_id,omitempty"`
	DesiredDate string     `json:"desired_date"`
	Notified    bool       `json:"notified"`
	NotifiedAt  *time.Time `json:"notified_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func toSlotResponse(s appointment.Slot) SlotResponse {
	return SlotResponse{Date: s.Date, Time: s.Time, Start: s.Start, DurationMinutes: s.DurationMinutes}
}

func toAppointmentResponse(a *appointment.Appointment, loc *time.Location) AppointmentResponse {
	local := a.ScheduledStart.In(loc)
	return AppointmentResponse{
		ID:                  a.ID,
		DentistID:           a.DentistID,
		PatientID:           a.PatientID,
		Start:               a.ScheduledStart,
		End:                 a.ScheduledEnd(),
		Date:                local.Format(clinic.DateLayout),
		Time:                local.Format(clinic.ClockLayout),
		DurationMinutes:     a.DurationMinutes,
		Status:              string(a.Status),
		RescheduleRequested: a.RescheduleRequested,
		NoShowScore:         a.NoShowScore,
		Notes:               a.Notes,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func toWaitlistResponse(w appointment.WaitlistEntry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:          w.ID,
		PatientID:   w.PatientID,
		DentistID:   w.DentistID,
		DesiredDate: w.DesiredDate,
		Notified:    w.Notified,
		NotifiedAt:  w.NotifiedAt,
		CreatedAt:   w.CreatedAt,
	}
}
