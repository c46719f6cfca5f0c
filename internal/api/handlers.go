package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/appointment"
)

type handlers struct {
	svc    *appointment.Service
	loc    *time.Location
	logger *zap.Logger
}

func (h *handlers) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	dentistID, err := uuid.Parse(q.Get("dentistId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentistId must be a valid UUID")
		return
	}
	granularity, err := optionalInt(q.Get("granularity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "granularity must be an integer")
		return
	}
	duration, err := optionalInt(q.Get("duration"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "duration must be an integer")
		return
	}

	date := q.Get("date")
	slots, err := h.svc.ComputeSlots(r.Context(), appointment.SlotQuery{
		DentistID:          dentistID,
		Date:               date,
		GranularityMinutes: granularity,
		DurationMinutes:    duration,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := AvailabilityResponse{DentistID: dentistID, Date: date, Slots: make([]SlotResponse, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, toSlotResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) recommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	patientID, err := uuid.Parse(q.Get("patientId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
		return
	}
	dentistID, err := uuid.Parse(q.Get("dentistId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentistId must be a valid UUID")
		return
	}
	days, err := optionalInt(q.Get("days"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "days must be an integer")
		return
	}
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "limit must be an integer")
		return
	}

	recs, err := h.svc.Engine().Recommend(r.Context(), appointment.RecommendQuery{
		PatientID: patientID,
		DentistID: dentistID,
		From:      q.Get("from"),
		Days:      days,
		Limit:     limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]RecommendationResponse, 0, len(recs))
	for _, rec := range recs {
		resp = append(resp, RecommendationResponse{
			SlotResponse: toSlotResponse(rec.Slot),
			Score:        rec.Score,
			LoadFactor:   rec.LoadFactor,
			PatientRisk:  rec.PatientRisk,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	start, err := parseStart(req.Start, req.Date, req.Time, h.loc)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	appt, err := h.svc.Book(r.Context(), appointment.BookRequest{
		PatientID:       uuid.MustParse(req.PatientID),
		DentistID:       uuid.MustParse(req.DentistID),
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		AdminOverride:   req.AdminOverride,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, h.loc))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt, h.loc))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	dentistID, err := uuid.Parse(r.URL.Query().Get("dentistId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentistId must be a valid UUID")
		return
	}

	appts, err := h.svc.ListDay(r.Context(), dentistID, r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		resp = append(resp, toAppointmentResponse(&appts[i], h.loc))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	var req UpdateAppointmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	moving := req.Start != "" || req.Date != "" || req.Time != "" || req.DurationMinutes != 0
	if moving == (req.Status != "") {
		writeError(w, http.StatusBadRequest, "invalid_input", "send either a new start or a status")
		return
	}

	var (
		appt *appointment.Appointment
		err  error
	)
	switch req.Status {
	case "":
		var start time.Time
		start, err = h.rescheduleStart(r, id, req)
		if err == nil {
			appt, err = h.svc.Reschedule(r.Context(), id, appointment.RescheduleRequest{
				Start:           start,
				DurationMinutes: req.DurationMinutes,
				AdminOverride:   req.AdminOverride,
			})
		}
	case string(appointment.StatusCheckedIn):
		appt, err = h.svc.CheckIn(r.Context(), id)
	case string(appointment.StatusCompleted):
		appt, err = h.svc.Complete(r.Context(), id)
	case string(appointment.StatusCancelled):
		appt, err = h.svc.Cancel(r.Context(), id, false)
	case "reschedule_requested":
		appt, err = h.svc.RequestReschedule(r.Context(), id)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt, h.loc))
}

// rescheduleStart keeps the current start when only the duration changes.
func (h *handlers) rescheduleStart(r *http.Request, id uuid.UUID, req UpdateAppointmentRequest) (time.Time, error) {
	if req.Start == "" && req.Date == "" && req.Time == "" {
		current, err := h.svc.Get(r.Context(), id)
		if err != nil {
			return time.Time{}, err
		}
		return current.ScheduledStart, nil
	}
	return parseStart(req.Start, req.Date, req.Time, h.loc)
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	byPatient := false
	if v := r.URL.Query().Get("requestedByPatient"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "requestedByPatient must be true or false")
			return
		}
		byPatient = parsed
	}

	appt, err := h.svc.Cancel(r.Context(), id, byPatient)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt, h.loc))
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", v, err)
	}
	return n, nil
}
