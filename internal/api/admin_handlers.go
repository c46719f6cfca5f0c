package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/dental-slot-booking/internal/appointment"
	"github.com/hackgods/dental-slot-booking/internal/clinic"
)

// HoursStore reads and replaces a dentist's working schedule. *clinic.Store
// implements it.
type HoursStore interface {
	ScheduleFor(ctx context.Context, dentistID uuid.UUID) (clinic.Schedule, error)
	Save(ctx context.Context, dentistID uuid.UUID, sched clinic.Schedule) error
}

func (h *handlers) createBlockedRange(w http.ResponseWriter, r *http.Request) {
	var req BlockedRangeRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "start must be RFC 3339")
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "end must be RFC 3339")
		return
	}

	br, err := h.svc.AddBlockedRange(r.Context(), appointment.BlockedRange{
		DentistID: uuid.MustParse(req.DentistID),
		Start:     start,
		End:       end,
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, BlockedRangeResponse{
		ID:        br.ID,
		DentistID: br.DentistID,
		Start:     br.Start,
		End:       br.End,
		Reason:    br.Reason,
	})
}

func (h *handlers) createWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	var req WaitlistRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	var dentistID *uuid.UUID
	if req.DentistID != nil {
		id := uuid.MustParse(*req.DentistID)
		dentistID = &id
	}

	entry, err := h.svc.Waitlist().AddEntry(r.Context(), uuid.MustParse(req.PatientID), dentistID, req.DesiredDate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWaitlistResponse(*entry))
}

func (h *handlers) listWaitlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Waitlist().ListEntries(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]WaitlistEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toWaitlistResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

type hoursHandlers struct {
	store HoursStore
}

func (h *hoursHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_dentist_id", "id must be a valid UUID")
		return
	}

	sched, err := h.store.ScheduleFor(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_failure", "clinic hours are unavailable")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *hoursHandlers) put(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_dentist_id", "id must be a valid UUID")
		return
	}

	var sched clinic.Schedule
	if err := decodeBody(r, &sched); err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.store.Save(r.Context(), id, sched); err != nil {
		if errors.Is(err, clinic.ErrInvalidSchedule) {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "storage_failure", "clinic hours are unavailable")
		return
	}
	writeJSON(w, http.StatusOK, sched)
}
