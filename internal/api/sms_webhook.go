package api

import (
	"encoding/xml"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// smsWebhook handles Twilio inbound messages. Patients text CANCEL or
// RESCHEDULE about their next appointment.
func (h *handlers) smsWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "could not parse form")
		return
	}

	from := strings.TrimSpace(r.PostForm.Get("From"))
	body := r.PostForm.Get("Body")
	if from == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "From is required")
		return
	}

	reply, err := h.svc.HandleSMSCommand(r.Context(), from, body)
	if err != nil {
		h.logger.Error("sms command failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		reply = "Sorry, we could not process your request. Please call the clinic."
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(twimlResponse{Message: reply})
}
