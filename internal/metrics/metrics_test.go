package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookingMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("book", "ok")
	m.ObserveBooking("book", "ok")
	m.ObserveBooking("book", "slot_unavailable")
	m.ObserveAvailability("ok", 0.01)
	m.ObserveWaitlist("matched")
	m.ObserveNotification("sms", "sent")
	m.ObserveHTTP("GET", "/availability", "200", 0.02)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingTotal.WithLabelValues("book", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingTotal.WithLabelValues("book", "slot_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.waitlistTotal.WithLabelValues("matched")))
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("book", "ok")
	m.ObserveAvailability("ok", 0.1)
	m.ObserveWaitlist("none")
	m.ObserveNotification("email", "failed")
	m.ObserveHTTP("POST", "/appointments", "201", 0.1)
}
