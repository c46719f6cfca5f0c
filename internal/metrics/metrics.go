package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for calendar operations.
type BookingMetrics struct {
	bookingTotal        *prometheus.CounterVec
	availabilityLatency *prometheus.HistogramVec
	waitlistTotal       *prometheus.CounterVec
	notificationTotal   *prometheus.CounterVec
	httpLatency         *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "calendar",
			Name:      "booking_operations_total",
			Help:      "Booking coordinator operations by outcome",
		}, []string{"operation", "outcome"}),
		availabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "calendar",
			Name:      "availability_seconds",
			Help:      "Latency of slot computation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		waitlistTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "calendar",
			Name:      "waitlist_matches_total",
			Help:      "Waitlist match attempts on freed slots",
		}, []string{"result"}),
		notificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Outbound notifications by channel",
		}, []string{"channel", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "http",
			Name:      "request_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingTotal, m.availabilityLatency, m.waitlistTotal, m.notificationTotal, m.httpLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveAvailability(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.availabilityLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *BookingMetrics) ObserveWaitlist(result string) {
	if m == nil {
		return
	}
	m.waitlistTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveNotification(channel, status string) {
	if m == nil {
		return
	}
	m.notificationTotal.WithLabelValues(channel, status).Inc()
}

func (m *BookingMetrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, status).Observe(seconds)
}
