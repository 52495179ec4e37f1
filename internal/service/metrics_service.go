package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the domain engines.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	coursesPublished     prometheus.Counter
	leadsCaptured        prometheus.Counter
	leadsConverted       prometheus.Counter
	enrollmentsConfirmed prometheus.Counter
	enrollmentsWaitlist  prometheus.Counter
	seatRejections       prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	coursesPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_courses_published_total",
		Help: "Total courses moved to published",
	})

	leadsCaptured := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leads_captured_total",
		Help: "Total leads captured",
	})

	leadsConverted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leads_converted_total",
		Help: "Total leads converted to enrollments",
	})

	enrollmentsConfirmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_confirmed_total",
		Help: "Total enrollments confirmed with a reserved seat",
	})

	enrollmentsWaitlist := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_waitlisted_total",
		Help: "Total enrollments placed on the waitlist",
	})

	seatRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_seat_rejections_total",
		Help: "Total seat reservations rejected at capacity",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses,
		coursesPublished, leadsCaptured, leadsConverted, enrollmentsConfirmed, enrollmentsWaitlist, seatRejections, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:             registry,
		handler:              handler,
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
		coursesPublished:     coursesPublished,
		leadsCaptured:        leadsCaptured,
		leadsConverted:       leadsConverted,
		enrollmentsConfirmed: enrollmentsConfirmed,
		enrollmentsWaitlist:  enrollmentsWaitlist,
		seatRejections:       seatRejections,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// CoursePublished increments the published courses counter.
func (m *MetricsService) CoursePublished() {
	if m != nil {
		m.coursesPublished.Inc()
	}
}

// LeadCaptured increments the captured leads counter.
func (m *MetricsService) LeadCaptured() {
	if m != nil {
		m.leadsCaptured.Inc()
	}
}

// LeadConverted increments the converted leads counter.
func (m *MetricsService) LeadConverted() {
	if m != nil {
		m.leadsConverted.Inc()
	}
}

// EnrollmentConfirmed increments the confirmed enrollments counter.
func (m *MetricsService) EnrollmentConfirmed() {
	if m != nil {
		m.enrollmentsConfirmed.Inc()
	}
}

// EnrollmentWaitlisted increments the waitlisted enrollments counter.
func (m *MetricsService) EnrollmentWaitlisted() {
	if m != nil {
		m.enrollmentsWaitlist.Inc()
	}
}

// SeatRejected increments the capacity rejection counter.
func (m *MetricsService) SeatRejected() {
	if m != nil {
		m.seatRejections.Inc()
	}
}
