// Package metrics defines the Prometheus collectors exported by matchbook.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "matchbook"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	reservationsCreated prometheus.Counter
	transitions         *prometheus.CounterVec
	scores              *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec
}

// New registers the collectors with reg. Collectors that are already
// registered are reused, so building Metrics twice against the same
// registerer is safe.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var err error
	m := &Metrics{}
	if m.httpRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route and status code.",
	}, []string{"method", "route", "code"})); err != nil {
		return nil, err
	}
	if m.httpDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})); err != nil {
		return nil, err
	}
	if m.reservationsCreated, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reservation",
		Name:      "created_total",
		Help:      "Reservations created.",
	})); err != nil {
		return nil, err
	}
	if m.transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reservation",
		Name:      "transitions_total",
		Help:      "Reservation state transitions attempted, by operation and result.",
	}, []string{"operation", "result"})); err != nil {
		return nil, err
	}
	if m.scores, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persona",
		Name:      "scores_total",
		Help:      "Compatibility scores computed, by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persona",
		Name:      "cache_lookups_total",
		Help:      "Persona catalog cache lookups, by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	return m, nil
}

// MustNew is New that panics on registration errors.
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ReservationCreated counts a new reservation.
func (m *Metrics) ReservationCreated() {
	if m == nil {
		return
	}
	m.reservationsCreated.Inc()
}

// Transition counts a confirm, cancel or complete attempt. result is "ok" or
// an error kind.
func (m *Metrics) Transition(operation, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, result).Inc()
}

// ScoreComputed counts a team, match or rank computation.
func (m *Metrics) ScoreComputed(kind string) {
	if m == nil {
		return
	}
	m.scores.WithLabelValues(kind).Inc()
}

// CacheLookup counts a catalog cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
