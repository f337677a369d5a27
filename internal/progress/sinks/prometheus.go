package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/job-harvester/internal/progress"
)

// PrometheusSink exports session and page metrics.
type PrometheusSink struct {
	sessionsStarted   *prometheus.CounterVec
	sessionsCompleted *prometheus.CounterVec
	sessionsRunning   prometheus.Gauge
	sessionRuntime    *prometheus.HistogramVec

	pagesTotal   *prometheus.CounterVec
	jobsSaved    *prometheus.CounterVec
	rawSaved     *prometheus.CounterVec
	pageDuration *prometheus.HistogramVec

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewPrometheusSink registers the collectors against reg (default registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_sessions_started_total",
			Help: "Source sessions started.",
		}, []string{"platform"}),
		sessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_sessions_completed_total",
			Help: "Source sessions finished, by result and stop reason.",
		}, []string{"platform", "result", "stop_reason"}),
		sessionsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_sessions_running",
			Help: "Source sessions currently running.",
		}),
		sessionRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_session_runtime_seconds",
			Help:    "Wall time per finished session.",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"platform", "result"}),
		pagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_pages_total",
			Help: "Listing pages walked, by whether any posting needed a fetch.",
		}, []string{"platform", "kind"}),
		jobsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_jobs_saved_total",
			Help: "Jobs committed to the relational store.",
		}, []string{"platform"}),
		rawSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_raw_saved_total",
			Help: "Raw envelopes newly archived.",
		}, []string{"platform"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_page_duration_seconds",
			Help:    "Time from listing a page to persisting it.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"platform"}),
		running: make(map[uuid.UUID]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.sessionsStarted,
		s.sessionsCompleted,
		s.sessionsRunning,
		s.sessionRuntime,
		s.pagesTotal,
		s.jobsSaved,
		s.rawSaved,
		s.pageDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageSessionStart:
			s.sessionsStarted.WithLabelValues(evt.Platform).Inc()
			if s.track(evt.RunID, true) {
				s.sessionsRunning.Inc()
			}
		case progress.StagePageDone:
			kind := "fresh"
			if evt.Targets == 0 {
				kind = "empty"
			}
			s.pagesTotal.WithLabelValues(evt.Platform, kind).Inc()
			s.jobsSaved.WithLabelValues(evt.Platform).Add(float64(evt.Saved))
			s.rawSaved.WithLabelValues(evt.Platform).Add(float64(evt.RawSaved))
			if evt.Dur > 0 {
				s.pageDuration.WithLabelValues(evt.Platform).Observe(evt.Dur.Seconds())
			}
		case progress.StageSessionDone, progress.StageSessionError:
			result := "success"
			if evt.Stage == progress.StageSessionError {
				result = "error"
			}
			s.sessionsCompleted.WithLabelValues(evt.Platform, result, evt.StopReason).Inc()
			if evt.Dur > 0 {
				s.sessionRuntime.WithLabelValues(evt.Platform, result).Observe(evt.Dur.Seconds())
			}
			if s.track(evt.RunID, false) {
				s.sessionsRunning.Dec()
			}
		}
	}
	return nil
}

// track adds or removes id from the running set and reports whether it changed.
func (s *PrometheusSink) track(id uuid.UUID, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, present := s.running[id]
	if start {
		if present {
			return false
		}
		s.running[id] = struct{}{}
		return true
	}
	if !present {
		return false
	}
	delete(s.running, id)
	return true
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
