// Package metrics turns {type, value, metadata} events into Prometheus
// series on an isolated registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event types with dedicated series.
const (
	EventSearchDuration = "search_duration"
	EventPipelineJob    = "pipeline_job"
)

type Sink struct {
	Registry *prometheus.Registry

	events         *prometheus.CounterVec
	values         *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	pipelineJobs   *prometheus.CounterVec
}

// NewSink registers the collectors under a service label.
func NewSink(serviceName string, defaultCollectors bool) *Sink {
	registry := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, registry)

	if defaultCollectors {
		wrapped.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s := &Sink{
		Registry: registry,
		events: createCounterVec("events_total",
			"Number of recorded events by type.", []string{"type"}),
		values: createCounterVec("event_value_total",
			"Sum of recorded event values by type.", []string{"type"}),
		searchDuration: createHistogramVec("search_duration_seconds",
			"Semantic search latency.", []string{"cache"}, prometheus.DefBuckets),
		pipelineJobs: createCounterVec("pipeline_jobs_total",
			"Pipeline jobs by stage and outcome.", []string{"stage", "outcome"}),
	}
	wrapped.MustRegister(s.events, s.values, s.searchDuration, s.pipelineJobs)
	return s
}

// Record accepts one event. Unknown types only feed the generic series.
func (s *Sink) Record(eventType string, value float64, metadata map[string]string) {
	s.events.WithLabelValues(eventType).Inc()
	if value > 0 {
		s.values.WithLabelValues(eventType).Add(value)
	}

	switch eventType {
	case EventSearchDuration:
		s.searchDuration.WithLabelValues(metadata["cache"]).Observe(value)
	case EventPipelineJob:
		s.pipelineJobs.WithLabelValues(metadata["stage"], metadata["outcome"]).Inc()
	}
}

func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})
}

func createCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

func createHistogramVec(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	}, labels)
}
