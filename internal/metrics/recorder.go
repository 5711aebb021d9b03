package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the prometheus-backed EventRecorder implementation. Events
// are counted by name and op; any other labels are ignored.
type Recorder struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hasivu",
		Subsystem: "realtime",
		Name:      "events_total",
		Help:      "Count of hub operational events by name.",
	}, []string{"event", "op"})
	registry.MustRegister(events)
	return &Recorder{registry: registry, events: events}
}

func (r *Recorder) RecordEvent(name string, labels map[string]string) {
	op := ""
	if labels != nil {
		op = labels["op"]
	}
	r.events.WithLabelValues(name, op).Inc()
}

// Handler exposes the scrape endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
