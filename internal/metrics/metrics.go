// Package metrics holds the pipeline's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline counts domain events. A nil *Pipeline records nothing.
type Pipeline struct {
	transitions     *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	suggestions     *prometheus.CounterVec
	artifacts       *prometheus.CounterVec
	bulkChunks      prometheus.Counter
	breakerStops    *prometheus.CounterVec
	collaboratorErr *prometheus.CounterVec
}

// NewPipeline creates the counters and registers them on reg.
func NewPipeline(reg prometheus.Registerer) (*Pipeline, error) {
	p := &Pipeline{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_document_transitions_total",
			Help: "Document status transitions.",
		}, []string{"from", "to"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_uploads_total",
			Help: "Upload attempts by folder and outcome.",
		}, []string{"folder", "outcome"}),
		suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_suggestions_total",
			Help: "Batch suggestions produced by confidence.",
		}, []string{"confidence"}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_artifacts_total",
			Help: "Consolidated PDF renders by kind and outcome.",
		}, []string{"kind", "outcome"}),
		bulkChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_bulk_chunks_total",
			Help: "Bulk analyze chunks processed.",
		}),
		breakerStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_bulk_breaker_stops_total",
			Help: "Bulk loops stopped by the circuit breaker.",
		}, []string{"reason"}),
		collaboratorErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_collaborator_errors_total",
			Help: "Failures returned by external collaborators.",
		}, []string{"collaborator"}),
	}

	for _, c := range []prometheus.Collector{
		p.transitions, p.uploads, p.suggestions, p.artifacts, p.bulkChunks, p.breakerStops, p.collaboratorErr,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) Transition(from, to string) {
	if p != nil {
		p.transitions.WithLabelValues(from, to).Inc()
	}
}

func (p *Pipeline) Upload(folder, outcome string) {
	if p != nil {
		p.uploads.WithLabelValues(folder, outcome).Inc()
	}
}

func (p *Pipeline) Suggestion(confidence string) {
	if p != nil {
		p.suggestions.WithLabelValues(confidence).Inc()
	}
}

func (p *Pipeline) Artifact(kind, outcome string) {
	if p != nil {
		p.artifacts.WithLabelValues(kind, outcome).Inc()
	}
}

func (p *Pipeline) BulkChunk() {
	if p != nil {
		p.bulkChunks.Inc()
	}
}

func (p *Pipeline) BreakerStop(reason string) {
	if p != nil {
		p.breakerStops.WithLabelValues(reason).Inc()
	}
}

func (p *Pipeline) CollaboratorError(name string) {
	if p != nil {
		p.collaboratorErr.WithLabelValues(name).Inc()
	}
}
