package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jask/stmtsync/internal/reconcile"
)

// Metrics counts pipeline outcomes. A nil *Metrics records nothing.
type Metrics struct {
	items         *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	rulesLearned  prometheus.Counter
	batchDuration prometheus.Histogram
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		items: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stmtsync_import_items_total",
			Help: "Imported statement lines, labeled by outcome",
		}, []string{"outcome"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stmtsync_reconcile_decisions_total",
			Help: "Reconciliation decisions, labeled by tier",
		}, []string{"decision"}),
		rulesLearned: f.NewCounter(prometheus.CounterOpts{
			Name: "stmtsync_category_rules_learned_total",
			Help: "Category rule upserts from confirmed categorizations",
		}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "stmtsync_import_batch_duration_seconds",
			Help:    "Latency distribution of import batches",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

const (
	outcomeImported = "imported"
	outcomeSkipped  = "skipped"
	outcomeErrored  = "errored"
)

func (m *Metrics) item(outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(outcome).Inc()
}

func (m *Metrics) decision(d reconcile.Decision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(d)).Inc()
}

func (m *Metrics) ruleLearned() {
	if m == nil {
		return
	}
	m.rulesLearned.Inc()
}

func (m *Metrics) observeBatch(seconds float64) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(seconds)
}
