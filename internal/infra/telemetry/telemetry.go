package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// TaggingMetrics counts per-item outcomes of batch tagging and buyer assignment operations.
type TaggingMetrics struct {
	items *prometheus.CounterVec
}

// NewTaggingMetrics registers the batch outcome counter. A nil registerer uses the default one.
func NewTaggingMetrics(reg prometheus.Registerer) (*TaggingMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "srm",
		Subsystem: "tagging",
		Name:      "batch_items_total",
		Help:      "Items processed by batch tagging and assignment operations partitioned by operation and outcome.",
	}, []string{"operation", "outcome"})

	if err := reg.Register(items); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register batch items collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing batch items collector has unexpected type %T", already.ExistingCollector)
		}
		items = existing
	}

	return &TaggingMetrics{items: items}, nil
}

// ObserveBatch adds count to the operation/outcome series. Non-positive counts are ignored.
func (m *TaggingMetrics) ObserveBatch(operation, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.items.WithLabelValues(operation, outcome).Add(float64(count))
}

// Items exposes the underlying counter.
func (m *TaggingMetrics) Items() *prometheus.CounterVec {
	return m.items
}
