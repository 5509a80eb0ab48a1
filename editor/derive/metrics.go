package derive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deriveSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapedit_derive_seconds",
		Help:    "Street network derivation duration in seconds",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
	})
	publishedGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapedit_derive_published_generation",
		Help: "Generation number of the currently published street network",
	})
	discardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapedit_derive_discarded_total",
		Help: "Total derivations discarded because their snapshot was superseded",
	})
	failedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapedit_derive_failed_total",
		Help: "Total failed derivations",
	})
)
