package editor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	editsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapedit_edits_total",
		Help: "Total applied edit commands by operation",
	}, []string{"op"})
	rejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapedit_edit_rejects_total",
		Help: "Total edit commands rejected by validation",
	})
	undoTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapedit_undo_total",
		Help: "Total undo operations",
	})
	redoTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mapedit_redo_total",
		Help: "Total redo operations",
	})
	entityCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mapedit_entities",
		Help: "Live entity count in the raw map by kind",
	}, []string{"kind"})
)
