package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "harvester",
		Subsystem: "pipeline",
		Name:      "pages_fetched_total",
		Help:      "Pages fetched successfully.",
	})
	pagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "harvester",
		Subsystem: "pipeline",
		Name:      "pages_failed_total",
		Help:      "Pages that failed to fetch or parse.",
	})
	rendersPromoted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "harvester",
		Subsystem: "pipeline",
		Name:      "renders_promoted_total",
		Help:      "Pages promoted to the headless renderer.",
	})
	recordsStaged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvester",
		Subsystem: "pipeline",
		Name:      "records_staged_total",
		Help:      "Records staged for persistence, by kind.",
	}, []string{"kind"})
)
