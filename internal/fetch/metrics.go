package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	throttledResponses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "harvester",
		Subsystem: "fetch",
		Name:      "throttled_responses_total",
		Help:      "HTTP 429 responses received.",
	})
	blockedHosts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "harvester",
		Subsystem: "fetch",
		Name:      "blocked_hosts_total",
		Help:      "Hosts given up on after repeated forbidden responses.",
	})
)
