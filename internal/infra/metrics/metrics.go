package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	IngestedUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "ingested_updates_total", Help: "Market updates ingested from the block stream"})
	EdgesActive          = prometheus.NewGauge(prometheus.GaugeOpts{Name: "edges_active", Help: "Live edge count in the price graph"})
	RunsTotal            = prometheus.NewCounter(prometheus.CounterOpts{Name: "runs_total", Help: "Detection cycles run"})
	OpportunitiesTotal   = prometheus.NewCounter(prometheus.CounterOpts{Name: "opportunities_total", Help: "Opportunities emitted downstream"})
	DetectionMs          = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "detection_ms", Help: "Wall time per detection cycle", Buckets: prometheus.LinearBuckets(1, 5, 40)})

	DroppedByGasTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "dropped_by_gas_total", Help: "Candidates dropped by the gas/net-profit evaluator"})
	DroppedBySlippageTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "dropped_by_slippage_total", Help: "Candidates rejected for exceeding slippage_cap_pct"})
	PruneRemovedTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "prune_removed_total", Help: "Edge pairs removed by prune_stale"})
	DedupSuppressedTotal   = prometheus.NewCounter(prometheus.CounterOpts{Name: "dedup_suppressed_total", Help: "Opportunities suppressed by the sliding dedup window"})
	SimTimeoutTotal        = prometheus.NewCounter(prometheus.CounterOpts{Name: "sim_timeout_total", Help: "GasOracle.Simulate calls that exceeded their budget"})
	BackpressureDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "backpressure_drops_total", Help: "Opportunities dropped because the output channel was full"})
	GraphCorruptionTotal   = prometheus.NewCounter(prometheus.CounterOpts{Name: "graph_corruption_total", Help: "Times the scheduler dropped and rebuilt the graph on an invariant violation"})
)

// Init registers every collector into a fresh registry; called once
// from main at wiring time.
func Init(logger zerolog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		IngestedUpdatesTotal, EdgesActive, RunsTotal, OpportunitiesTotal, DetectionMs,
		DroppedByGasTotal, DroppedBySlippageTotal, PruneRemovedTotal, DedupSuppressedTotal,
		SimTimeoutTotal, BackpressureDropsTotal, GraphCorruptionTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		_ = reg.Register(c)
	}
	logger.Info().Msg("prometheus metrics initialized")
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
