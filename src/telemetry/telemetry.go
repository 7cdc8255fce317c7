// Package telemetry exposes the kernel's operational counters as
// Prometheus metrics: AOT cache hit/miss, area dedup hits, DXM queue
// overrun, and file-lock conflicts. It plays the promhttp-exporter
// role the way runZeroInc-sockstats' tcpinfo exporter and
// ffromani-dra-driver-memory's daemon command do — a prometheus.Registry
// plus a /metrics handler — generalized from one collector to the
// small, fixed set of counters this kernel's core subsystems emit.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors bundles every counter/gauge the core subsystems update.
type Collectors struct {
	registry *prometheus.Registry

	AOTHits   prometheus.Counter
	AOTMisses prometheus.Counter

	AreaDedupHits prometheus.Counter

	DXMOverruns *prometheus.CounterVec // labeled by queue ("wired"/"unwired")

	LockConflicts prometheus.Counter
}

// New registers a fresh set of Collectors against a private registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		registry: reg,
		AOTHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "aot",
			Name:      "hits_total",
			Help:      "AOTE activations satisfied by an already-resident object.",
		}),
		AOTMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "aot",
			Name:      "misses_total",
			Help:      "AOTE activations that required a fresh pool slot.",
		}),
		AreaDedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "area",
			Name:      "dedup_hits_total",
			Help:      "Area copies and create_from calls satisfied by an existing area instead of a fresh allocation.",
		}),
		DXMOverruns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "dxm",
			Name:      "queue_overruns_total",
			Help:      "Deferred-execution entries dropped or aborted due to a full queue.",
		}, []string{"queue"}),
		LockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kernel",
			Subsystem: "filelock",
			Name:      "conflicts_total",
			Help:      "File lock requests refused due to an incompatible existing holder.",
		}),
	}
	reg.MustRegister(c.AOTHits, c.AOTMisses, c.AreaDedupHits, c.DXMOverruns, c.LockConflicts)
	return c
}

// Handler returns the promhttp handler serving c's registry, suitable
// for mounting at "/metrics".
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// The methods below satisfy the small Metrics interfaces the aot,
// area, dxm, and filelock packages each declare locally, so those
// packages report into a Collectors without importing telemetry.

// AOTHit implements aot.Metrics.
func (c *Collectors) AOTHit() { c.AOTHits.Inc() }

// AOTMiss implements aot.Metrics.
func (c *Collectors) AOTMiss() { c.AOTMisses.Inc() }

// AreaDedupHit implements area.Metrics.
func (c *Collectors) AreaDedupHit() { c.AreaDedupHits.Inc() }

// DXMOverrun implements dxm.Metrics.
func (c *Collectors) DXMOverrun(queue string) { c.DXMOverruns.WithLabelValues(queue).Inc() }

// FileLockConflict implements filelock.Metrics.
func (c *Collectors) FileLockConflict() { c.LockConflicts.Inc() }
