// pkg/metrics/prom.go

package metrics

import (
    "github.com/prometheus/client_golang/prometheus"
)

// Prom exports the counters to Prometheus.
type Prom struct {
    hit       prometheus.Counter
    miss      prometheus.Counter
    promoted  prometheus.Counter
    generated prometheus.Counter
    duplicate prometheus.Counter
    evicted   prometheus.Counter
    nearSize  prometheus.Gauge
    failures  *prometheus.CounterVec
}

// NewProm registers the collectors on reg; it panics on duplicate
// registration, so call it once per registry.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
    makeC := func(name, help string) prometheus.Counter {
        return prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      name,
            Help:      help,
        })
    }

    p := &Prom{
        hit:       makeC("near_hit_total", "Lookups served from the in-memory tier"),
        miss:      makeC("near_miss_total", "Lookups that took the creation lock"),
        promoted:  makeC("promoted_total", "Chunks moved back from the persistent tier"),
        generated: makeC("generated_total", "Chunks generated from scratch"),
        duplicate: makeC("duplicate_total", "Inserts that found the position already cached"),
        evicted:   makeC("evicted_total", "Chunks evicted to the persistent tier"),
        nearSize: prometheus.NewGauge(prometheus.GaugeOpts{
            Namespace: namespace,
            Name:      "near_chunks",
            Help:      "Chunks currently held in memory",
        }),
        failures: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "failures_total",
            Help:      "Swallowed persistence failures by operation",
        }, []string{"op"}),
    }
    reg.MustRegister(p.hit, p.miss, p.promoted, p.generated, p.duplicate, p.evicted, p.nearSize, p.failures)
    return p
}

func (p *Prom) IncHit()       { p.hit.Inc() }
func (p *Prom) IncMiss()      { p.miss.Inc() }
func (p *Prom) IncPromoted()  { p.promoted.Inc() }
func (p *Prom) IncGenerated() { p.generated.Inc() }
func (p *Prom) IncDuplicate() { p.duplicate.Inc() }

func (p *Prom) AddEvicted(n int) {
    if n > 0 {
        p.evicted.Add(float64(n))
    }
}

func (p *Prom) SetNearSize(n int) {
    if n >= 0 {
        p.nearSize.Set(float64(n))
    }
}

func (p *Prom) Failure(op string, _ error) {
    p.failures.WithLabelValues(op).Inc()
}
