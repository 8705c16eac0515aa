package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/crypto-etl/internal/database"
	"github.com/rickgao/crypto-etl/internal/model"
	"github.com/rickgao/crypto-etl/internal/version"
)

const namespace = "etl"

// PoolStater reports connection pool usage.
type PoolStater interface {
	Stat() database.PoolStat
}

// Collector records pipeline metrics.
type Collector struct {
	runs        *prometheus.CounterVec
	records     *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// New registers all metrics with reg. pool may be nil.
func New(reg prometheus.Registerer, pool PoolStater) *Collector {
	f := promauto.With(reg)

	c := &Collector{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal status.",
		}, []string{"status"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records processed per pipeline stage.",
		}, []string{"stage"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
	}

	f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information; always 1.",
	}, []string{"version", "commit"}).WithLabelValues(version.Version, version.Commit).Set(1)

	if pool != nil {
		poolGauge := func(name, help string, v func(database.PoolStat) int32) {
			f.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "db_pool",
				Name:      name,
				Help:      help,
			}, func() float64 { return float64(v(pool.Stat())) })
		}
		poolGauge("acquired_connections", "Connections currently checked out.", func(s database.PoolStat) int32 { return s.Acquired })
		poolGauge("idle_connections", "Idle connections in the pool.", func(s database.PoolStat) int32 { return s.Idle })
		poolGauge("total_connections", "All open pooled connections.", func(s database.PoolStat) int32 { return s.Total })
		poolGauge("max_connections", "Configured pool size.", func(s database.PoolStat) int32 { return s.Max })
	}

	// Expose both statuses from the start.
	c.runs.WithLabelValues(model.StateCompleted.String())
	c.runs.WithLabelValues(model.StateFailed.String())

	return c
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(res *model.RunResult) {
	c.runs.WithLabelValues(res.State.String()).Inc()
	c.duration.Observe(res.Duration().Seconds())

	c.records.WithLabelValues("extracted").Add(float64(res.Extracted))
	c.records.WithLabelValues("transformed").Add(float64(res.Transformed))
	c.records.WithLabelValues("loaded").Add(float64(res.Loaded))
	c.records.WithLabelValues("failed").Add(float64(res.Failed))

	if res.Succeeded() {
		c.lastSuccess.Set(float64(res.EndedAt.Unix()))
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
