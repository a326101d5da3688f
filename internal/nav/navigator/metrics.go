package navigator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"voxelnav.ai/internal/nav/graph"
	"voxelnav.ai/internal/nav/motion"
)

type Metrics struct {
	navigations     *prometheus.CounterVec
	navigateSeconds prometheus.Histogram
	planSeconds     prometheus.Histogram
	pathNodes       prometheus.Histogram
	graphNodes      prometheus.Histogram
}

// NewMetrics registers the navigation metrics with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		navigations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxelnav_navigations_total",
			Help: "Navigations by outcome",
		}, []string{"outcome"}),
		navigateSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxelnav_navigate_duration_seconds",
			Help:    "Wall time of NavigateTo calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}),
		planSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxelnav_plan_duration_seconds",
			Help:    "Graph construction plus pathfinding time",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}),
		pathNodes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxelnav_path_nodes",
			Help:    "Nodes per planned path",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 200},
		}),
		graphNodes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxelnav_graph_nodes",
			Help:    "Nodes per navigation graph",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

func (m *Metrics) observePlan(d time.Duration, g *graph.NavGraph, path []graph.NodeID) {
	m.planSeconds.Observe(d.Seconds())
	m.graphNodes.Observe(float64(g.Len()))
	if path != nil {
		m.pathNodes.Observe(float64(len(path)))
	}
}

func (m *Metrics) observeRun(o motion.Outcome, d time.Duration) {
	m.navigations.WithLabelValues(string(o)).Inc()
	m.navigateSeconds.Observe(d.Seconds())
}
