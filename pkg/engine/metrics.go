package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rmax-ai/osmon/pkg/graph"
)

var (
	// OsmonDeadlock is 1 while the backend reports a deadlock.
	OsmonDeadlock = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "osmon_deadlock",
			Help: "1 if the last applied snapshot reported a deadlock, 0 otherwise",
		},
	)

	// OsmonGraphNodes tracks the node count of each graph.
	OsmonGraphNodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmon_graph_nodes",
			Help: "Number of nodes in the last built graph",
		},
		[]string{"graph"},
	)

	// OsmonGraphEdges tracks the edge count of each graph by edge kind.
	OsmonGraphEdges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmon_graph_edges",
			Help: "Number of rendered edges in the last built graph",
		},
		[]string{"graph", "kind"},
	)

	// OsmonTimelineMaxTime is the length of the last reconstructed timeline.
	OsmonTimelineMaxTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "osmon_timeline_max_time",
			Help: "Max end time of the last reconstructed Gantt chart, in ticks",
		},
	)

	// OsmonPollsTotal counts polls by result (ok, error, stale).
	OsmonPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmon_polls_total",
			Help: "Total number of backend polls",
		},
		[]string{"result"},
	)

	// OsmonEdgesDroppedTotal counts malformed input by diagnostic reason.
	OsmonEdgesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmon_edges_dropped_total",
			Help: "Total number of edges or nodes the graph builder rejected or collapsed",
		},
		[]string{"reason"},
	)

	// OsmonStaleResultsTotal counts fetches discarded because a newer one won.
	OsmonStaleResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "osmon_stale_results_total",
			Help: "Total number of poll results discarded as stale",
		},
	)
)

func init() {
	prometheus.MustRegister(OsmonDeadlock)
	prometheus.MustRegister(OsmonGraphNodes)
	prometheus.MustRegister(OsmonGraphEdges)
	prometheus.MustRegister(OsmonTimelineMaxTime)
	prometheus.MustRegister(OsmonPollsTotal)
	prometheus.MustRegister(OsmonEdgesDroppedTotal)
	prometheus.MustRegister(OsmonStaleResultsTotal)
}

// observeView publishes the gauges of an applied view.
func observeView(v View) {
	if v.Graphs.HasDeadlock {
		OsmonDeadlock.Set(1)
	} else {
		OsmonDeadlock.Set(0)
	}

	rag, wfg := v.Graphs.RAG, v.Graphs.WFG
	OsmonGraphNodes.WithLabelValues(string(graph.KindRAG)).Set(float64(len(rag.Nodes)))
	OsmonGraphNodes.WithLabelValues(string(graph.KindWFG)).Set(float64(len(wfg.Nodes)))
	OsmonGraphEdges.WithLabelValues(string(graph.KindRAG), string(graph.EdgeHold)).Set(float64(rag.CountEdges(graph.EdgeHold)))
	OsmonGraphEdges.WithLabelValues(string(graph.KindRAG), string(graph.EdgeRequest)).Set(float64(rag.CountEdges(graph.EdgeRequest)))
	OsmonGraphEdges.WithLabelValues(string(graph.KindWFG), string(graph.EdgeWaitFor)).Set(float64(wfg.CountEdges(graph.EdgeWaitFor)))
	OsmonTimelineMaxTime.Set(float64(v.Timeline.MaxTime))

	for _, d := range v.Graphs.Diagnostics {
		OsmonEdgesDroppedTotal.WithLabelValues(string(d.Reason)).Inc()
	}
}
