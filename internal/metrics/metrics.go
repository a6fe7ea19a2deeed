// Package metrics exports the timings of a trace in the Prometheus text format,
// for pickup by node-exporter's textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"qtrace/internal/trace"
)

const namespace = "qtrace"

// NewRegistry returns a registry holding gauges for every node of root and its
// summary timings.
func NewRegistry(deployment string, root *trace.Root) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"deployment": deployment, "query_id": root.QueryID}

	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(g)
		return g
	}
	nodeGauge := func(name, help string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, []string{"path"})
		reg.MustRegister(g)
		return g
	}

	s := trace.Summarize(root)
	gauge("query_ms", "Time spent in measured sub-queries.").Set(float64(s.Query.Milliseconds()))
	gauge("other_ms", "Time outside measured sub-queries.").Set(float64(s.Other.Milliseconds()))
	gauge("total_ms", "Total elapsed time of the request.").Set(float64(s.Total.Milliseconds()))
	gauge("block", "Block the request was served at.").Set(float64(root.Block))
	inconsistent := gauge("inconsistent", "1 if sub-queries add up to more than the total elapsed time.")
	if s.Inconsistent {
		inconsistent.Set(1)
	}

	elapsed := nodeGauge("node_elapsed_ms", "Elapsed time of a trace node.")
	connWait := nodeGauge("node_conn_wait_ms", "Time a trace node waited for a database connection.")
	permitWait := nodeGauge("node_permit_wait_ms", "Time a trace node waited for a query permit.")
	entities := nodeGauge("node_entities", "Entities returned by a trace node.")

	elapsed.WithLabelValues("root").Set(float64(root.Elapsed.Milliseconds()))
	connWait.WithLabelValues("root").Set(float64(root.ConnWait.Milliseconds()))
	permitWait.WithLabelValues("root").Set(float64(root.PermitWait.Milliseconds()))

	trace.Walk(root, "root", func(path string, q *trace.Query) {
		elapsed.WithLabelValues(path).Set(float64(q.Elapsed.Milliseconds()))
		connWait.WithLabelValues(path).Set(float64(q.ConnWait.Milliseconds()))
		permitWait.WithLabelValues(path).Set(float64(q.PermitWait.Milliseconds()))
		entities.WithLabelValues(path).Set(float64(q.EntityCount))
	})

	return reg
}

// WriteTextfile writes the metrics of root to path.
func WriteTextfile(path, deployment string, root *trace.Root) error {
	if err := prometheus.WriteToTextfile(path, NewRegistry(deployment, root)); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
