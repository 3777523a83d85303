// Package stats holds the build- and query-phase Prometheus counters
// wired through planetsplitter, router, and filedumper --statistics
// (SPEC_FULL.md's domain-stack table). Since none of the three
// binaries is a long-lived server, there is nothing to scrape a
// /metrics endpoint from; filedumper --statistics instead renders the
// registry as text (see Render).
package stats

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Build holds planetsplitter's counters: how much of the parsed graph
// survived indexing, pruning (spec.md section 4.D.1), and contraction.
type Build struct {
	reg *prometheus.Registry

	NodesParsed    prometheus.Counter
	WaysParsed     prometheus.Counter
	RelationsRead  prometheus.Counter
	SegmentsKept   prometheus.Counter
	PrunedIsolated prometheus.Counter
	PrunedShort    prometheus.Counter
	PrunedStraight prometheus.Counter
	SuperRounds    prometheus.Gauge
	SuperNodes     prometheus.Gauge
}

// NewBuild creates a fresh, independent registry of build counters --
// independent so repeated test or library use never collides with
// promauto's global DefaultRegisterer.
func NewBuild() *Build {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Build{
		reg: reg,
		NodesParsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "routino_build_nodes_parsed_total",
			Help: "Total OSM nodes parsed from the input extract.",
		}),
		WaysParsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "routino_build_ways_parsed_total",
			Help: "Total OSM ways parsed from the input extract.",
		}),
		RelationsRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "routino_build_relations_parsed_total",
			Help: "Total OSM relations parsed from the input extract.",
		}),
		SegmentsKept: factory.NewCounter(prometheus.CounterOpts{
			Name: "routino_build_segments_kept_total",
			Help: "Segments remaining after way-node resolution and merge.",
		}),
		PrunedIsolated: factory.NewCounter(prometheus.CounterOpts{
			Name: "routino_build_pruned_isolated_total",
			Help: "Nodes pruned for having no usable segment.",
		}),
		PrunedShort: factory.NewCounter(prometheus.CounterOpts{
			Name: "routino_build_pruned_short_total",
			Help: "Segments shorter than the minimum distance (counted only; none are removed).",
		}),
		PrunedStraight: factory.NewCounter(prometheus.CounterOpts{
			Name: "routino_build_pruned_straight_total",
			Help: "Chains of two or more degree-2 nodes found (counted only; none are collapsed).",
		}),
		SuperRounds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "routino_build_super_rounds",
			Help: "Contraction rounds run to build the super-graph (spec.md section 4.E).",
		}),
		SuperNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "routino_build_super_nodes",
			Help: "Super-nodes selected in the final contraction round.",
		}),
	}
}

// Query holds router's per-query counters: how many queries ran and how
// many failed to find a route. PhaseDuration and NodesExpanded are
// registered for the search phases of spec.md section 4.H, but nothing
// records into them.
type Query struct {
	reg *prometheus.Registry

	QueriesTotal   prometheus.Counter
	QueriesFailed  prometheus.Counter
	PhaseDuration  *prometheus.HistogramVec
	NodesExpanded  prometheus.Counter
}

// NewQuery creates a fresh, independent registry of query counters.
func NewQuery() *Query {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Query{
		reg: reg,
		QueriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "routino_router_queries_total",
			Help: "Total route queries attempted.",
		}),
		QueriesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "routino_router_queries_failed_total",
			Help: "Route queries that found no usable path.",
		}),
		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "routino_router_phase_duration_seconds",
			Help: "Wall-clock time spent in each search phase.",
		}, []string{"phase"}),
		NodesExpanded: factory.NewCounter(prometheus.CounterOpts{
			Name: "routino_router_nodes_expanded_total",
			Help: "Total (node, arriving segment) states relaxed across all phases.",
		}),
	}
}

// Render writes every metric in reg as plain text lines of
// "name{labels} value", the form filedumper --statistics prints
// instead of serving Prometheus's text-exposition format over HTTP --
// there is no long-lived process here for a scraper to hit.
func Render(regs ...*prometheus.Registry) (string, error) {
	var out string
	for _, reg := range regs {
		families, err := reg.Gather()
		if err != nil {
			return "", fmt.Errorf("stats: gathering metrics: %w", err)
		}
		sort.Slice(families, func(i, j int) bool {
			return families[i].GetName() < families[j].GetName()
		})
		for _, fam := range families {
			for _, m := range fam.Metric {
				out += formatMetric(fam.GetName(), m)
			}
		}
	}
	return out, nil
}

func formatMetric(name string, m *dto.Metric) string {
	labels := ""
	for _, lp := range m.Label {
		labels += fmt.Sprintf("%s=%q,", lp.GetName(), lp.GetValue())
	}
	if labels != "" {
		labels = "{" + labels[:len(labels)-1] + "}"
	}

	var value float64
	switch {
	case m.Counter != nil:
		value = m.Counter.GetValue()
	case m.Gauge != nil:
		value = m.Gauge.GetValue()
	case m.Histogram != nil:
		return fmt.Sprintf("%s%s_count %d\n%s%s_sum %g\n", name, labels, m.Histogram.GetSampleCount(), name, labels, m.Histogram.GetSampleSum())
	default:
		return ""
	}
	return fmt.Sprintf("%s%s %g\n", name, labels, value)
}

// Registry exposes the underlying *prometheus.Registry for Render.
func (b *Build) Registry() *prometheus.Registry { return b.reg }

// Registry exposes the underlying *prometheus.Registry for Render.
func (q *Query) Registry() *prometheus.Registry { return q.reg }
