// Command planetsplitter turns one or more OpenStreetMap XML extracts
// into a routing database: parse, sort/prune/index, contract the
// super-graph, and write the compact query-time stores (spec.md
// sections 4.C-4.F).
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/osm"
	"github.com/routino-go/routino/internal/build"
	"github.com/routino-go/routino/internal/config"
	"github.com/routino-go/routino/internal/osmxml"
	"github.com/routino-go/routino/internal/rlog"
	"github.com/routino-go/routino/internal/stats"
	"github.com/routino-go/routino/internal/store"
	"github.com/routino-go/routino/internal/super"
	"github.com/routino-go/routino/internal/tagging"
	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

func main() {
	cfg, err := config.ParseBuildFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	rlog.Setup(cfg.Verbose)

	if err := run(cfg); err != nil {
		rlog.Error(err)
		os.Exit(1)
	}
}

// countingSink wraps a *build.Builder as an osmxml.Sink, incrementing
// stats.Build's parse counters alongside every record the builder
// accepts.
type countingSink struct {
	b *build.Builder
	m *stats.Build
}

func (s countingSink) Node(n *osm.Node) error {
	s.m.NodesParsed.Inc()
	return s.b.Node(n)
}

func (s countingSink) Way(w *osm.Way) error {
	s.m.WaysParsed.Inc()
	return s.b.Way(w)
}

func (s countingSink) Relation(r *osm.Relation) error {
	s.m.RelationsRead.Inc()
	return s.b.Relation(r)
}

func run(cfg *config.BuildConfig) error {
	if cfg.ProcessOnly {
		return fmt.Errorf("planetsplitter: --process-only requires intermediate files kept from a prior --parse-only run, which this build does not yet reload from disk")
	}

	rules, err := tagging.LoadRules(cfg.TagRules)
	if err != nil {
		return err
	}

	dbDir := filepath.Join(cfg.Dir, cfg.Prefix)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("planetsplitter: creating %s: %w", dbDir, err)
	}

	b, err := build.New(build.Options{Dir: dbDir, Mode: xstore.ModeSlim, Rules: rules})
	if err != nil {
		return fmt.Errorf("planetsplitter: starting build: %w", err)
	}

	metrics := stats.NewBuild()
	sink := countingSink{b: b, m: metrics}

	for _, f := range cfg.InputFiles {
		rlog.Info("planetsplitter: parsing %s", f)
		if err := osmxml.Load(context.Background(), f, sink); err != nil {
			return fmt.Errorf("planetsplitter: %w", err)
		}
	}

	if cfg.ParseOnly {
		rlog.Info("planetsplitter: --parse-only, stopping after parse")
		return nil
	}

	res, err := b.Process(build.Limits{
		RAMBytes:      cfg.MaxRAM,
		TmpDir:        dbDir,
		MinDistance:   units.KMToDistance(0.001),
		PruneIsolated: true,
		PruneShort:    true,
		PruneStraight: true,
	})
	if err != nil {
		return fmt.Errorf("planetsplitter: processing: %w", err)
	}
	metrics.SegmentsKept.Add(float64(res.Segments))
	metrics.PrunedIsolated.Add(float64(res.PrunedIsolated))
	metrics.PrunedShort.Add(float64(res.PrunedShort))
	metrics.PrunedStraight.Add(float64(res.PrunedStraight))

	rlog.Info("planetsplitter: contracting super-graph")
	c := super.New(b)
	sres, superFlags, err := c.Contract()
	if err != nil {
		return fmt.Errorf("planetsplitter: contracting: %w", err)
	}
	metrics.SuperRounds.Set(float64(sres.Rounds))
	metrics.SuperNodes.Set(float64(sres.SuperNodes))

	rlog.Info("planetsplitter: writing compact database to %s", dbDir)
	if err := store.WriteAll(dbDir, b, sres, superFlags); err != nil {
		return fmt.Errorf("planetsplitter: writing database: %w", err)
	}

	if cfg.Verbose {
		text, err := stats.Render(metrics.Registry())
		if err != nil {
			return err
		}
		rlog.Debug("%s", text)
	}

	rlog.Info("planetsplitter: done: %d nodes, %d segments, %d ways, %d super-nodes",
		res.Nodes, res.Segments, res.Ways, sres.SuperNodes)
	return nil
}
