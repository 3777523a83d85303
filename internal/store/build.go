package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/routino-go/routino/internal/build"
	"github.com/routino-go/routino/internal/rlog"
	"github.com/routino-go/routino/internal/super"
	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

// Filenames used by WriteAll/Open for the four compact stores.
const (
	NodesFile     = "nodes.dat"
	SegmentsFile  = "segments.dat"
	WaysFile      = "ways.dat"
	WayNamesFile  = "waynames.dat"
	RelationsFile = "relations.dat"
)

// directedEdge is one direction of travel between two (gdata-remapped)
// compact node indices, collected from either the normal or the
// super-segment graph ahead of the merge pass.
type directedEdge struct {
	from, to units.Index
	way      units.Index
	dist     units.Distance
	normal   bool
	super    bool
}

// WriteAll consumes a finished Builder (Process already run), the
// super-graph Contractor's Result, and its super-node flags, and
// writes the four compact query-time stores into dir (spec.md section
// 4.F): nodes renumbered by the builder's geographic sort, segments
// merged from the normal and super graphs into canonical node1<=node2
// records with a Next2 reverse-traversal chain, ways carried across
// unchanged alongside their relocated name blob, and turn restrictions
// resolved from OSM ids to final compact indices.
func WriteAll(dir string, b *build.Builder, sres *super.Result, superFlags []bool) error {
	gdata := b.Nodes().GData()
	if gdata == nil {
		return fmt.Errorf("store: builder has no geographic renumbering (Process not run?)")
	}

	oldCount := b.Nodes().Count()
	var liveCount int64
	for old := int64(0); old < oldCount; old++ {
		if gdata[old] != units.NoIndex {
			liveCount++
		}
	}

	oldOfNew := make([]units.Index, liveCount)
	for old := int64(0); old < oldCount; old++ {
		if new := gdata[old]; new != units.NoIndex {
			oldOfNew[new] = units.Index(old)
		}
	}

	newSuper := make([]bool, liveCount)
	for old, isSuper := range superFlags {
		if isSuper {
			if new := gdata[old]; new != units.NoIndex {
				newSuper[new] = true
			}
		}
	}

	edges, err := collectNormalEdges(b, gdata)
	if err != nil {
		return fmt.Errorf("store: collecting normal segments: %w", err)
	}
	superEdges := collectSuperEdges(sres, gdata)
	edges = append(edges, superEdges...)

	merged := mergeEdges(edges)

	segHeader, firstSegment, err := WriteSegments(filepath.Join(dir, SegmentsFile), merged, liveCount)
	if err != nil {
		return err
	}
	rlog.Info("store: wrote %d segments (%d normal, %d super)", segHeader.Count, segHeader.NormalCount, segHeader.SuperCount)

	latBins := int32(b.Nodes().LatBins)
	lonBins := int32(b.Nodes().LonBins)
	latZero := b.Nodes().LatZero
	lonZero := b.Nodes().LonZero

	superCount, err := WriteNodes(filepath.Join(dir, NodesFile), liveCount, latBins, lonBins, latZero, lonZero,
		func(i int64) (Node, units.LatLong, units.LatLong) {
			old := oldOfNew[i]
			rec, err := b.Nodes().Lookup(old, 1)
			if err != nil {
				return Node{}, 0, 0
			}
			flags := rec.Flags
			if newSuper[i] {
				flags |= units.NodeSuper
			}
			n := Node{FirstSegment: firstSegment[i], Allow: rec.Allow, Flags: flags}
			return n, rec.Latitude, rec.Longitude
		})
	if err != nil {
		return err
	}
	rlog.Info("store: wrote %d nodes (%d super)", liveCount, superCount)

	ways, err := collectWays(b)
	if err != nil {
		return fmt.Errorf("store: collecting ways: %w", err)
	}
	nameBlob, err := os.Open(b.Ways().NamesPath())
	if err != nil {
		return fmt.Errorf("store: opening way name blob: %w", err)
	}
	defer nameBlob.Close()
	wayHeader, err := WriteWays(filepath.Join(dir, WaysFile), filepath.Join(dir, WayNamesFile), ways, nameBlob)
	if err != nil {
		return err
	}
	rlog.Info("store: wrote %d ways", wayHeader.Count)

	turns, err := collectTurnRestrictions(b, gdata)
	if err != nil {
		return fmt.Errorf("store: collecting turn restrictions: %w", err)
	}
	relHeader, err := WriteRelations(filepath.Join(dir, RelationsFile), turns)
	if err != nil {
		return err
	}
	rlog.Info("store: wrote %d turn restrictions", relHeader.Count)

	return nil
}

func collectNormalEdges(b *build.Builder, gdata []units.Index) ([]directedEdge, error) {
	var edges []directedEdge
	err := b.Segments().Iterate(func(_ units.Index, rec xstore.SegmentX) error {
		from, to := gdata[rec.Node1], gdata[rec.Node2]
		if from == units.NoIndex || to == units.NoIndex {
			return nil
		}
		edges = append(edges, directedEdge{from: from, to: to, way: rec.Way, dist: rec.Distance.Metres(), normal: true})
		return nil
	})
	return edges, err
}

func collectSuperEdges(sres *super.Result, gdata []units.Index) []directedEdge {
	if sres == nil {
		return nil
	}
	edges := make([]directedEdge, 0, len(sres.SuperSegments))
	for _, s := range sres.SuperSegments {
		from, to := gdata[s.From], gdata[s.To]
		if from == units.NoIndex || to == units.NoIndex {
			continue
		}
		edges = append(edges, directedEdge{from: from, to: to, way: s.Way, dist: s.Distance, super: true})
	}
	return edges
}

type mergeKey struct {
	node1, node2, way units.Index
}

// mergeEdges folds the normal and super directed-edge lists into
// canonical node1<=node2 records, keyed by (node1, node2, way): an
// edge observed in only one direction becomes a oneway compact
// segment, one observed in both directions becomes two-way, and an
// edge present in both the normal and super graphs acquires both
// flags (spec.md section 3's merge rule).
func mergeEdges(edges []directedEdge) []MergedSegment {
	type agg struct {
		dist          units.Distance
		normal, super bool
		forward, back bool
	}
	m := make(map[mergeKey]*agg, len(edges))
	order := make([]mergeKey, 0, len(edges))

	for _, e := range edges {
		n1, n2, forward := e.from, e.to, true
		if n1 > n2 {
			n1, n2, forward = n2, n1, false
		}
		key := mergeKey{n1, n2, e.way}
		a, ok := m[key]
		if !ok {
			a = &agg{dist: e.dist}
			m[key] = a
			order = append(order, key)
		}
		if e.dist < a.dist {
			a.dist = e.dist
		}
		a.normal = a.normal || e.normal
		a.super = a.super || e.super
		if forward {
			a.forward = true
		} else {
			a.back = true
		}
	}

	out := make([]MergedSegment, 0, len(order))
	for _, key := range order {
		a := m[key]
		ms := MergedSegment{Node1: key.node1, Node2: key.node2, Way: key.way, Distance: a.dist, Normal: a.normal, Super: a.super}
		switch {
		case a.forward && !a.back:
			ms.OneWay1To2 = true
		case a.back && !a.forward:
			ms.OneWay2To1 = true
		}
		out = append(out, ms)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Node1 != out[j].Node1 {
			return out[i].Node1 < out[j].Node1
		}
		return out[i].Node2 < out[j].Node2
	})
	return out
}

func collectWays(b *build.Builder) ([]Way, error) {
	ways := make([]Way, 0, b.Ways().Count())
	err := b.Ways().Iterate(func(_ units.Index, rec xstore.WayX) error {
		ways = append(ways, Way{Props: rec.Props, NameOff: rec.NameOff, NameLen: rec.NameLen})
		return nil
	})
	return ways, err
}

func collectTurnRestrictions(b *build.Builder, gdata []units.Index) ([]TurnRestriction, error) {
	var turns []TurnRestriction
	err := b.Relations().IterateTurn(func(_ units.Index, rec xstore.TurnRestrictRelX) error {
		fromWay, ok := b.Ways().IndexOf(rec.From)
		if !ok {
			return nil
		}
		toWay, ok := b.Ways().IndexOf(rec.To)
		if !ok {
			return nil
		}
		viaOld, ok := b.Nodes().IndexOf(rec.Via)
		if !ok {
			return nil
		}
		via := gdata[viaOld]
		if via == units.NoIndex {
			return nil
		}
		turns = append(turns, TurnRestriction{From: fromWay, Via: via, To: toWay, Restriction: rec.Restriction, Except: rec.Except})
		return nil
	})
	return turns, err
}
