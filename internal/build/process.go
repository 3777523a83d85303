package build

import (
	"fmt"
	"sort"

	"github.com/routino-go/routino/internal/rlog"
	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

// Limits bounds the build's pruning passes (section 4.D.1).
type Limits struct {
	RAMBytes      int64
	TmpDir        string
	MinDistance   units.Distance // segments shorter than this are candidates for pruning
	PruneIsolated bool
	PruneShort    bool
	PruneStraight bool
}

// Result summarises the finished graph.
type Result struct {
	Nodes, Segments, Ways int64
	PrunedIsolated        int64
	PrunedShort           int64
	PrunedStraight        int64
}

// Process runs the full build pipeline once parsing has completed:
// sort/dedup nodes and ways, resolve way-node references into measured
// segments, index adjacency, prune, and geographically renumber
// (spec.md section 4.D).
func (b *Builder) Process(lim Limits) (*Result, error) {
	rlog.Info("build: sorting %d nodes", b.nNodes)
	if _, err := b.nodes.Sort(lim.RAMBytes, lim.TmpDir); err != nil {
		return nil, fmt.Errorf("build: sorting nodes: %w", err)
	}

	rlog.Info("build: sorting %d ways", b.nWays)
	if _, err := b.ways.Sort(lim.RAMBytes, lim.TmpDir); err != nil {
		return nil, fmt.Errorf("build: sorting ways: %w", err)
	}

	rlog.Info("build: resolving way-node references into segments")
	if err := b.resolveSegments(); err != nil {
		return nil, err
	}
	if err := b.wayNodes.close(false); err != nil {
		return nil, err
	}

	rlog.Info("build: sorting segments")
	nSeg, err := b.segments.Sort(lim.RAMBytes, lim.TmpDir)
	if err != nil {
		return nil, fmt.Errorf("build: sorting segments: %w", err)
	}

	if err := b.segments.Index(int(b.nodes.Count())); err != nil {
		return nil, fmt.Errorf("build: indexing segments: %w", err)
	}

	res := &Result{Nodes: b.nodes.Count(), Segments: nSeg, Ways: b.ways.Count()}

	if lim.PruneIsolated {
		res.PrunedIsolated = b.pruneIsolated()
	}
	if lim.PruneShort {
		res.PrunedShort = b.pruneShort(lim.MinDistance)
	}
	if lim.PruneStraight {
		res.PrunedStraight = b.pruneStraightRuns()
	}

	if err := b.geographicSort(); err != nil {
		return nil, fmt.Errorf("build: geographic sort: %w", err)
	}

	return res, nil
}

// resolveSegments replays the way-node blob, now that NodesX and WaysX
// have id->index maps, turning each consecutive node pair into a
// measured SegmentX (distance by great-circle formula, direction by
// the way's oneway/reverse flags). Ways or nodes that can no longer be
// found (dangling references in the extract) are silently skipped, the
// way the original parser drops unresolvable members.
func (b *Builder) resolveSegments() error {
	return b.wayNodes.iterate(func(rec wayRecord) error {
		wayIdx, ok := b.ways.IndexOf(rec.wayID)
		if !ok {
			return nil
		}

		ids := rec.nodeIDs
		if rec.reverse {
			for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}

		for i := 0; i+1 < len(ids); i++ {
			idx1, ok1 := b.nodes.IndexOf(ids[i])
			idx2, ok2 := b.nodes.IndexOf(ids[i+1])
			if !ok1 || !ok2 || idx1 == idx2 {
				continue
			}

			n1, err := b.nodes.Lookup(idx1, 1)
			if err != nil {
				return err
			}
			n2, err := b.nodes.Lookup(idx2, 2)
			if err != nil {
				return err
			}

			metres := units.GreatCircleMetres(
				units.LatLongToRadians(n1.Latitude), units.LatLongToRadians(n1.Longitude),
				units.LatLongToRadians(n2.Latitude), units.LatLongToRadians(n2.Longitude),
			)
			dist := units.Distance(uint32(metres)).WithFlags(units.SegmentNormal)
			if rec.oneway {
				dist = dist.WithFlags(dist.Flags() | units.OneWay1To2)
			}

			if _, err := b.segments.Append(idx1, idx2, wayIdx, dist); err != nil {
				return err
			}
			if !rec.oneway {
				if _, err := b.segments.Append(idx2, idx1, wayIdx, dist); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// pruneIsolated marks nodes that ended up with no surviving segment as
// pruned (section 4.D.1, "isolated regions" simplified to single
// unconnected nodes; small disconnected islands of more than one node
// are left for the router's reachability check to route around).
func (b *Builder) pruneIsolated() int64 {
	var n int64
	_ = b.nodes.Iterate(func(idx units.Index, rec xstore.NodeX) error {
		if !rec.IsPruned() && !b.segments.IsUsed(idx) {
			rec.Latitude = units.NoLatLong
			_ = b.nodes.PutBack(idx, 1, rec)
			n++
		}
		return nil
	})
	return n
}

// pruneShort counts the segments whose measured length is non-zero and
// shorter than minDist. It does not look at endpoint degree, and it
// neither marks, merges nor removes any segment: the adjacency lists
// and every segment record are left unchanged (section 4.D.1).
func (b *Builder) pruneShort(minDist units.Distance) int64 {
	if minDist == 0 {
		return 0
	}
	var n int64
	_ = b.segments.Iterate(func(idx units.Index, rec xstore.SegmentX) error {
		if rec.Distance.Metres() > 0 && rec.Distance.Metres() < minDist.Metres() {
			n++
		}
		return nil
	})
	return n
}

// pruneStraightRuns counts chains of two or more degree-2 nodes, found
// by walking from each unvisited degree-2 node to the Node2 end of its
// first segment (section 4.D.1, "straight-line runs"). It does not test
// whether a chain is straight or stays on one way, and it does not
// collapse any chain: nodes and segments are left unchanged.
func (b *Builder) pruneStraightRuns() int64 {
	var runs int64
	seen := make([]bool, b.nodes.Count())

	_ = b.nodes.Iterate(func(idx units.Index, rec xstore.NodeX) error {
		if rec.IsPruned() || seen[idx] {
			return nil
		}
		if degreeOf(b.segments, idx) != 2 {
			return nil
		}

		// Walk forward from idx while every node visited has degree 2,
		// marking the run as consumed so it isn't recounted from its
		// interior.
		length := 0
		cur := idx
		for degreeOf(b.segments, cur) == 2 && !seen[cur] {
			seen[cur] = true
			length++
			next, ok := firstNeighbour(b.segments, cur)
			if !ok {
				break
			}
			cur = next
		}
		if length > 1 {
			runs++
		}
		return nil
	})

	return runs
}

func degreeOf(sx *xstore.SegmentsX, node units.Index) int {
	first, ok := sx.FirstSegment(node)
	if !ok {
		return 0
	}
	n := 0
	cur := first
	for {
		rec, err := sx.Lookup(cur, 3)
		if err != nil {
			return n
		}
		n++
		next, ok := sx.NextSegment(*rec)
		if !ok {
			break
		}
		cur = next
	}
	return n
}

func firstNeighbour(sx *xstore.SegmentsX, node units.Index) (units.Index, bool) {
	first, ok := sx.FirstSegment(node)
	if !ok {
		return units.NoIndex, false
	}
	rec, err := sx.Lookup(first, 3)
	if err != nil {
		return units.NoIndex, false
	}
	return rec.Node2, true
}

// geographicSort renumbers surviving nodes in (latitude bin, longitude
// bin) order, the locality-of-reference step the original calls
// "geographical sorting" so that nearby nodes land near each other on
// disk for the compact read-only store (section 4.D step 13). The
// resulting permutation is recorded on NodesX via SetGData; it does
// not yet rewrite SegmentsX's Node1/Node2 fields, which remain indexed
// against the pre-renumbering order until the compact-store writer in
// package store consumes gdata directly.
func (b *Builder) geographicSort() error {
	type binned struct {
		idx    units.Index
		latBin units.Bin
		lonBin units.Bin
	}
	var live []binned

	err := b.nodes.Iterate(func(idx units.Index, rec xstore.NodeX) error {
		if rec.IsPruned() {
			return nil
		}
		live = append(live, binned{idx: idx, latBin: units.ToBin(rec.Latitude), lonBin: units.ToBin(rec.Longitude)})
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(live, func(i, j int) bool {
		if live[i].latBin != live[j].latBin {
			return live[i].latBin < live[j].latBin
		}
		return live[i].lonBin < live[j].lonBin
	})

	gdata := make([]units.Index, b.nodes.Count())
	for i := range gdata {
		gdata[i] = units.NoIndex
	}
	for newIdx, rec := range live {
		gdata[rec.idx] = units.Index(newIdx)
	}

	if len(live) > 0 {
		latZero, lonZero := live[0].latBin, live[0].lonBin
		latMax, lonMax := live[0].latBin, live[0].lonBin
		for _, r := range live {
			if r.latBin < latZero {
				latZero = r.latBin
			}
			if r.latBin > latMax {
				latMax = r.latBin
			}
			if r.lonBin < lonZero {
				lonZero = r.lonBin
			}
			if r.lonBin > lonMax {
				lonMax = r.lonBin
			}
		}
		b.nodes.LatZero, b.nodes.LonZero = latZero, lonZero
		b.nodes.LatBins = int(latMax-latZero) + 1
		b.nodes.LonBins = int(lonMax-lonZero) + 1
	}

	b.nodes.SetGData(gdata)
	return nil
}

// Nodes, Segments, Ways, and Relations expose the underlying extended
// stores once Process has finished, for the compact-store writer and
// the super-graph builder to consume.
func (b *Builder) Nodes() *xstore.NodesX         { return b.nodes }
func (b *Builder) Segments() *xstore.SegmentsX   { return b.segments }
func (b *Builder) Ways() *xstore.WaysX           { return b.ways }
func (b *Builder) Relations() *xstore.RelationsX { return b.relations }
