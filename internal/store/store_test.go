package store

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/osm"
	"github.com/routino-go/routino/internal/build"
	"github.com/routino-go/routino/internal/super"
	"github.com/routino-go/routino/internal/tagging"
	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

func osmNode(id int64, lat, lon float64) *osm.Node {
	return &osm.Node{ID: osm.NodeID(id), Lat: lat, Lon: lon}
}

// buildSmallGraph is the "tiny chain" A-B-C-D scenario: four nodes on
// one residential way, two-way, short enough that nothing gets pruned.
func buildSmallGraph(t *testing.T) (*build.Builder, *super.Result, []bool) {
	t.Helper()
	b, err := build.New(build.Options{Dir: t.TempDir(), Mode: xstore.ModeSlim, Rules: &tagging.RuleSet{}})
	if err != nil {
		t.Fatalf("build.New: %v", err)
	}

	nodes := []*osm.Node{
		osmNode(1, 51.000, -1.000),
		osmNode(2, 51.001, -1.000),
		osmNode(3, 51.002, -1.000),
		osmNode(4, 51.003, -1.000),
	}
	for _, n := range nodes {
		if err := b.Node(n); err != nil {
			t.Fatalf("Node: %v", err)
		}
	}

	way := &osm.Way{
		ID:    1,
		Tags:  osm.Tags{{Key: "highway", Value: "residential"}},
		Nodes: osm.WayNodes{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}},
	}
	if err := b.Way(way); err != nil {
		t.Fatalf("Way: %v", err)
	}

	if _, err := b.Process(build.Limits{RAMBytes: 1 << 20, TmpDir: t.TempDir()}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	c := super.New(b)
	res, superFlags, err := c.Contract()
	if err != nil {
		t.Fatalf("Contract: %v", err)
	}
	return b, res, superFlags
}

func TestWriteAllProducesReadableStores(t *testing.T) {
	b, res, superFlags := buildSmallGraph(t)

	dir := t.TempDir()
	if err := WriteAll(dir, b, res, superFlags); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	nodes, err := OpenNodes(filepath.Join(dir, NodesFile), ModeSlim)
	if err != nil {
		t.Fatalf("OpenNodes: %v", err)
	}
	defer nodes.Close()
	if nodes.Count() != 4 {
		t.Fatalf("expected 4 nodes, got %d", nodes.Count())
	}

	segs, err := OpenSegments(filepath.Join(dir, SegmentsFile), ModeSlim)
	if err != nil {
		t.Fatalf("OpenSegments: %v", err)
	}
	defer segs.Close()
	if segs.Count() != 3 {
		t.Fatalf("expected 3 undirected segments for a 4-node chain, got %d", segs.Count())
	}

	var sawOneway bool
	_ = segs.Iterate(func(_ units.Index, s Segment) error {
		if s.Distance.Flags()&(units.OneWay1To2|units.OneWay2To1) != 0 {
			sawOneway = true
		}
		if !s.IsNormal() {
			t.Fatalf("expected every segment in this all-residential chain to carry NORMAL")
		}
		return nil
	})
	if sawOneway {
		t.Fatalf("expected no oneway flags on a two-way residential chain")
	}

	ways, err := OpenWays(filepath.Join(dir, WaysFile), filepath.Join(dir, WayNamesFile), ModeSlim)
	if err != nil {
		t.Fatalf("OpenWays: %v", err)
	}
	defer ways.Close()
	if ways.Count() != 1 {
		t.Fatalf("expected 1 way, got %d", ways.Count())
	}

	rels, err := OpenRelations(filepath.Join(dir, RelationsFile), ModeSlim)
	if err != nil {
		t.Fatalf("OpenRelations: %v", err)
	}
	defer rels.Close()
	if rels.Count() != 0 {
		t.Fatalf("expected 0 turn restrictions, got %d", rels.Count())
	}
}

// TestAdjacencyWalkVisitsBothEndpoints exercises spec.md section 3's
// adjacency invariant directly: starting at a node's FirstSegment and
// alternating NextIncident must surface every segment touching that
// node, whether the node is Node1 or Node2 of it. On the tiny A-B-C-D
// chain, B and C each touch one segment as Node2 and one as Node1.
func TestAdjacencyWalkVisitsBothEndpoints(t *testing.T) {
	b, res, superFlags := buildSmallGraph(t)

	dir := t.TempDir()
	if err := WriteAll(dir, b, res, superFlags); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	nodes, err := OpenNodes(filepath.Join(dir, NodesFile), ModeSlim)
	if err != nil {
		t.Fatalf("OpenNodes: %v", err)
	}
	defer nodes.Close()
	segs, err := OpenSegments(filepath.Join(dir, SegmentsFile), ModeSlim)
	if err != nil {
		t.Fatalf("OpenSegments: %v", err)
	}
	defer segs.Close()

	for node := units.Index(0); node < units.Index(nodes.Count()); node++ {
		n, err := nodes.Lookup(node, 1)
		if err != nil {
			t.Fatalf("Lookup node %d: %v", node, err)
		}

		var touching int
		idx, seg, ok, err := segs.FirstIncident(n.FirstSegment, 1)
		if err != nil {
			t.Fatalf("FirstIncident: %v", err)
		}
		for ok {
			if seg.Node1 != node && seg.Node2 != node {
				t.Fatalf("segment %d touches neither endpoint of node %d: %+v", idx, node, seg)
			}
			touching++
			idx, seg, ok, err = segs.NextIncident(idx, seg, node, 1)
			if err != nil {
				t.Fatalf("NextIncident: %v", err)
			}
		}

		// Every interior node of the chain (B, C) has two incident
		// segments, one where it is Node1 and one where it is Node2;
		// the endpoints (A, D) have exactly one.
		if node == 0 || node == units.Index(nodes.Count())-1 {
			if touching != 1 {
				t.Fatalf("expected chain endpoint %d to touch 1 segment, got %d", node, touching)
			}
		} else if touching != 2 {
			t.Fatalf("expected interior node %d to touch 2 segments, got %d", node, touching)
		}
	}
}

func TestWriteAllMarksOnewaySegment(t *testing.T) {
	b, err := build.New(build.Options{Dir: t.TempDir(), Mode: xstore.ModeSlim, Rules: &tagging.RuleSet{}})
	if err != nil {
		t.Fatalf("build.New: %v", err)
	}

	for _, n := range []*osm.Node{osmNode(1, 51.000, -1.000), osmNode(2, 51.001, -1.000)} {
		if err := b.Node(n); err != nil {
			t.Fatalf("Node: %v", err)
		}
	}
	way := &osm.Way{
		ID:    1,
		Tags:  osm.Tags{{Key: "highway", Value: "motorway"}, {Key: "oneway", Value: "yes"}},
		Nodes: osm.WayNodes{{ID: 1}, {ID: 2}},
	}
	if err := b.Way(way); err != nil {
		t.Fatalf("Way: %v", err)
	}
	if _, err := b.Process(build.Limits{RAMBytes: 1 << 20, TmpDir: t.TempDir()}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	c := super.New(b)
	res, superFlags, err := c.Contract()
	if err != nil {
		t.Fatalf("Contract: %v", err)
	}

	dir := t.TempDir()
	if err := WriteAll(dir, b, res, superFlags); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	segs, err := OpenSegments(filepath.Join(dir, SegmentsFile), ModeSlim)
	if err != nil {
		t.Fatalf("OpenSegments: %v", err)
	}
	defer segs.Close()
	if segs.Count() != 1 {
		t.Fatalf("expected 1 segment, got %d", segs.Count())
	}
	seg, err := segs.Lookup(0, 1)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if seg.Distance.Flags()&units.OneWay1To2 == 0 && seg.Distance.Flags()&units.OneWay2To1 == 0 {
		t.Fatalf("expected a oneway flag on a single-direction motorway segment")
	}
}
