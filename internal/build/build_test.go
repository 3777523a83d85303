package build

import (
	"testing"

	"github.com/paulmach/osm"
	"github.com/routino-go/routino/internal/tagging"
	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

func mustBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := New(Options{Dir: t.TempDir(), Mode: xstore.ModeSlim, Rules: &tagging.RuleSet{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func osmNode(id int64, lat, lon float64) *osm.Node {
	return &osm.Node{ID: osm.NodeID(id), Lat: lat, Lon: lon}
}

func TestBuilderResolvesWayIntoSegments(t *testing.T) {
	b := mustBuilder(t)

	nodes := []*osm.Node{
		osmNode(1, 51.0, -1.0),
		osmNode(2, 51.001, -1.0),
		osmNode(3, 51.002, -1.0),
	}
	for _, n := range nodes {
		if err := b.Node(n); err != nil {
			t.Fatalf("Node: %v", err)
		}
	}

	way := &osm.Way{
		ID:   1,
		Tags: osm.Tags{{Key: "highway", Value: "residential"}, {Key: "name", Value: "Test Road"}},
		Nodes: osm.WayNodes{
			{ID: 1}, {ID: 2}, {ID: 3},
		},
	}
	if err := b.Way(way); err != nil {
		t.Fatalf("Way: %v", err)
	}

	res, err := b.Process(Limits{RAMBytes: 1 << 20, TmpDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Nodes != 3 {
		t.Fatalf("Nodes = %d, want 3", res.Nodes)
	}
	// Two-way street: each of the 2 internal edges appended in both
	// directions.
	if res.Segments != 4 {
		t.Fatalf("Segments = %d, want 4", res.Segments)
	}

	idx1, ok := b.Nodes().IndexOf(1)
	if !ok {
		t.Fatalf("IndexOf(1) not found")
	}
	first, ok := b.Segments().FirstSegment(idx1)
	if !ok {
		t.Fatalf("node 1 has no outgoing segment")
	}
	seg, err := b.Segments().Lookup(first, 1)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if seg.Distance.Metres() == 0 {
		t.Fatalf("expected a nonzero measured distance")
	}
}

func TestBuilderOnewayProducesSingleDirection(t *testing.T) {
	b := mustBuilder(t)

	for _, n := range []*osm.Node{osmNode(10, 51.0, -1.0), osmNode(11, 51.001, -1.0)} {
		if err := b.Node(n); err != nil {
			t.Fatalf("Node: %v", err)
		}
	}

	way := &osm.Way{
		ID:    2,
		Tags:  osm.Tags{{Key: "highway", Value: "motorway"}, {Key: "oneway", Value: "yes"}},
		Nodes: osm.WayNodes{{ID: 10}, {ID: 11}},
	}
	if err := b.Way(way); err != nil {
		t.Fatalf("Way: %v", err)
	}

	res, err := b.Process(Limits{RAMBytes: 1 << 20, TmpDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Segments != 1 {
		t.Fatalf("Segments = %d, want 1 for a oneway", res.Segments)
	}

	idx10, _ := b.Nodes().IndexOf(10)
	first, ok := b.Segments().FirstSegment(idx10)
	if !ok {
		t.Fatalf("expected node 10 to have an outgoing segment")
	}
	seg, err := b.Segments().Lookup(first, 1)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if seg.Distance.Flags()&units.OneWay1To2 == 0 {
		t.Fatalf("expected OneWay1To2 flag set")
	}
}

func TestBuilderSkipsWayWithoutHighwayTag(t *testing.T) {
	b := mustBuilder(t)
	for _, n := range []*osm.Node{osmNode(20, 51.0, -1.0), osmNode(21, 51.001, -1.0)} {
		if err := b.Node(n); err != nil {
			t.Fatalf("Node: %v", err)
		}
	}
	way := &osm.Way{
		ID:    3,
		Tags:  osm.Tags{{Key: "building", Value: "yes"}},
		Nodes: osm.WayNodes{{ID: 20}, {ID: 21}},
	}
	if err := b.Way(way); err != nil {
		t.Fatalf("Way: %v", err)
	}
	if got := b.Ways().Count(); got != 0 {
		t.Fatalf("Ways().Count() = %d, want 0 for a non-highway way", got)
	}
}
