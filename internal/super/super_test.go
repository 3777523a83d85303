package super

import (
	"testing"

	"github.com/paulmach/osm"
	"github.com/routino-go/routino/internal/build"
	"github.com/routino-go/routino/internal/tagging"
	"github.com/routino-go/routino/internal/xstore"
)

func osmNode(id int64, lat, lon float64) *osm.Node {
	return &osm.Node{ID: osm.NodeID(id), Lat: lat, Lon: lon}
}

// A chain of 5 nodes on one residential way, joined at its middle node
// (3) to a second, motorway way through node 3: node 3's incident ways
// differ in attributes and share the motorcar transport, so it must be
// chosen as a super-node (criterion iii) while the chain endpoints
// stay flat.
func buildJunctionGraph(t *testing.T) *build.Builder {
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
		osmNode(5, 51.004, -1.000),
		osmNode(6, 51.002, -1.010),
	}
	for _, n := range nodes {
		if err := b.Node(n); err != nil {
			t.Fatalf("Node: %v", err)
		}
	}

	residential := &osm.Way{
		ID:    1,
		Tags:  osm.Tags{{Key: "highway", Value: "residential"}},
		Nodes: osm.WayNodes{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}},
	}
	if err := b.Way(residential); err != nil {
		t.Fatalf("Way(residential): %v", err)
	}

	motorway := &osm.Way{
		ID:    2,
		Tags:  osm.Tags{{Key: "highway", Value: "motorway"}, {Key: "oneway", Value: "yes"}},
		Nodes: osm.WayNodes{{ID: 3}, {ID: 6}},
	}
	if err := b.Way(motorway); err != nil {
		t.Fatalf("Way(motorway): %v", err)
	}

	if _, err := b.Process(build.Limits{RAMBytes: 1 << 20, TmpDir: t.TempDir()}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	return b
}

func TestContractPicksJunctionAsSuperNode(t *testing.T) {
	b := buildJunctionGraph(t)

	c := New(b)
	res, super, err := c.Contract()
	if err != nil {
		t.Fatalf("Contract: %v", err)
	}
	if res.Rounds == 0 {
		t.Fatalf("expected at least one round to run")
	}

	idx3, ok := b.Nodes().IndexOf(3)
	if !ok {
		t.Fatalf("IndexOf(3) not found")
	}
	if !super[idx3] {
		t.Fatalf("expected node 3 (the motorway/residential junction) to be a super-node")
	}

	idx1, _ := b.Nodes().IndexOf(1)
	if super[idx1] {
		t.Fatalf("expected node 1 (a chain endpoint with a single neighbour) to stay flat")
	}
}

func TestContractEmitsSuperSegmentSpanningFlatChain(t *testing.T) {
	b := buildJunctionGraph(t)

	c := New(b)
	res, _, err := c.Contract()
	if err != nil {
		t.Fatalf("Contract: %v", err)
	}

	idx3, _ := b.Nodes().IndexOf(3)
	idx6, _ := b.Nodes().IndexOf(6)

	found := false
	for _, s := range res.SuperSegments {
		if s.From == idx3 && s.To == idx6 {
			found = true
			if s.Distance.Metres() == 0 {
				t.Fatalf("expected a nonzero distance for the 3->6 super-segment")
			}
		}
	}
	if !found {
		t.Fatalf("expected a super-segment from the junction to its motorway neighbour, got %+v", res.SuperSegments)
	}
}
