package router

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/osm"
	"github.com/routino-go/routino/internal/build"
	"github.com/routino-go/routino/internal/fakes"
	"github.com/routino-go/routino/internal/nearest"
	"github.com/routino-go/routino/internal/profile"
	"github.com/routino-go/routino/internal/store"
	"github.com/routino-go/routino/internal/super"
	"github.com/routino-go/routino/internal/tagging"
	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

func osmNode(id int64, lat, lon float64) *osm.Node {
	return &osm.Node{ID: osm.NodeID(id), Lat: lat, Lon: lon}
}

// fixture bundles everything a test needs to run queries against one
// built-and-opened database: the open stores, a Searcher to resolve
// coordinates to graph positions, and a bicycle Router ready to query.
type fixture struct {
	t       *testing.T
	nodes   *store.Nodes
	segs    *store.Segments
	ways    *store.Ways
	rels    *store.Relations
	search  *nearest.Searcher
	router  *Router
}

func (f *fixture) point(lat, lon float64) nearest.Point {
	return nearest.Point{Lat: units.DegreesToRadians(lat), Lon: units.DegreesToRadians(lon)}
}

// buildFixture writes nodes and ways to a fresh compact database,
// contracts the super-graph, opens every store and builds a bicycle
// Router over it, mirroring internal/nearest's buildChain fixture.
func buildFixture(t *testing.T, nodes []*osm.Node, ways []*osm.Way) *fixture {
	t.Helper()
	b, err := build.New(build.Options{Dir: t.TempDir(), Mode: xstore.ModeSlim, Rules: &tagging.RuleSet{}})
	if err != nil {
		t.Fatalf("build.New: %v", err)
	}
	for _, n := range nodes {
		if err := b.Node(n); err != nil {
			t.Fatalf("Node: %v", err)
		}
	}
	for _, w := range ways {
		if err := b.Way(w); err != nil {
			t.Fatalf("Way: %v", err)
		}
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
	if err := store.WriteAll(dir, b, res, superFlags); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	n, err := store.OpenNodes(filepath.Join(dir, store.NodesFile), store.ModeSlim)
	if err != nil {
		t.Fatalf("OpenNodes: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	s, err := store.OpenSegments(filepath.Join(dir, store.SegmentsFile), store.ModeSlim)
	if err != nil {
		t.Fatalf("OpenSegments: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	w, err := store.OpenWays(filepath.Join(dir, store.WaysFile), filepath.Join(dir, store.WayNamesFile), store.ModeSlim)
	if err != nil {
		t.Fatalf("OpenWays: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	rels, err := store.OpenRelations(filepath.Join(dir, store.RelationsFile), store.ModeSlim)
	if err != nil {
		t.Fatalf("OpenRelations: %v", err)
	}
	t.Cleanup(func() { rels.Close() })

	p := &profile.Profile{Transport: units.TransportBicycle, Mode: profile.Shortest, ObeyOneway: true, ObeyTurns: true}
	p.HighwayPref[units.HighwayResidential] = 100
	p.Speed[units.HighwayResidential] = units.KPHToSpeed(20)
	if err := p.Normalize(w); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	fk := fakes.New()
	r, err := New(n, s, w, rels, p, fk)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &fixture{t: t, nodes: n, segs: s, ways: w, rels: rels, search: nearest.New(n, s, w, p), router: r}
}

// chainFixture lays four nodes A-B-C-D on one straight residential way,
// spaced ~22km apart (over three bins) so geographic sort can't reorder
// them ambiguously.
func chainFixture(t *testing.T, oneway string) *fixture {
	t.Helper()
	nodes := []*osm.Node{
		osmNode(1, 51.000, -1.000),
		osmNode(2, 51.200, -1.000),
		osmNode(3, 51.400, -1.000),
		osmNode(4, 51.600, -1.000),
	}
	tags := osm.Tags{{Key: "highway", Value: "residential"}}
	if oneway != "" {
		tags = append(tags, osm.Tag{Key: "oneway", Value: oneway})
	}
	way := &osm.Way{ID: 1, Tags: tags, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}}
	return buildFixture(t, nodes, []*osm.Way{way})
}

func TestQueryFindsDirectRoute(t *testing.T) {
	f := chainFixture(t, "")

	from := f.point(51.000, -1.000)
	to := f.point(51.600, -1.000)
	route, ok, err := f.router.Query(f.search, []nearest.Point{from, to}, 10000, false)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !ok {
		t.Fatalf("expected a route along the chain")
	}
	if len(route.Steps) < 2 {
		t.Fatalf("expected at least 2 steps, got %d", len(route.Steps))
	}
	if route.Distance == 0 {
		t.Fatalf("expected nonzero route distance")
	}
	first, last := route.Steps[0], route.Steps[len(route.Steps)-1]
	if first.Segment != units.NoIndex {
		t.Fatalf("expected the first step to carry no arriving segment, got %d", first.Segment)
	}
	if last.Node == units.NoIndex {
		t.Fatalf("expected the final step to name a node")
	}
}

func TestQueryRejectsRouteAgainstOneway(t *testing.T) {
	f := chainFixture(t, "yes") // oneway=yes means travel is only node1->node2, i.e. A->B->C->D

	// Forward: A to D should succeed.
	from := f.point(51.000, -1.000)
	to := f.point(51.600, -1.000)
	_, ok, err := f.router.Query(f.search, []nearest.Point{from, to}, 10000, false)
	if err != nil {
		t.Fatalf("Query forward: %v", err)
	}
	if !ok {
		t.Fatalf("expected the forward route with the oneway to succeed")
	}

	// Backward: D to A should fail, since the whole way only allows A->D.
	_, ok, err = f.router.Query(f.search, []nearest.Point{to, from}, 10000, false)
	if err != nil {
		t.Fatalf("Query backward: %v", err)
	}
	if ok {
		t.Fatalf("expected the backward route against the oneway to fail")
	}
}

func TestQueryRequiresTwoWaypoints(t *testing.T) {
	f := chainFixture(t, "")
	_, _, err := f.router.Query(f.search, []nearest.Point{f.point(51.000, -1.000)}, 10000, false)
	if err == nil {
		t.Fatalf("expected an error for a single waypoint")
	}
}

// junctionFixture lays a three-way fork: a central hub node with three
// residential spokes of equal length radiating to the north, east and
// south, each in its own geographic bin so the hub's degree-3 junction
// (criterion (iv), internal/super) gets selected as a super-node.
func junctionFixture(t *testing.T) *fixture {
	t.Helper()
	hub := osmNode(1, 51.000, -1.000)
	north1 := osmNode(2, 51.200, -1.000)
	north2 := osmNode(3, 51.400, -1.000)
	east1 := osmNode(4, 51.000, -0.800)
	east2 := osmNode(5, 51.000, -0.600)
	south1 := osmNode(6, 50.800, -1.000)
	south2 := osmNode(7, 50.600, -1.000)

	tag := osm.Tags{{Key: "highway", Value: "residential"}}
	wayNorth := &osm.Way{ID: 1, Tags: tag, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}, {ID: 3}}}
	wayEast := &osm.Way{ID: 2, Tags: tag, Nodes: osm.WayNodes{{ID: 1}, {ID: 4}, {ID: 5}}}
	waySouth := &osm.Way{ID: 3, Tags: tag, Nodes: osm.WayNodes{{ID: 1}, {ID: 6}, {ID: 7}}}

	nodes := []*osm.Node{hub, north1, north2, east1, east2, south1, south2}
	ways := []*osm.Way{wayNorth, wayEast, waySouth}
	return buildFixture(t, nodes, ways)
}

func TestQueryRoutesAcrossSuperGraphJunction(t *testing.T) {
	f := junctionFixture(t)

	from := f.point(51.400, -1.000) // tip of the north spoke
	to := f.point(50.600, -1.000)   // tip of the south spoke, via the hub
	route, ok, err := f.router.Query(f.search, []nearest.Point{from, to}, 10000, false)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !ok {
		t.Fatalf("expected a route from the north spoke to the south spoke through the hub")
	}
	if route.Distance == 0 {
		t.Fatalf("expected nonzero route distance")
	}
	// The route must pass through the hub; since the hub is a degree-3
	// junction every search (Phase 1/2/3) must have agreed on a
	// consistent path through it rather than dead-ending at the overlay
	// boundary.
	foundHub := false
	for _, step := range route.Steps {
		if !units.IsFake(step.Node) {
			rec, err := f.nodes.Lookup(step.Node, 1)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if rec.Latitude == units.DegreesToLatLong(51.000) && rec.Longitude == units.DegreesToLatLong(-1.000) {
				foundHub = true
			}
		}
	}
	if !foundHub {
		t.Fatalf("expected the route to pass through the hub node")
	}
}

func TestQueryLoopReturnsToStart(t *testing.T) {
	f := chainFixture(t, "")

	from := f.point(51.000, -1.000)
	mid := f.point(51.400, -1.000)
	route, ok, err := f.router.Query(f.search, []nearest.Point{from, mid}, 10000, true)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !ok {
		t.Fatalf("expected a looped route to succeed")
	}
	first, last := route.Steps[0], route.Steps[len(route.Steps)-1]
	if first.Lat != last.Lat || first.Lon != last.Lon {
		t.Fatalf("expected a loop to return to its starting coordinates, got %+v and %+v", first, last)
	}
}
