package nearest

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"
	"github.com/routino-go/routino/internal/build"
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

// buildChain lays four nodes on one residential way, A-B-C-D, in a
// straight north-south line, writes the compact stores, and returns a
// Searcher with a bicycle profile normalized against it.
func buildChain(t *testing.T) *Searcher {
	t.Helper()
	b, err := build.New(build.Options{Dir: t.TempDir(), Mode: xstore.ModeSlim, Rules: &tagging.RuleSet{}})
	if err != nil {
		t.Fatalf("build.New: %v", err)
	}

	// Spacing of 0.2 degrees (~22km) keeps each node in its own
	// geographic bin (one bin spans ~0.056 degrees of latitude), so
	// geographicSort's (latBin, lonBin) ordering is unambiguous and the
	// chain comes out as nodes 0,1,2,3 in order A,B,C,D.
	nodes := []*osm.Node{
		osmNode(1, 51.000, -1.000),
		osmNode(2, 51.200, -1.000),
		osmNode(3, 51.400, -1.000),
		osmNode(4, 51.600, -1.000),
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

	p := &profile.Profile{Transport: units.TransportBicycle, Mode: profile.Shortest}
	p.HighwayPref[units.HighwayResidential] = 100
	p.Speed[units.HighwayResidential] = units.KPHToSpeed(20)
	if err := p.Normalize(w); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	return New(n, s, w, p)
}

func TestClosestNodeFindsNearestEndpoint(t *testing.T) {
	s := buildChain(t)

	p := Point{Lat: units.DegreesToRadians(51.2005), Lon: units.DegreesToRadians(-1.000)}
	match, ok, err := s.ClosestNode(p, 10000)
	if err != nil {
		t.Fatalf("ClosestNode: %v", err)
	}
	if !ok {
		t.Fatalf("expected a match within 10km")
	}
	if match.Node != 1 {
		t.Fatalf("expected node B (index 1) to be nearest to 51.2005, got node %d", match.Node)
	}
}

func TestClosestNodeRespectsMaxDistance(t *testing.T) {
	s := buildChain(t)

	p := Point{Lat: units.DegreesToRadians(51.2005), Lon: units.DegreesToRadians(-1.000)}
	_, ok, err := s.ClosestNode(p, 1)
	if err != nil {
		t.Fatalf("ClosestNode: %v", err)
	}
	if ok {
		t.Fatalf("expected no match within 1m of a point roughly 55m from the chain")
	}
}

func TestClosestSegmentProjectsBetweenEndpoints(t *testing.T) {
	s := buildChain(t)

	// Roughly halfway between node B and node C, slightly off the line.
	p := Point{Lat: units.DegreesToRadians(51.300), Lon: units.DegreesToRadians(-1.001)}
	match, ok, err := s.ClosestSegment(p, 10000)
	if err != nil {
		t.Fatalf("ClosestSegment: %v", err)
	}
	if !ok {
		t.Fatalf("expected a segment match within 10km")
	}
	if match.Dist1 == 0 && match.Dist2 == 0 {
		t.Fatalf("expected nonzero along-segment distances to both endpoints, got %+v", match)
	}
	if match.Segment.Node1 != 1 || match.Segment.Node2 != 2 {
		t.Fatalf("expected the B-C segment (nodes 1,2), got nodes %d,%d", match.Segment.Node1, match.Segment.Node2)
	}
}

// TestClosestNodeDistanceMatchesOrbHaversine cross-checks units.GreatCircleMetres,
// which ClosestNode reports distances in, against orb/geo's independent
// haversine implementation, so a regression in our own formula would
// show up as a divergence against a library computing the same thing.
func TestClosestNodeDistanceMatchesOrbHaversine(t *testing.T) {
	s := buildChain(t)

	p := Point{Lat: units.DegreesToRadians(51.2005), Lon: units.DegreesToRadians(-1.000)}
	match, ok, err := s.ClosestNode(p, 10000)
	if err != nil {
		t.Fatalf("ClosestNode: %v", err)
	}
	if !ok {
		t.Fatalf("expected a match within 10km")
	}

	rec, err := s.Nodes.Lookup(match.Node, 1)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	nodeLat := units.LatLongToDegrees(rec.Latitude)
	nodeLon := units.LatLongToDegrees(rec.Longitude)
	queryLat := units.RadiansToDegrees(p.Lat)
	queryLon := units.RadiansToDegrees(p.Lon)

	want := geo.Distance(orb.Point{queryLon, queryLat}, orb.Point{nodeLon, nodeLat})
	got := float64(match.Dist.Metres())

	if diff := math.Abs(got - want); diff > 1.0 {
		t.Fatalf("haversine mismatch: ours=%.3fm orb=%.3fm diff=%.3fm", got, want, diff)
	}
}
