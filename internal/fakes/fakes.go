// Package fakes splices waypoints that don't land exactly on a real
// node into the graph as temporary fake nodes and half-segments, the
// query-scoped structure the router consults alongside the compact
// stores (spec.md section 4.G).
package fakes

import (
	"github.com/routino-go/routino/internal/units"
)

// MinSegment is the snap-to-endpoint threshold: a waypoint closer than
// this to one end of its nearest segment uses that real node directly
// instead of creating a fake one.
const MinSegment = units.Distance(5)

// SegmentRef describes the real segment a waypoint has snapped to, as
// found by package nearest.
type SegmentRef struct {
	Index      units.Index
	Node1      units.Index
	Node2      units.Index
	Way        units.Index
	OneWay1To2 bool
	OneWay2To1 bool
}

// Node is one fake node: an interpolated position on a real segment,
// plus enough of that segment's identity to detect two waypoints
// sharing it (LinkSameSegment) and to answer FakeLatLong.
type Node struct {
	Lat, Lon      units.LatLong
	RealSeg       units.Index
	DistFromNode1 units.Distance
}

// Segment is one fake (half- or linking-) segment: geometrically
// identical in shape to store.Segment, but carrying Real, the index of
// the genuine segment it stands in for, so the router's U-turn check
// can compare two fake segments' underlying real segment.
type Segment struct {
	Node1, Node2 units.Index
	Way          units.Index
	Distance     units.Distance
	OneWay1To2   bool
	OneWay2To1   bool
	Real         units.Index // units.NoIndex for an extra linking segment
}

// Set is the per-query mutable state the router splices waypoints
// into. It must be Reset before each route computation (spec.md
// section 4.G: "fakes are process-wide mutable state with lifetime = a
// single query").
type Set struct {
	nodes []Node
	segs  []Segment

	incident map[units.Index][]units.Index // fake node -> ordered incident fake-segment ids
	extra    map[[2]units.Index]units.Index // (real node, fake node) -> fake-segment id
}

// New creates an empty fake-node/segment set.
func New() *Set {
	return &Set{incident: make(map[units.Index][]units.Index), extra: make(map[[2]units.Index]units.Index)}
}

// Reset clears every fake node and segment, ready for the next query.
func (s *Set) Reset() {
	s.nodes = s.nodes[:0]
	s.segs = s.segs[:0]
	for k := range s.incident {
		delete(s.incident, k)
	}
	for k := range s.extra {
		delete(s.extra, k)
	}
}

func (s *Set) nodeIndex(i int) units.Index  { return units.NodeFake + units.Index(i) }
func (s *Set) segIndex(i int) units.Index   { return units.SegmentFake + units.Index(i) }
func (s *Set) nodeSlot(idx units.Index) int { return int(idx - units.NodeFake) }
func (s *Set) segSlot(idx units.Index) int  { return int(idx - units.SegmentFake) }

func (s *Set) addNode(n Node) units.Index {
	s.nodes = append(s.nodes, n)
	return s.nodeIndex(len(s.nodes) - 1)
}

func (s *Set) addSegment(seg Segment) units.Index {
	s.segs = append(s.segs, seg)
	idx := s.segIndex(len(s.segs) - 1)
	s.incident[seg.Node1] = append(s.incident[seg.Node1], idx)
	s.incident[seg.Node2] = append(s.incident[seg.Node2], idx)
	return idx
}

// Splice resolves one waypoint against its nearest segment: d1 and d2
// are the distances along seg from Node1 and Node2 respectively to the
// waypoint's projected position, dmin the perpendicular distance. If
// the projection falls within MinSegment of one endpoint, Splice
// returns that real node; otherwise it creates a fake node at
// (lat, lon) and two half-segments inheriting seg's way, each
// direction-restricted to preserve seg's own oneway sense.
func (s *Set) Splice(seg SegmentRef, d1, d2 units.Distance, lat, lon units.LatLong) units.Index {
	switch {
	case d1 < MinSegment && d2 >= MinSegment:
		return seg.Node1
	case d2 < MinSegment && d1 >= MinSegment:
		return seg.Node2
	case d1 < MinSegment && d2 < MinSegment:
		if d1 <= d2 {
			return seg.Node1
		}
		return seg.Node2
	}

	fakeNode := s.addNode(Node{Lat: lat, Lon: lon, RealSeg: seg.Index, DistFromNode1: d1})

	// Half 1: real Node1 -> fakeNode; half 2: fakeNode -> real Node2.
	// Both halves keep seg's Node1-to-Node2 orientation, so each one
	// carries seg's 1->2 and 2->1 oneway flags unchanged.
	h1 := s.addSegment(Segment{Node1: seg.Node1, Node2: fakeNode, Way: seg.Way, Distance: d1, Real: seg.Index, OneWay1To2: seg.OneWay1To2, OneWay2To1: seg.OneWay2To1})
	h2 := s.addSegment(Segment{Node1: fakeNode, Node2: seg.Node2, Way: seg.Way, Distance: d2, Real: seg.Index, OneWay1To2: seg.OneWay1To2, OneWay2To1: seg.OneWay2To1})

	s.extra[[2]units.Index{seg.Node1, fakeNode}] = h1
	s.extra[[2]units.Index{seg.Node2, fakeNode}] = h2

	return fakeNode
}

// LinkSameSegment synthesises the two extra fake segments spec.md
// section 4.G calls for when two waypoints land on the same real
// segment: one linking segment per relative order, so the router sees
// the two fake nodes as direct neighbours without detouring through a
// real endpoint.
func (s *Set) LinkSameSegment(a, b units.Index) bool {
	if !units.IsFake(a) || !units.IsFake(b) || a == b {
		return false
	}
	na, oka := s.Lookup(a)
	nb, okb := s.Lookup(b)
	if !oka || !okb || na.RealSeg != nb.RealSeg || na.RealSeg == units.NoIndex {
		return false
	}

	var dist units.Distance
	if na.DistFromNode1 >= nb.DistFromNode1 {
		dist = na.DistFromNode1 - nb.DistFromNode1
	} else {
		dist = nb.DistFromNode1 - na.DistFromNode1
	}

	s.addSegment(Segment{Node1: a, Node2: b, Distance: dist, Real: units.NoIndex})
	s.addSegment(Segment{Node1: b, Node2: a, Distance: dist, Real: units.NoIndex})
	return true
}

// FirstFakeSegment returns the first fake segment incident to a fake
// node, or (NoIndex, false) if it has none.
func (s *Set) FirstFakeSegment(fakeNode units.Index) (units.Index, bool) {
	list := s.incident[fakeNode]
	if len(list) == 0 {
		return units.NoIndex, false
	}
	return list[0], true
}

// NextFakeSegment returns the fake segment incident to fakeNode that
// follows prev in iteration order, or (NoIndex, false) if prev was the
// last one.
func (s *Set) NextFakeSegment(prev, fakeNode units.Index) (units.Index, bool) {
	list := s.incident[fakeNode]
	for i, seg := range list {
		if seg == prev {
			if i+1 < len(list) {
				return list[i+1], true
			}
			return units.NoIndex, false
		}
	}
	return units.NoIndex, false
}

// ExtraFakeSegment returns the half-segment directly linking realNode
// to fakeNode, if any.
func (s *Set) ExtraFakeSegment(realNode, fakeNode units.Index) (units.Index, bool) {
	idx, ok := s.extra[[2]units.Index{realNode, fakeNode}]
	return idx, ok
}

// LookupFakeSegment fetches a fake segment by its Index-space id.
func (s *Set) LookupFakeSegment(idx units.Index) (Segment, bool) {
	slot := s.segSlot(idx)
	if slot < 0 || slot >= len(s.segs) {
		return Segment{}, false
	}
	return s.segs[slot], true
}

// Lookup fetches a fake node by its Index-space id.
func (s *Set) Lookup(idx units.Index) (Node, bool) {
	slot := s.nodeSlot(idx)
	if slot < 0 || slot >= len(s.nodes) {
		return Node{}, false
	}
	return s.nodes[slot], true
}

// FakeLatLong returns a fake node's interpolated position.
func (s *Set) FakeLatLong(fakeNode units.Index) (units.LatLong, units.LatLong, bool) {
	n, ok := s.Lookup(fakeNode)
	if !ok {
		return 0, 0, false
	}
	return n.Lat, n.Lon, true
}

// RealOf returns the genuine segment a (possibly fake) segment stands
// in for: seg itself if it is already real, or its Real field if it is
// a fake half-segment. An extra linking segment (Real == NoIndex) maps
// to itself, since it has no single underlying real segment.
func (s *Set) RealOf(seg units.Index) units.Index {
	if !units.IsFake(seg) {
		return seg
	}
	fs, ok := s.LookupFakeSegment(seg)
	if !ok || fs.Real == units.NoIndex {
		return seg
	}
	return fs.Real
}

// IsFakeUTurn reports whether seg1 and seg2 both stand in for the same
// real segment, so traversing one then the other is a reversal along
// the same physical way (spec.md section 4.H's edge-relaxation rule).
func (s *Set) IsFakeUTurn(seg1, seg2 units.Index) bool {
	if !units.IsFake(seg1) && !units.IsFake(seg2) {
		return false
	}
	r1, r2 := s.RealOf(seg1), s.RealOf(seg2)
	return r1 == r2 && !units.IsFake(r1)
}
