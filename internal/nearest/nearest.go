// Package nearest implements the spiral bin search spec.md section
// 4.H uses to splice a waypoint into the graph: given a query point,
// expand outward ring by ring over the node store's geographic bins
// until no further ring can possibly hold anything closer, checking
// every candidate node (or its incident segments) against the active
// routing profile as it goes.
package nearest

import (
	"math"
	"sort"

	"github.com/routino-go/routino/internal/fakes"
	"github.com/routino-go/routino/internal/profile"
	"github.com/routino-go/routino/internal/store"
	"github.com/routino-go/routino/internal/units"
)

// Point is a query location in radians, matching GreatCircleMetres'
// and the compact stores' own angular units.
type Point struct {
	Lat, Lon float64
}

// NodeMatch is the outcome of a closest-node search.
type NodeMatch struct {
	Node units.Index
	Dist units.Distance
}

// SegmentMatch is the outcome of a closest-segment search: the segment
// itself (already in the form package fakes.Splice consumes), the
// along-segment distances to its two endpoints, and the perpendicular
// distance from the query point to the segment's chord.
type SegmentMatch struct {
	Segment fakes.SegmentRef
	Dist1   units.Distance
	Dist2   units.Distance
	Perp    units.Distance
}

// Searcher bundles the open compact stores and the profile a spiral
// search filters candidates against.
type Searcher struct {
	Nodes   *store.Nodes
	Segs    *store.Segments
	Ways    *store.Ways
	Profile *profile.Profile
}

// New builds a Searcher over already-open compact stores.
func New(nodes *store.Nodes, segs *store.Segments, ways *store.Ways, prof *profile.Profile) *Searcher {
	return &Searcher{Nodes: nodes, Segs: segs, Ways: ways, Profile: prof}
}

// ClosestNode finds the node nearest p that has at least one normal
// segment valid for the searcher's profile, within maxDist.
func (s *Searcher) ClosestNode(p Point, maxDist units.Distance) (NodeMatch, bool, error) {
	var best NodeMatch
	found := false
	threshold := float64(maxDist)

	err := s.walkBins(p, &threshold, func(node units.Index, rec store.Node, dist float64) error {
		idx, seg, ok, err := s.Segs.FirstIncident(rec.FirstSegment, 1)
		if err != nil {
			return err
		}
		for ok {
			valid, err := s.validNormalSegment(seg)
			if err != nil {
				return err
			}
			if valid {
				best = NodeMatch{Node: node, Dist: units.Distance(dist)}
				found = true
				threshold = dist
				return nil
			}
			idx, seg, ok, err = s.Segs.NextIncident(idx, seg, node, 1)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return best, found, err
}

// ClosestSegment finds the point on the nearest valid normal segment
// to p, within maxDist, mirroring ClosestNode but projecting onto each
// candidate segment's chord instead of stopping at its endpoints.
func (s *Searcher) ClosestSegment(p Point, maxDist units.Distance) (SegmentMatch, bool, error) {
	var best SegmentMatch
	found := false
	threshold := float64(maxDist)

	err := s.walkBins(p, &threshold, func(node units.Index, rec store.Node, dist1 float64) error {
		idx, seg, ok, err := s.Segs.FirstIncident(rec.FirstSegment, 1)
		if err != nil {
			return err
		}
		for ok {
			valid, err := s.validNormalSegment(seg)
			if err != nil {
				return err
			}
			if valid {
				other := seg.Node1
				if other == node {
					other = seg.Node2
				}
				otherRec, err := s.Nodes.Lookup(other, 2)
				if err != nil {
					return err
				}
				lat2 := units.LatLongToRadians(otherRec.Latitude)
				lon2 := units.LatLongToRadians(otherRec.Longitude)
				dist2 := units.GreatCircleMetres(p.Lat, p.Lon, lat2, lon2)

				lat1 := units.LatLongToRadians(rec.Latitude)
				lon1 := units.LatLongToRadians(rec.Longitude)
				chord := units.GreatCircleMetres(lat1, lon1, lat2, lon2)

				perp, toEnd, fromEnd := projectOntoChord(dist1, dist2, chord)
				if perp < threshold {
					da, db := toEnd, fromEnd
					if seg.Node1 != node {
						da, db = fromEnd, toEnd
					}
					best = SegmentMatch{
						Segment: segmentRef(idx, seg),
						Dist1:   units.Distance(da),
						Dist2:   units.Distance(db),
						Perp:    units.Distance(perp),
					}
					found = true
					threshold = perp
				}
			}
			idx, seg, ok, err = s.Segs.NextIncident(idx, seg, node, 1)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return best, found, err
}

// projectOntoChord implements the law-of-cosines projection of a point
// onto the straight chord between a segment's two endpoints (the
// original's flat-Earth assumption over one chord's short length):
// given great-circle distances from the point to each endpoint (d1,
// d2) and between the endpoints (d3), it returns the perpendicular
// distance to the chord and the along-chord distances to each end.
func projectOntoChord(d1, d2, d3 float64) (perp, toEnd1, toEnd2 float64) {
	if d3 == 0 {
		return d1, 0, 0
	}

	a := (d1*d1 - d2*d2 + d3*d3) / (2 * d3)
	b := d3 - a

	switch {
	case d1+d2 < d3:
		return 0, a, b
	case a >= 0 && b >= 0:
		p := d1*d1 - a*a
		if p < 0 {
			p = 0
		}
		return math.Sqrt(p), a, b
	case a > 0:
		return d2, d3, 0
	default:
		return d1, 0, d3
	}
}

func segmentRef(idx units.Index, seg store.Segment) fakes.SegmentRef {
	return fakes.SegmentRef{
		Index:      idx,
		Node1:      seg.Node1,
		Node2:      seg.Node2,
		Way:        seg.Way,
		OneWay1To2: seg.Distance.Flags()&units.OneWay1To2 != 0,
		OneWay2To1: seg.Distance.Flags()&units.OneWay2To1 != 0,
	}
}

func (s *Searcher) validNormalSegment(seg store.Segment) (bool, error) {
	if !seg.IsNormal() {
		return false, nil
	}
	way, err := s.Ways.Lookup(seg.Way, 1)
	if err != nil {
		return false, err
	}
	return s.Profile.Valid(way), nil
}

// walkBins expands the square ring of bins centred on p, rechecking
// *threshold (which visit may shrink as it finds better candidates) at
// each ring before deciding whether a bin is still worth visiting.
// Termination matches the original: stop once an entire ring contains
// no bin worth visiting, whether because every bin in it lies outside
// the grid or because every one is now further than *threshold.
func (s *Searcher) walkBins(p Point, threshold *float64, visit func(units.Index, store.Node, float64) error) error {
	header := s.Nodes.Header
	latBin := units.ToBin(units.RadiansToLatLong(p.Lat)) - units.Bin(header.LatZero)
	lonBin := units.ToBin(units.RadiansToLatLong(p.Lon)) - units.Bin(header.LonZero)

	for delta := 0; ; delta++ {
		count := 0

		for dlat := -delta; dlat <= delta; dlat++ {
			latb := latBin + units.Bin(dlat)
			if latb < 0 || int32(latb) >= header.LatBins {
				continue
			}

			for dlon := -delta; dlon <= delta; dlon++ {
				lonb := lonBin + units.Bin(dlon)
				if lonb < 0 || int32(lonb) >= header.LonBins {
					continue
				}
				if delta > 0 && absInt(dlat) < delta && absInt(dlon) < delta {
					continue
				}
				if delta > 0 && !s.binInRange(latb, lonb, latBin, lonBin, p, *threshold) {
					continue
				}

				lo, hi, err := s.binRange(latb, lonb)
				if err != nil {
					return err
				}
				for i := lo; i < hi; i++ {
					rec, err := s.Nodes.Lookup(i, 1)
					if err != nil {
						return err
					}
					lat := units.LatLongToRadians(rec.Latitude)
					lon := units.LatLongToRadians(rec.Longitude)
					dist := units.GreatCircleMetres(p.Lat, p.Lon, lat, lon)
					if dist >= *threshold {
						continue
					}
					if err := visit(i, rec, dist); err != nil {
						return err
					}
				}

				count++
			}
		}

		if count == 0 {
			return nil
		}
	}
}

// binInRange reports whether bin (latb, lonb) could hold anything
// within threshold of p. For a bin in p's own bin row or column it
// tests the two points on the bin's edges level with p; for any other
// bin it tests all four corners of the bin rectangle.
func (s *Searcher) binInRange(latb, lonb, qLatBin, qLonBin units.Bin, p Point, threshold float64) bool {
	header := s.Nodes.Header
	lat1 := units.LatLongToRadians(units.BinToLatLong(units.Bin(header.LatZero) + latb))
	lon1 := units.LatLongToRadians(units.BinToLatLong(units.Bin(header.LonZero) + lonb))
	lat2 := units.LatLongToRadians(units.BinToLatLong(units.Bin(header.LatZero) + latb + 1))
	lon2 := units.LatLongToRadians(units.BinToLatLong(units.Bin(header.LonZero) + lonb + 1))

	switch {
	case latb == qLatBin:
		d1 := units.GreatCircleMetres(p.Lat, lon1, p.Lat, p.Lon)
		d2 := units.GreatCircleMetres(p.Lat, lon2, p.Lat, p.Lon)
		return d1 <= threshold || d2 <= threshold
	case lonb == qLonBin:
		d1 := units.GreatCircleMetres(lat1, p.Lon, p.Lat, p.Lon)
		d2 := units.GreatCircleMetres(lat2, p.Lon, p.Lat, p.Lon)
		return d1 <= threshold || d2 <= threshold
	default:
		d1 := units.GreatCircleMetres(lat1, lon1, p.Lat, p.Lon)
		d2 := units.GreatCircleMetres(lat2, lon1, p.Lat, p.Lon)
		d3 := units.GreatCircleMetres(lat2, lon2, p.Lat, p.Lon)
		d4 := units.GreatCircleMetres(lat1, lon2, p.Lat, p.Lon)
		return d1 <= threshold || d2 <= threshold || d3 <= threshold || d4 <= threshold
	}
}

// binRange binary-searches the node array (physically sorted in
// (latitude bin, longitude bin) order by the builder's geographic
// sort) for the [lo, hi) range of nodes falling in bin (latb, lonb).
// There is no separate bin-offset table (see the "node coordinate
// encoding" decision in DESIGN.md), so every bin lookup costs two
// binary searches instead of one array index.
func (s *Searcher) binRange(latb, lonb units.Bin) (units.Index, units.Index, error) {
	header := s.Nodes.Header
	n := int(s.Nodes.Count())
	var lookupErr error

	binOf := func(i int) (units.Bin, units.Bin) {
		rec, err := s.Nodes.Lookup(units.Index(i), 3)
		if err != nil {
			lookupErr = err
			return 0, 0
		}
		return units.ToBin(rec.Latitude) - units.Bin(header.LatZero), units.ToBin(rec.Longitude) - units.Bin(header.LonZero)
	}

	lo := sort.Search(n, func(i int) bool {
		rlat, rlon := binOf(i)
		if rlat != latb {
			return rlat >= latb
		}
		return rlon >= lonb
	})
	if lookupErr != nil {
		return 0, 0, lookupErr
	}

	hi := sort.Search(n, func(i int) bool {
		rlat, rlon := binOf(i)
		if rlat != latb {
			return rlat > latb
		}
		return rlon > lonb
	})
	if lookupErr != nil {
		return 0, 0, lookupErr
	}

	return units.Index(lo), units.Index(hi), nil
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
