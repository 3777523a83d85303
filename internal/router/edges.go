package router

import (
	"github.com/routino-go/routino/internal/store"
	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

// edgeView is one incident edge of a node, real or fake, normalised to
// the fields edge relaxation needs regardless of which store it came
// from.
type edgeView struct {
	Segment              units.Index
	Node1, Node2         units.Index
	Way                  units.Index
	Distance             units.Distance // plain metres, flags stripped
	Normal, Super        bool
	OneWay1To2, OneWay2To1 bool
}

// other returns the endpoint of e that is not node.
func (e edgeView) other(node units.Index) units.Index {
	if e.Node1 == node {
		return e.Node2
	}
	return e.Node1
}

// blocked reports whether e's one-way restriction forbids leaving node
// along this edge in the given direction: the forward sense (reverse
// == false, used by FindStartRoutes/FindMiddleRoute) asks "can travel
// leave node here"; the reverse sense (used by FindFinishRoutes, which
// walks backwards from the finish) asks the mirror question -- can a
// real forward journey have entered node from the other end.
func (e edgeView) blocked(node units.Index, reverse bool) bool {
	at1 := e.Node1 == node
	if !reverse {
		if at1 {
			return e.OneWay2To1
		}
		return e.OneWay1To2
	}
	if at1 {
		return e.OneWay1To2
	}
	return e.OneWay2To1
}

// realSegment resolves a (possibly fake) segment index to the genuine
// segment it stands in for, for U-turn and turn-restriction comparison.
func (r *Router) realSegment(seg units.Index) units.Index {
	if r.Fakes == nil {
		return seg
	}
	return r.Fakes.RealOf(seg)
}

// isUTurn reports whether travelling seg1 then seg2 reverses along the
// same physical segment.
func (r *Router) isUTurn(seg1, seg2 units.Index) bool {
	if seg1 == seg2 {
		return true
	}
	if seg1 == units.NoIndex || seg2 == units.NoIndex {
		return false
	}
	r1, r2 := r.realSegment(seg1), r.realSegment(seg2)
	if r1 == seg2 || r2 == seg1 {
		return true
	}
	if r1 == r2 && r.Fakes != nil && r.Fakes.IsFakeUTurn(seg1, seg2) {
		return true
	}
	return false
}

// incidentEdges lists every edge touching node: real segments from the
// compact store plus whatever fake half-segments or extra linking
// segments package fakes has spliced in touching this node (which
// includes a real node that a waypoint snapped near -- fakes.Set
// indexes those half-segments under the real endpoint too, folding the
// original's separate "ExtraFakeSegment" fallback into one uniform
// walk instead of a special case at the end of real-segment iteration).
func (r *Router) incidentEdges(node units.Index) ([]edgeView, error) {
	var out []edgeView

	if !units.IsFake(node) {
		rec, err := r.Nodes.Lookup(node, 1)
		if err != nil {
			return nil, err
		}
		idx, seg, ok, err := r.Segs.FirstIncident(rec.FirstSegment, 1)
		if err != nil {
			return nil, err
		}
		for ok {
			out = append(out, edgeView{
				Segment:    idx,
				Node1:      seg.Node1,
				Node2:      seg.Node2,
				Way:        seg.Way,
				Distance:   seg.Distance.Metres(),
				Normal:     seg.IsNormal(),
				Super:      seg.IsSuper(),
				OneWay1To2: seg.Distance.Flags()&units.OneWay1To2 != 0,
				OneWay2To1: seg.Distance.Flags()&units.OneWay2To1 != 0,
			})
			idx, seg, ok, err = r.Segs.NextIncident(idx, seg, node, 1)
			if err != nil {
				return nil, err
			}
		}
	}

	if r.Fakes != nil {
		first, ok := r.Fakes.FirstFakeSegment(node)
		for ok {
			fs, found := r.Fakes.LookupFakeSegment(first)
			if found {
				out = append(out, edgeView{
					Segment:    first,
					Node1:      fs.Node1,
					Node2:      fs.Node2,
					Way:        fs.Way,
					Distance:   fs.Distance,
					Normal:     true,
					OneWay1To2: fs.OneWay1To2,
					OneWay2To1: fs.OneWay2To1,
				})
			}
			first, ok = r.Fakes.NextFakeSegment(first, node)
		}
	}

	return out, nil
}

// edgeCost validates e against the profile (allowed transport, weight
// and clearance limits, non-zero highway/property preference, and the
// allowed-transport mask of the node it leads into) and, if valid,
// returns the routing score for traversing it.
func (r *Router) edgeCost(e edgeView, node units.Index) (units.Score, bool, error) {
	way, err := r.Ways.Lookup(e.Way, 1)
	if err != nil {
		return 0, false, err
	}
	if !r.Profile.Allows(way) || !r.Profile.FitsDimensions(way) {
		return 0, false, nil
	}

	other := e.other(node)
	allowed, err := r.nodeAllows(other)
	if err != nil {
		return 0, false, err
	}
	if !allowed {
		return 0, false, nil
	}

	cost, ok := r.Profile.EdgeCost(e.Distance, way)
	return cost, ok, nil
}

// turnAllowed looks up whether any restriction recorded at via governs
// travel arriving along fromSeg and reports whether continuing onto
// toSeg is permitted, given the restriction's except mask and the
// profile's transport. A via node with no restrictions always allows.
func (r *Router) turnAllowed(via, fromSeg, toSeg units.Index) bool {
	restrictions := r.turnsByVia[via]
	if len(restrictions) == 0 {
		return true
	}

	fromWay, toWay := r.segmentWay(fromSeg), r.segmentWay(toSeg)
	if fromWay == units.NoIndex || toWay == units.NoIndex {
		return true
	}

	for _, tr := range restrictions {
		if tr.From != fromWay {
			continue
		}
		if tr.Except&r.Profile.AllowedMask != 0 {
			continue
		}
		switch tr.Restriction {
		case xstore.RestrictionNoEntry:
			if tr.To == toWay {
				return false
			}
		case xstore.RestrictionOnlyEntry:
			if tr.To != toWay {
				return false
			}
		}
	}
	return true
}

// segmentWay resolves a (possibly fake) segment to the way it belongs
// to, the unit turnAllowed compares restrictions against (DESIGN.md
// decision 7: restrictions are recorded per-way, not per-segment).
func (r *Router) segmentWay(seg units.Index) units.Index {
	if seg == units.NoIndex {
		return units.NoIndex
	}
	if units.IsFake(seg) {
		fs, ok := r.Fakes.LookupFakeSegment(seg)
		if !ok {
			return units.NoIndex
		}
		return fs.Way
	}
	rec, err := r.Segs.Lookup(seg, 1)
	if err != nil {
		return units.NoIndex
	}
	return rec.Way
}
