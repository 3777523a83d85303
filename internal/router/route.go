package router

import (
	"fmt"

	"github.com/routino-go/routino/internal/units"
)

// Step is one node along a computed route: the node itself, the
// segment travelled to reach it (NoIndex for the very first step),
// and that leg's real distance and duration (not the routing score,
// which is scaled by preference and so not a real-world quantity).
type Step struct {
	Node     units.Index
	Segment  units.Index
	Way      units.Index
	Distance units.Distance
	Duration units.Duration
	Lat, Lon units.LatLong
}

// Route is one complete, ordered path between two consecutive
// waypoints (or, once joined by Query, several of them).
type Route struct {
	Steps    []Step
	Distance units.Distance
	Duration units.Duration
}

// latLong returns a node's position, whether it is a real compact node
// or a fake query-scoped one.
func (r *Router) latLong(node units.Index) (units.LatLong, units.LatLong, error) {
	if units.IsFake(node) {
		lat, lon, ok := r.Fakes.FakeLatLong(node)
		if !ok {
			return 0, 0, fmt.Errorf("router: unknown fake node %d", node)
		}
		return lat, lon, nil
	}
	rec, err := r.Nodes.Lookup(node, 4)
	if err != nil {
		return 0, 0, err
	}
	return rec.Latitude, rec.Longitude, nil
}

// buildSteps turns an ordered chain of EdgeKeys (as produced by
// results.trace, or a concatenation of several) into Steps carrying
// real distances and durations, recomputed from the way each segment
// belongs to (the search itself only ever worked with preference-
// scaled scores).
func (r *Router) buildSteps(path []EdgeKey) (Route, error) {
	var route Route
	for _, k := range path {
		lat, lon, err := r.latLong(k.Node)
		if err != nil {
			return Route{}, err
		}
		step := Step{Node: k.Node, Segment: k.Segment, Lat: lat, Lon: lon}

		if k.Segment != units.NoIndex {
			wayIdx := r.segmentWay(k.Segment)
			way, err := r.Ways.Lookup(wayIdx, 1)
			if err != nil {
				return Route{}, err
			}
			dist, err := r.segmentDistance(k.Segment)
			if err != nil {
				return Route{}, err
			}
			step.Way = wayIdx
			step.Distance = dist
			step.Duration = r.Profile.Duration(dist, way)
			route.Distance += dist
			route.Duration += step.Duration
		}

		route.Steps = append(route.Steps, step)
	}
	return route, nil
}

func (r *Router) segmentDistance(seg units.Index) (units.Distance, error) {
	if units.IsFake(seg) {
		fs, ok := r.Fakes.LookupFakeSegment(seg)
		if !ok {
			return 0, fmt.Errorf("router: unknown fake segment %d", seg)
		}
		return fs.Distance, nil
	}
	rec, err := r.Segs.Lookup(seg, 3)
	if err != nil {
		return 0, err
	}
	return rec.Distance.Metres(), nil
}

// findLeg computes the complete route between (startNode, prevSegment)
// and finishNode, implementing spec.md section 4.H's three-phase
// search: a direct normal-graph route if one exists without ever
// reaching a super-node, otherwise Phase 1 + Phase 3 + Phase 2 stitched
// together (CombineRoutes).
func (r *Router) findLeg(startNode, prevSegment, finishNode units.Index) (Route, bool, error) {
	begin, directKey, directFound, err := r.startRoutes(startNode, prevSegment, finishNode)
	if err != nil {
		return Route{}, false, err
	}
	if directFound {
		route, err := r.buildSteps(begin.trace(directKey))
		return route, true, err
	}

	end, err := r.finishRoutes(finishNode)
	if err != nil {
		return Route{}, false, err
	}

	seeds, origin, err := r.seedMiddleRoute(begin, startNode, prevSegment)
	if err != nil {
		return Route{}, false, err
	}
	if len(seeds) == 0 {
		return Route{}, false, nil
	}

	finishLat, finishLon, err := r.latLong(finishNode)
	if err != nil {
		return Route{}, false, err
	}

	middle, middleFinish, found, err := r.findMiddleRoute(seeds, finishLat, finishLon, end)
	if err != nil {
		return Route{}, false, err
	}
	if !found {
		return Route{}, false, nil
	}

	middlePath := middle.trace(middleFinish)
	seedOrigin, ok := origin[middlePath[0]]
	if !ok {
		seedOrigin = middlePath[0]
	}
	beginPath := begin.trace(seedOrigin)
	finishPath := end.trace(middleFinish)

	full := append([]EdgeKey{}, beginPath...)
	full = append(full, middlePath[1:]...)
	full = append(full, finishPath[1:]...)

	route, err := r.buildSteps(full)
	return route, true, err
}

// seedMiddleRoute translates every super-node Phase 1 reached into its
// super-graph entry point (FindSuperSegment), returning Phase 3's
// initial queue contents and a map back from each translated key to
// the original Phase 1 key it came from, so the final route can be
// stitched starting from the correct pre-translation segment.
func (r *Router) seedMiddleRoute(begin *results, startNode, prevSegment units.Index) ([]middleSeed, map[EdgeKey]EdgeKey, error) {
	var seeds []middleSeed
	origin := make(map[EdgeKey]EdgeKey)

	for key, entry := range begin.m {
		isSuper, err := r.isSuperNode(key.Node)
		if err != nil {
			return nil, nil, err
		}
		if !isSuper {
			continue
		}

		superSeg := key.Segment
		if key.Segment != units.NoIndex {
			s, err := r.findSuperSegment(key.Node, key.Segment)
			if err != nil {
				return nil, nil, err
			}
			superSeg = s
		}
		seedKey := EdgeKey{Node: key.Node, Segment: superSeg}
		origin[seedKey] = key
		seeds = append(seeds, middleSeed{Key: seedKey, Score: entry.Score})
	}

	if len(seeds) == 0 {
		isSuper, err := r.isSuperNode(startNode)
		if err != nil {
			return nil, nil, err
		}
		if isSuper {
			root := EdgeKey{Node: startNode, Segment: prevSegment}
			origin[root] = root
			seeds = append(seeds, middleSeed{Key: root, Score: 0})
		}
	}

	return seeds, origin, nil
}
