package router

import (
	"container/heap"

	"github.com/routino-go/routino/internal/profile"
	"github.com/routino-go/routino/internal/units"
)

// findNormalRoute is a plain point-to-point Dijkstra over the normal
// graph from (startNode, prevSegment) to finishNode, pruning any
// partial route already worse than the best complete one found so
// far. It backs findSuperSegment, which asks "does some super-segment
// already represent this exact normal route".
func (r *Router) findNormalRoute(startNode, prevSegment, finishNode units.Index) (*results, EdgeKey, bool, error) {
	root := EdgeKey{Node: startNode, Segment: prevSegment}
	res := newResults()
	root0 := res.insert(root)
	root0.Score = 0
	root0.SortBy = 0

	var pq priorityQueue
	heap.Push(&pq, queueItem{key: root, sortBy: 0})

	finishScore := units.InfScore
	var finishKey EdgeKey
	found := false

	for {
		cur, ok := popValid(&pq, res)
		if !ok {
			break
		}
		curEntry, _ := res.get(cur)
		if curEntry.Score > finishScore {
			continue
		}

		edges, err := r.incidentEdges(cur.Node)
		if err != nil {
			return nil, EdgeKey{}, false, err
		}

		for _, e := range edges {
			if !normalFilter(e) || e.blocked(cur.Node, false) {
				continue
			}
			node2 := e.other(cur.Node)
			if r.isUTurn(cur.Segment, e.Segment) {
				continue
			}
			if cur.Segment != units.NoIndex && !r.turnAllowed(cur.Node, cur.Segment, e.Segment) {
				continue
			}
			cost, ok, err := r.edgeCost(e, cur.Node)
			if err != nil {
				return nil, EdgeKey{}, false, err
			}
			if !ok {
				continue
			}

			cum := curEntry.Score + cost
			if cum > finishScore {
				continue
			}

			key2 := EdgeKey{Node: node2, Segment: e.Segment}
			entry, has := res.get(key2)
			if has && cum >= entry.Score {
				continue
			}
			if !has {
				entry = res.insert(key2)
			}
			entry.Prev = cur
			entry.HasPrev = true
			entry.Score = cum

			if node2 == finishNode {
				if cum < finishScore {
					finishScore = cum
					finishKey = key2
					found = true
				}
				continue
			}

			entry.SortBy = cum
			heap.Push(&pq, queueItem{key: key2, sortBy: cum})
		}
	}

	return res, finishKey, found, nil
}

// findSuperSegment resolves a segment reached by a normal-graph search
// to the super-segment that already represents its route, if one
// exists: endSegment itself if it is already a super-segment,
// otherwise the super-segment out of endNode whose own normal-graph
// route happens to end with exactly endSegment. Falls back to the real
// segment behind endSegment (endSegment itself unless it is fake) if
// no such super-segment is found (the boundary sits exactly at endNode
// in that case).
func (r *Router) findSuperSegment(endNode, endSegment units.Index) (units.Index, error) {
	real := r.realSegment(endSegment)

	if !units.IsFake(real) {
		seg, err := r.Segs.Lookup(real, 2)
		if err != nil {
			return units.NoIndex, err
		}
		if seg.IsSuper() {
			return real, nil
		}
	}

	edges, err := r.incidentEdges(endNode)
	if err != nil {
		return units.NoIndex, err
	}

	for _, e := range edges {
		if !superFilter(e) {
			continue
		}
		startNode := e.other(endNode)
		_, finishKey, found, err := r.findNormalRoute(startNode, units.NoIndex, endNode)
		if err != nil {
			return units.NoIndex, err
		}
		if found && finishKey.Segment == real {
			return e.Segment, nil
		}
	}

	return real, nil
}

// middleSeed is one super-node Phase 1 handed off to Phase 3, with the
// score already accumulated getting there.
type middleSeed struct {
	Key   EdgeKey
	Score units.Score
}

// findMiddleRoute is Phase 3: an A* search over the super-graph only,
// starting from every super-node begin reached and connecting to any
// super-node end reached working backwards, where the two partial
// scores sum to a complete route; the search keeps going until no
// queued entry can beat the best complete route found so far. The
// heuristic divides the great-circle distance to the finish point by
// the profile's best-case preference/speed combination, matching the
// original's max_pref-scaled lower bound so it never overestimates.
func (r *Router) findMiddleRoute(seeds []middleSeed, finishLat, finishLon units.LatLong, end *results) (*results, EdgeKey, bool, error) {
	res := newResults()
	var pq priorityQueue

	for _, s := range seeds {
		entry, has := res.get(s.Key)
		if !has {
			entry = res.insert(s.Key)
			entry.Score = s.Score
		} else if s.Score >= entry.Score {
			continue
		} else {
			entry.Score = s.Score
		}
		h, err := r.heuristic(s.Key.Node, finishLat, finishLon)
		if err != nil {
			return nil, EdgeKey{}, false, err
		}
		entry.SortBy = entry.Score + h
		heap.Push(&pq, queueItem{key: s.Key, sortBy: entry.SortBy})
	}

	finishScore := units.InfScore
	var finishKey EdgeKey
	found := false

	for _, s := range seeds {
		if e, ok := end.get(s.Key); ok {
			if total := s.Score + e.Score; total < finishScore {
				finishScore = total
				finishKey = s.Key
				found = true
			}
		}
	}

	for {
		cur, ok := popValid(&pq, res)
		if !ok {
			break
		}
		curEntry, _ := res.get(cur)
		if curEntry.Score > finishScore {
			continue
		}

		edges, err := r.incidentEdges(cur.Node)
		if err != nil {
			return nil, EdgeKey{}, false, err
		}

		for _, e := range edges {
			if !superFilter(e) || e.blocked(cur.Node, false) {
				continue
			}
			node2 := e.other(cur.Node)
			if r.isUTurn(cur.Segment, e.Segment) {
				continue
			}
			if cur.Segment != units.NoIndex && !r.turnAllowed(cur.Node, cur.Segment, e.Segment) {
				continue
			}
			cost, ok, err := r.edgeCost(e, cur.Node)
			if err != nil {
				return nil, EdgeKey{}, false, err
			}
			if !ok {
				continue
			}

			cum := curEntry.Score + cost
			if cum > finishScore {
				continue
			}

			key2 := EdgeKey{Node: node2, Segment: e.Segment}
			entry, has := res.get(key2)
			if has && cum >= entry.Score {
				continue
			}
			if !has {
				entry = res.insert(key2)
			}
			entry.Prev = cur
			entry.HasPrev = true
			entry.Score = cum

			if endEntry, ok := end.get(key2); ok {
				if total := cum + endEntry.Score; total < finishScore {
					finishScore = total
					finishKey = key2
					found = true
				}
				continue
			}

			h, err := r.heuristic(node2, finishLat, finishLon)
			if err != nil {
				return nil, EdgeKey{}, false, err
			}
			sortBy := cum + h
			if sortBy >= finishScore {
				continue
			}
			entry.SortBy = sortBy
			heap.Push(&pq, queueItem{key: key2, sortBy: sortBy})
		}
	}

	return res, finishKey, found, nil
}

// heuristic is the admissible lower bound on the remaining cost from
// node to (finishLat, finishLon): the great-circle distance divided by
// the profile's best possible combined preference (and, in quickest
// mode, its fastest possible speed), so it never exceeds the true
// remaining cost of any route.
func (r *Router) heuristic(node units.Index, finishLat, finishLon units.LatLong) (units.Score, error) {
	rec, ok, err := r.nodeRecord(node, 3)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	direct := units.GreatCircleMetres(
		units.LatLongToRadians(rec.Latitude), units.LatLongToRadians(rec.Longitude),
		units.LatLongToRadians(finishLat), units.LatLongToRadians(finishLon),
	)

	maxPref := r.Profile.MaxPref
	if maxPref <= 0 {
		maxPref = 1
	}
	if r.Profile.Mode == profile.Quickest {
		hours := units.DurationToHours(units.DistanceSpeedToDuration(uint32(direct), uint8(r.Profile.MaxSpeed)))
		return units.Score(hours / maxPref), nil
	}
	return units.Score(units.DistanceToKM(units.Distance(direct)) / maxPref), nil
}
