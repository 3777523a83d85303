package router

import (
	"container/heap"

	"github.com/routino-go/routino/internal/units"
)

type graphFilter func(edgeView) bool

func normalFilter(e edgeView) bool { return e.Normal }
func superFilter(e edgeView) bool  { return e.Super }

// boundaryNode reports whether node stops a Phase 1/2 search from
// expanding further past it: a super-node, where the overlay takes
// over, or a fake node, which (being a query-specific leg endpoint)
// has nowhere left to go but back the way the search came.
func (r *Router) boundaryNode(node units.Index) (bool, error) {
	if units.IsFake(node) {
		return true, nil
	}
	return r.isSuperNode(node)
}

// startRoutes is Phase 1 (spec.md section 4.H): a bounded Dijkstra
// outward from (startNode, prevSegment) over the normal graph, which
// stops expanding at every super-node it reaches (recording it, not
// continuing past it) so Phase 3 has somewhere to begin the
// super-graph search. finishNode is only used to report whether the
// plain normal graph already reaches the finish directly, without
// going anywhere near the overlay.
func (r *Router) startRoutes(startNode, prevSegment, finishNode units.Index) (*results, EdgeKey, bool, error) {
	root := EdgeKey{Node: startNode, Segment: prevSegment}
	res := newResults()
	root0 := res.insert(root)
	root0.Score = 0
	root0.SortBy = 0

	var pq priorityQueue
	heap.Push(&pq, queueItem{key: root, sortBy: 0})

	finishScore := units.InfScore
	var finishKey EdgeKey
	foundFinish := false
	if startNode == finishNode {
		finishScore = 0
		finishKey = root
		foundFinish = true
	}

	for {
		cur, ok := popValid(&pq, res)
		if !ok {
			break
		}
		curEntry, _ := res.get(cur)

		if cur != root {
			boundary, err := r.boundaryNode(cur.Node)
			if err != nil {
				return nil, EdgeKey{}, false, err
			}
			if boundary {
				continue
			}
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

			if node2 == finishNode && cum < finishScore {
				finishScore = cum
				finishKey = key2
				foundFinish = true
			}

			boundary, err := r.boundaryNode(node2)
			if err != nil {
				return nil, EdgeKey{}, false, err
			}
			if !boundary {
				entry.SortBy = cum
				heap.Push(&pq, queueItem{key: key2, sortBy: cum})
			}
		}
	}

	return res, finishKey, foundFinish, nil
}

// finishRoutes is Phase 2: the mirror of startRoutes, walking backward
// from finishNode so that, for every super-node it reaches, tracing
// Prev from that super-node yields the forward-time path from the
// super-node to finishNode.
func (r *Router) finishRoutes(finishNode units.Index) (*results, error) {
	root := EdgeKey{Node: finishNode, Segment: units.NoIndex}
	res := newResults()
	root0 := res.insert(root)
	root0.Score = 0
	root0.SortBy = 0

	var pq priorityQueue
	heap.Push(&pq, queueItem{key: root, sortBy: 0})

	for {
		cur, ok := popValid(&pq, res)
		if !ok {
			break
		}
		curEntry, _ := res.get(cur)

		if cur != root {
			boundary, err := r.boundaryNode(cur.Node)
			if err != nil {
				return nil, err
			}
			if boundary {
				continue
			}
		}

		edges, err := r.incidentEdges(cur.Node)
		if err != nil {
			return nil, err
		}

		for _, e := range edges {
			if !normalFilter(e) || e.blocked(cur.Node, true) {
				continue
			}
			node2 := e.other(cur.Node)
			if r.isUTurn(cur.Segment, e.Segment) {
				continue
			}
			if cur.Segment != units.NoIndex && !r.turnAllowed(cur.Node, e.Segment, cur.Segment) {
				continue
			}
			// Cost is incurred travelling node2 -> cur.Node (the real
			// forward direction), but the edge is symmetric in
			// distance/preference, so the same edgeCost applies.
			cost, ok, err := r.edgeCost(e, cur.Node)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			cum := curEntry.Score + cost
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

			boundary, err := r.boundaryNode(node2)
			if err != nil {
				return nil, err
			}
			if !boundary {
				entry.SortBy = cum
				heap.Push(&pq, queueItem{key: key2, sortBy: cum})
			}
		}
	}

	return res, nil
}
