package router

import (
	"fmt"

	"github.com/routino-go/routino/internal/nearest"
	"github.com/routino-go/routino/internal/units"
)

// Query drives a complete multi-waypoint route (spec.md section 4.H):
// splice every waypoint into the graph via package nearest/fakes, then
// chain findLeg between consecutive waypoints, carrying the previous
// leg's final segment forward as the next leg's prevSegment so a
// U-turn or turn-restriction check at a waypoint boundary still knows
// which direction the route arrived from. loop appends the first
// waypoint again as the final destination.
func (r *Router) Query(searcher *nearest.Searcher, points []nearest.Point, maxSnap units.Distance, loop bool) (Route, bool, error) {
	if len(points) < 2 {
		return Route{}, false, fmt.Errorf("router: at least two waypoints are required")
	}
	if loop {
		points = append(append([]nearest.Point{}, points...), points[0])
	}

	r.Fakes.Reset()

	nodes := make([]units.Index, len(points))
	for i, p := range points {
		node, err := r.spliceWaypoint(searcher, p, maxSnap)
		if err != nil {
			return Route{}, false, fmt.Errorf("router: waypoint %d: %w", i, err)
		}
		nodes[i] = node
	}
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			r.Fakes.LinkSameSegment(nodes[i], nodes[j])
		}
	}

	var full Route
	prevSegment := units.NoIndex
	for i := 0; i+1 < len(nodes); i++ {
		leg, ok, err := r.findLeg(nodes[i], prevSegment, nodes[i+1])
		if err != nil {
			return Route{}, false, err
		}
		if !ok {
			return Route{}, false, nil
		}

		steps := leg.Steps
		if i > 0 && len(steps) > 0 {
			steps = steps[1:] // first step repeats the previous leg's last node
		}
		full.Steps = append(full.Steps, steps...)
		full.Distance += leg.Distance
		full.Duration += leg.Duration

		if last := len(leg.Steps) - 1; last >= 0 {
			prevSegment = leg.Steps[last].Segment
		}
	}
	return full, true, nil
}

// spliceWaypoint snaps one query point onto the graph, creating a fake
// node (or reusing a real one, per fakes.Set.Splice's endpoint-snap
// rule) within maxSnap of the nearest usable segment.
func (r *Router) spliceWaypoint(searcher *nearest.Searcher, p nearest.Point, maxSnap units.Distance) (units.Index, error) {
	match, ok, err := searcher.ClosestSegment(p, maxSnap)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("no usable segment within %dm", maxSnap)
	}
	lat := units.RadiansToLatLong(p.Lat)
	lon := units.RadiansToLatLong(p.Lon)
	return r.Fakes.Splice(match.Segment, match.Dist1, match.Dist2, lat, lon), nil
}
