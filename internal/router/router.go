// Package router implements the three-phase route search of spec.md
// section 4.H: a bounded Dijkstra out from the start node and back from
// the finish node over the normal graph, an A* search over the
// super-graph between whatever boundary the two reach, and the
// concatenation of all three into one route. Waypoints that do not
// land on a real node are spliced into the graph beforehand by package
// fakes; this package treats a fake node exactly like a real one
// except where the original draws an explicit distinction.
package router

import (
	"fmt"

	"github.com/routino-go/routino/internal/fakes"
	"github.com/routino-go/routino/internal/profile"
	"github.com/routino-go/routino/internal/store"
	"github.com/routino-go/routino/internal/units"
)

// Router bundles the open compact stores, the active profile, and the
// per-query fake-node set a route search runs against.
type Router struct {
	Nodes   *store.Nodes
	Segs    *store.Segments
	Ways    *store.Ways
	Rels    *store.Relations
	Profile *profile.Profile
	Fakes   *fakes.Set

	// turnsByVia indexes every turn restriction by its via node, built
	// once so FindFirstTurnRelation1/2's via-keyed binary search in the
	// original becomes a map lookup here -- see DESIGN.md decision 7
	// for why From/To identify ways rather than segments.
	turnsByVia map[units.Index][]store.TurnRestriction
}

// New builds a Router over already-open compact stores and a
// normalized profile. rels may be nil for a database with no turn
// restrictions.
func New(nodes *store.Nodes, segs *store.Segments, ways *store.Ways, rels *store.Relations, prof *profile.Profile, fk *fakes.Set) (*Router, error) {
	r := &Router{
		Nodes:      nodes,
		Segs:       segs,
		Ways:       ways,
		Rels:       rels,
		Profile:    prof,
		Fakes:      fk,
		turnsByVia: make(map[units.Index][]store.TurnRestriction),
	}
	if rels != nil {
		err := rels.Iterate(func(_ units.Index, tr store.TurnRestriction) error {
			r.turnsByVia[tr.Via] = append(r.turnsByVia[tr.Via], tr)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("router: indexing turn restrictions: %w", err)
		}
	}
	return r, nil
}

// nodeRecord fetches a real node's store record, reporting ok=false
// for a fake node (which has no store record -- it inherits no
// node-level restrictions of its own).
func (r *Router) nodeRecord(node units.Index, slot int) (store.Node, bool, error) {
	if units.IsFake(node) {
		return store.Node{}, false, nil
	}
	rec, err := r.Nodes.Lookup(node, slot)
	if err != nil {
		return store.Node{}, false, err
	}
	return rec, true, nil
}

// nodeAllows reports whether the profile's transport may pass through
// node at all; a fake node always allows (it has no allow mask of its
// own, only its incident ways restrict travel through it).
func (r *Router) nodeAllows(node units.Index) (bool, error) {
	rec, ok, err := r.nodeRecord(node, 2)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return rec.Allow&r.Profile.AllowedMask != 0, nil
}

// isSuperNode reports whether node is a super-node; a fake node never is.
func (r *Router) isSuperNode(node units.Index) (bool, error) {
	rec, ok, err := r.nodeRecord(node, 1)
	if err != nil {
		return false, err
	}
	return ok && rec.IsSuper(), nil
}
