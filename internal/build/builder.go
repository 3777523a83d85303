// Package build implements the graph builder pipeline: turning parsed
// OSM primitives into the extended record stores of package xstore,
// then sorting, indexing, measuring, and pruning them into a routable
// graph (spec.md section 4.D).
package build

import (
	"fmt"
	"strings"

	"github.com/paulmach/osm"
	"github.com/routino-go/routino/internal/rlog"
	"github.com/routino-go/routino/internal/tagging"
	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

// Builder accumulates parsed OSM primitives into the extended record
// stores as they arrive (osmxml.Sink), then runs the multi-pass build
// once parsing completes.
type Builder struct {
	rules *tagging.RuleSet

	nodes     *xstore.NodesX
	segments  *xstore.SegmentsX
	ways      *xstore.WaysX
	relations *xstore.RelationsX
	wayNodes  *wayNodeBlob

	nNodes, nWays, nRelations int64
}

// Options configures a Builder.
type Options struct {
	Dir   string
	Mode  xstore.Mode
	Rules *tagging.RuleSet
}

// New creates a Builder with fresh, empty extended stores.
func New(opts Options) (*Builder, error) {
	nodes, err := xstore.NewNodesX(opts.Dir, opts.Mode)
	if err != nil {
		return nil, err
	}
	segments, err := xstore.NewSegmentsX(opts.Dir, opts.Mode)
	if err != nil {
		return nil, err
	}
	ways, err := xstore.NewWaysX(opts.Dir, opts.Mode)
	if err != nil {
		return nil, err
	}
	relations, err := xstore.NewRelationsX(opts.Dir, opts.Mode)
	if err != nil {
		return nil, err
	}
	wayNodes, err := newWayNodeBlob(opts.Dir)
	if err != nil {
		return nil, err
	}

	return &Builder{
		rules:     opts.Rules,
		nodes:     nodes,
		segments:  segments,
		ways:      ways,
		relations: relations,
		wayNodes:  wayNodes,
	}, nil
}

// Node implements osmxml.Sink, appending every node regardless of
// whether it turns out to be used by a way: unused nodes are dropped
// later, once segment usage is known (nodesx.h: AppendNode).
func (b *Builder) Node(n *osm.Node) error {
	lat := units.DegreesToLatLong(n.Lat)
	lon := units.DegreesToLatLong(n.Lon)

	allow := units.TransportsAll
	var flags units.NodeFlags
	tags := b.rules.Apply(n.Tags)
	if v, ok := tags["highway"]; ok && v == "mini_roundabout" {
		flags |= units.NodeMiniRoundabout
	}
	if v, ok := tags["barrier"]; ok && (v == "gate" || v == "bollard") {
		allow &^= units.TransportMotorcar.Bit() | units.TransportHGV.Bit() | units.TransportGoods.Bit() | units.TransportPSV.Bit()
	}

	if _, err := b.nodes.Append(uint64(n.ID), lat, lon, allow, flags); err != nil {
		return fmt.Errorf("build: appending node %d: %w", n.ID, err)
	}
	b.nNodes++
	return nil
}

// Way implements osmxml.Sink. A way with no recognised highway tag is
// dropped; otherwise it is recorded in WaysX and its ordered member
// node ids are appended to the way-node blob for later resolution into
// SegmentX records, once NodesX has been sorted and indexed (osmparser.c's
// way handling loop; resolution happens in resolveSegments in process.go because
// the node id->index map doesn't exist yet while ways are still arriving).
func (b *Builder) Way(w *osm.Way) error {
	tags := b.rules.Apply(w.Tags)
	wp, ok := tagging.Interpret(tags)
	if !ok {
		return nil
	}

	props := xstore.WayProperties{
		Highway: wp.Highway,
		Allow:   wp.Allow,
		Props:   wp.Props,
		Speed:   wp.Speed,
		Weight:  wp.Weight,
		Height:  wp.Height,
		Width:   wp.Width,
		Length:  wp.Length,
	}

	wayIdx, err := b.ways.Append(uint64(w.ID), props, wp.Name)
	if err != nil {
		return fmt.Errorf("build: appending way %d: %w", w.ID, err)
	}
	b.nWays++

	if len(w.Nodes) < 2 {
		return nil
	}

	nodeIDs := make([]uint64, len(w.Nodes))
	for i, wn := range w.Nodes {
		nodeIDs[i] = uint64(wn.ID)
	}

	return b.wayNodes.append(wayRecord{
		wayID:   uint64(w.ID),
		nodeIDs: nodeIDs,
		oneway:  wp.OneWay,
		reverse: wp.ReverseWay,
	})
}

// Relation implements osmxml.Sink: turn-restriction relations feed
// RelationsX's fixed-size store directly; route relations (containing
// only way/relation members, never resolved against nodes at parse
// time) are buffered as RouteRelX for the route-relation processing
// pass (relationsx.h: AppendTurnRestrictRelation/AppendRouteRelation).
func (b *Builder) Relation(r *osm.Relation) error {
	tags := b.rules.Apply(r.Tags)
	b.nRelations++

	if tags["type"] == "restriction" {
		return b.appendTurnRestriction(r, tags)
	}
	if tags["type"] == "route" {
		return b.appendRouteRelation(r, tags)
	}
	return nil
}

func (b *Builder) appendTurnRestriction(r *osm.Relation, tags map[string]string) error {
	var from, to, via uint64
	var haveVia bool
	for _, m := range r.Members {
		switch m.Role {
		case "from":
			if m.Type == osm.TypeWay {
				from = uint64(m.Ref)
			}
		case "to":
			if m.Type == osm.TypeWay {
				to = uint64(m.Ref)
			}
		case "via":
			if m.Type == osm.TypeNode {
				via = uint64(m.Ref)
				haveVia = true
			}
		}
	}
	if from == 0 || to == 0 || !haveVia {
		rlog.Debug("build: relation %d: turn restriction missing from/via/to member; skipping", r.ID)
		return nil
	}

	restriction := tags["restriction"]
	kind := xstore.RestrictionNone
	switch {
	case strings.HasPrefix(restriction, "no_"):
		kind = xstore.RestrictionNoEntry
	case strings.HasPrefix(restriction, "only_"):
		kind = xstore.RestrictionOnlyEntry
	}

	var except units.Transports
	if v, ok := tags["except"]; ok {
		except = parseExcept(v)
	}

	_, err := b.relations.AppendTurnRestriction(uint64(r.ID), from, via, to, kind, except)
	if err != nil {
		return fmt.Errorf("build: appending turn restriction %d: %w", r.ID, err)
	}
	return nil
}

func (b *Builder) appendRouteRelation(r *osm.Relation, tags map[string]string) error {
	var routes units.Transports
	switch tags["route"] {
	case "bicycle":
		routes = units.TransportBicycle.Bit()
	case "foot", "hiking":
		routes = units.TransportFoot.Bit()
	case "horse":
		routes = units.TransportHorse.Bit()
	default:
		return nil
	}

	rel := xstore.RouteRelX{ID: uint64(r.ID), Routes: routes}
	for _, m := range r.Members {
		switch m.Type {
		case osm.TypeWay:
			rel.WayIDs = append(rel.WayIDs, uint64(m.Ref))
		case osm.TypeRelation:
			rel.RelIDs = append(rel.RelIDs, uint64(m.Ref))
		}
	}

	if err := b.relations.AppendRoute(rel); err != nil {
		return fmt.Errorf("build: appending route relation %d: %w", r.ID, err)
	}
	return nil
}

func parseExcept(v string) units.Transports {
	var out units.Transports
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ';' {
			if t, ok := units.ParseTransport(v[start:i]); ok {
				out |= t.Bit()
			}
			start = i + 1
		}
	}
	return out
}

// Stats reports primitive counts seen so far, for progress logging.
func (b *Builder) Stats() (nodes, ways, relations int64) {
	return b.nNodes, b.nWays, b.nRelations
}
