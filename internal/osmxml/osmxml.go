// Package osmxml scans an OpenStreetMap XML extract and hands each
// node, way, and relation to a Sink, the way planetsplitter's parse
// phase feeds the extended record stores in package xstore (section
// 4.C "Parsing").
package osmxml

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmxml"
)

// Sink receives parsed OSM primitives in file order. Ways and
// relations may reference node/way ids the Sink has not seen the
// definition of yet if the input ever breaks OSM's own
// nodes-before-ways-before-relations ordering guarantee; a Sink must
// tolerate forward references by resolving them in a later pass
// (spec.md section 4.D), not by requiring strict order here.
type Sink interface {
	Node(n *osm.Node) error
	Way(w *osm.Way) error
	Relation(r *osm.Relation) error
}

// Load scans the OSM XML file at path and feeds every primitive to sink.
func Load(ctx context.Context, path string, sink Sink) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("osmxml: opening %s: %w", path, err)
	}
	defer f.Close()

	return Scan(ctx, f, sink)
}

// Scan scans OSM XML read from r and feeds every primitive to sink.
func Scan(ctx context.Context, r io.Reader, sink Sink) error {
	scanner := osmxml.New(ctx, r)
	defer scanner.Close()

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			if err := sink.Node(o); err != nil {
				return fmt.Errorf("osmxml: node %d: %w", o.ID, err)
			}
		case *osm.Way:
			if err := sink.Way(o); err != nil {
				return fmt.Errorf("osmxml: way %d: %w", o.ID, err)
			}
		case *osm.Relation:
			if err := sink.Relation(o); err != nil {
				return fmt.Errorf("osmxml: relation %d: %w", o.ID, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("osmxml: scanning: %w", err)
	}
	return nil
}
