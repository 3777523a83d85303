// Package units defines the fixed-width primitive types, bitmask
// enumerations, and lat/long encodings shared by the build and routing
// halves of Routino.
package units

// Index is a node, segment, way, or relation index. Indices below
// NodeFake/SegmentFake address records in the compact stores; indices
// at or above it are ephemeral, per-query fake ids (see package fakes).
type Index uint32

// NoIndex is the sentinel for "no node"/"no segment"/"no way"/"no relation".
const NoIndex Index = ^Index(0)

const (
	// NodeFake is the lowest index reserved for a fake node.
	NodeFake Index = 0xffff0000
	// SegmentFake is the lowest index reserved for a fake segment.
	SegmentFake Index = 0xffff0000
)

// IsFake reports whether idx lies in the fake-node/fake-segment range.
func IsFake(idx Index) bool {
	return idx >= NodeFake && idx != NoIndex
}
