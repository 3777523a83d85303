package xstore

import (
	"encoding/binary"

	"github.com/routino-go/routino/internal/units"
)

// SegmentX is a wide, mutable segment record used only during the
// build: a directed edge candidate between two (still-OSM-indexed)
// nodes, tagged with the way it came from (nodesx.h / segmentsx.h).
type SegmentX struct {
	Node1    units.Index
	Node2    units.Index
	Next1    units.Index // next SegmentX with the same Node1, or NoIndex
	Way      units.Index
	Distance units.Distance
}

const segmentXSize = 4 + 4 + 4 + 4 + 4

var segmentXCodec = Codec[SegmentX]{
	Size: segmentXSize,
	Encode: func(s SegmentX, b []byte) {
		binary.LittleEndian.PutUint32(b[0:4], uint32(s.Node1))
		binary.LittleEndian.PutUint32(b[4:8], uint32(s.Node2))
		binary.LittleEndian.PutUint32(b[8:12], uint32(s.Next1))
		binary.LittleEndian.PutUint32(b[12:16], uint32(s.Way))
		binary.LittleEndian.PutUint32(b[16:20], uint32(s.Distance))
	},
	Decode: func(b []byte) SegmentX {
		return SegmentX{
			Node1:    units.Index(binary.LittleEndian.Uint32(b[0:4])),
			Node2:    units.Index(binary.LittleEndian.Uint32(b[4:8])),
			Next1:    units.Index(binary.LittleEndian.Uint32(b[8:12])),
			Way:      units.Index(binary.LittleEndian.Uint32(b[12:16])),
			Distance: units.Distance(binary.LittleEndian.Uint32(b[16:20])),
		}
	},
}

// SegmentsX is the extended segment store plus the adjacency-head
// array (firstnode) and the used-node bitmask built once segments have
// been indexed by node (segmentsx.h: FirstSegmentX/NextSegmentX).
type SegmentsX struct {
	store *Store[SegmentX]

	// firstnode[n] is the index of the first SegmentX whose Node1 == n,
	// or units.NoIndex if n has no outgoing segment. Built by Index.
	firstnode []units.Index

	// usedNode[n] reports whether node n appears in any segment,
	// letting the builder prune nodes with no surviving edges.
	usedNode []bool
}

// NewSegmentsX creates a fresh SegmentsX store under dir.
func NewSegmentsX(dir string, mode Mode) (*SegmentsX, error) {
	s, err := New(dir, "segmentsx", segmentXCodec, mode, 4)
	if err != nil {
		return nil, err
	}
	return &SegmentsX{store: s}, nil
}

// Append records one directed candidate segment. The caller is
// responsible for appending both directions of a two-way segment.
func (sx *SegmentsX) Append(node1, node2, way units.Index, distance units.Distance) (units.Index, error) {
	return sx.store.Append(SegmentX{Node1: node1, Node2: node2, Next1: units.NoIndex, Way: way, Distance: distance})
}

// Count returns the number of segments currently stored.
func (sx *SegmentsX) Count() int64 { return sx.store.Count() }

// Lookup fetches the SegmentX at index using the given cache slot.
func (sx *SegmentsX) Lookup(index units.Index, slot int) (*SegmentX, error) {
	return sx.store.Lookup(index, slot)
}

// PutBack writes a modified SegmentX back through the given cache slot.
func (sx *SegmentsX) PutBack(index units.Index, slot int, rec SegmentX) error {
	return sx.store.PutBack(index, slot, rec)
}

// Iterate visits every segment in storage order.
func (sx *SegmentsX) Iterate(fn func(units.Index, SegmentX) error) error {
	return sx.store.Iterate(fn)
}

// Sort orders segments by (Node1, Node2, Way, distance) and drops
// duplicates of the same (Node1, Node2, Way) (section 4.D step 8),
// keeping the shortest distance of any duplicate group so a way that
// joins the same pair of nodes twice doesn't silently pick an
// arbitrary one.
func (sx *SegmentsX) Sort(ramBytes int64, tmpDir string) (int64, error) {
	cmp := func(a, b SegmentX) int {
		if a.Node1 != b.Node1 {
			return cmpIndex(a.Node1, b.Node1)
		}
		if a.Node2 != b.Node2 {
			return cmpIndex(a.Node2, b.Node2)
		}
		if a.Way != b.Way {
			return cmpIndex(a.Way, b.Way)
		}
		da, db := a.Distance.Metres(), b.Distance.Metres()
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	}

	var have bool
	var lastN1, lastN2, lastWay units.Index

	keep := func(rec SegmentX, outIdx int64) bool {
		if have && rec.Node1 == lastN1 && rec.Node2 == lastN2 && rec.Way == lastWay {
			return false
		}
		have = true
		lastN1, lastN2, lastWay = rec.Node1, rec.Node2, rec.Way
		return true
	}

	return sx.store.Sort(ramBytes, tmpDir, cmp, keep)
}

// Index builds the firstnode adjacency-head array and the used-node
// bitmask by scanning the (Node1-sorted) store once, setting each
// segment's Next1 field to the following segment sharing the same
// Node1 (segmentsx.h: IndexSegments).
func (sx *SegmentsX) Index(numNodes int) error {
	firstnode := make([]units.Index, numNodes)
	for i := range firstnode {
		firstnode[i] = units.NoIndex
	}
	used := make([]bool, numNodes)

	last := make([]units.Index, numNodes)
	for i := range last {
		last[i] = units.NoIndex
	}

	err := sx.store.Iterate(func(idx units.Index, rec SegmentX) error {
		n1 := int(rec.Node1)
		if n1 < numNodes {
			used[n1] = true
		}
		if int(rec.Node2) < numNodes {
			used[rec.Node2] = true
		}
		if n1 >= numNodes {
			return nil
		}
		if firstnode[n1] == units.NoIndex {
			firstnode[n1] = idx
		} else {
			prev, err := sx.store.Lookup(last[n1], 1)
			if err != nil {
				return err
			}
			updated := *prev
			updated.Next1 = idx
			if err := sx.store.PutBack(last[n1], 1, updated); err != nil {
				return err
			}
		}
		last[n1] = idx
		return nil
	})
	if err != nil {
		return err
	}

	sx.firstnode = firstnode
	sx.usedNode = used
	return nil
}

// FirstSegment returns the index of the first segment whose Node1 is
// node, or (NoIndex, false) if node has no outgoing segment.
func (sx *SegmentsX) FirstSegment(node units.Index) (units.Index, bool) {
	if int(node) >= len(sx.firstnode) {
		return units.NoIndex, false
	}
	idx := sx.firstnode[node]
	return idx, idx != units.NoIndex
}

// NextSegment follows the Next1 chain from a segment already looked up
// via Lookup(cur, slot), returning the next segment sharing the same
// Node1, or (NoIndex, false) if cur was the last.
func (sx *SegmentsX) NextSegment(cur SegmentX) (units.Index, bool) {
	return cur.Next1, cur.Next1 != units.NoIndex
}

// IsUsed reports whether node appears in any surviving segment.
func (sx *SegmentsX) IsUsed(node units.Index) bool {
	return int(node) < len(sx.usedNode) && sx.usedNode[node]
}

// Free releases the backing temp file.
func (sx *SegmentsX) Free(keep bool) error { return sx.store.Free(keep) }

// Path returns the backing temp file path.
func (sx *SegmentsX) Path() string { return sx.store.Path() }

func cmpIndex(a, b units.Index) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
