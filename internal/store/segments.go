package store

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/routino-go/routino/internal/units"
)

// Segment is one compact, read-only segment record. Unlike the
// build-time SegmentX (a directed edge, stored twice for a two-way
// street), a compact Segment is undirected and canonicalised so that
// Node1 <= Node2. The array is sorted by (Node1, Node2), so every
// node's segments where it is the lower endpoint form one contiguous
// run; Next2 threads together everything else touching a node at a
// higher array index, so that starting from Node.FirstSegment and
// alternating "walk the contiguous run" with "follow Next2" visits
// every incident segment regardless of which endpoint the node is
// (spec.md section 3's adjacency invariant; see FirstIncident and
// NextIncident).
type Segment struct {
	Node1    units.Index
	Node2    units.Index
	Next2    units.Index
	Way      units.Index
	Distance units.Distance
}

const segmentRecordSize = 4 + 4 + 4 + 4 + 4

var segmentCodec = Codec[Segment]{
	Size: segmentRecordSize,
	Encode: func(s Segment, b []byte) {
		binary.LittleEndian.PutUint32(b[0:4], uint32(s.Node1))
		binary.LittleEndian.PutUint32(b[4:8], uint32(s.Node2))
		binary.LittleEndian.PutUint32(b[8:12], uint32(s.Next2))
		binary.LittleEndian.PutUint32(b[12:16], uint32(s.Way))
		binary.LittleEndian.PutUint32(b[16:20], uint32(s.Distance))
	},
	Decode: func(b []byte) Segment {
		return Segment{
			Node1:    units.Index(binary.LittleEndian.Uint32(b[0:4])),
			Node2:    units.Index(binary.LittleEndian.Uint32(b[4:8])),
			Next2:    units.Index(binary.LittleEndian.Uint32(b[8:12])),
			Way:      units.Index(binary.LittleEndian.Uint32(b[12:16])),
			Distance: units.Distance(binary.LittleEndian.Uint32(b[16:20])),
		}
	},
}

// IsSuper reports whether this segment belongs to the super-graph.
func (s Segment) IsSuper() bool { return s.Distance.Flags()&units.SegmentSuper != 0 }

// IsNormal reports whether this segment belongs to the normal graph.
func (s Segment) IsNormal() bool { return s.Distance.Flags()&units.SegmentNormal != 0 }

// SegmentHeader is the fixed preamble of a compact segment file.
type SegmentHeader struct {
	Count       int64
	SuperCount  int64
	NormalCount int64
}

const segmentHeaderSize = 8 + 8 + 8

func encodeSegmentHeader(h SegmentHeader) []byte {
	b := make([]byte, segmentHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(h.Count))
	binary.LittleEndian.PutUint64(b[8:16], uint64(h.SuperCount))
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.NormalCount))
	return b
}

func decodeSegmentHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Count:       int64(binary.LittleEndian.Uint64(b[0:8])),
		SuperCount:  int64(binary.LittleEndian.Uint64(b[8:16])),
		NormalCount: int64(binary.LittleEndian.Uint64(b[16:24])),
	}
}

// Segments is the compact, read-only segment store.
type Segments struct {
	Header SegmentHeader
	array  *recordArray[Segment]
	file   *os.File
}

// OpenSegments opens a compact segment file written by WriteSegments.
func OpenSegments(path string, mode Mode) (*Segments, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: opening segments: %w", err)
	}
	hb, err := readHeader(f, segmentHeaderSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	array, err := openRecordArray(f, segmentCodec, segmentHeaderSize, mode, 8)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Segments{Header: decodeSegmentHeader(hb), array: array, file: f}, nil
}

// Count returns the number of segments.
func (s *Segments) Count() int64 { return s.array.Count() }

// Lookup fetches the segment at index.
func (s *Segments) Lookup(index units.Index, slot int) (Segment, error) {
	return s.array.Lookup(index, slot)
}

// Iterate visits every segment in (Node1, Node2) order.
func (s *Segments) Iterate(fn func(units.Index, Segment) error) error { return s.array.Iterate(fn) }

// FirstIncident resolves a node's Node.FirstSegment value into the
// first step of its adjacency walk.
func (s *Segments) FirstIncident(first units.Index, slot int) (units.Index, Segment, bool, error) {
	if first == units.NoIndex {
		return units.NoIndex, Segment{}, false, nil
	}
	rec, err := s.Lookup(first, slot)
	if err != nil {
		return units.NoIndex, Segment{}, false, err
	}
	return first, rec, true, nil
}

// NextIncident returns the next segment incident to node after (idx,
// seg), implementing the adjacency invariant of spec.md section 3:
// while node is seg's Node2, the walk follows Next2 (which may lead
// into node's own Node1 run) until it is NoIndex; while node is seg's
// lower endpoint, the rest of that run is contiguous in the array, so
// the next index is checked directly and the walk ends with the run.
func (s *Segments) NextIncident(idx units.Index, seg Segment, node units.Index, slot int) (units.Index, Segment, bool, error) {
	if seg.Node1 == node {
		nextIdx := idx + 1
		if int64(nextIdx) >= s.Count() {
			return units.NoIndex, Segment{}, false, nil
		}
		next, err := s.Lookup(nextIdx, slot)
		if err != nil {
			return units.NoIndex, Segment{}, false, err
		}
		if next.Node1 != node {
			return units.NoIndex, Segment{}, false, nil
		}
		return nextIdx, next, true, nil
	}
	if seg.Next2 == units.NoIndex {
		return units.NoIndex, Segment{}, false, nil
	}
	next, err := s.Lookup(seg.Next2, slot)
	if err != nil {
		return units.NoIndex, Segment{}, false, err
	}
	return seg.Next2, next, true, nil
}

func (s *Segments) Close() error {
	if err := s.array.Close(); err != nil {
		return err
	}
	return s.file.Close()
}

// MergedSegment is one (node1, node2) pair carrying a distance and way
// from either or both of the normal and super graphs, used as the
// input to WriteSegments.
type MergedSegment struct {
	Node1, Node2 units.Index
	Way          units.Index
	Distance     units.Distance // plain metres, no flags set
	Normal       bool
	Super        bool
	OneWay1To2   bool
	OneWay2To1   bool
}

// WriteSegments writes the compact segment file from a list of merged
// segments, already canonicalised to Node1 <= Node2 and sorted by
// (Node1, Node2). It threads each record's Next2 pointer and returns,
// for each of numNodes live nodes, the index of its first incident
// segment (by either endpoint) -- the Node.FirstSegment value the
// caller stores alongside it.
//
// Both are built in one backward pass exactly as the adjacency
// invariant requires: touch[node] tracks the smallest index seen so
// far (scanning from the end) that mentions node as either endpoint,
// so a segment's Next2 (computed from its own Node2, before that
// node's touch entry is overwritten by this segment) chains to the
// next higher-indexed segment touching that same node, whether that
// next segment has it as Node1 or Node2.
func WriteSegments(path string, merged []MergedSegment, numNodes int64) (SegmentHeader, []units.Index, error) {
	f, err := os.Create(path)
	if err != nil {
		return SegmentHeader{}, nil, fmt.Errorf("store: creating segments file: %w", err)
	}
	defer f.Close()

	next2 := make([]units.Index, len(merged))
	touch := make([]units.Index, numNodes)
	for i := range touch {
		touch[i] = units.NoIndex
	}
	for i := len(merged) - 1; i >= 0; i-- {
		m := merged[i]
		next2[i] = touch[m.Node2]
		touch[m.Node1] = units.Index(i)
		touch[m.Node2] = units.Index(i)
	}

	var header SegmentHeader
	header.Count = int64(len(merged))

	buf := make([]byte, segmentRecordSize)
	if err := writeHeader(f, encodeSegmentHeader(header)); err != nil {
		return header, nil, err
	}

	for i, m := range merged {
		dist := units.Distance(m.Distance).Metres()
		var flags units.Distance
		if m.Normal {
			flags |= units.SegmentNormal
			header.NormalCount++
		}
		if m.Super {
			flags |= units.SegmentSuper
			header.SuperCount++
		}
		if m.OneWay1To2 {
			flags |= units.OneWay1To2
		}
		if m.OneWay2To1 {
			flags |= units.OneWay2To1
		}
		rec := Segment{Node1: m.Node1, Node2: m.Node2, Next2: next2[i], Way: m.Way, Distance: dist.WithFlags(flags)}
		segmentCodec.Encode(rec, buf)
		if _, err := f.Write(buf); err != nil {
			return header, nil, fmt.Errorf("store: writing segment: %w", err)
		}
	}

	if _, err := f.WriteAt(encodeSegmentHeader(header), 0); err != nil {
		return header, nil, fmt.Errorf("store: rewriting segment header: %w", err)
	}
	return header, touch, nil
}
