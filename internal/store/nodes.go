package store

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/routino-go/routino/internal/units"
)

// Node is one compact, read-only node record: the index of its first
// incident segment (see Segments.FirstIncident/NextIncident for the
// adjacency walk this seeds), its absolute position, its
// allowed-transports mask, and its flag bits (spec.md section 3). Nodes
// are physically
// sorted in (latitude bin, longitude bin) order by the builder's
// geographic sort, so package nearest can still binary-search this
// array by bin using the file header's grid fields even though each
// record below carries its own absolute coordinate rather than a
// bin-relative delta -- see the "node coordinate encoding" decision in
// DESIGN.md for why the bin-relative 16-bit offset was dropped.
type Node struct {
	FirstSegment units.Index
	Latitude     units.LatLong
	Longitude    units.LatLong
	Allow        units.Transports
	Flags        units.NodeFlags
}

const nodeRecordSize = 4 + 4 + 4 + 2 + 2

var nodeCodec = Codec[Node]{
	Size: nodeRecordSize,
	Encode: func(n Node, b []byte) {
		binary.LittleEndian.PutUint32(b[0:4], uint32(n.FirstSegment))
		binary.LittleEndian.PutUint32(b[4:8], uint32(n.Latitude))
		binary.LittleEndian.PutUint32(b[8:12], uint32(n.Longitude))
		binary.LittleEndian.PutUint16(b[12:14], uint16(n.Allow))
		binary.LittleEndian.PutUint16(b[14:16], uint16(n.Flags))
	},
	Decode: func(b []byte) Node {
		return Node{
			FirstSegment: units.Index(binary.LittleEndian.Uint32(b[0:4])),
			Latitude:     units.LatLong(binary.LittleEndian.Uint32(b[4:8])),
			Longitude:    units.LatLong(binary.LittleEndian.Uint32(b[8:12])),
			Allow:        units.Transports(binary.LittleEndian.Uint16(b[12:14])),
			Flags:        units.NodeFlags(binary.LittleEndian.Uint16(b[14:16])),
		}
	},
}

// NodeHeader is the fixed preamble of a compact node file: record
// counts plus the bin grid describing how Nodes are physically
// ordered, for package nearest's spiral bin search.
type NodeHeader struct {
	Count      int64
	SuperCount int64
	LatBins    int32
	LonBins    int32
	LatZero    int32
	LonZero    int32
}

const nodeHeaderSize = 8 + 8 + 4 + 4 + 4 + 4

func encodeNodeHeader(h NodeHeader) []byte {
	b := make([]byte, nodeHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(h.Count))
	binary.LittleEndian.PutUint64(b[8:16], uint64(h.SuperCount))
	binary.LittleEndian.PutUint32(b[16:20], uint32(h.LatBins))
	binary.LittleEndian.PutUint32(b[20:24], uint32(h.LonBins))
	binary.LittleEndian.PutUint32(b[24:28], uint32(h.LatZero))
	binary.LittleEndian.PutUint32(b[28:32], uint32(h.LonZero))
	return b
}

func decodeNodeHeader(b []byte) NodeHeader {
	return NodeHeader{
		Count:      int64(binary.LittleEndian.Uint64(b[0:8])),
		SuperCount: int64(binary.LittleEndian.Uint64(b[8:16])),
		LatBins:    int32(binary.LittleEndian.Uint32(b[16:20])),
		LonBins:    int32(binary.LittleEndian.Uint32(b[20:24])),
		LatZero:    int32(binary.LittleEndian.Uint32(b[24:28])),
		LonZero:    int32(binary.LittleEndian.Uint32(b[28:32])),
	}
}

// Nodes is the compact, read-only node store: a memory-mapped or
// cached array of Node records behind a NodeHeader.
type Nodes struct {
	Header NodeHeader
	array  *recordArray[Node]
	file   *os.File
}

// OpenNodes opens a compact node file written by WriteNodes.
func OpenNodes(path string, mode Mode) (*Nodes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: opening nodes: %w", err)
	}
	hb, err := readHeader(f, nodeHeaderSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	header := decodeNodeHeader(hb)

	array, err := openRecordArray(f, nodeCodec, nodeHeaderSize, mode, 4)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Nodes{Header: header, array: array, file: f}, nil
}

// Count returns the number of nodes.
func (n *Nodes) Count() int64 { return n.array.Count() }

// Lookup fetches the node at index.
func (n *Nodes) Lookup(index units.Index, slot int) (Node, error) { return n.array.Lookup(index, slot) }

// Iterate visits every node in index order.
func (n *Nodes) Iterate(fn func(units.Index, Node) error) error { return n.array.Iterate(fn) }

// LatLong returns a node's absolute position.
func (n *Nodes) LatLong(rec Node) (units.LatLong, units.LatLong) {
	return rec.Latitude, rec.Longitude
}

// IsSuper reports whether a node's flags mark it as a super-node.
func (n Node) IsSuper() bool { return n.Flags&units.NodeSuper != 0 }

// Close closes the backing file (and unmaps it, in fat mode).
func (n *Nodes) Close() error {
	if err := n.array.Close(); err != nil {
		return err
	}
	return n.file.Close()
}

// WriteNodes writes the compact node file for count nodes (already in
// final geographic order), with rec(i) producing the record for the
// i'th node and its absolute lat/long.
func WriteNodes(path string, count int64, latBins, lonBins int32, latZero, lonZero units.Bin, rec func(i int64) (Node, units.LatLong, units.LatLong)) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("store: creating nodes file: %w", err)
	}
	defer f.Close()

	var superCount int64
	nodes := make([]Node, count)
	for i := int64(0); i < count; i++ {
		n, lat, lon := rec(i)
		n.Latitude = lat
		n.Longitude = lon
		if n.IsSuper() {
			superCount++
		}
		nodes[i] = n
	}

	header := NodeHeader{Count: count, SuperCount: superCount, LatBins: latBins, LonBins: lonBins, LatZero: int32(latZero), LonZero: int32(lonZero)}
	if err := writeHeader(f, encodeNodeHeader(header)); err != nil {
		return 0, err
	}

	buf := make([]byte, nodeRecordSize)
	for _, n := range nodes {
		nodeCodec.Encode(n, buf)
		if _, err := f.Write(buf); err != nil {
			return 0, fmt.Errorf("store: writing node: %w", err)
		}
	}
	return superCount, nil
}
