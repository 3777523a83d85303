package xstore

import (
	"encoding/binary"
	"sort"

	"github.com/routino-go/routino/internal/units"
)

// NodeX is a wide, mutable node record used only during the build. Its
// ID field holds the OSM node id for the whole build; the node's index
// is found through NodesX's id->index array, not stored in the record
// (spec.md section 4.D).
type NodeX struct {
	ID        uint64
	Latitude  units.LatLong
	Longitude units.LatLong
	Allow     units.Transports
	Flags     units.NodeFlags
}

// IsPruned reports whether this NodeX has been marked deleted by a
// pruning pass (its latitude set to NoLatLong).
func (n NodeX) IsPruned() bool { return n.Latitude == units.NoLatLong }

const nodeXSize = 8 + 4 + 4 + 2 + 2

var nodeXCodec = Codec[NodeX]{
	Size: nodeXSize,
	Encode: func(n NodeX, b []byte) {
		binary.LittleEndian.PutUint64(b[0:8], n.ID)
		binary.LittleEndian.PutUint32(b[8:12], uint32(n.Latitude))
		binary.LittleEndian.PutUint32(b[12:16], uint32(n.Longitude))
		binary.LittleEndian.PutUint16(b[16:18], uint16(n.Allow))
		binary.LittleEndian.PutUint16(b[18:20], uint16(n.Flags))
	},
	Decode: func(b []byte) NodeX {
		return NodeX{
			ID:        binary.LittleEndian.Uint64(b[0:8]),
			Latitude:  units.LatLong(binary.LittleEndian.Uint32(b[8:12])),
			Longitude: units.LatLong(binary.LittleEndian.Uint32(b[12:16])),
			Allow:     units.Transports(binary.LittleEndian.Uint16(b[16:18])),
			Flags:     units.NodeFlags(binary.LittleEndian.Uint16(b[18:20])),
		}
	},
}

// NodesX is the extended node store plus the RAM-resident auxiliary
// arrays the builder threads through the pipeline: a sorted id->index
// array (idata, built by Sort), a geographic renumbering map (gdata,
// built by SortGeographically), and a bitmask of chosen super-nodes.
type NodesX struct {
	store *Store[NodeX]

	// idata holds (id, index) pairs in ID-sorted order, built by Sort.
	idata []idIndex

	// gdata[oldIndex] = newIndex after geographic sort.
	gdata []units.Index

	// super marks nodes chosen as super-nodes (indexed post-geo-sort).
	super []bool

	LatBins, LonBins int
	LatZero, LonZero units.Bin
}

type idIndex struct {
	id  uint64
	idx units.Index
}

// NewNodesX creates a fresh NodesX store under dir.
func NewNodesX(dir string, mode Mode) (*NodesX, error) {
	s, err := New(dir, "nodesx", nodeXCodec, mode, 3)
	if err != nil {
		return nil, err
	}
	return &NodesX{store: s}, nil
}

// Append records a new extended node and returns its pre-sort index.
func (nx *NodesX) Append(id uint64, lat, lon units.LatLong, allow units.Transports, flags units.NodeFlags) (units.Index, error) {
	return nx.store.Append(NodeX{ID: id, Latitude: lat, Longitude: lon, Allow: allow, Flags: flags})
}

// Count returns the number of nodes currently stored.
func (nx *NodesX) Count() int64 { return nx.store.Count() }

// Lookup fetches the NodeX at index using the given cache slot.
func (nx *NodesX) Lookup(index units.Index, slot int) (*NodeX, error) {
	return nx.store.Lookup(index, slot)
}

// PutBack writes a modified NodeX back through the given cache slot.
func (nx *NodesX) PutBack(index units.Index, slot int, rec NodeX) error {
	return nx.store.PutBack(index, slot, rec)
}

// Iterate visits every node in storage order.
func (nx *NodesX) Iterate(fn func(units.Index, NodeX) error) error {
	return nx.store.Iterate(fn)
}

// Sort orders nodes by OSM id, drops exact-id duplicates (keeping the
// first one the sort emits), and builds the id->index lookup array
// (spec.md section 4.D step 1).
func (nx *NodesX) Sort(ramBytes int64, tmpDir string) (int64, error) {
	cmp := func(a, b NodeX) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	}

	var lastID uint64
	haveLast := false
	var idata []idIndex

	keep := func(rec NodeX, outIdx int64) bool {
		if haveLast && rec.ID == lastID {
			return false
		}
		lastID = rec.ID
		haveLast = true
		idata = append(idata, idIndex{id: rec.ID, idx: units.Index(outIdx)})
		return true
	}

	n, err := nx.store.Sort(ramBytes, tmpDir, cmp, keep)
	if err != nil {
		return 0, err
	}
	nx.idata = idata
	return n, nil
}

// IndexOf looks up a node by its OSM id, returning (index, true) if
// found. It requires Sort to have been called first.
func (nx *NodesX) IndexOf(id uint64) (units.Index, bool) {
	i := sort.Search(len(nx.idata), func(i int) bool { return nx.idata[i].id >= id })
	if i < len(nx.idata) && nx.idata[i].id == id {
		return nx.idata[i].idx, true
	}
	return units.NoIndex, false
}

// SetGData installs the geographic renumbering map computed by the
// graph builder's geographic sort step (spec.md section 4.D step 13).
func (nx *NodesX) SetGData(gdata []units.Index) { nx.gdata = gdata }

// GData returns the geographic renumbering map, or nil if not yet set.
func (nx *NodesX) GData() []units.Index { return nx.gdata }

// SetSuper installs the super-node membership bitmask, indexed after
// geographic renumbering.
func (nx *NodesX) SetSuper(super []bool) { nx.super = super }

// IsSuper reports whether the (post-renumbering) node at index is a
// chosen super-node.
func (nx *NodesX) IsSuper(index units.Index) bool {
	return int(index) < len(nx.super) && nx.super[index]
}

// Free releases the backing temp file.
func (nx *NodesX) Free(keep bool) error { return nx.store.Free(keep) }

// Path returns the backing temp file path.
func (nx *NodesX) Path() string { return nx.store.Path() }
