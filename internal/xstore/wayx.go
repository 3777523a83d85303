package xstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/routino-go/routino/internal/units"
)

// WayProperties bundles the per-way attributes a profile scores
// against: allowed transports, surface/access properties, and the
// physical limits that rule out vehicles too big or heavy (waysx.h).
type WayProperties struct {
	Highway units.Highway
	Allow   units.Transports
	Props   units.Properties
	Speed   units.Speed
	Weight  units.Weight
	Height  units.Height
	Width   units.Width
	Length  units.Length
}

// WayX is a wide, mutable way record used only during the build: the
// OSM way id plus its scored properties and a pointer into the
// separate append-only name blob. The node-reference list itself is
// not stored here -- the builder keeps each way's node list and turns
// adjacent pairs into SegmentX records only after parsing ends
// (internal/build's resolveSegments).
type WayX struct {
	ID        uint64
	Props     WayProperties
	NameOff   int64
	NameLen   uint16
}

const wayXSize = 8 + 1 + 2 + 1 + 1 + 1 + 1 + 1 + 1 + 8 + 2

var wayXCodec = Codec[WayX]{
	Size: wayXSize,
	Encode: func(w WayX, b []byte) {
		binary.LittleEndian.PutUint64(b[0:8], w.ID)
		b[8] = byte(w.Props.Highway)
		binary.LittleEndian.PutUint16(b[9:11], uint16(w.Props.Allow))
		b[11] = byte(w.Props.Props)
		b[12] = byte(w.Props.Speed)
		b[13] = byte(w.Props.Weight)
		b[14] = byte(w.Props.Height)
		b[15] = byte(w.Props.Width)
		b[16] = byte(w.Props.Length)
		binary.LittleEndian.PutUint64(b[17:25], uint64(w.NameOff))
		binary.LittleEndian.PutUint16(b[25:27], w.NameLen)
	},
	Decode: func(b []byte) WayX {
		return WayX{
			ID: binary.LittleEndian.Uint64(b[0:8]),
			Props: WayProperties{
				Highway: units.Highway(b[8]),
				Allow:   units.Transports(binary.LittleEndian.Uint16(b[9:11])),
				Props:   units.Properties(b[11]),
				Speed:   units.Speed(b[12]),
				Weight:  units.Weight(b[13]),
				Height:  units.Height(b[14]),
				Width:   units.Width(b[15]),
				Length:  units.Length(b[16]),
			},
			NameOff: int64(binary.LittleEndian.Uint64(b[17:25])),
			NameLen: binary.LittleEndian.Uint16(b[25:27]),
		}
	},
}

// WaysX is the extended way store plus the id->index lookup array and
// the separate append-only name blob (waysx.h: WaysX.nfilename).
type WaysX struct {
	store *Store[WayX]

	idata []idIndex // sorted by ID after Sort

	nameFile *os.File
	namePath string
	nameOff  int64
}

// NewWaysX creates a fresh WaysX store (and its name blob) under dir.
func NewWaysX(dir string, mode Mode) (*WaysX, error) {
	s, err := New(dir, "waysx", wayXCodec, mode, 2)
	if err != nil {
		return nil, err
	}
	nf, err := os.CreateTemp(dir, "waynames-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("xstore: creating way name blob: %w", err)
	}
	return &WaysX{store: s, nameFile: nf, namePath: nf.Name()}, nil
}

// Append records a new extended way, writing name to the name blob and
// returning the way's pre-sort index. The name blob offset/length
// travel inside the WayX record itself, so they survive Sort.
func (wx *WaysX) Append(id uint64, props WayProperties, name string) (units.Index, error) {
	off := wx.nameOff
	n, err := wx.nameFile.WriteString(name)
	if err != nil {
		return 0, fmt.Errorf("xstore: appending way name: %w", err)
	}
	wx.nameOff += int64(n)

	idx, err := wx.store.Append(WayX{ID: id, Props: props, NameOff: off, NameLen: uint16(n)})
	if err != nil {
		return 0, err
	}
	return idx, nil
}

// Count returns the number of ways currently stored.
func (wx *WaysX) Count() int64 { return wx.store.Count() }

// Lookup fetches the WayX at index using the given cache slot.
func (wx *WaysX) Lookup(index units.Index, slot int) (*WayX, error) {
	return wx.store.Lookup(index, slot)
}

// Name reads a way's name out of the name blob on demand.
func (wx *WaysX) Name(w WayX) (string, error) {
	if w.NameLen == 0 {
		return "", nil
	}
	buf := make([]byte, w.NameLen)
	if _, err := wx.nameFile.ReadAt(buf, w.NameOff); err != nil {
		return "", fmt.Errorf("xstore: reading way name: %w", err)
	}
	return string(buf), nil
}

// Iterate visits every way in storage order.
func (wx *WaysX) Iterate(fn func(units.Index, WayX) error) error {
	return wx.store.Iterate(fn)
}

// Sort orders ways by OSM id and builds the id->index lookup array
// (section 4.D step 2). Ways are never deduplicated: a repeated way id
// in the source data is a malformed extract, not a build-time merge.
func (wx *WaysX) Sort(ramBytes int64, tmpDir string) (int64, error) {
	cmp := func(a, b WayX) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	}

	var idata []idIndex
	keep := func(rec WayX, outIdx int64) bool {
		idata = append(idata, idIndex{id: rec.ID, idx: units.Index(outIdx)})
		return true
	}

	n, err := wx.store.Sort(ramBytes, tmpDir, cmp, keep)
	if err != nil {
		return 0, err
	}
	wx.idata = idata
	return n, nil
}

// IndexOf looks up a way by its OSM id, returning (index, true) if
// found. It requires Sort to have been called first.
func (wx *WaysX) IndexOf(id uint64) (units.Index, bool) {
	i := sort.Search(len(wx.idata), func(i int) bool { return wx.idata[i].id >= id })
	if i < len(wx.idata) && wx.idata[i].id == id {
		return wx.idata[i].idx, true
	}
	return units.NoIndex, false
}

// Free releases the backing temp files.
func (wx *WaysX) Free(keep bool) error {
	if err := wx.store.Free(keep); err != nil {
		return err
	}
	if err := wx.nameFile.Close(); err != nil {
		return fmt.Errorf("xstore: closing name blob: %w", err)
	}
	if !keep {
		if err := os.Remove(wx.namePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("xstore: removing name blob: %w", err)
		}
	}
	return nil
}

// Path returns the backing temp file path.
func (wx *WaysX) Path() string { return wx.store.Path() }

// NamesPath returns the backing name blob's temp file path, so a
// compact-store writer can relocate it alongside the final way file
// without re-copying every name through NameOff/NameLen.
func (wx *WaysX) NamesPath() string { return wx.namePath }
