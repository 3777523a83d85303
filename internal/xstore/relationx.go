package xstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/routino-go/routino/internal/extsort"
	"github.com/routino-go/routino/internal/units"
)

// TurnRestrictRelX is a turn-restriction relation: either a positive
// "only this way" or negative "not this way" restriction through a via
// node, with an except list of transports the restriction doesn't bind
// (relationsx.h: TurnRestrictRelX).
type TurnRestrictRelX struct {
	ID          uint64
	From        uint64 // OSM way id
	Via         uint64 // OSM node id
	To          uint64 // OSM way id
	Restriction TurnRestriction
	Except      units.Transports
}

// TurnRestriction classifies a TurnRestrictRelX (restriction.h's
// not-this-way vs only-this-way split, section 4.D.3).
type TurnRestriction uint8

const (
	RestrictionNone TurnRestriction = iota
	RestrictionNoEntry
	RestrictionOnlyEntry
)

const turnRestrictXSize = 8 + 8 + 8 + 8 + 2 + 2 + 1

var turnRestrictXCodec = Codec[turnRestrictXRecord]{
	Size: turnRestrictXSize,
	Encode: func(r turnRestrictXRecord, b []byte) {
		binary.LittleEndian.PutUint64(b[0:8], r.ID)
		binary.LittleEndian.PutUint64(b[8:16], r.From)
		binary.LittleEndian.PutUint64(b[16:24], r.Via)
		binary.LittleEndian.PutUint64(b[24:32], r.To)
		binary.LittleEndian.PutUint16(b[32:34], uint16(r.Except))
		b[34] = byte(r.Kind)
	},
	Decode: func(b []byte) turnRestrictXRecord {
		return turnRestrictXRecord{
			ID:     binary.LittleEndian.Uint64(b[0:8]),
			From:   binary.LittleEndian.Uint64(b[8:16]),
			Via:    binary.LittleEndian.Uint64(b[16:24]),
			To:     binary.LittleEndian.Uint64(b[24:32]),
			Except: units.Transports(binary.LittleEndian.Uint16(b[32:34])),
			Kind:   TurnRestriction(b[34]),
		}
	},
}

// turnRestrictXRecord is the on-disk shape; TurnRestrictRelX is the
// public-facing shape with Restriction folded in as Kind.
type turnRestrictXRecord struct {
	ID     uint64
	From   uint64
	Via    uint64
	To     uint64
	Except units.Transports
	Kind   TurnRestriction
}

// RouteRelX is a route relation: a transport-tagged collection of
// member ways and (possibly) nested sub-relations, stored as parsed
// (relationsx.h: RouteRelX, section 4.D.4). Nested relations are not
// flattened into direct way membership.
type RouteRelX struct {
	ID        uint64
	Routes    units.Transports
	WayIDs    []uint64
	RelIDs    []uint64
}

// RelationsX holds the two relation stores the build needs: turn
// restrictions (fixed-size, the common case) and route relations
// (variable-size, since membership lists are unbounded).
type RelationsX struct {
	turn *Store[turnRestrictXRecord]

	routeFile *os.File
	routePath string
	routeDir  string
}

// NewRelationsX creates fresh relation stores under dir.
func NewRelationsX(dir string, mode Mode) (*RelationsX, error) {
	ts, err := New(dir, "turnrelx", turnRestrictXCodec, mode, 1)
	if err != nil {
		return nil, err
	}
	rf, err := os.CreateTemp(dir, "routerelx-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("xstore: creating route relation store: %w", err)
	}
	return &RelationsX{turn: ts, routeFile: rf, routePath: rf.Name(), routeDir: dir}, nil
}

// AppendTurnRestriction records one turn-restriction relation.
func (rx *RelationsX) AppendTurnRestriction(id, from, via, to uint64, kind TurnRestriction, except units.Transports) (units.Index, error) {
	return rx.turn.Append(turnRestrictXRecord{ID: id, From: from, Via: via, To: to, Except: except, Kind: kind})
}

// TurnCount returns the number of turn-restriction relations stored.
func (rx *RelationsX) TurnCount() int64 { return rx.turn.Count() }

// LookupTurn fetches the turn restriction at index.
func (rx *RelationsX) LookupTurn(index units.Index, slot int) (*TurnRestrictRelX, error) {
	rec, err := rx.turn.Lookup(index, slot)
	if err != nil {
		return nil, err
	}
	return &TurnRestrictRelX{ID: rec.ID, From: rec.From, Via: rec.Via, To: rec.To, Restriction: rec.Kind, Except: rec.Except}, nil
}

// IterateTurn visits every turn restriction in storage order.
func (rx *RelationsX) IterateTurn(fn func(units.Index, TurnRestrictRelX) error) error {
	return rx.turn.Iterate(func(idx units.Index, rec turnRestrictXRecord) error {
		return fn(idx, TurnRestrictRelX{ID: rec.ID, From: rec.From, Via: rec.Via, To: rec.To, Except: rec.Except, Restriction: rec.Kind})
	})
}

// SortTurn orders turn restrictions by the id of their via node, so a
// via node's restrictions are adjacent (section 4.D.3).
func (rx *RelationsX) SortTurn(ramBytes int64, tmpDir string) (int64, error) {
	cmp := func(a, b turnRestrictXRecord) int {
		switch {
		case a.Via < b.Via:
			return -1
		case a.Via > b.Via:
			return 1
		default:
			return 0
		}
	}
	return rx.turn.Sort(ramBytes, tmpDir, cmp, nil)
}

// FreeTurn releases the turn-restriction store's backing file.
func (rx *RelationsX) FreeTurn(keep bool) error { return rx.turn.Free(keep) }

// AppendRoute records one route relation with its member way and
// sub-relation ids, using the length-prefixed variable-record wire
// format from package extsort.
func (rx *RelationsX) AppendRoute(rel RouteRelX) error {
	payload := encodeRouteRelX(rel)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	if _, err := rx.routeFile.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("xstore: appending route relation: %w", err)
	}
	if _, err := rx.routeFile.Write(payload); err != nil {
		return fmt.Errorf("xstore: appending route relation: %w", err)
	}
	pad := 8 - (2+len(payload))%8
	if pad == 8 {
		pad = 0
	}
	if pad > 0 {
		if _, err := rx.routeFile.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("xstore: appending route relation: %w", err)
		}
	}
	return nil
}

// IterateRoutes visits every route relation in append order.
func (rx *RelationsX) IterateRoutes(fn func(RouteRelX) error) error {
	if _, err := rx.routeFile.Seek(0, 0); err != nil {
		return fmt.Errorf("xstore: seeking route relation store: %w", err)
	}
	br := bufio.NewReaderSize(rx.routeFile, 1<<20)
	for {
		var lenBuf [2]byte
		_, err := io.ReadFull(br, lenBuf[:])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xstore: reading route relation: %w", err)
		}
		length := binary.LittleEndian.Uint16(lenBuf[:])
		payload := make([]byte, length)
		if _, err := io.ReadFull(br, payload); err != nil {
			return fmt.Errorf("xstore: reading route relation payload: %w", err)
		}
		pad := 8 - (2+int(length))%8
		if pad == 8 {
			pad = 0
		}
		if pad > 0 {
			if _, err := io.CopyN(io.Discard, br, int64(pad)); err != nil {
				return fmt.Errorf("xstore: reading route relation padding: %w", err)
			}
		}
		if err := fn(decodeRouteRelX(payload)); err != nil {
			return err
		}
	}
}

// SortRoutes orders route relations by id, re-running them through the
// shared external-memory Variable sort so the store scales past RAM
// the same way the fixed-size stores do.
func (rx *RelationsX) SortRoutes(ramBytes int64, tmpDir string) (int64, error) {
	if _, err := rx.routeFile.Seek(0, 0); err != nil {
		return 0, fmt.Errorf("xstore: seeking route relation store: %w", err)
	}
	out, err := os.CreateTemp(tmpDir, "routerelx-sorted-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("xstore: sort: creating output: %w", err)
	}
	outPath := out.Name()

	n, err := extsort.Variable(rx.routeFile, out, extsort.Config{
		RAMBytes: ramBytes,
		TmpDir:   tmpDir,
		Compare: func(a, b []byte) int {
			ra, rb := decodeRouteRelX(a), decodeRouteRelX(b)
			switch {
			case ra.ID < rb.ID:
				return -1
			case ra.ID > rb.ID:
				return 1
			default:
				return 0
			}
		},
	})
	out.Close()
	if err != nil {
		os.Remove(outPath)
		return 0, fmt.Errorf("xstore: sorting route relations: %w", err)
	}

	if err := rx.routeFile.Close(); err != nil {
		return 0, fmt.Errorf("xstore: closing route relation store: %w", err)
	}
	if err := os.Remove(rx.routePath); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("xstore: removing old route relation store: %w", err)
	}
	if err := os.Rename(outPath, rx.routePath); err != nil {
		return 0, fmt.Errorf("xstore: renaming sorted route relation store: %w", err)
	}
	f, err := os.OpenFile(rx.routePath, os.O_RDWR, 0o644)
	if err != nil {
		return 0, fmt.Errorf("xstore: reopening route relation store: %w", err)
	}
	rx.routeFile = f
	return n, nil
}

// FreeRoutes releases the route-relation store's backing file.
func (rx *RelationsX) FreeRoutes(keep bool) error {
	if err := rx.routeFile.Close(); err != nil {
		return fmt.Errorf("xstore: closing route relation store: %w", err)
	}
	if !keep {
		if err := os.Remove(rx.routePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("xstore: removing route relation store: %w", err)
		}
	}
	return nil
}

func encodeRouteRelX(rel RouteRelX) []byte {
	size := 8 + 2 + 4 + 8*len(rel.WayIDs) + 4 + 8*len(rel.RelIDs)
	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0:8], rel.ID)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(rel.Routes))
	off := 10
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(rel.WayIDs)))
	off += 4
	for _, id := range rel.WayIDs {
		binary.LittleEndian.PutUint64(buf[off:off+8], id)
		off += 8
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(rel.RelIDs)))
	off += 4
	for _, id := range rel.RelIDs {
		binary.LittleEndian.PutUint64(buf[off:off+8], id)
		off += 8
	}
	return buf
}

func decodeRouteRelX(b []byte) RouteRelX {
	rel := RouteRelX{
		ID:     binary.LittleEndian.Uint64(b[0:8]),
		Routes: units.Transports(binary.LittleEndian.Uint16(b[8:10])),
	}
	off := 10
	nWays := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if nWays > 0 {
		rel.WayIDs = make([]uint64, nWays)
		for i := range rel.WayIDs {
			rel.WayIDs[i] = binary.LittleEndian.Uint64(b[off : off+8])
			off += 8
		}
	}
	nRels := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if nRels > 0 {
		rel.RelIDs = make([]uint64, nRels)
		for i := range rel.RelIDs {
			rel.RelIDs[i] = binary.LittleEndian.Uint64(b[off : off+8])
			off += 8
		}
	}
	return rel
}
