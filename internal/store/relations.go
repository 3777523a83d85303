package store

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

// TurnRestriction is one compact, read-only turn restriction, fully
// resolved to final compact node/way indices (unlike
// xstore.TurnRestrictRelX, which still carries raw OSM ids).
type TurnRestriction struct {
	From        units.Index
	Via         units.Index
	To          units.Index
	Restriction xstore.TurnRestriction
	Except      units.Transports
}

const turnRestrictionRecordSize = 4 + 4 + 4 + 1 + 2

var turnRestrictionCodec = Codec[TurnRestriction]{
	Size: turnRestrictionRecordSize,
	Encode: func(r TurnRestriction, b []byte) {
		binary.LittleEndian.PutUint32(b[0:4], uint32(r.From))
		binary.LittleEndian.PutUint32(b[4:8], uint32(r.Via))
		binary.LittleEndian.PutUint32(b[8:12], uint32(r.To))
		b[12] = byte(r.Restriction)
		binary.LittleEndian.PutUint16(b[13:15], uint16(r.Except))
	},
	Decode: func(b []byte) TurnRestriction {
		return TurnRestriction{
			From:        units.Index(binary.LittleEndian.Uint32(b[0:4])),
			Via:         units.Index(binary.LittleEndian.Uint32(b[4:8])),
			To:          units.Index(binary.LittleEndian.Uint32(b[8:12])),
			Restriction: xstore.TurnRestriction(b[12]),
			Except:      units.Transports(binary.LittleEndian.Uint16(b[13:15])),
		}
	},
}

// RelationHeader is the fixed preamble of a compact relation file.
type RelationHeader struct {
	Count int64
}

const relationHeaderSize = 8

func encodeRelationHeader(h RelationHeader) []byte {
	b := make([]byte, relationHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(h.Count))
	return b
}

func decodeRelationHeader(b []byte) RelationHeader {
	return RelationHeader{Count: int64(binary.LittleEndian.Uint64(b[0:8]))}
}

// Relations is the compact, read-only turn-restriction store. Route
// relations are recorded at build time but not applied to their
// member ways, and have no query-time form.
type Relations struct {
	Header RelationHeader
	array  *recordArray[TurnRestriction]
	file   *os.File
}

// OpenRelations opens a compact relation file written by WriteRelations.
func OpenRelations(path string, mode Mode) (*Relations, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: opening relations: %w", err)
	}
	hb, err := readHeader(f, relationHeaderSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	array, err := openRecordArray(f, turnRestrictionCodec, relationHeaderSize, mode, 2)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Relations{Header: decodeRelationHeader(hb), array: array, file: f}, nil
}

// Count returns the number of turn restrictions.
func (r *Relations) Count() int64 { return r.array.Count() }

// Lookup fetches the turn restriction at index.
func (r *Relations) Lookup(index units.Index, slot int) (TurnRestriction, error) {
	return r.array.Lookup(index, slot)
}

// Iterate visits every turn restriction in index order.
func (r *Relations) Iterate(fn func(units.Index, TurnRestriction) error) error {
	return r.array.Iterate(fn)
}

func (r *Relations) Close() error {
	if err := r.array.Close(); err != nil {
		return err
	}
	return r.file.Close()
}

// WriteRelations writes the compact relation file from a list of
// already-resolved turn restrictions.
func WriteRelations(path string, turns []TurnRestriction) (RelationHeader, error) {
	f, err := os.Create(path)
	if err != nil {
		return RelationHeader{}, fmt.Errorf("store: creating relations file: %w", err)
	}
	defer f.Close()

	header := RelationHeader{Count: int64(len(turns))}
	if err := writeHeader(f, encodeRelationHeader(header)); err != nil {
		return header, err
	}

	buf := make([]byte, turnRestrictionRecordSize)
	for _, t := range turns {
		turnRestrictionCodec.Encode(t, buf)
		if _, err := f.Write(buf); err != nil {
			return header, fmt.Errorf("store: writing turn restriction: %w", err)
		}
	}
	return header, nil
}
