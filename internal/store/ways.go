package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

// Way is one compact, read-only way record: its scored properties plus
// a (offset, length) pointer into the companion name blob.
type Way struct {
	Props   xstore.WayProperties
	NameOff int64
	NameLen uint16
}

const wayRecordSize = 1 + 2 + 1 + 1 + 1 + 1 + 1 + 1 + 8 + 2

var wayCodec = Codec[Way]{
	Size: wayRecordSize,
	Encode: func(w Way, b []byte) {
		b[0] = byte(w.Props.Highway)
		binary.LittleEndian.PutUint16(b[1:3], uint16(w.Props.Allow))
		b[3] = byte(w.Props.Props)
		b[4] = byte(w.Props.Speed)
		b[5] = byte(w.Props.Weight)
		b[6] = byte(w.Props.Height)
		b[7] = byte(w.Props.Width)
		b[8] = byte(w.Props.Length)
		binary.LittleEndian.PutUint64(b[9:17], uint64(w.NameOff))
		binary.LittleEndian.PutUint16(b[17:19], w.NameLen)
	},
	Decode: func(b []byte) Way {
		return Way{
			Props: xstore.WayProperties{
				Highway: units.Highway(b[0]),
				Allow:   units.Transports(binary.LittleEndian.Uint16(b[1:3])),
				Props:   units.Properties(b[3]),
				Speed:   units.Speed(b[4]),
				Weight:  units.Weight(b[5]),
				Height:  units.Height(b[6]),
				Width:   units.Width(b[7]),
				Length:  units.Length(b[8]),
			},
			NameOff: int64(binary.LittleEndian.Uint64(b[9:17])),
			NameLen: binary.LittleEndian.Uint16(b[17:19]),
		}
	},
}

// WayHeader is the fixed preamble of a compact way file: counts plus
// the union of every bitmask seen, so a profile can short-circuit a
// whole search when none of its allowed transports or properties
// appear anywhere in the data.
type WayHeader struct {
	Count         int64
	OriginalCount int64
	HighwaysMask  uint32
	AllowMask     uint16
	PropsMask     uint8
}

const wayHeaderSize = 8 + 8 + 4 + 2 + 1

func encodeWayHeader(h WayHeader) []byte {
	b := make([]byte, wayHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], uint64(h.Count))
	binary.LittleEndian.PutUint64(b[8:16], uint64(h.OriginalCount))
	binary.LittleEndian.PutUint32(b[16:20], h.HighwaysMask)
	binary.LittleEndian.PutUint16(b[20:22], h.AllowMask)
	b[22] = h.PropsMask
	return b
}

func decodeWayHeader(b []byte) WayHeader {
	return WayHeader{
		Count:         int64(binary.LittleEndian.Uint64(b[0:8])),
		OriginalCount: int64(binary.LittleEndian.Uint64(b[8:16])),
		HighwaysMask:  binary.LittleEndian.Uint32(b[16:20]),
		AllowMask:     binary.LittleEndian.Uint16(b[20:22]),
		PropsMask:     b[22],
	}
}

// Ways is the compact, read-only way store plus its name blob.
type Ways struct {
	Header    WayHeader
	array     *recordArray[Way]
	file      *os.File
	namesFile *os.File
}

// OpenWays opens a compact way file and its companion name blob
// written by WriteWays.
func OpenWays(path, namesPath string, mode Mode) (*Ways, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: opening ways: %w", err)
	}
	hb, err := readHeader(f, wayHeaderSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	array, err := openRecordArray(f, wayCodec, wayHeaderSize, mode, 4)
	if err != nil {
		f.Close()
		return nil, err
	}
	namesFile, err := os.Open(namesPath)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("store: opening way names: %w", err)
	}
	return &Ways{Header: decodeWayHeader(hb), array: array, file: f, namesFile: namesFile}, nil
}

// Count returns the number of ways.
func (w *Ways) Count() int64 { return w.array.Count() }

// Lookup fetches the way at index.
func (w *Ways) Lookup(index units.Index, slot int) (Way, error) { return w.array.Lookup(index, slot) }

// Iterate visits every way in index order.
func (w *Ways) Iterate(fn func(units.Index, Way) error) error { return w.array.Iterate(fn) }

// Name reads a way's name out of the companion blob.
func (w *Ways) Name(rec Way) (string, error) {
	if rec.NameLen == 0 {
		return "", nil
	}
	buf := make([]byte, rec.NameLen)
	if _, err := w.namesFile.ReadAt(buf, rec.NameOff); err != nil && err != io.EOF {
		return "", fmt.Errorf("store: reading way name: %w", err)
	}
	return string(buf), nil
}

func (w *Ways) Close() error {
	if err := w.array.Close(); err != nil {
		return err
	}
	if err := w.namesFile.Close(); err != nil {
		return err
	}
	return w.file.Close()
}

// WriteWays writes the compact way file and copies the builder's name
// blob alongside it unchanged -- WayX.NameOff/NameLen already point
// into that blob, and every compact Way record reuses those same
// offsets, so the blob needs no rewriting, only relocating.
func WriteWays(path, namesPath string, ways []Way, nameBlobSrc io.Reader) (WayHeader, error) {
	f, err := os.Create(path)
	if err != nil {
		return WayHeader{}, fmt.Errorf("store: creating ways file: %w", err)
	}
	defer f.Close()

	var header WayHeader
	header.Count = int64(len(ways))
	header.OriginalCount = header.Count
	for _, w := range ways {
		header.HighwaysMask |= 1 << uint(w.Props.Highway)
		header.AllowMask |= uint16(w.Props.Allow)
		header.PropsMask |= uint8(w.Props.Props)
	}

	if err := writeHeader(f, encodeWayHeader(header)); err != nil {
		return header, err
	}

	buf := make([]byte, wayRecordSize)
	for _, w := range ways {
		wayCodec.Encode(w, buf)
		if _, err := f.Write(buf); err != nil {
			return header, fmt.Errorf("store: writing way: %w", err)
		}
	}

	namesFile, err := os.Create(namesPath)
	if err != nil {
		return header, fmt.Errorf("store: creating way names file: %w", err)
	}
	defer namesFile.Close()
	if _, err := io.Copy(namesFile, nameBlobSrc); err != nil {
		return header, fmt.Errorf("store: copying way names: %w", err)
	}

	return header, nil
}
