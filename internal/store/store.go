// Package store implements the compact, read-only Nodes/Segments/Ways/
// Relations files a router queries against: a small fixed header
// followed by a packed record array, opened either by mmap (fat mode)
// or through a small positional cache (slim mode), matching the
// build-time access-mode split in package xstore (spec.md section
// 4.F).
package store

import (
	"fmt"
	"os"
	"syscall"

	"github.com/routino-go/routino/internal/units"
)

// Mode selects how a compact store's record array is read.
type Mode int

const (
	// ModeFat memory-maps the whole file.
	ModeFat Mode = iota
	// ModeSlim reads records on demand through a small cache.
	ModeSlim
)

// Codec describes a record's fixed-size on-disk representation.
type Codec[T any] struct {
	Size   int
	Encode func(T, []byte)
	Decode func([]byte) T
}

// recordArray is the fat/slim record-array reader shared by every
// compact store, sitting just after that file's own header.
type recordArray[T any] struct {
	mode       Mode
	codec      Codec[T]
	count      int64
	headerSize int64

	file *os.File
	data []byte // mmap'd file contents, fat mode only

	numSlots  int
	slotBuf   [][]byte
	slotIndex []int64
}

func openRecordArray[T any](f *os.File, codec Codec[T], headerSize int64, mode Mode, numSlots int) (*recordArray[T], error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("store: stat: %w", err)
	}
	count := (info.Size() - headerSize) / int64(codec.Size)

	ra := &recordArray[T]{mode: mode, codec: codec, count: count, headerSize: headerSize, file: f}

	if mode == ModeFat {
		if info.Size() == 0 {
			return ra, nil
		}
		data, err := syscall.Mmap(int(f.Fd()), 0, int(info.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
		if err != nil {
			return nil, fmt.Errorf("store: mmap: %w", err)
		}
		ra.data = data
		return ra, nil
	}

	if numSlots < 1 {
		numSlots = 3
	}
	ra.numSlots = numSlots
	ra.slotBuf = make([][]byte, numSlots)
	ra.slotIndex = make([]int64, numSlots)
	for i := range ra.slotBuf {
		ra.slotBuf[i] = make([]byte, codec.Size)
		ra.slotIndex[i] = -1
	}
	return ra, nil
}

// Count returns the number of records in the array.
func (ra *recordArray[T]) Count() int64 { return ra.count }

// Lookup decodes the record at index, using slot (1-based) to pick a
// cache slot in slim mode.
func (ra *recordArray[T]) Lookup(index units.Index, slot int) (T, error) {
	var zero T
	if int64(index) < 0 || int64(index) >= ra.count {
		return zero, fmt.Errorf("store: index %d out of range (%d records)", index, ra.count)
	}

	if ra.mode == ModeFat {
		off := ra.headerSize + int64(index)*int64(ra.codec.Size)
		return ra.codec.Decode(ra.data[off : off+int64(ra.codec.Size)]), nil
	}

	si := slot - 1
	if si < 0 || si >= ra.numSlots {
		return zero, fmt.Errorf("store: slot %d out of range (%d slots)", slot, ra.numSlots)
	}
	if ra.slotIndex[si] != int64(index) {
		off := ra.headerSize + int64(index)*int64(ra.codec.Size)
		if _, err := ra.file.ReadAt(ra.slotBuf[si], off); err != nil {
			return zero, fmt.Errorf("store: reading record %d: %w", index, err)
		}
		ra.slotIndex[si] = int64(index)
	}
	return ra.codec.Decode(ra.slotBuf[si]), nil
}

// Iterate visits every record in index order.
func (ra *recordArray[T]) Iterate(fn func(units.Index, T) error) error {
	for i := int64(0); i < ra.count; i++ {
		rec, err := ra.Lookup(units.Index(i), 1)
		if err != nil {
			return err
		}
		if err := fn(units.Index(i), rec); err != nil {
			return err
		}
	}
	return nil
}

func (ra *recordArray[T]) Close() error {
	if ra.mode == ModeFat && ra.data != nil {
		if err := syscall.Munmap(ra.data); err != nil {
			return fmt.Errorf("store: munmap: %w", err)
		}
	}
	return nil
}

func writeHeader(f *os.File, header []byte) error {
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("store: writing header: %w", err)
	}
	return nil
}

func readHeader(f *os.File, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("store: reading header: %w", err)
	}
	return buf, nil
}
