// Package xstore implements the extended ("X") record stores used while
// building a routing database: append-only temp files of wide "building"
// records for nodes, segments, ways, and turn relations, plus the
// auxiliary RAM arrays (id to index maps, bitmasks, pruning markers)
// each one needs (spec.md section 4.C).
//
// Two build-time access modes are supported, selected per Store at
// construction:
//
//   - Fat: every record lives in a RAM slice; Lookup/PutBack are plain
//     slice indexing.
//   - Slim: records live only in the temp file; Lookup reads through a
//     small N-slot cache keyed by a caller-chosen slot number, so two
//     logical accesses inside one algorithm step (e.g. "node1 in slot 1,
//     node2 in slot 2") get distinct backing memory even though they
//     share one underlying file.
package xstore

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/routino-go/routino/internal/extsort"
	"github.com/routino-go/routino/internal/units"
)

// Mode selects the RAM/disk tradeoff for a Store.
type Mode int

const (
	// ModeFat keeps every record resident in RAM.
	ModeFat Mode = iota
	// ModeSlim keeps records on disk, funnelled through a small cache.
	ModeSlim
)

// Codec describes how to turn a record of type T into and out of its
// fixed-size on-disk representation.
type Codec[T any] struct {
	Size   int
	Encode func(T, []byte)
	Decode func([]byte) T
}

// Store is an append-only extended record store for one record type.
type Store[T any] struct {
	mode  Mode
	codec Codec[T]

	file  *os.File
	path  string
	count int64

	// Fat mode.
	data []T

	// Slim mode: numSlots positional slots, chosen by the caller so
	// concurrent logical accesses don't alias the same backing buffer.
	numSlots  int
	slotBuf   [][]byte
	slotIndex []int64
	slotDirty []bool
}

// New creates a Store backed by a fresh temp file under dir.
func New[T any](dir, prefix string, codec Codec[T], mode Mode, numSlots int) (*Store[T], error) {
	f, err := os.CreateTemp(dir, prefix+"-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("xstore: creating %s store: %w", prefix, err)
	}
	if numSlots < 1 {
		numSlots = 3
	}
	s := &Store[T]{
		mode:      mode,
		codec:     codec,
		file:      f,
		path:      f.Name(),
		numSlots:  numSlots,
		slotBuf:   make([][]byte, numSlots),
		slotIndex: make([]int64, numSlots),
		slotDirty: make([]bool, numSlots),
	}
	for i := range s.slotBuf {
		s.slotBuf[i] = make([]byte, codec.Size)
		s.slotIndex[i] = -1
	}
	return s, nil
}

// Count returns the number of records appended so far.
func (s *Store[T]) Count() int64 { return s.count }

// Append writes rec as the next record and returns its index.
func (s *Store[T]) Append(rec T) (units.Index, error) {
	idx := units.Index(s.count)

	if s.mode == ModeFat {
		s.data = append(s.data, rec)
	}

	buf := make([]byte, s.codec.Size)
	s.codec.Encode(rec, buf)
	if _, err := s.file.Write(buf); err != nil {
		return 0, fmt.Errorf("xstore: append: %w", err)
	}

	s.count++
	return idx, nil
}

// Lookup returns a pointer to the record at index, using the given slot
// number (1-based, matching the C original's cache-slot convention) in
// slim mode. The returned pointer's value must not be retained across a
// Lookup into the same slot, or across PutBack.
func (s *Store[T]) Lookup(index units.Index, slot int) (*T, error) {
	if s.mode == ModeFat {
		if int64(index) >= int64(len(s.data)) {
			return nil, fmt.Errorf("xstore: index %d out of range (%d records)", index, len(s.data))
		}
		return &s.data[index], nil
	}

	si := slot - 1
	if si < 0 || si >= s.numSlots {
		return nil, fmt.Errorf("xstore: slot %d out of range (%d slots)", slot, s.numSlots)
	}

	if s.slotIndex[si] == int64(index) {
		rec := s.codec.Decode(s.slotBuf[si])
		return &rec, nil
	}

	if s.slotDirty[si] {
		if err := s.flushSlot(si); err != nil {
			return nil, err
		}
	}

	off := int64(index) * int64(s.codec.Size)
	if _, err := s.file.ReadAt(s.slotBuf[si], off); err != nil {
		return nil, fmt.Errorf("xstore: reading record %d: %w", index, err)
	}
	s.slotIndex[si] = int64(index)
	s.slotDirty[si] = false

	rec := s.codec.Decode(s.slotBuf[si])
	return &rec, nil
}

// PutBack writes rec back to the position currently cached in slot,
// marking it dirty so it is flushed before the slot is reused or the
// store is closed. In fat mode it updates the RAM slice directly.
func (s *Store[T]) PutBack(index units.Index, slot int, rec T) error {
	if s.mode == ModeFat {
		if int64(index) >= int64(len(s.data)) {
			return fmt.Errorf("xstore: put-back index %d out of range", index)
		}
		s.data[index] = rec
		return nil
	}

	si := slot - 1
	if si < 0 || si >= s.numSlots {
		return fmt.Errorf("xstore: slot %d out of range", slot)
	}
	s.codec.Encode(rec, s.slotBuf[si])
	s.slotIndex[si] = int64(index)
	s.slotDirty[si] = true
	return nil
}

func (s *Store[T]) flushSlot(si int) error {
	off := s.slotIndex[si] * int64(s.codec.Size)
	if _, err := s.file.WriteAt(s.slotBuf[si], off); err != nil {
		return fmt.Errorf("xstore: flushing slot: %w", err)
	}
	s.slotDirty[si] = false
	return nil
}

// Flush writes back every dirty slim-mode slot. It must be called
// before the store is closed if any PutBack calls were made (section 5
// "Resource policy": dirty put-backs must be flushed before close).
func (s *Store[T]) Flush() error {
	if s.mode != ModeSlim {
		return nil
	}
	for si := range s.slotBuf {
		if s.slotDirty[si] {
			if err := s.flushSlot(si); err != nil {
				return err
			}
		}
	}
	return nil
}

// Iterate calls fn once per record in append order (index ascending).
// In slim mode this bypasses the slot cache entirely, using a single
// buffered sequential read for speed.
func (s *Store[T]) Iterate(fn func(index units.Index, rec T) error) error {
	if s.mode == ModeFat {
		for i, rec := range s.data {
			if err := fn(units.Index(i), rec); err != nil {
				return err
			}
		}
		return nil
	}

	if err := s.Flush(); err != nil {
		return err
	}
	r, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("xstore: reopening for iterate: %w", err)
	}
	defer r.Close()

	br := bufio.NewReaderSize(r, 1<<20)
	buf := make([]byte, s.codec.Size)
	var idx units.Index
	for {
		_, err := io.ReadFull(br, buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xstore: iterate read: %w", err)
		}
		rec := s.codec.Decode(buf)
		if err := fn(idx, rec); err != nil {
			return err
		}
		idx++
	}
}

// Sort rewrites the store in sorted order (per cmp), optionally
// dropping/deduplicating records via keep, using the external-memory
// sort in package extsort. It returns the number of records retained.
func (s *Store[T]) Sort(ramBytes int64, tmpDir string, cmp func(a, b T) int, keep func(rec T, outIndex int64) bool) (int64, error) {
	if err := s.Flush(); err != nil {
		return 0, err
	}

	in, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("xstore: sort: reopening input: %w", err)
	}
	defer in.Close()

	out, err := os.CreateTemp(tmpDir, "sorted-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("xstore: sort: creating output: %w", err)
	}
	outPath := out.Name()

	byteCmp := func(a, b []byte) int { return cmp(s.codec.Decode(a), s.codec.Decode(b)) }
	var byteKeep extsort.KeepFunc
	if keep != nil {
		byteKeep = func(rec []byte, outIdx int64) bool { return keep(s.codec.Decode(rec), outIdx) }
	}

	n, err := extsort.Fixed(in, out, s.codec.Size, extsort.Config{
		RAMBytes: ramBytes,
		TmpDir:   tmpDir,
		Compare:  byteCmp,
		Keep:     byteKeep,
	})
	out.Close()
	if err != nil {
		os.Remove(outPath)
		return 0, fmt.Errorf("xstore: sort: %w", err)
	}

	if err := s.replaceFile(outPath); err != nil {
		return 0, err
	}
	s.count = n

	if s.mode == ModeFat {
		s.data = s.data[:0]
		if err := s.Iterate(func(_ units.Index, rec T) error {
			s.data = append(s.data, rec)
			return nil
		}); err != nil {
			return 0, err
		}
	}

	return n, nil
}

func (s *Store[T]) replaceFile(newPath string) error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("xstore: closing old file: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("xstore: removing old file: %w", err)
	}
	if err := os.Rename(newPath, s.path); err != nil {
		return fmt.Errorf("xstore: renaming sorted file: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("xstore: reopening sorted file: %w", err)
	}
	s.file = f
	for i := range s.slotIndex {
		s.slotIndex[i] = -1
		s.slotDirty[i] = false
	}
	return nil
}

// Free deletes the temp file. If keep is true the file is left on disk
// (for --parse-only/--process-only resumption); the Store must not be
// used afterwards either way.
func (s *Store[T]) Free(keep bool) error {
	if err := s.Flush(); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("xstore: closing: %w", err)
	}
	if !keep {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("xstore: removing temp file: %w", err)
		}
	}
	return nil
}

// Path returns the backing temp file's path, for --parse-only handoff.
func (s *Store[T]) Path() string { return s.path }
