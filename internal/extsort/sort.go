// Package extsort implements the external-memory merge-sort used by the
// graph builder to sort node, segment, way, and turn-relation records
// that do not fit in the configured RAM budget (spec.md section 4.B).
//
// Two entry points mirror the C original's filesort_fixed/filesort_vary:
// Fixed sorts constant-size records, Variable sorts length-prefixed
// records. Both fill a RAM buffer up to a byte budget, heapsort it in
// place, and flush the run to a numbered temp file; a final k-way merge
// reassembles the runs in sorted order, invoking an optional Keep hook
// once per emitted record in final sorted order.
package extsort

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

// CompareFunc orders two records; it need not be a stable comparator.
type CompareFunc func(a, b []byte) int

// KeepFunc is invoked once per record in final sorted order, with the
// 0-based position it will occupy in the output. Returning false drops
// the record from the output — used for post-sort deduplication — and
// for every kept record it doubles as a side channel to build a sorted
// position to source-id index.
type KeepFunc func(record []byte, outputIndex int64) bool

// Config controls one sort pass.
type Config struct {
	// RAMBytes bounds the size of each in-memory run.
	RAMBytes int64
	// TmpDir is the directory runs are spilled to; it must already exist.
	TmpDir string
	Compare CompareFunc
	Keep    KeepFunc
}

func (c *Config) tmpFile(prefix string, n int) (*os.File, error) {
	return os.CreateTemp(c.TmpDir, fmt.Sprintf("%s-%04d-*.tmp", prefix, n))
}

// Fixed sorts fixed-size records read from in, writing the sorted
// (and Keep-filtered) result to out. It returns the number of records
// written to out.
func Fixed(in io.Reader, out io.Writer, itemSize int, cfg Config) (int64, error) {
	r := bufio.NewReaderSize(in, 1<<20)
	perRun := int(cfg.RAMBytes) / itemSize
	if perRun < 1 {
		perRun = 1
	}

	var runFiles []string
	defer func() {
		for _, f := range runFiles {
			os.Remove(f)
		}
	}()

	var singleRun [][]byte

	buf := make([]byte, itemSize)
	for {
		records, eof, err := readFixedRun(r, buf, itemSize, perRun)
		if err != nil {
			return 0, err
		}
		if len(records) == 0 {
			break
		}

		sortRecords(records, cfg.Compare)

		if eof && len(runFiles) == 0 {
			// Fast path: everything fit in one run; skip temp files
			// entirely and emit directly from RAM.
			singleRun = records
			break
		}

		f, err := cfg.tmpFile("fixed", len(runFiles))
		if err != nil {
			return 0, fmt.Errorf("extsort: creating run file: %w", err)
		}
		if err := writeFixedRun(f, records); err != nil {
			f.Close()
			return 0, fmt.Errorf("extsort: writing run file: %w", err)
		}
		name := f.Name()
		if err := f.Close(); err != nil {
			return 0, fmt.Errorf("extsort: closing run file: %w", err)
		}
		runFiles = append(runFiles, name)

		if eof {
			break
		}
	}

	if singleRun != nil {
		return emitRecords(singleRun, out, cfg.Keep), nil
	}
	if len(runFiles) == 0 {
		return 0, nil
	}
	if len(runFiles) == 1 {
		// Fast path: exactly one run was written; re-read it and emit
		// straight through without a merge pass.
		records, err := readAllFixed(runFiles[0], itemSize)
		if err != nil {
			return 0, err
		}
		return emitRecords(records, out, cfg.Keep), nil
	}

	return mergeFixedRuns(runFiles, itemSize, out, cfg)
}

func readFixedRun(r *bufio.Reader, buf []byte, itemSize, perRun int) (records [][]byte, eof bool, err error) {
	for len(records) < perRun {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			return records, true, nil
		}
		if err == io.ErrUnexpectedEOF {
			return nil, false, fmt.Errorf("extsort: truncated fixed record")
		}
		if err != nil {
			return nil, false, fmt.Errorf("extsort: reading record: %w", err)
		}
		rec := make([]byte, itemSize)
		copy(rec, buf)
		records = append(records, rec)
	}
	// Peek to see if the stream is already exhausted, so a perfectly
	// RAM-sized input still takes the single-run fast path.
	if _, err := r.Peek(1); err == io.EOF {
		return records, true, nil
	}
	return records, false, nil
}

func writeFixedRun(w io.Writer, records [][]byte) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := bw.Write(rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func readAllFixed(path string, itemSize int) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("extsort: reopening run: %w", err)
	}
	defer f.Close()

	var records [][]byte
	r := bufio.NewReader(f)
	buf := make([]byte, itemSize)
	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("extsort: rereading run: %w", err)
		}
		rec := make([]byte, itemSize)
		copy(rec, buf)
		records = append(records, rec)
	}
	return records, nil
}

func sortRecords(records [][]byte, cmp CompareFunc) {
	heapSort(records, cmp)
}

func emitRecords(records [][]byte, out io.Writer, keep KeepFunc) int64 {
	bw := bufio.NewWriter(out)
	defer bw.Flush()

	var n int64
	for _, rec := range records {
		if keep != nil && !keep(rec, n) {
			continue
		}
		bw.Write(rec)
		n++
	}
	return n
}

// heapEntry is one run's current head record during the k-way merge.
type heapEntry struct {
	record []byte
	run    int
}

type mergeHeap struct {
	entries []heapEntry
	cmp     CompareFunc
}

func (h *mergeHeap) Len() int            { return len(h.entries) }
func (h *mergeHeap) Less(i, j int) bool  { return h.cmp(h.entries[i].record, h.entries[j].record) < 0 }
func (h *mergeHeap) Swap(i, j int)       { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }
func (h *mergeHeap) Push(x interface{})  { h.entries = append(h.entries, x.(heapEntry)) }
func (h *mergeHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	item := old[n-1]
	h.entries = old[:n-1]
	return item
}

func mergeFixedRuns(runFiles []string, itemSize int, out io.Writer, cfg Config) (int64, error) {
	readers := make([]*bufio.Reader, len(runFiles))
	files := make([]*os.File, len(runFiles))
	for i, path := range runFiles {
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("extsort: opening run for merge: %w", err)
		}
		files[i] = f
		readers[i] = bufio.NewReaderSize(f, 1<<16)
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	h := &mergeHeap{cmp: cfg.Compare}
	heap.Init(h)

	buf := make([]byte, itemSize)
	for i, r := range readers {
		rec, ok, err := nextFixed(r, buf, itemSize)
		if err != nil {
			return 0, err
		}
		if ok {
			heap.Push(h, heapEntry{record: rec, run: i})
		}
	}

	bw := bufio.NewWriter(out)
	defer bw.Flush()

	var n int64
	for h.Len() > 0 {
		top := heap.Pop(h).(heapEntry)

		if cfg.Keep == nil || cfg.Keep(top.record, n) {
			if _, err := bw.Write(top.record); err != nil {
				return 0, fmt.Errorf("extsort: writing merged record: %w", err)
			}
			n++
		}

		rec, ok, err := nextFixed(readers[top.run], buf, itemSize)
		if err != nil {
			return 0, err
		}
		if ok {
			heap.Push(h, heapEntry{record: rec, run: top.run})
		}
	}

	return n, nil
}

func nextFixed(r *bufio.Reader, buf []byte, itemSize int) ([]byte, bool, error) {
	_, err := io.ReadFull(r, buf)
	if err == io.EOF {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("extsort: reading merge record: %w", err)
	}
	rec := make([]byte, itemSize)
	copy(rec, buf)
	return rec, true, nil
}

// heapSort performs an in-place ascending sort of records using a
// classic binary-heap heapsort: build a max-heap, then repeatedly swap
// the root (the current maximum) with the last unsorted slot and sift
// down, leaving the slice fully ascending once the heap is empty.
func heapSort(records [][]byte, cmp CompareFunc) {
	n := len(records)
	if n < 2 {
		return
	}

	less := func(i, j int) bool { return cmp(records[i], records[j]) < 0 }

	for i := n/2 - 1; i >= 0; i-- {
		siftDown(records, i, n, less)
	}
	for end := n - 1; end > 0; end-- {
		records[0], records[end] = records[end], records[0]
		siftDown(records, 0, end, less)
	}
}

func siftDown(records [][]byte, root, n int, less func(i, j int) bool) {
	for {
		left := 2*root + 1
		if left >= n {
			return
		}
		largest := left
		if right := left + 1; right < n && less(left, right) {
			largest = right
		}
		if !less(root, largest) {
			return
		}
		records[root], records[largest] = records[largest], records[root]
		root = largest
	}
}

// ensure sort.Interface compile-time compatibility is not accidentally
// depended upon elsewhere; extsort always uses its own comparator shape.
var _ sort.Interface = (*mergeHeap)(nil)

const varAlign = 8 // sizeof(void*) on the platforms this format targets

// Variable sorts length-prefixed variable-size records read from in.
// Each record on the wire is a little-endian uint16 length followed by
// that many bytes of payload, padded to varAlign; the sorted records are
// written to out in the same framing.
func Variable(in io.Reader, out io.Writer, cfg Config) (int64, error) {
	r := bufio.NewReaderSize(in, 1<<20)

	var runFiles []string
	defer func() {
		for _, f := range runFiles {
			os.Remove(f)
		}
	}()

	var singleRun [][]byte
	var run [][]byte
	var runBytes int64

	flushRun := func(eof bool) error {
		if len(run) == 0 {
			return nil
		}
		sortRecords(run, cfg.Compare)

		if eof && len(runFiles) == 0 {
			singleRun = run
			run = nil
			return nil
		}

		f, err := cfg.tmpFile("vary", len(runFiles))
		if err != nil {
			return fmt.Errorf("extsort: creating run file: %w", err)
		}
		if err := writeVariableRun(f, run); err != nil {
			f.Close()
			return fmt.Errorf("extsort: writing run file: %w", err)
		}
		name := f.Name()
		if err := f.Close(); err != nil {
			return err
		}
		runFiles = append(runFiles, name)
		run = nil
		runBytes = 0
		return nil
	}

	for {
		rec, eof, err := readVariableRecord(r)
		if err != nil {
			return 0, err
		}
		if rec != nil {
			run = append(run, rec)
			runBytes += int64(paddedVarSize(len(rec)))
		}
		if eof {
			if err := flushRun(true); err != nil {
				return 0, err
			}
			break
		}
		if runBytes >= cfg.RAMBytes {
			if err := flushRun(false); err != nil {
				return 0, err
			}
		}
	}

	emit := func(records [][]byte) (int64, error) {
		var kept [][]byte
		for _, rec := range records {
			if cfg.Keep == nil || cfg.Keep(rec, int64(len(kept))) {
				kept = append(kept, rec)
			}
		}
		return int64(len(kept)), writeVariableRun(out, kept)
	}

	if singleRun != nil {
		return emit(singleRun)
	}
	if len(runFiles) == 0 {
		return 0, nil
	}
	if len(runFiles) == 1 {
		records, err := readAllVariable(runFiles[0])
		if err != nil {
			return 0, err
		}
		return emit(records)
	}

	return mergeVariableRuns(runFiles, out, cfg)
}

func paddedVarSize(payloadLen int) int {
	total := 2 + payloadLen
	if rem := total % varAlign; rem != 0 {
		total += varAlign - rem
	}
	return total
}

func readVariableRecord(r *bufio.Reader) (record []byte, eof bool, err error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("extsort: reading record length: %w", err)
	}
	length := binary.LittleEndian.Uint16(lenBuf[:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, false, fmt.Errorf("extsort: reading record payload: %w", err)
	}
	pad := paddedVarSize(int(length)) - (2 + int(length))
	if pad > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return nil, false, fmt.Errorf("extsort: reading record padding: %w", err)
		}
	}
	if _, peekErr := r.Peek(1); peekErr == io.EOF {
		return payload, true, nil
	}
	return payload, false, nil
}

func writeVariableRun(w io.Writer, records [][]byte) error {
	bw := bufio.NewWriter(w)
	var lenBuf [2]byte
	for _, rec := range records {
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(rec)))
		if _, err := bw.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := bw.Write(rec); err != nil {
			return err
		}
		if pad := paddedVarSize(len(rec)) - (2 + len(rec)); pad > 0 {
			if _, err := bw.Write(make([]byte, pad)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func readAllVariable(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("extsort: reopening run: %w", err)
	}
	defer f.Close()

	var records [][]byte
	r := bufio.NewReader(f)
	for {
		rec, eof, err := readVariableRecord(r)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
		if eof {
			break
		}
	}
	return records, nil
}

func mergeVariableRuns(runFiles []string, out io.Writer, cfg Config) (int64, error) {
	readers := make([]*bufio.Reader, len(runFiles))
	files := make([]*os.File, len(runFiles))
	for i, path := range runFiles {
		f, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("extsort: opening run for merge: %w", err)
		}
		files[i] = f
		readers[i] = bufio.NewReaderSize(f, 1<<16)
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	h := &mergeHeap{cmp: cfg.Compare}
	heap.Init(h)

	for i, r := range readers {
		rec, _, err := readVariableRecord(r)
		if err != nil {
			return 0, err
		}
		if rec != nil {
			heap.Push(h, heapEntry{record: rec, run: i})
		}
	}

	bw := bufio.NewWriter(out)
	defer bw.Flush()

	var n int64
	for h.Len() > 0 {
		top := heap.Pop(h).(heapEntry)

		if cfg.Keep == nil || cfg.Keep(top.record, n) {
			if err := writeVariableRun(bw, [][]byte{top.record}); err != nil {
				return 0, err
			}
			n++
		}

		rec, _, err := readVariableRecord(readers[top.run])
		if err != nil {
			return 0, err
		}
		if rec != nil {
			heap.Push(h, heapEntry{record: rec, run: top.run})
		}
	}

	return n, nil
}
