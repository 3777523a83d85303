package extsort

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"
)

func u32Compare(a, b []byte) int {
	va := binary.LittleEndian.Uint32(a)
	vb := binary.LittleEndian.Uint32(b)
	switch {
	case va < vb:
		return -1
	case va > vb:
		return 1
	default:
		return 0
	}
}

func encodeU32s(values ...uint32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

func decodeU32s(t *testing.T, data []byte) []uint32 {
	t.Helper()
	if len(data)%4 != 0 {
		t.Fatalf("output length %d not a multiple of 4", len(data))
	}
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}

func TestFixedSortSmallRAM(t *testing.T) {
	in := encodeU32s(5, 3, 9, 1, 4, 1, 2, 8, 0)
	var out bytes.Buffer

	cfg := Config{
		RAMBytes: 12, // 3 records per run, forcing multiple runs + merge
		TmpDir:   t.TempDir(),
		Compare:  u32Compare,
	}

	n, err := Fixed(bytes.NewReader(in), &out, 4, cfg)
	if err != nil {
		t.Fatalf("Fixed: %v", err)
	}
	if n != 9 {
		t.Fatalf("n = %d, want 9", n)
	}

	got := decodeU32s(t, out.Bytes())
	want := []uint32{0, 1, 1, 2, 3, 4, 5, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFixedSortDedupKeep(t *testing.T) {
	in := encodeU32s(1, 1, 2, 2, 2, 3)
	var out bytes.Buffer

	seen := map[uint32]bool{}
	cfg := Config{
		RAMBytes: 1 << 20, // everything fits in one run (single-run fast path)
		TmpDir:   t.TempDir(),
		Compare:  u32Compare,
		Keep: func(rec []byte, _ int64) bool {
			v := binary.LittleEndian.Uint32(rec)
			if seen[v] {
				return false
			}
			seen[v] = true
			return true
		},
	}

	n, err := Fixed(bytes.NewReader(in), &out, 4, cfg)
	if err != nil {
		t.Fatalf("Fixed: %v", err)
	}
	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}

	got := decodeU32s(t, out.Bytes())
	want := []uint32{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestVariableSort(t *testing.T) {
	var buf bytes.Buffer
	records := [][]byte{
		[]byte("charlie"),
		[]byte("alpha"),
		[]byte("bravo"),
	}
	for _, r := range records {
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(r)))
		buf.Write(lenBuf[:])
		buf.Write(r)
		pad := paddedVarSize(len(r)) - (2 + len(r))
		buf.Write(make([]byte, pad))
	}

	var out bytes.Buffer
	cfg := Config{
		RAMBytes: 1 << 20,
		TmpDir:   t.TempDir(),
		Compare:  func(a, b []byte) int { return bytes.Compare(a, b) },
	}

	n, err := Variable(bytes.NewReader(buf.Bytes()), &out, cfg)
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}

	want := []string{"alpha", "bravo", "charlie"}
	idx := 0
	br := bufio.NewReader(bytes.NewReader(out.Bytes()))
	for {
		rec, eof, err := readVariableRecord(br)
		if err != nil {
			t.Fatalf("readVariableRecord: %v", err)
		}
		if rec != nil {
			if string(rec) != want[idx] {
				t.Fatalf("got[%d] = %q, want %q", idx, rec, want[idx])
			}
			idx++
		}
		if eof {
			break
		}
	}
}
