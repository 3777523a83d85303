package build

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// wayRecord is one way's ordered member-node id list plus the
// direction flags needed to turn it into SegmentX records once node
// ids can be resolved to NodesX indices.
type wayRecord struct {
	wayID   uint64
	nodeIDs []uint64
	oneway  bool
	reverse bool
}

// wayNodeBlob is an append-only, then sequentially-replayed, temp file
// of wayRecords -- the bridge between parsing (which only knows OSM
// ids) and segment resolution (which needs NodesX indices).
type wayNodeBlob struct {
	file *os.File
	path string
}

func newWayNodeBlob(dir string) (*wayNodeBlob, error) {
	f, err := os.CreateTemp(dir, "waynodes-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("build: creating way-node blob: %w", err)
	}
	return &wayNodeBlob{file: f, path: f.Name()}, nil
}

func (wb *wayNodeBlob) append(rec wayRecord) error {
	var flags byte
	if rec.oneway {
		flags |= 1
	}
	if rec.reverse {
		flags |= 2
	}

	header := make([]byte, 8+4+1)
	binary.LittleEndian.PutUint64(header[0:8], rec.wayID)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(rec.nodeIDs)))
	header[12] = flags
	if _, err := wb.file.Write(header); err != nil {
		return fmt.Errorf("build: writing way-node record: %w", err)
	}

	buf := make([]byte, 8*len(rec.nodeIDs))
	for i, id := range rec.nodeIDs {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], id)
	}
	if _, err := wb.file.Write(buf); err != nil {
		return fmt.Errorf("build: writing way-node ids: %w", err)
	}
	return nil
}

// iterate replays every wayRecord in append order.
func (wb *wayNodeBlob) iterate(fn func(wayRecord) error) error {
	if _, err := wb.file.Seek(0, 0); err != nil {
		return fmt.Errorf("build: seeking way-node blob: %w", err)
	}
	br := bufio.NewReaderSize(wb.file, 1<<20)

	header := make([]byte, 13)
	for {
		_, err := io.ReadFull(br, header)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("build: reading way-node record: %w", err)
		}
		wayID := binary.LittleEndian.Uint64(header[0:8])
		n := binary.LittleEndian.Uint32(header[8:12])
		flags := header[12]

		buf := make([]byte, 8*n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return fmt.Errorf("build: reading way-node ids: %w", err)
		}
		ids := make([]uint64, n)
		for i := range ids {
			ids[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
		}

		rec := wayRecord{
			wayID:   wayID,
			nodeIDs: ids,
			oneway:  flags&1 != 0,
			reverse: flags&2 != 0,
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func (wb *wayNodeBlob) close(keep bool) error {
	if err := wb.file.Close(); err != nil {
		return fmt.Errorf("build: closing way-node blob: %w", err)
	}
	if !keep {
		if err := os.Remove(wb.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("build: removing way-node blob: %w", err)
		}
	}
	return nil
}
