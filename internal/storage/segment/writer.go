package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/strata-db/strata/internal/util"
)

// Segment file layout:
//
//	magic (4 bytes) | version (1 byte) | row count (4 bytes LE) |
//	compressed size (4 bytes LE) | checksum of compressed block (4 bytes LE) |
//	zstd-compressed canonical JSON rows
const (
	segmentMagic   = "SSEG"
	segmentVersion = byte(1)
	headerSize     = 4 + 1 + 4 + 4 + 4
)

var encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))

// writeSegmentFile compresses and frames the encoded rows, writing the file
// atomically via a temp file and rename. Returns the on-disk size.
func writeSegmentFile(path string, encoded []byte, rowCount uint32) (int64, error) {
	compressed := encoder.EncodeAll(encoded, nil)
	checksum := util.Checksum32(compressed)

	var buf bytes.Buffer
	buf.Grow(headerSize + len(compressed))
	buf.WriteString(segmentMagic)
	buf.WriteByte(segmentVersion)

	var header [12]byte
	binary.LittleEndian.PutUint32(header[0:4], rowCount)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(header[8:12], checksum)
	buf.Write(header[:])
	buf.Write(compressed)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return 0, fmt.Errorf("failed to write segment temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename segment file: %w", err)
	}

	return int64(buf.Len()), nil
}
