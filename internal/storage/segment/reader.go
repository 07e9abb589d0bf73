package segment

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/strata-db/strata/internal/errors"
	"github.com/strata-db/strata/internal/model"
	"github.com/strata-db/strata/internal/util"
)

var decoder, _ = zstd.NewReader(nil)

// readSegmentFile reads, verifies and decompresses a segment file, returning
// the canonical JSON row encoding.
func readSegmentFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.SegmentNotFound(idFromPath(path))
		}
		return nil, errors.SegmentFailed("failed to read segment file", err)
	}

	compressed, checksum, _, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}

	if !util.VerifyChecksum32(compressed, checksum) {
		return nil, errors.ChecksumFailed(checksum, util.Checksum32(compressed))
	}

	encoded, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errors.CorruptedData("segment block failed to decompress", err)
	}
	return encoded, nil
}

// readSegmentMeta reads only the file header, recovering the segment
// metadata without decoding rows.
func readSegmentMeta(path string) (model.SegmentMeta, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.SegmentMeta{}, fmt.Errorf("failed to read segment file: %w", err)
	}

	_, _, rowCount, err := parseHeader(raw)
	if err != nil {
		return model.SegmentMeta{}, err
	}

	return model.SegmentMeta{
		ID:       model.SegmentID(idFromPath(path)),
		RowCount: rowCount,
		Bytes:    int64(len(raw)),
	}, nil
}

// parseHeader validates the frame and returns the compressed block,
// its checksum, and the row count.
func parseHeader(raw []byte) (compressed []byte, checksum uint32, rowCount uint32, err error) {
	if len(raw) < headerSize {
		return nil, 0, 0, errors.CorruptedData("segment file shorter than header", nil)
	}
	if string(raw[0:4]) != segmentMagic {
		return nil, 0, 0, errors.CorruptedData("segment file has bad magic", nil)
	}
	if raw[4] != segmentVersion {
		return nil, 0, 0, errors.CorruptedData(
			fmt.Sprintf("unsupported segment version %d", raw[4]), nil)
	}

	rowCount = binary.LittleEndian.Uint32(raw[5:9])
	size := binary.LittleEndian.Uint32(raw[9:13])
	checksum = binary.LittleEndian.Uint32(raw[13:17])

	if int(size) != len(raw)-headerSize {
		return nil, 0, 0, errors.CorruptedData("segment block size mismatch", nil)
	}
	return raw[headerSize:], checksum, rowCount, nil
}

// idFromPath recovers the segment id from its file name
func idFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), segmentFileSuffix)
}
