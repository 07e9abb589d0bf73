package model

import (
	"github.com/strata-db/strata/internal/variant"
)

// SegmentID is the content-derived identifier of an immutable segment:
// the lowercase hex SHA-256 of the segment's canonical row encoding.
// Equal content yields equal ids, which is what makes deduplication and
// zero-copy sharing between version chains safe.
type SegmentID string

// Row is one table row: column name to semi-structured value
type Row map[string]variant.Value

// SegmentMeta describes a stored segment without its row payload
type SegmentMeta struct {
	ID       SegmentID `json:"id"`
	RowCount uint32    `json:"row_count"`
	Bytes    int64     `json:"bytes"`
}
