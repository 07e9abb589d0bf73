package model

import (
	"time"
)

// TableID identifies a table independent of its name; names can be reused
// after a purge, ids cannot.
type TableID uint64

// StateID is a catalog-wide monotonic logical clock. State ids strictly
// increase along every version chain.
type StateID uint64

// OpKind is the operation that produced a table state
type OpKind string

const (
	OpInsert OpKind = "INSERT"
	OpUpdate OpKind = "UPDATE"
	OpDelete OpKind = "DELETE"
	OpDDL    OpKind = "DDL"
	OpClone  OpKind = "CLONE"
)

// TableState is one immutable version of a table's content. A state is
// created by a write, clone, or restore and never edited afterwards.
//
// SegmentSet lists the segments visible through this state. Tombstones is
// the deletion delta relative to the parent state; Deleted is the cumulative
// view (parent's Deleted union Tombstones) so a state can be read without
// walking its ancestry. A clone's initial state has an empty delta but
// carries the source's cumulative view.
type TableState struct {
	StateID       StateID      `json:"state_id"`
	ParentStateID StateID      `json:"parent_state_id"` // 0 = chain root
	SegmentSet    []SegmentID  `json:"segment_set"`
	Tombstones    TombstoneSet `json:"tombstones,omitempty"`
	Deleted       TombstoneSet `json:"deleted,omitempty"`
	OpKind        OpKind       `json:"op_kind"`
	CreatedAt     time.Time    `json:"created_at"`
	StatementRef  string       `json:"statement_ref"`
}

// HasSegment reports whether id is part of the state's segment set
func (s *TableState) HasSegment(id SegmentID) bool {
	for _, sid := range s.SegmentSet {
		if sid == id {
			return true
		}
	}
	return false
}

// TableEntry is the catalog row for a table
type TableEntry struct {
	TableID         TableID       `json:"table_id"`
	Name            string        `json:"name"`
	SchemaID        uint64        `json:"schema_id"`
	HeadStateID     StateID       `json:"head_state_id"` // 0 = no state yet
	RetentionWindow time.Duration `json:"retention_window"`
	DroppedAt       *time.Time    `json:"dropped_at,omitempty"`
}

// IsDropped reports whether the entry is currently dropped
func (e *TableEntry) IsDropped() bool {
	return e.DroppedAt != nil
}

// CloneRecord records the lineage of a zero-copy clone
type CloneRecord struct {
	NewTableID    TableID   `json:"new_table_id"`
	SourceTableID TableID   `json:"source_table_id"`
	SourceStateID StateID   `json:"source_state_id"`
	CreatedAt     time.Time `json:"created_at"`
}
