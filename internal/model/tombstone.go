package model

import (
	"encoding/base64"
	"encoding/json"

	"github.com/RoaringBitmap/roaring/v2"
)

// TombstoneSet marks logically deleted rows as roaring bitmaps of
// segment-local row positions, keyed by segment id.
type TombstoneSet map[SegmentID]*roaring.Bitmap

// NewTombstoneSet returns an empty tombstone set
func NewTombstoneSet() TombstoneSet {
	return make(TombstoneSet)
}

// Add marks row position pos of segment seg as deleted
func (t TombstoneSet) Add(seg SegmentID, pos uint32) {
	bm, ok := t[seg]
	if !ok {
		bm = roaring.New()
		t[seg] = bm
	}
	bm.Add(pos)
}

// Contains reports whether row position pos of segment seg is deleted
func (t TombstoneSet) Contains(seg SegmentID, pos uint32) bool {
	bm, ok := t[seg]
	return ok && bm.Contains(pos)
}

// CountFor returns the number of deleted rows recorded for segment seg
func (t TombstoneSet) CountFor(seg SegmentID) uint64 {
	bm, ok := t[seg]
	if !ok {
		return 0
	}
	return bm.GetCardinality()
}

// Drop removes every mark recorded for segment seg
func (t TombstoneSet) Drop(seg SegmentID) {
	delete(t, seg)
}

// IsEmpty reports whether no rows are marked at all
func (t TombstoneSet) IsEmpty() bool {
	for _, bm := range t {
		if !bm.IsEmpty() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy; bitmaps are never shared between states
func (t TombstoneSet) Clone() TombstoneSet {
	out := make(TombstoneSet, len(t))
	for seg, bm := range t {
		out[seg] = bm.Clone()
	}
	return out
}

// Union merges other into a copy of t and returns it
func (t TombstoneSet) Union(other TombstoneSet) TombstoneSet {
	out := t.Clone()
	for seg, bm := range other {
		if existing, ok := out[seg]; ok {
			existing.Or(bm)
		} else {
			out[seg] = bm.Clone()
		}
	}
	return out
}

// MarshalJSON serializes each bitmap as base64 of its roaring binary form
func (t TombstoneSet) MarshalJSON() ([]byte, error) {
	raw := make(map[SegmentID]string, len(t))
	for seg, bm := range t {
		data, err := bm.MarshalBinary()
		if err != nil {
			return nil, err
		}
		raw[seg] = base64.StdEncoding.EncodeToString(data)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON restores bitmaps from their base64 roaring binary form
func (t *TombstoneSet) UnmarshalJSON(data []byte) error {
	var raw map[SegmentID]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(TombstoneSet, len(raw))
	for seg, encoded := range raw {
		buf, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return err
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(buf); err != nil {
			return err
		}
		out[seg] = bm
	}
	*t = out
	return nil
}
