// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package allocation

import (
	"encoding/json"
	"time"
)

// TimeLayout is the layout of lifetime timestamps in metadata records.
const TimeLayout = "2006-01-02 15:04:05"

// DefaultKind is assumed for records without a type.
const DefaultKind = "ibp"

// Record is the metadata document describing one allocation (an extent of
// an exnode) as stored in the metadata store.
type Record struct {
	ID          string     `json:"id"`
	Type        string     `json:"type,omitempty"`
	Timestamp   int64      `json:"ts"`
	Size        int64      `json:"size"`
	Offset      int64      `json:"offset"`
	AllocLength *int64     `json:"alloc_length,omitempty"`
	AllocOffset *int64     `json:"alloc_offset,omitempty"`
	Parent      string     `json:"parent"`
	Lifetimes   []Lifetime `json:"lifetimes"`
	Mapping     Mapping    `json:"mapping"`
}

// Lifetime is a validity window, formatted with TimeLayout in UTC.
type Lifetime struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Mapping holds the capability tokens of an allocation.
type Mapping struct {
	Read   string `json:"read"`
	Write  string `json:"write"`
	Manage string `json:"manage"`
}

// Kind returns the allocation kind used to select a builder.
func (record *Record) Kind() string {
	if record.Type == "" {
		return DefaultKind
	}
	return record.Type
}

// ParseRecord decodes a JSON metadata record.
func ParseRecord(data []byte) (*Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, Error.Wrap(err)
	}
	return &record, nil
}

// Marshal encodes the record as JSON.
func (record *Record) Marshal() ([]byte, error) {
	data, err := json.Marshal(record)
	return data, Error.Wrap(err)
}

// FormatTime formats t in UTC with TimeLayout.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// ParseTime parses a TimeLayout timestamp as UTC.
func ParseTime(value string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, value, time.UTC)
	return t, Error.Wrap(err)
}

// Int64 returns a pointer to v, for optional record fields.
func Int64(v int64) *int64 { return &v }
