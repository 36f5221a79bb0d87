// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model for the summarization
// pipeline: source documents, stage artifacts, ledger records, and
// configuration.
package types

import (
	"fmt"
	"sort"
)

// TextSegment is one narrative passage of a source document.
type TextSegment struct {
	// SegmentID is a stable identifier unique within the document.
	SegmentID string `json:"segment_id" yaml:"segment_id"`

	// Ordinal is the segment's position in the document's reading order.
	Ordinal int `json:"ordinal" yaml:"ordinal"`

	// Text is the raw narrative text.
	Text string `json:"text" yaml:"text"`
}

// TableSegment is one numeric table of a source document.
type TableSegment struct {
	// SegmentID is a stable identifier unique within the document.
	SegmentID string `json:"segment_id" yaml:"segment_id"`

	// Ordinal is the segment's position in the document's reading order.
	Ordinal int `json:"ordinal" yaml:"ordinal"`

	// Rows holds the table cells in row-major order. The first cell of a
	// row is conventionally its label (e.g. "Total current assets").
	Rows [][]string `json:"rows" yaml:"rows"`

	// SchemaHints carries optional column descriptions from the corpus
	// (e.g. "Year", "Revenue").
	SchemaHints []string `json:"schema_hints,omitempty" yaml:"schema_hints,omitempty"`
}

// Document is a normalized annual report: an ordered set of narrative and
// table segments. Documents are immutable once loaded; stages share them
// read-only.
type Document struct {
	// ID identifies the document across runs (e.g. the corpus row slug).
	ID string `json:"id" yaml:"id"`

	// Text lists the narrative segments in ordinal order.
	Text []TextSegment `json:"text" yaml:"text"`

	// Tables lists the table segments in ordinal order.
	Tables []TableSegment `json:"tables" yaml:"tables"`
}

// SegmentCount returns the total number of segments of either kind.
func (d *Document) SegmentCount() int {
	return len(d.Text) + len(d.Tables)
}

// Validate checks that the document is usable as pipeline input: it must
// have an ID and at least one segment, and segment IDs must be unique.
func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document has no ID")
	}
	if d.SegmentCount() == 0 {
		return fmt.Errorf("document %s has no segments", d.ID)
	}
	seen := make(map[string]bool, d.SegmentCount())
	for _, s := range d.Text {
		if s.SegmentID == "" {
			return fmt.Errorf("document %s: text segment at ordinal %d has no ID", d.ID, s.Ordinal)
		}
		if seen[s.SegmentID] {
			return fmt.Errorf("document %s: duplicate segment ID %s", d.ID, s.SegmentID)
		}
		seen[s.SegmentID] = true
	}
	for _, s := range d.Tables {
		if s.SegmentID == "" {
			return fmt.Errorf("document %s: table segment at ordinal %d has no ID", d.ID, s.Ordinal)
		}
		if seen[s.SegmentID] {
			return fmt.Errorf("document %s: duplicate segment ID %s", d.ID, s.SegmentID)
		}
		seen[s.SegmentID] = true
	}
	return nil
}

// SegmentIDs returns the set of all segment IDs in the document. Stage
// validation policies use it to resolve citations.
func (d *Document) SegmentIDs() map[string]bool {
	ids := make(map[string]bool, d.SegmentCount())
	for _, s := range d.Text {
		ids[s.SegmentID] = true
	}
	for _, s := range d.Tables {
		ids[s.SegmentID] = true
	}
	return ids
}

// OrderedSegmentIDs returns every segment ID sorted by ordinal, text and
// table segments interleaved.
func (d *Document) OrderedSegmentIDs() []string {
	type ord struct {
		id      string
		ordinal int
	}
	all := make([]ord, 0, d.SegmentCount())
	for _, s := range d.Text {
		all = append(all, ord{s.SegmentID, s.Ordinal})
	}
	for _, s := range d.Tables {
		all = append(all, ord{s.SegmentID, s.Ordinal})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ordinal < all[j].ordinal })
	ids := make([]string, len(all))
	for i, o := range all {
		ids[i] = o.id
	}
	return ids
}
