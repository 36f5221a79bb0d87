// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"strings"

	"github.com/pdiddy/finsum-engine/internal/agent"
	"github.com/pdiddy/finsum-engine/pkg/types"
)

// Stage validation policies. A policy violation is an agent contract
// violation: the artifact is structurally present but fails the stage's
// acceptance rules, and extract/summarize have no repair path for it.

// extractPolicy accepts an extraction with at least one topic whose
// citations all resolve to segments of the source document.
func extractPolicy(doc *types.Document) func(*types.ExtractionResult) error {
	segments := doc.SegmentIDs()
	return func(result *types.ExtractionResult) error {
		if result == nil || result.Empty() {
			return agent.Violation("extract", "extraction produced no topics", nil)
		}
		for topic, cites := range result.Topics {
			if strings.TrimSpace(topic) == "" {
				return agent.Violation("extract", "extraction contains an empty topic key", nil)
			}
			if len(cites) == 0 {
				return agent.Violation("extract", fmt.Sprintf("topic %q has no citations", topic), nil)
			}
			for _, c := range cites {
				if !segments[c.SegmentID] {
					return agent.Violation("extract",
						fmt.Sprintf("topic %q cites unknown segment %q", topic, c.SegmentID), nil)
				}
			}
		}
		return nil
	}
}

// summaryPolicy accepts a version-0 draft that covers every extracted
// topic, adds none of its own, and cites only real segments.
func summaryPolicy(doc *types.Document, extraction *types.ExtractionResult) func(*types.DraftSummary) error {
	segments := doc.SegmentIDs()
	return func(draft *types.DraftSummary) error {
		if draft == nil || len(draft.Sections) == 0 {
			return agent.Violation("summarize", "draft has no sections", nil)
		}
		if draft.Version != 0 {
			return agent.Violation("summarize",
				fmt.Sprintf("initial draft must be version 0, got %d", draft.Version), nil)
		}
		for _, topic := range extraction.TopicKeys() {
			if strings.TrimSpace(draft.Sections[topic]) == "" {
				return agent.Violation("summarize",
					fmt.Sprintf("draft does not cover extracted topic %q", topic), nil)
			}
		}
		for topic := range draft.Sections {
			if _, ok := extraction.Topics[topic]; !ok {
				return agent.Violation("summarize",
					fmt.Sprintf("draft invents topic %q absent from extraction", topic), nil)
			}
		}
		for _, id := range draft.Citations {
			if !segments[id] {
				return agent.Violation("summarize",
					fmt.Sprintf("draft cites unknown segment %q", id), nil)
			}
		}
		return nil
	}
}
