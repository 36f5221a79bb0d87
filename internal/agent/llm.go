// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/finsum-engine/pkg/types"
)

// validate checks LLM response structs against their validator tags.
var validate = validator.New()

// extractResponse is the JSON schema the extract prompt requests.
type extractResponse struct {
	Topics map[string][]struct {
		SegmentID string `json:"segment_id" validate:"required"`
		Excerpt   string `json:"excerpt" validate:"required"`
	} `json:"topics" validate:"required"`
}

// summaryResponse is the JSON schema the summarize and revise prompts request.
type summaryResponse struct {
	Sections  map[string]string `json:"sections" validate:"required"`
	Citations []string          `json:"citations"`
}

// critiqueResponse is the JSON schema the critique prompt requests.
type critiqueResponse struct {
	Issues []types.Issue `json:"issues" validate:"dive"`
}

// decodeResponse parses and schema-checks a model's JSON response into
// out. Malformed or schema-violating output is a contract violation, not
// a transient failure: retrying an identical prompt is the refinement
// loop's job, not the transport's.
func decodeResponse(capability, raw string, out any) error {
	if err := json.Unmarshal([]byte(extractJSON(raw)), out); err != nil {
		return Violation(capability, "response is not valid JSON", err)
	}
	if err := validate.Struct(out); err != nil {
		return Violation(capability, "response fails schema validation", err)
	}
	return nil
}

// LLMExtractor extracts topic findings from a document via a completer.
type LLMExtractor struct {
	Completer Completer
}

func (a *LLMExtractor) Extract(ctx context.Context, doc *types.Document) (*types.ExtractionResult, error) {
	user := fmt.Sprintf(extractPrompt, renderDocument(doc))
	raw, err := a.Completer.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, err
	}

	var resp extractResponse
	if err := decodeResponse("extract", raw, &resp); err != nil {
		return nil, err
	}

	result := &types.ExtractionResult{
		DocumentID: doc.ID,
		Topics:     make(map[string][]types.Citation, len(resp.Topics)),
	}
	for topic, cites := range resp.Topics {
		for _, c := range cites {
			result.Topics[topic] = append(result.Topics[topic], types.Citation{
				SegmentID: c.SegmentID,
				Excerpt:   c.Excerpt,
			})
		}
	}
	return result, nil
}

// LLMSummarizer drafts a version-0 summary from an extraction.
type LLMSummarizer struct {
	Completer Completer
}

func (a *LLMSummarizer) Summarize(ctx context.Context, extraction *types.ExtractionResult) (*types.DraftSummary, error) {
	user := fmt.Sprintf(summarizePrompt, renderExtraction(extraction))
	raw, err := a.Completer.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, err
	}

	var resp summaryResponse
	if err := decodeResponse("summarize", raw, &resp); err != nil {
		return nil, err
	}
	return &types.DraftSummary{
		DocumentID: extraction.DocumentID,
		Sections:   resp.Sections,
		Citations:  sortedUnique(resp.Citations),
		Version:    0,
	}, nil
}

// LLMCritic judges a draft summary.
type LLMCritic struct {
	Completer Completer
}

func (a *LLMCritic) Critique(ctx context.Context, draft *types.DraftSummary) (*types.Critique, error) {
	user := fmt.Sprintf(critiquePrompt, draft.Version, renderDraft(draft))
	raw, err := a.Completer.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, err
	}

	var resp critiqueResponse
	if err := decodeResponse("critique", raw, &resp); err != nil {
		return nil, err
	}
	return &types.Critique{
		TargetVersion: draft.Version,
		Issues:        resp.Issues,
	}, nil
}

// LLMReviser produces the next draft version addressing a critique.
type LLMReviser struct {
	Completer Completer
}

func (a *LLMReviser) Revise(ctx context.Context, draft *types.DraftSummary, critique *types.Critique) (*types.DraftSummary, error) {
	issues, err := yaml.Marshal(critique.Issues)
	if err != nil {
		return nil, fmt.Errorf("marshaling critique issues: %w", err)
	}
	user := fmt.Sprintf(revisePrompt, draft.Version, renderDraft(draft), string(issues))
	raw, err := a.Completer.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, err
	}

	var resp summaryResponse
	if err := decodeResponse("revise", raw, &resp); err != nil {
		return nil, err
	}
	revised := &types.DraftSummary{
		DocumentID: draft.DocumentID,
		Sections:   resp.Sections,
		Citations:  sortedUnique(resp.Citations),
		Version:    draft.Version + 1,
	}
	if len(revised.Citations) == 0 {
		revised.Citations = append([]string(nil), draft.Citations...)
	}
	return revised, nil
}

// renderDocument lays the document's segments out for the extract prompt,
// text and tables interleaved in ordinal order with their segment IDs.
func renderDocument(doc *types.Document) string {
	var b strings.Builder
	for _, s := range doc.Text {
		fmt.Fprintf(&b, "[%s] %s\n", s.SegmentID, s.Text)
	}
	for _, s := range doc.Tables {
		fmt.Fprintf(&b, "[%s] table", s.SegmentID)
		if len(s.SchemaHints) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(s.SchemaHints, ", "))
		}
		b.WriteString(":\n")
		for _, row := range s.Rows {
			fmt.Fprintf(&b, "  %s\n", strings.Join(row, " | "))
		}
	}
	return b.String()
}

// renderExtraction lays extracted findings out for the summarize prompt.
func renderExtraction(extraction *types.ExtractionResult) string {
	var b strings.Builder
	for _, topic := range extraction.TopicKeys() {
		fmt.Fprintf(&b, "%s:\n", topic)
		for _, c := range extraction.Topics[topic] {
			fmt.Fprintf(&b, "  [%s] %s\n", c.SegmentID, c.Excerpt)
		}
	}
	return b.String()
}

// renderDraft lays a draft summary out for the critique and revise prompts.
func renderDraft(draft *types.DraftSummary) string {
	var b strings.Builder
	for _, topic := range draft.TopicKeys() {
		fmt.Fprintf(&b, "%s: %s\n", topic, draft.Sections[topic])
	}
	fmt.Fprintf(&b, "citations: %s\n", strings.Join(draft.Citations, ", "))
	return b.String()
}

// sortedUnique returns the sorted distinct elements of ids.
func sortedUnique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
