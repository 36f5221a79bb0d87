// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agent defines the capability contracts the pipeline invokes and
// their implementations: LLM-backed agents over the Claude and Gemini
// APIs, and deterministic rule-based agents that work offline.
//
// Each capability is a single-method interface so implementations can
// support any subset. Agents perform no observable side effects; all
// external I/O is encapsulated behind the returned artifact.
package agent

import (
	"context"
	"fmt"

	"github.com/pdiddy/finsum-engine/pkg/types"
)

// Extractor pulls topic-keyed findings with citations out of a document.
type Extractor interface {
	Extract(ctx context.Context, doc *types.Document) (*types.ExtractionResult, error)
}

// Summarizer turns an extraction into a version-0 draft summary.
type Summarizer interface {
	Summarize(ctx context.Context, extraction *types.ExtractionResult) (*types.DraftSummary, error)
}

// Critic judges a draft and lists its problems.
type Critic interface {
	Critique(ctx context.Context, draft *types.DraftSummary) (*types.Critique, error)
}

// Reviser produces an improved draft addressing a critique. The returned
// draft carries the next version number.
type Reviser interface {
	Revise(ctx context.Context, draft *types.DraftSummary, critique *types.Critique) (*types.DraftSummary, error)
}

// Suite bundles one implementation of each capability for the pipeline.
type Suite struct {
	Extractor  Extractor
	Summarizer Summarizer
	Critic     Critic
	Reviser    Reviser
}

// NewSuite builds the agent suite selected by cfg.Provider. The rules
// provider needs no credentials or network; claude and gemini build LLM
// agents over the respective API.
func NewSuite(ctx context.Context, cfg types.AgentConfig) (*Suite, error) {
	switch cfg.Provider {
	case types.ProviderRules, "":
		return RuleSuite(), nil
	case types.ProviderClaude:
		c := NewClaudeCompleter(cfg)
		return LLMSuite(c), nil
	case types.ProviderGemini:
		c, err := NewGeminiCompleter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("building Gemini completer: %w", err)
		}
		return LLMSuite(c), nil
	default:
		return nil, fmt.Errorf("unknown agent provider %q", cfg.Provider)
	}
}

// RuleSuite returns the deterministic rule-based agents.
func RuleSuite() *Suite {
	return &Suite{
		Extractor:  &RuleExtractor{},
		Summarizer: &RuleSummarizer{},
		Critic:     &RuleCritic{},
		Reviser:    &RuleReviser{},
	}
}

// LLMSuite returns LLM-backed agents sharing one completer.
func LLMSuite(c Completer) *Suite {
	return &Suite{
		Extractor:  &LLMExtractor{Completer: c},
		Summarizer: &LLMSummarizer{Completer: c},
		Critic:     &LLMCritic{Completer: c},
		Reviser:    &LLMReviser{Completer: c},
	}
}
