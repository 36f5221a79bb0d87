// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// AgentProvider selects the model backend for LLM-backed agents.
type AgentProvider string

const (
	ProviderClaude AgentProvider = "claude"
	ProviderGemini AgentProvider = "gemini"
	// ProviderRules selects the deterministic rule-based agents; no API
	// key required.
	ProviderRules AgentProvider = "rules"
)

// AgentConfig holds shared settings for stages that invoke an agent.
type AgentConfig struct {
	// Provider selects the agent backend: claude, gemini, or rules.
	Provider AgentProvider `json:"provider" yaml:"provider" validate:"omitempty,oneof=claude gemini rules"`

	// Model is the model identifier (e.g. "claude-sonnet-4-20250514").
	Model string `json:"model" yaml:"model"`

	// APIKey authenticates against the provider's API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Timeout bounds a single agent invocation (default 60s). A timed-out
	// call is treated as transiently unavailable and retried.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the number of retry attempts after a transient
	// failure (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"gte=0"`

	// MaxTokens caps the model response size (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" validate:"gte=0"`

	// Temperature is the sampling temperature; extraction works best low.
	Temperature float32 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
}

// RefineConfig holds the refinement loop's termination policy.
type RefineConfig struct {
	// MaxIterations bounds critique-revise cycles (default 3).
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" validate:"gte=0"`

	// SeverityThreshold is the lowest severity that blocks convergence
	// (default major): issues below it only delay convergence until the
	// stability window passes.
	SeverityThreshold Severity `json:"severity_threshold" yaml:"severity_threshold" validate:"omitempty,oneof=minor major critical"`

	// StableIterations is how many consecutive critiques must stay below
	// the threshold before the loop converges anyway (default 2).
	StableIterations int `json:"stable_iterations" yaml:"stable_iterations" validate:"gte=1"`

	// PenaltyPerIssue is the confidence deduction per unresolved issue
	// when the loop exhausts its budget (default 0.1).
	PenaltyPerIssue float64 `json:"penalty_per_issue" yaml:"penalty_per_issue" validate:"gte=0,lte=1"`

	// ConfidenceFloor is the minimum confidence an exhausted run reports
	// (default 0.2).
	ConfidenceFloor float64 `json:"confidence_floor" yaml:"confidence_floor" validate:"gte=0,lte=1"`
}

// LedgerConfig holds settings for the run ledger store.
type LedgerConfig struct {
	// Dir is the directory holding the ledger database (default "ledger").
	Dir string `json:"dir" yaml:"dir"`
}

// LoaderConfig holds settings for the corpus loader.
type LoaderConfig struct {
	// SegmentsPath is the CSV file of narrative segments.
	SegmentsPath string `json:"segments_path" yaml:"segments_path"`

	// TablesPath is the JSON-lines file of table tuples.
	TablesPath string `json:"tables_path" yaml:"tables_path"`

	// MaxDocuments limits how many corpus rows are loaded (0 = all).
	MaxDocuments int `json:"max_documents" yaml:"max_documents" validate:"gte=0"`

	// CacheSize is the loaded-document LRU capacity (default 32).
	CacheSize int `json:"cache_size" yaml:"cache_size" validate:"gte=0"`
}

// PipelineConfig groups all component configurations for one engine.
type PipelineConfig struct {
	Agent  AgentConfig  `json:"agent" yaml:"agent"`
	Refine RefineConfig `json:"refine" yaml:"refine"`
	Ledger LedgerConfig `json:"ledger" yaml:"ledger"`
	Loader LoaderConfig `json:"loader" yaml:"loader"`

	// Workers bounds how many documents run concurrently (default 4).
	Workers int `json:"workers" yaml:"workers" validate:"gte=0"`

	// OutputDir receives the final report insights as YAML (default "output").
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// Normalize fills zero-valued fields with their defaults.
func (c *PipelineConfig) Normalize() {
	if c.Agent.Provider == "" {
		c.Agent.Provider = ProviderRules
	}
	if c.Agent.Timeout <= 0 {
		c.Agent.Timeout = 60 * time.Second
	}
	if c.Agent.MaxRetries <= 0 {
		c.Agent.MaxRetries = 3
	}
	if c.Agent.MaxTokens <= 0 {
		c.Agent.MaxTokens = 4096
	}
	if c.Refine.MaxIterations <= 0 {
		c.Refine.MaxIterations = 3
	}
	if c.Refine.SeverityThreshold == "" {
		c.Refine.SeverityThreshold = SeverityMajor
	}
	if c.Refine.StableIterations <= 0 {
		c.Refine.StableIterations = 2
	}
	if c.Refine.PenaltyPerIssue <= 0 {
		c.Refine.PenaltyPerIssue = 0.1
	}
	if c.Refine.ConfidenceFloor <= 0 {
		c.Refine.ConfidenceFloor = 0.2
	}
	if c.Ledger.Dir == "" {
		c.Ledger.Dir = "ledger"
	}
	if c.Loader.CacheSize <= 0 {
		c.Loader.CacheSize = 32
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
}

// Validate checks structural constraints on the configuration.
func (c *PipelineConfig) Validate() error {
	return validator.New().Struct(c)
}
