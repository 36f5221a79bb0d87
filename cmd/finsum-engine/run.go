// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/finsum-engine/internal/agent"
	"github.com/pdiddy/finsum-engine/internal/document"
	"github.com/pdiddy/finsum-engine/internal/events"
	"github.com/pdiddy/finsum-engine/internal/ledger"
	"github.com/pdiddy/finsum-engine/internal/pipeline"
	"github.com/pdiddy/finsum-engine/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the extract-summarize-refine pipeline over a corpus",
	Long: `Run loads segmented annual reports (a CSV of narrative segments plus
an optional JSONL of table groups), pushes each document through the
three pipeline stages, and writes one insight YAML per document to the
output directory.

Run IDs derive from document IDs, so rerunning over the same corpus
resumes from the ledger instead of repeating completed stages.`,
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := pipelineConfig(cmd)
	if err != nil {
		return err
	}

	loader, err := document.NewLoader(cfg.Loader)
	if err != nil {
		return err
	}
	docs, err := loader.LoadAll()
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents loaded from %s", cfg.Loader.SegmentsPath)
	}
	fmt.Fprintf(os.Stderr, "Loaded %d document(s)\n", len(docs))

	ctx := context.Background()
	suite, err := agent.NewSuite(ctx, cfg.Agent)
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	controller := pipeline.New(suite, store, events.Default(), cfg)

	started := time.Now()
	reports, err := controller.RunAll(ctx, docs)
	if err != nil {
		return err
	}

	var failed int
	for _, r := range reports {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "FAIL  %-20s  %v\n", r.DocumentID, r.Err)
			continue
		}
		if err := writeInsight(cfg.OutputDir, r.Insight); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "OK    %-20s  confidence=%.2f  iterations=%d  run=%s\n",
			r.DocumentID, r.Insight.Confidence, r.Insight.RefinementIterations, r.RunID)
	}
	fmt.Fprintf(os.Stderr, "Processed %d document(s) in %s, %d failed\n",
		len(reports), time.Since(started).Round(time.Millisecond), failed)

	if failed > 0 {
		return fmt.Errorf("%d document(s) failed", failed)
	}
	return nil
}

// writeInsight stores one insight as YAML named after its document.
func writeInsight(dir string, insight *types.ReportInsight) error {
	data, err := yaml.Marshal(insight)
	if err != nil {
		return fmt.Errorf("marshaling insight for %s: %w", insight.DocumentID, err)
	}
	path := filepath.Join(dir, safeFileName(insight.DocumentID)+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing insight %s: %w", path, err)
	}
	return nil
}

func safeFileName(id string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}

// pipelineConfig builds the pipeline configuration from flags and
// loaded secrets.
func pipelineConfig(cmd *cobra.Command) (types.PipelineConfig, error) {
	flags := cmd.Flags()

	segments, _ := flags.GetString("segments")
	tables, _ := flags.GetString("tables")
	maxDocs, _ := flags.GetInt("max-documents")
	provider, _ := flags.GetString("provider")
	model, _ := flags.GetString("model")
	apiKey, _ := flags.GetString("api-key")
	outDir, _ := flags.GetString("out")
	ledgerDir, _ := flags.GetString("ledger-dir")
	workers, _ := flags.GetInt("workers")
	maxIterations, _ := flags.GetInt("max-iterations")
	maxRetries, _ := flags.GetInt("max-retries")
	threshold, _ := flags.GetString("severity-threshold")

	switch types.AgentProvider(provider) {
	case types.ProviderClaude:
		apiKey = secretDefault("anthropic-api-key", apiKey)
	case types.ProviderGemini:
		apiKey = secretDefault("gemini-api-key", apiKey)
	}

	cfg := types.PipelineConfig{
		Agent: types.AgentConfig{
			Provider:   types.AgentProvider(provider),
			Model:      model,
			APIKey:     apiKey,
			MaxRetries: maxRetries,
		},
		Refine: types.RefineConfig{
			MaxIterations:     maxIterations,
			SeverityThreshold: types.Severity(threshold),
		},
		Ledger: types.LedgerConfig{Dir: ledgerDir},
		Loader: types.LoaderConfig{
			SegmentsPath: segments,
			TablesPath:   tables,
			MaxDocuments: maxDocs,
		},
		Workers:   workers,
		OutputDir: outDir,
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return types.PipelineConfig{}, err
	}
	return cfg, nil
}

func init() {
	runCmd.Flags().String("segments", "", "CSV file of narrative segments (required)")
	runCmd.Flags().String("tables", "", "JSONL file of table groups, one line per document")
	runCmd.Flags().Int("max-documents", 0, "cap on documents loaded (0 = no cap)")
	runCmd.Flags().String("provider", "rules", "agent provider: rules, claude, gemini")
	runCmd.Flags().String("model", "", "model identifier for LLM providers")
	runCmd.Flags().String("api-key", "", "API key (overrides .secrets/)")
	runCmd.Flags().String("out", "insights", "output directory for insight YAML files")
	runCmd.Flags().String("ledger-dir", "ledger", "directory for the run ledger database")
	runCmd.Flags().Int("workers", 4, "concurrent document runs")
	runCmd.Flags().Int("max-iterations", 3, "refinement iteration budget")
	runCmd.Flags().Int("max-retries", 3, "max agent invocations per stage")
	runCmd.Flags().String("severity-threshold", "major", "severity that blocks convergence: minor, major, critical")
	_ = runCmd.MarkFlagRequired("segments")

	rootCmd.AddCommand(runCmd)
}
