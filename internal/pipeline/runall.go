// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/finsum-engine/pkg/types"
)

// RunReport pairs one document with its run's outcome. Exactly one of
// Insight and Err is set.
type RunReport struct {
	DocumentID string
	RunID      string
	Insight    *types.ReportInsight
	Err        error
}

// RunAll processes a corpus with a bounded worker pool. Per-document
// failures are collected, not propagated: one malformed filing must not
// sink the batch. Reports come back ordered by document ID. The returned
// error is non-nil only when ctx is cancelled before all runs finish.
func (c *Controller) RunAll(ctx context.Context, docs []*types.Document) ([]RunReport, error) {
	workers := c.Config.Workers
	if workers <= 0 {
		workers = 4
	}

	var mu sync.Mutex
	reports := make([]RunReport, 0, len(docs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			runID := RunID(doc.ID)
			insight, err := c.Run(ctx, runID, doc)
			mu.Lock()
			reports = append(reports, RunReport{
				DocumentID: doc.ID,
				RunID:      runID,
				Insight:    insight,
				Err:        err,
			})
			mu.Unlock()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	err := g.Wait()

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].DocumentID < reports[j].DocumentID
	})
	return reports, err
}
