// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/finsum-engine/pkg/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(types.LedgerConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func succeededEntry(runID string, stage types.Stage, attempt int) types.LedgerEntry {
	return types.LedgerEntry{
		RunID:      runID,
		Stage:      stage,
		Attempt:    attempt,
		InputHash:  "in-" + runID,
		OutputHash: "out-" + runID,
		Status:     types.StatusSucceeded,
	}
}

func TestAppendAndEntries(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	failed := types.LedgerEntry{
		RunID:     "run-1",
		Stage:     types.StageExtract,
		Attempt:   1,
		InputHash: "in-run-1",
		Status:    types.StatusFailed,
	}
	require.NoError(t, store.Append(ctx, failed, nil))
	require.NoError(t, store.Append(ctx, succeededEntry("run-1", types.StageExtract, 2), []byte("topics: {}\n")))

	entries, err := store.Entries(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, types.StatusFailed, entries[0].Status)
	assert.Equal(t, 1, entries[0].Attempt)
	assert.Equal(t, types.StatusSucceeded, entries[1].Status)
	assert.Equal(t, 2, entries[1].Attempt)
	assert.False(t, entries[1].Timestamp.IsZero())
}

func TestAppendRejectsSecondSuccessForAttempt(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	entry := succeededEntry("run-2", types.StageSummarize, 1)
	require.NoError(t, store.Append(ctx, entry, []byte("sections: {}\n")))

	err := store.Append(ctx, entry, []byte("sections: {}\n"))
	require.ErrorIs(t, err, ErrDuplicateSucceeded)

	// The stream still holds exactly one entry.
	entries, err := store.Entries(ctx, "run-2")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLookupReturnsLatestSuccess(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, types.LedgerEntry{
		RunID: "run-3", Stage: types.StageExtract, Attempt: 1,
		InputHash: "hash-a", Status: types.StatusFailed,
	}, nil))
	require.NoError(t, store.Append(ctx, types.LedgerEntry{
		RunID: "run-3", Stage: types.StageExtract, Attempt: 2,
		InputHash: "hash-a", OutputHash: "out-a", Status: types.StatusSucceeded,
	}, []byte("payload-a")))

	entry, err := store.Lookup(ctx, "run-3", types.StageExtract, "hash-a")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "out-a", entry.OutputHash)
	assert.Equal(t, 2, entry.Attempt)

	// Different input hash, different run, different stage: no hit.
	miss, err := store.Lookup(ctx, "run-3", types.StageExtract, "hash-b")
	require.NoError(t, err)
	assert.Nil(t, miss)
	miss, err = store.Lookup(ctx, "run-other", types.StageExtract, "hash-a")
	require.NoError(t, err)
	assert.Nil(t, miss)
	miss, err = store.Lookup(ctx, "run-3", types.StageSummarize, "hash-a")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestPayloadRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	want := []byte("document_id: rpt-9\nsummary: cash improved\n")
	require.NoError(t, store.Append(ctx, types.LedgerEntry{
		RunID: "run-4", Stage: types.StageRefine, Attempt: 1,
		InputHash: "h-in", OutputHash: "h-out", Status: types.StatusSucceeded,
	}, want))

	got, err := store.Payload(ctx, "h-out")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	missing, err := store.Payload(ctx, "h-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNextAttemptIncrements(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	n, err := store.NextAttempt(ctx, "run-5", types.StageExtract)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Append(ctx, types.LedgerEntry{
		RunID: "run-5", Stage: types.StageExtract, Attempt: n,
		InputHash: "h", Status: types.StatusFailed,
	}, nil))

	n, err = store.NextAttempt(ctx, "run-5", types.StageExtract)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Attempts number per stage, not per run.
	n, err = store.NextAttempt(ctx, "run-5", types.StageSummarize)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpenIsReusable(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(types.LedgerConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), types.LedgerEntry{
		RunID: "run-6", Stage: types.StageExtract, Attempt: 1,
		InputHash: "h", OutputHash: "o", Status: types.StatusSucceeded,
		Timestamp: time.Now().UTC(),
	}, []byte("x")))
	require.NoError(t, store.Close())

	// Reopening the same directory sees the prior stream.
	reopened, err := Open(types.LedgerConfig{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Entries(context.Background(), "run-6")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
