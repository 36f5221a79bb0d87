// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/finsum-engine/pkg/types"
)

const segmentsCSV = `id,text
rpt-a,"Revenue increased 12% over the prior year."
rpt-a,"Long-term debt was reduced by early repayment."
rpt-b,"Cash and cash equivalents grew to $50 million."
`

const tablesJSONL = `{"income": [[["Revenue", "900", "800"], ["Net earnings", "120", "95"]]], "balance": [[["Total current assets", "400", "380"]]]}
{"balance": [[["Cash and cash equivalents", "50", "30"]], [["Total liabilities", "210", "240"]]]}
`

func writeCorpus(t *testing.T, segments, tables string) types.LoaderConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := types.LoaderConfig{
		SegmentsPath: filepath.Join(dir, "segments.csv"),
	}
	require.NoError(t, os.WriteFile(cfg.SegmentsPath, []byte(segments), 0o644))
	if tables != "" {
		cfg.TablesPath = filepath.Join(dir, "tables.jsonl")
		require.NoError(t, os.WriteFile(cfg.TablesPath, []byte(tables), 0o644))
	}
	return cfg
}

func TestLoadAllGroupsSegmentsByDocument(t *testing.T) {
	loader, err := NewLoader(writeCorpus(t, segmentsCSV, tablesJSONL))
	require.NoError(t, err)

	docs, err := loader.LoadAll()
	require.NoError(t, err)
	require.Len(t, docs, 2)

	a := docs[0]
	assert.Equal(t, "rpt-a", a.ID)
	require.Len(t, a.Text, 2)
	assert.Equal(t, "rpt-a-txt-000", a.Text[0].SegmentID)
	assert.Equal(t, "rpt-a-txt-001", a.Text[1].SegmentID)
	// Table groups land in sorted group order after the text segments.
	require.Len(t, a.Tables, 2)
	assert.Equal(t, "rpt-a-tbl-balance-00", a.Tables[0].SegmentID)
	assert.Equal(t, "rpt-a-tbl-income-00", a.Tables[1].SegmentID)
	assert.Equal(t, []string{"balance"}, a.Tables[0].SchemaHints)
	assert.Equal(t, [][]string{{"Revenue", "900", "800"}, {"Net earnings", "120", "95"}}, a.Tables[1].Rows)

	b := docs[1]
	assert.Equal(t, "rpt-b", b.ID)
	require.Len(t, b.Tables, 2)
	assert.Equal(t, "rpt-b-tbl-balance-00", b.Tables[0].SegmentID)
	assert.Equal(t, "rpt-b-tbl-balance-01", b.Tables[1].SegmentID)

	// Ordinals run continuously across segment kinds.
	assert.Equal(t, []string{
		"rpt-a-txt-000", "rpt-a-txt-001", "rpt-a-tbl-balance-00", "rpt-a-tbl-income-00",
	}, a.OrderedSegmentIDs())
}

func TestLoadAllWithoutTables(t *testing.T) {
	loader, err := NewLoader(writeCorpus(t, segmentsCSV, ""))
	require.NoError(t, err)

	docs, err := loader.LoadAll()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Empty(t, docs[0].Tables)
}

func TestLoadAllHonorsMaxDocuments(t *testing.T) {
	cfg := writeCorpus(t, segmentsCSV, "")
	cfg.MaxDocuments = 1
	loader, err := NewLoader(cfg)
	require.NoError(t, err)

	docs, err := loader.LoadAll()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "rpt-a", docs[0].ID)
}

func TestLoadAllSkipsBlankRows(t *testing.T) {
	csv := "id,text\nrpt-a,\"Revenue held flat.\"\n,\"orphan row\"\nrpt-a,\n"
	loader, err := NewLoader(writeCorpus(t, csv, ""))
	require.NoError(t, err)

	docs, err := loader.LoadAll()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Len(t, docs[0].Text, 1)
}

func TestLoadAllAcceptsAlternateHeaderNames(t *testing.T) {
	csv := "document_id,input\nrpt-z,\"Net sales declined.\"\n"
	loader, err := NewLoader(writeCorpus(t, csv, ""))
	require.NoError(t, err)

	docs, err := loader.LoadAll()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "rpt-z", docs[0].ID)
}

func TestLoadAllRejectsUnknownHeader(t *testing.T) {
	loader, err := NewLoader(writeCorpus(t, "foo,bar\n1,2\n", ""))
	require.NoError(t, err)

	_, err = loader.LoadAll()
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, err.Error(), "id/text columns")
}

func TestLoadAllRejectsMalformedTableLine(t *testing.T) {
	loader, err := NewLoader(writeCorpus(t, segmentsCSV, "not json\n"))
	require.NoError(t, err)

	_, err = loader.LoadAll()
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "rpt-a", loadErr.Ref)
}

func TestLoadByIDUsesCache(t *testing.T) {
	loader, err := NewLoader(writeCorpus(t, segmentsCSV, tablesJSONL))
	require.NoError(t, err)

	doc, err := loader.Load("rpt-b")
	require.NoError(t, err)
	assert.Equal(t, "rpt-b", doc.ID)

	// A second load of the same ID is served from cache and returns the
	// identical instance.
	again, err := loader.Load("rpt-b")
	require.NoError(t, err)
	assert.Same(t, doc, again)

	_, err = loader.Load("rpt-missing")
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "rpt-missing", loadErr.Ref)
}
