// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package document loads the FINDSum-style source corpus into normalized
// Documents: a CSV file of narrative segments paired with a JSON-lines
// file of table tuples. Loaded documents are immutable and cached.
package document

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pdiddy/finsum-engine/pkg/types"
)

// LoadError reports a failure to produce a usable Document. It aborts a
// run before any stage executes.
type LoadError struct {
	// Ref identifies the document or corpus source that failed.
	Ref string

	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading document %s: %v", e.Ref, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader reads the corpus files and caches loaded documents.
type Loader struct {
	cfg   types.LoaderConfig
	cache *lru.Cache[string, *types.Document]
}

// NewLoader builds a loader for the configured corpus paths.
func NewLoader(cfg types.LoaderConfig) (*Loader, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 32
	}
	cache, err := lru.New[string, *types.Document](size)
	if err != nil {
		return nil, fmt.Errorf("creating document cache: %w", err)
	}
	return &Loader{cfg: cfg, cache: cache}, nil
}

// Load returns one document by ID, reading the corpus on a cache miss.
func (l *Loader) Load(ref string) (*types.Document, error) {
	if doc, ok := l.cache.Get(ref); ok {
		return doc, nil
	}
	docs, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc.ID == ref {
			return doc, nil
		}
	}
	return nil, &LoadError{Ref: ref, Err: fmt.Errorf("not found in corpus")}
}

// LoadAll reads every document from the corpus, up to the configured
// limit. The narrative CSV must carry "id" and "text" columns; rows
// sharing an id become consecutive text segments of one document. The
// tables file holds one JSON object per document in CSV id order, mapping
// a table-group name to its tables, each a list of rows of cell strings.
func (l *Loader) LoadAll() ([]*types.Document, error) {
	docs, order, err := l.readSegments()
	if err != nil {
		return nil, err
	}

	if l.cfg.TablesPath != "" {
		if err := l.readTables(docs, order); err != nil {
			return nil, err
		}
	}

	out := make([]*types.Document, 0, len(order))
	for _, id := range order {
		doc := docs[id]
		if err := doc.Validate(); err != nil {
			return nil, &LoadError{Ref: id, Err: err}
		}
		l.cache.Add(id, doc)
		out = append(out, doc)
	}
	return out, nil
}

func (l *Loader) readSegments() (map[string]*types.Document, []string, error) {
	f, err := os.Open(l.cfg.SegmentsPath)
	if err != nil {
		return nil, nil, &LoadError{Ref: l.cfg.SegmentsPath, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, nil, &LoadError{Ref: l.cfg.SegmentsPath, Err: fmt.Errorf("reading header: %w", err)}
	}
	idCol, textCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "id", "doc_id", "document_id":
			idCol = i
		case "text", "segment", "input":
			textCol = i
		}
	}
	if idCol < 0 || textCol < 0 {
		return nil, nil, &LoadError{Ref: l.cfg.SegmentsPath, Err: fmt.Errorf("header lacks id/text columns: %v", header)}
	}

	docs := make(map[string]*types.Document)
	var order []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, &LoadError{Ref: l.cfg.SegmentsPath, Err: err}
		}
		if idCol >= len(record) || textCol >= len(record) {
			continue
		}
		id := strings.TrimSpace(record[idCol])
		text := strings.TrimSpace(record[textCol])
		if id == "" || text == "" {
			continue
		}

		doc, ok := docs[id]
		if !ok {
			if l.cfg.MaxDocuments > 0 && len(order) >= l.cfg.MaxDocuments {
				break
			}
			doc = &types.Document{ID: id}
			docs[id] = doc
			order = append(order, id)
		}
		ordinal := doc.SegmentCount()
		doc.Text = append(doc.Text, types.TextSegment{
			SegmentID: fmt.Sprintf("%s-txt-%03d", id, len(doc.Text)),
			Ordinal:   ordinal,
			Text:      text,
		})
	}
	return docs, order, nil
}

func (l *Loader) readTables(docs map[string]*types.Document, order []string) error {
	f, err := os.Open(l.cfg.TablesPath)
	if err != nil {
		return &LoadError{Ref: l.cfg.TablesPath, Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		if line >= len(order) {
			break
		}
		raw := strings.TrimSpace(scanner.Text())
		doc := docs[order[line]]
		line++
		if raw == "" {
			continue
		}

		var groups map[string][][][]string
		if err := json.Unmarshal([]byte(raw), &groups); err != nil {
			return &LoadError{Ref: doc.ID, Err: fmt.Errorf("parsing table line %d: %w", line, err)}
		}

		for _, group := range sortedKeys(groups) {
			for k, rows := range groups[group] {
				doc.Tables = append(doc.Tables, types.TableSegment{
					SegmentID:   fmt.Sprintf("%s-tbl-%s-%02d", doc.ID, group, k),
					Ordinal:     doc.SegmentCount(),
					Rows:        rows,
					SchemaHints: []string{group},
				})
			}
		}
	}
	return scanner.Err()
}

func sortedKeys(m map[string][][][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic segment IDs require a fixed group order.
	sort.Strings(keys)
	return keys
}
