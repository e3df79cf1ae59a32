// Package engine is the local search engine behind a shard node. It keeps
// an in-memory inverted index over roaring bitmaps and ranks candidates
// with BM25, taking document frequencies and the collection size from the
// query rather than from its own partition so that every shard scores
// against the same global statistics.
package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Document is a unit of the collection as stored by a shard.
type Document struct {
	DocNo     uint32   `json:"docno"`
	Title     string   `json:"title"`
	ParaTitle string   `json:"paratitle,omitempty"`
	Body      string   `json:"body"`
	Links     []string `json:"links,omitempty"`
	Features  []string `json:"features,omitempty"`
	// Prominence is a query-independent importance score such as a page
	// rank. The most prominent documents are always candidates for
	// stopword-only queries.
	Prominence float64 `json:"prominence,omitempty"`
}

// LoadDocuments reads one JSON document per line. Blank lines are skipped.
func LoadDocuments(r io.Reader) ([]Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	var docs []Document
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	return docs, nil
}

// LoadDocumentsFile is LoadDocuments on a file path.
func LoadDocumentsFile(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening documents file: %w", err)
	}
	defer f.Close()
	docs, err := LoadDocuments(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}
