package engine

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

var ErrDuplicateDocument = errors.New("document already indexed")

// DefaultProminentDocs is how many top-prominence documents join the
// candidates of a stopword-only query.
const DefaultProminentDocs = 100

type docEntry struct {
	doc      Document
	length   int
	words    []string
	termFreq map[string]uint32
}

// Index is an in-memory inverted index. It is safe for concurrent use.
type Index struct {
	mu          sync.RWMutex
	docs        map[uint32]*docEntry
	postings    map[string]*roaring.Bitmap
	titles      map[string]*roaring.Bitmap
	totalTokens int64

	prominentMu    sync.Mutex
	prominent      *roaring.Bitmap
	prominentDirty bool
	prominentDocs  int

	logger *slog.Logger
}

// Options tune an Index.
type Options struct {
	ProminentDocs int
}

func NewIndex(opts Options) *Index {
	if opts.ProminentDocs <= 0 {
		opts.ProminentDocs = DefaultProminentDocs
	}
	return &Index{
		docs:          make(map[uint32]*docEntry),
		postings:      make(map[string]*roaring.Bitmap),
		titles:        make(map[string]*roaring.Bitmap),
		prominent:     roaring.New(),
		prominentDocs: opts.ProminentDocs,
		logger:        slog.Default().With("component", "engine-index"),
	}
}

// AddDocument indexes doc and returns the statistics delta it causes: one
// more document in the collection and one more document for every distinct
// term of it.
func (idx *Index) AddDocument(doc Document) (proto.StatsDelta, error) {
	tokens := Tokenize(doc.Title + " " + doc.Body)
	entry := &docEntry{
		doc:      doc,
		length:   len(tokens),
		words:    Words(doc.Body),
		termFreq: make(map[string]uint32),
	}
	for _, tok := range tokens {
		entry.termFreq[tok.Term]++
	}
	titleTerms := make(map[string]struct{})
	for _, tok := range Tokenize(doc.Title) {
		titleTerms[tok.Term] = struct{}{}
	}

	idx.mu.Lock()
	if _, exists := idx.docs[doc.DocNo]; exists {
		idx.mu.Unlock()
		return proto.StatsDelta{}, fmt.Errorf("%w: %d", ErrDuplicateDocument, doc.DocNo)
	}
	idx.docs[doc.DocNo] = entry
	idx.totalTokens += int64(entry.length)
	for term := range entry.termFreq {
		bm, ok := idx.postings[term]
		if !ok {
			bm = roaring.New()
			idx.postings[term] = bm
		}
		bm.Add(doc.DocNo)
	}
	for term := range titleTerms {
		bm, ok := idx.titles[term]
		if !ok {
			bm = roaring.New()
			idx.titles[term] = bm
		}
		bm.Add(doc.DocNo)
	}
	docs := len(idx.docs)
	idx.mu.Unlock()
	idx.logger.Debug("document indexed", "docno", doc.DocNo, "tokens", entry.length, "docs", docs)

	if doc.Prominence > 0 {
		idx.prominentMu.Lock()
		idx.prominentDirty = true
		idx.prominentMu.Unlock()
	}

	delta := proto.StatsDelta{CollectionSizeChange: 1}
	for term := range entry.termFreq {
		delta.Changes = append(delta.Changes, proto.DFChange{
			Key:       proto.TermKey{Type: TermType, Value: term},
			Increment: 1,
		})
	}
	sortChanges(delta.Changes)
	return delta, nil
}

// Statistics returns the delta that describes the whole partition, as
// published when a shard joins the federation.
func (idx *Index) Statistics() proto.StatsDelta {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	delta := proto.StatsDelta{
		CollectionSizeChange: int64(len(idx.docs)),
		Changes:              make([]proto.DFChange, 0, len(idx.postings)),
	}
	for term, bm := range idx.postings {
		delta.Changes = append(delta.Changes, proto.DFChange{
			Key:       proto.TermKey{Type: TermType, Value: term},
			Increment: int64(bm.GetCardinality()),
		})
	}
	sortChanges(delta.Changes)
	return delta
}

func (idx *Index) DocCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// prominentSet returns the documents with the highest prominence.
func (idx *Index) prominentSet() *roaring.Bitmap {
	idx.prominentMu.Lock()
	defer idx.prominentMu.Unlock()
	if !idx.prominentDirty {
		return idx.prominent
	}

	idx.mu.RLock()
	type ranked struct {
		docno      uint32
		prominence float64
	}
	candidates := make([]ranked, 0, len(idx.docs))
	for docno, e := range idx.docs {
		if e.doc.Prominence > 0 {
			candidates = append(candidates, ranked{docno, e.doc.Prominence})
		}
	}
	idx.mu.RUnlock()

	slices.SortFunc(candidates, func(a, b ranked) int {
		if c := cmp.Compare(b.prominence, a.prominence); c != 0 {
			return c
		}
		return cmp.Compare(a.docno, b.docno)
	})
	bm := roaring.New()
	for i := 0; i < len(candidates) && i < idx.prominentDocs; i++ {
		bm.Add(candidates[i].docno)
	}
	idx.prominent = bm
	idx.prominentDirty = false
	return bm
}

func sortChanges(changes []proto.DFChange) {
	slices.SortFunc(changes, func(a, b proto.DFChange) int {
		if c := strings.Compare(a.Key.Type, b.Key.Type); c != 0 {
			return c
		}
		return strings.Compare(a.Key.Value, b.Key.Value)
	})
}
