package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

const (
	k1 = 1.2
	b  = 0.75

	titleBoost      = 0.5
	prominenceBoost = 0.1
	abstractBefore  = 8
	abstractAfter   = 24
)

// Supported evaluation schemes besides the link schemes in pkg/proto.
const (
	SchemeBM25    = "BM25"
	SchemeBM25pff = "BM25pff"
)

var ErrNoQueryFeatures = errors.New("query features not found in the collection")

// SearchOptions carry shard-side decisions about how to evaluate a query.
type SearchOptions struct {
	// StopwordOnly restricts candidates to documents with a query term in
	// their title plus the most prominent documents.
	StopwordOnly bool
}

type scoredDoc struct {
	docno  uint32
	weight float64
	trace  []string
}

// Search ranks the partition against env and returns the rows of the
// requested window in descending weight order. Equal weights are ordered
// by ascending document number.
func (idx *Index) Search(ctx context.Context, env *proto.QueryEnvelope, opts SearchOptions) ([]proto.ResultRow, error) {
	switch env.Scheme {
	case SchemeBM25, SchemeBM25pff,
		proto.SchemeNearLinks, proto.SchemeTitleLinks, proto.SchemeVectorLinks, proto.SchemeStdLinks:
	default:
		return nil, fmt.Errorf("unknown query evaluation scheme '%s'", env.Scheme)
	}
	if len(env.Terms) == 0 && len(env.Links) == 0 {
		return nil, ErrNoQueryFeatures
	}

	var prominent *roaring.Bitmap
	if opts.StopwordOnly {
		prominent = idx.prominentSet()
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates := idx.candidates(env, opts, prominent)
	n := env.CollectionSize
	if n <= 0 {
		n = int64(len(idx.docs))
	}
	avgLen := 0.0
	if len(idx.docs) > 0 {
		avgLen = float64(idx.totalTokens) / float64(len(idx.docs))
	}

	scored := make([]scoredDoc, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for i := 0; it.HasNext(); i++ {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		docno := it.Next()
		scored = append(scored, idx.score(idx.docs[docno], env, n, avgLen))
	}

	slices.SortFunc(scored, func(x, y scoredDoc) int {
		if c := cmp.Compare(y.weight, x.weight); c != 0 {
			return c
		}
		return cmp.Compare(x.docno, y.docno)
	})

	first := int(env.FirstRank)
	if first >= len(scored) {
		return []proto.ResultRow{}, nil
	}
	last := min(first+int(env.MaxRanks), len(scored))

	queryTerms := make(map[string]struct{}, len(env.Terms))
	for _, t := range env.Terms {
		queryTerms[t.Value] = struct{}{}
	}
	kind := proto.RowKindOf(env.Scheme)
	rows := make([]proto.ResultRow, 0, last-first)
	for _, sd := range scored[first:last] {
		rows = append(rows, idx.row(idx.docs[sd.docno], sd, env, kind, queryTerms))
	}
	return rows, nil
}

func (idx *Index) candidates(env *proto.QueryEnvelope, opts SearchOptions, prominent *roaring.Bitmap) *roaring.Bitmap {
	sets := make([]*roaring.Bitmap, 0, len(env.Terms))
	titleSets := make([]*roaring.Bitmap, 0, len(env.Terms))
	for _, t := range env.Terms {
		if bm, ok := idx.postings[t.Value]; ok {
			sets = append(sets, bm)
		}
		if bm, ok := idx.titles[t.Value]; ok {
			titleSets = append(titleSets, bm)
		}
	}
	candidates := roaring.FastOr(sets...)
	if len(env.Links) > 0 {
		for docno, e := range idx.docs {
			if linksMatch(e.doc.Links, env.Links) > 0 {
				candidates.Add(docno)
			}
		}
	}
	if opts.StopwordOnly {
		allowed := roaring.FastOr(titleSets...)
		if prominent != nil {
			allowed.Or(prominent)
		}
		candidates.And(allowed)
	}
	if env.RestrictDocs != nil && !env.RestrictDocs.IsEmpty() {
		candidates.And(env.RestrictDocs)
	}
	return candidates
}

func (idx *Index) score(e *docEntry, env *proto.QueryEnvelope, n int64, avgLen float64) scoredDoc {
	sd := scoredDoc{docno: e.doc.DocNo}
	pff := env.Scheme == SchemeBM25pff

	for _, t := range env.Terms {
		tf := e.termFreq[t.Value]
		if tf == 0 {
			continue
		}
		// The envelope's df is global and authoritative, even when it is 0.
		df := max(t.DocumentFrequency, 0)
		weight := t.Weight
		if weight == 0 {
			weight = 1
		}
		idf := computeIDF(n, df)
		part := weight * idf * computeTFNorm(float64(tf), float64(e.length), avgLen)
		sd.weight += part
		if env.Debug {
			sd.trace = append(sd.trace, fmt.Sprintf("%s:%s tf=%d df=%d idf=%.4f w=%.4f", t.Type, t.Value, tf, df, idf, part))
		}
		if pff {
			if bm, ok := idx.titles[t.Value]; ok && bm.Contains(e.doc.DocNo) {
				bonus := titleBoost * weight * idf
				sd.weight += bonus
				if env.Debug {
					sd.trace = append(sd.trace, fmt.Sprintf("title:%s w=%.4f", t.Value, bonus))
				}
			}
		}
	}
	if pff && e.doc.Prominence > 0 {
		sd.weight += prominenceBoost * e.doc.Prominence
		if env.Debug {
			sd.trace = append(sd.trace, fmt.Sprintf("prominence w=%.4f", prominenceBoost*e.doc.Prominence))
		}
	}
	if lw := linksMatch(e.doc.Links, env.Links); lw != 0 {
		sd.weight += lw
		if env.Debug {
			sd.trace = append(sd.trace, fmt.Sprintf("links w=%.4f", lw))
		}
	}
	return sd
}

func (idx *Index) row(e *docEntry, sd scoredDoc, env *proto.QueryEnvelope, kind proto.RowKind, queryTerms map[string]struct{}) proto.ResultRow {
	row := proto.ResultRow{DocID: sd.docno, Weight: sd.weight}
	switch env.Scheme {
	case proto.SchemeNearLinks:
		row.Links = uniformLinks(e.doc.Links)
	case proto.SchemeTitleLinks:
		row.Links = titleLinks(e, queryTerms)
	case proto.SchemeVectorLinks:
		row.Links = vectorLinks(e.doc.Features, env.Links)
	case proto.SchemeStdLinks:
		row.Links = uniformLinks(e.doc.Links)
		row.Titles = []proto.WeightedID{{ID: e.doc.Title, Weight: 1}}
		row.Features = termFeatures(e, queryTerms)
	}
	if kind == proto.RowText {
		row.Title = truncate(e.doc.Title)
		row.ParaTitle = truncate(e.doc.ParaTitle)
		row.Abstract = truncate(abstract(e.words, queryTerms))
		if env.Debug {
			row.Debug = truncate(strings.Join(sd.trace, "; "))
		}
	}
	return row
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

func linksMatch(links []string, features []proto.LinkFeature) float64 {
	var w float64
	for _, f := range features {
		if slices.Contains(links, f.Value) {
			w += f.Weight
		}
	}
	return w
}

func uniformLinks(links []string) []proto.WeightedID {
	if len(links) == 0 {
		return nil
	}
	out := make([]proto.WeightedID, len(links))
	for i, l := range links {
		out[i] = proto.WeightedID{ID: l, Weight: 1 / float64(len(links))}
	}
	return out
}

// titleLinks returns the outgoing links whose target mentions a query term,
// or the document's own title when none does.
func titleLinks(e *docEntry, queryTerms map[string]struct{}) []proto.WeightedID {
	var out []proto.WeightedID
	for _, l := range e.doc.Links {
		for _, tok := range Tokenize(l) {
			if _, ok := queryTerms[tok.Term]; ok {
				out = append(out, proto.WeightedID{ID: l, Weight: 1})
				break
			}
		}
	}
	if len(out) == 0 && e.doc.Title != "" {
		out = append(out, proto.WeightedID{ID: e.doc.Title, Weight: 1})
	}
	return out
}

func vectorLinks(features []string, query []proto.LinkFeature) []proto.WeightedID {
	var out []proto.WeightedID
	for _, q := range query {
		if slices.Contains(features, q.Value) {
			out = append(out, proto.WeightedID{ID: q.Value, Weight: q.Weight})
		}
	}
	if len(out) == 0 {
		return uniformLinks(features)
	}
	return out
}

func termFeatures(e *docEntry, queryTerms map[string]struct{}) []proto.WeightedID {
	var out []proto.WeightedID
	for term := range queryTerms {
		if tf := e.termFreq[term]; tf > 0 && e.length > 0 {
			out = append(out, proto.WeightedID{ID: term, Weight: float64(tf) / float64(e.length)})
		}
	}
	slices.SortFunc(out, func(x, y proto.WeightedID) int { return strings.Compare(x.ID, y.ID) })
	return out
}

// abstract cuts a window of words around the first query term in the body.
func abstract(words []string, queryTerms map[string]struct{}) string {
	hit := 0
	for i, w := range words {
		if _, ok := queryTerms[Stem(strings.ToLower(w))]; ok {
			hit = i
			break
		}
	}
	start := max(0, hit-abstractBefore)
	end := min(len(words), hit+abstractAfter)
	if start >= end {
		return ""
	}
	var sb strings.Builder
	if start > 0 {
		sb.WriteString("... ")
	}
	sb.WriteString(strings.Join(words[start:end], " "))
	if end < len(words) {
		sb.WriteString(" ...")
	}
	return sb.String()
}

func truncate(s string) string {
	if len(s) <= proto.MaxStringLen {
		return s
	}
	cut := proto.MaxStringLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
