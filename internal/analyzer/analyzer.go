// Package analyzer is the query analysis service. It turns query text into
// search terms and proposes related terms found by a similarity search in a
// feature vector store.
package analyzer

import (
	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

// Analyzer analyzes query text. A nil vector store disables related terms.
type Analyzer struct {
	vectors *VectorStore
}

func New(vectors *VectorStore) *Analyzer {
	return &Analyzer{vectors: vectors}
}

// Analyze returns one term per word of text in order, and up to n related
// terms: the nearest neighbours of the summed vectors of the query words
// known to the vector store.
func (a *Analyzer) Analyze(text string, n int) *proto.AnalyzeReply {
	reply := &proto.AnalyzeReply{}
	known := make(map[int]struct{})
	var indices []int
	for _, tok := range engine.Tokenize(text) {
		reply.Terms = append(reply.Terms, proto.AnalyzedTerm{
			Type:     engine.TermType,
			Value:    tok.Term,
			Position: uint32(tok.Position + 1),
			Weight:   1,
		})
		if a.vectors == nil {
			continue
		}
		i, ok := a.vectors.Lookup(tok.Word)
		if !ok {
			i, ok = a.vectors.Lookup(tok.Term)
		}
		if ok {
			if _, dup := known[i]; !dup {
				known[i] = struct{}{}
				indices = append(indices, i)
			}
		}
	}
	if len(indices) == 0 {
		return reply
	}
	for _, nb := range a.vectors.Nearest(a.vectors.Sum(indices), n, known) {
		reply.Related = append(reply.Related, proto.RelatedTerm{
			Value:  a.vectors.Name(nb.Index),
			Index:  uint32(nb.Index),
			Weight: nb.Similarity,
		})
	}
	return reply
}
