package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

var benchWords = strings.Fields("distributed search analytics platform indexing query processing ranking caching sharding fox forest statistics federated retrieval")

func benchIndex(b *testing.B, numDocs int) *Index {
	b.Helper()
	idx := NewIndex(Options{ProminentDocs: 10})
	for i := range numDocs {
		var body strings.Builder
		for j := range 60 {
			body.WriteString(benchWords[(i*7+j*3)%len(benchWords)])
			body.WriteByte(' ')
		}
		doc := Document{
			DocNo:      uint32(i + 1),
			Title:      benchWords[i%len(benchWords)],
			Body:       body.String(),
			Prominence: float64(i % 17),
		}
		if _, err := idx.AddDocument(doc); err != nil {
			b.Fatal(err)
		}
	}
	return idx
}

func BenchmarkTokenize(b *testing.B) {
	text := strings.Repeat("The quick brown foxes were jumping over the lazy dogs. ", 20)
	b.ReportAllocs()
	for b.Loop() {
		_ = Tokenize(text)
	}
}

func BenchmarkSearch(b *testing.B) {
	for _, numDocs := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", numDocs), func(b *testing.B) {
			idx := benchIndex(b, numDocs)
			env := &proto.QueryEnvelope{
				Scheme:         SchemeBM25,
				CollectionSize: int64(numDocs),
				MaxRanks:       20,
				Terms: []proto.Term{
					{Type: TermType, Value: "search", Length: 1, Weight: 1, DocumentFrequency: int64(numDocs / 2)},
					{Type: TermType, Value: "fox", Length: 1, Weight: 1, DocumentFrequency: int64(numDocs / 3)},
				},
			}
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				if _, err := idx.Search(ctx, env, SearchOptions{}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
