package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The quick Foxes, jumping!")
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	assert.Equal(t, []string{"the", "quick", "fox", "jump"}, terms)
	assert.Equal(t, "Foxes", tokens[2].Word)
	assert.Equal(t, 3, tokens[3].Position)
}

func sampleIndex(t *testing.T) *Index {
	t.Helper()
	idx := NewIndex(Options{ProminentDocs: 1})
	docs := []Document{
		{DocNo: 1, Title: "Red fox", Body: "The red fox lives in the forest. The fox hunts at night.", Links: []string{"Forest", "Night"}, Features: []string{"F1"}},
		{DocNo: 2, Title: "Dogs", Body: "The dog is a loyal animal. A fox is not a dog.", Links: []string{"Animal"}},
		{DocNo: 3, Title: "The forest", Body: "The forest is home to many animals.", Prominence: 5, Links: []string{"Fox den"}},
		{DocNo: 4, Title: "Cooking", Body: "The recipe needs the oven.", Prominence: 1},
	}
	for _, d := range docs {
		_, err := idx.AddDocument(d)
		require.NoError(t, err)
	}
	return idx
}

func envelope(scheme string, terms ...string) *proto.QueryEnvelope {
	env := &proto.QueryEnvelope{Scheme: scheme, MaxRanks: 20}
	for _, v := range terms {
		env.Terms = append(env.Terms, proto.Term{Type: TermType, Value: v, Length: 1, Weight: 1})
	}
	return env
}

func TestIndex_AddDocumentDelta(t *testing.T) {
	idx := NewIndex(Options{})
	delta, err := idx.AddDocument(Document{DocNo: 7, Title: "Fox", Body: "fox fox dog"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), delta.CollectionSizeChange)
	assert.Equal(t, []proto.DFChange{
		{Key: proto.TermKey{Type: TermType, Value: "dog"}, Increment: 1},
		{Key: proto.TermKey{Type: TermType, Value: "fox"}, Increment: 1},
	}, delta.Changes)

	_, err = idx.AddDocument(Document{DocNo: 7})
	assert.ErrorIs(t, err, ErrDuplicateDocument)
	assert.Equal(t, 1, idx.DocCount())
}

func TestIndex_StatisticsSumsDocumentDeltas(t *testing.T) {
	idx := sampleIndex(t)
	stats := idx.Statistics()
	assert.Equal(t, int64(4), stats.CollectionSizeChange)

	df := make(map[string]int64)
	for _, c := range stats.Changes {
		df[c.Key.Value] = c.Increment
	}
	assert.Equal(t, int64(2), df["fox"])
	assert.Equal(t, int64(4), df["the"])
	assert.Equal(t, int64(1), df["oven"])
}

func TestSearch_RanksByBM25(t *testing.T) {
	idx := sampleIndex(t)
	rows, err := idx.Search(context.Background(), envelope(SchemeBM25, "fox"), SearchOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, uint32(1), rows[0].DocID)
	assert.Equal(t, uint32(2), rows[1].DocID)
	assert.Greater(t, rows[0].Weight, rows[1].Weight)
	assert.Equal(t, "Red fox", rows[0].Title)
	assert.Contains(t, rows[0].Abstract, "fox")
}

func TestSearch_UsesSuppliedStatistics(t *testing.T) {
	idx := sampleIndex(t)
	ctx := context.Background()

	rare := envelope(SchemeBM25, "fox")
	rare.CollectionSize = 1_000_000
	rare.Terms[0].DocumentFrequency = 10
	common := envelope(SchemeBM25, "fox")
	common.CollectionSize = 1_000_000
	common.Terms[0].DocumentFrequency = 900_000

	rareRows, err := idx.Search(ctx, rare, SearchOptions{})
	require.NoError(t, err)
	commonRows, err := idx.Search(ctx, common, SearchOptions{})
	require.NoError(t, err)
	assert.Greater(t, rareRows[0].Weight, commonRows[0].Weight)
}

func TestSearch_ZeroDocumentFrequencyIsNotReplacedLocally(t *testing.T) {
	idx := sampleIndex(t)
	ctx := context.Background()

	weightWithDF := func(df int64) float64 {
		env := envelope(SchemeBM25, "fox")
		env.CollectionSize = 4
		env.Terms[0].DocumentFrequency = df
		rows, err := idx.Search(ctx, env, SearchOptions{})
		require.NoError(t, err)
		require.NotEmpty(t, rows)
		return rows[0].Weight
	}

	local := weightWithDF(2)
	unseen := weightWithDF(0)
	assert.Greater(t, unseen, local)
	assert.Equal(t, unseen, weightWithDF(-3))
}

func TestSearch_EqualWeightsOrderedByDocNo(t *testing.T) {
	idx := NewIndex(Options{})
	for _, n := range []uint32{9, 3, 6} {
		_, err := idx.AddDocument(Document{DocNo: n, Title: "same", Body: "identical text"})
		require.NoError(t, err)
	}
	rows, err := idx.Search(context.Background(), envelope(SchemeBM25, "identical"), SearchOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []uint32{3, 6, 9}, []uint32{rows[0].DocID, rows[1].DocID, rows[2].DocID})
}

func TestSearch_Window(t *testing.T) {
	idx := sampleIndex(t)
	all, err := idx.Search(context.Background(), envelope(SchemeBM25, "the"), SearchOptions{})
	require.NoError(t, err)
	require.Len(t, all, 4)

	env := envelope(SchemeBM25, "the")
	env.FirstRank, env.MaxRanks = 1, 2
	page, err := idx.Search(context.Background(), env, SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, all[1:3], page)

	env.FirstRank = 10
	page, err = idx.Search(context.Background(), env, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestSearch_StopwordOnlyRestriction(t *testing.T) {
	idx := sampleIndex(t)
	rows, err := idx.Search(context.Background(), envelope(SchemeBM25, "the"), SearchOptions{StopwordOnly: true})
	require.NoError(t, err)

	var got []uint32
	for _, r := range rows {
		got = append(got, r.DocID)
	}
	// doc 3 has "the" in its title and is also the single most prominent doc
	assert.ElementsMatch(t, []uint32{3}, got)
}

func TestSearch_RestrictDocs(t *testing.T) {
	idx := sampleIndex(t)
	env := envelope(SchemeBM25, "fox")
	env.RestrictDocs = roaring.BitmapOf(2)
	rows, err := idx.Search(context.Background(), env, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint32(2), rows[0].DocID)
}

func TestSearch_Errors(t *testing.T) {
	idx := sampleIndex(t)
	_, err := idx.Search(context.Background(), envelope("NOPE", "fox"), SearchOptions{})
	assert.EqualError(t, err, "unknown query evaluation scheme 'NOPE'")

	_, err = idx.Search(context.Background(), envelope(SchemeBM25), SearchOptions{})
	assert.ErrorIs(t, err, ErrNoQueryFeatures)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = idx.Search(ctx, envelope(SchemeBM25, "the"), SearchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearch_LinkSchemes(t *testing.T) {
	idx := sampleIndex(t)
	ctx := context.Background()

	rows, err := idx.Search(ctx, envelope(proto.SchemeNearLinks, "fox"), SearchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, []proto.WeightedID{{ID: "Forest", Weight: 0.5}, {ID: "Night", Weight: 0.5}}, rows[0].Links)
	assert.Empty(t, rows[0].Title)

	rows, err = idx.Search(ctx, envelope(proto.SchemeTitleLinks, "fox"), SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []proto.WeightedID{{ID: "Red fox", Weight: 1}}, rows[0].Links)

	rows, err = idx.Search(ctx, envelope(proto.SchemeStdLinks, "fox"), SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Red fox", rows[0].Titles[0].ID)
	require.Len(t, rows[0].Features, 1)
	assert.Equal(t, "fox", rows[0].Features[0].ID)
}

func TestSearch_DebugTrace(t *testing.T) {
	idx := sampleIndex(t)
	env := envelope(SchemeBM25pff, "fox")
	env.Debug = true
	rows, err := idx.Search(context.Background(), env, SearchOptions{})
	require.NoError(t, err)
	assert.Contains(t, rows[0].Debug, "stem:fox")
	assert.Contains(t, rows[0].Debug, "title:fox")
}

func TestLoadDocuments(t *testing.T) {
	input := `{"docno":1,"title":"A","body":"alpha"}

{"docno":2,"title":"B","body":"beta","links":["A"],"prominence":0.5}
`
	docs, err := LoadDocuments(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, uint32(2), docs[1].DocNo)
	assert.Equal(t, []string{"A"}, docs[1].Links)

	_, err = LoadDocuments(strings.NewReader("{not json}\n"))
	assert.ErrorContains(t, err, "line 1")
}
