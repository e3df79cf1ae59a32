package proto

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
)

func TestPublishRequest_Decode(t *testing.T) {
	req := &PublishRequest{
		ServerID: 3,
		Delta: StatsDelta{
			CollectionSizeChange: 1,
			Changes: []DFChange{
				{Key: TermKey{Type: "stem", Value: "fox"}, Increment: 3},
				{Key: TermKey{Type: "stem", Value: "dog"}, Increment: -2},
			},
		},
	}
	payload, err := req.Encode()
	require.NoError(t, err)
	assert.Equal(t, byte('P'), payload[0])

	decoded, err := DecodeStatsRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestPublishRequest_RejectsTrailingAndShortInput(t *testing.T) {
	req := &PublishRequest{ServerID: 1, Delta: StatsDelta{Changes: []DFChange{{Key: TermKey{"stem", "a"}, Increment: 1}}}}
	payload, err := req.Encode()
	require.NoError(t, err)

	_, err = DecodeStatsRequest(append(payload, 0x00))
	assert.ErrorIs(t, err, apperrors.ErrProtocol)

	_, err = DecodeStatsRequest(payload[:len(payload)-3])
	assert.ErrorIs(t, err, apperrors.ErrProtocol)
}

func TestStatsQuery_WireLayout(t *testing.T) {
	q := NewStatsQuery([]TermKey{{Type: "stem", Value: "fox"}})
	payload, err := q.Encode()
	require.NoError(t, err)

	want := []byte{'Q', 'T', 0, 4, 0, 3, 's', 't', 'e', 'm', 'f', 'o', 'x', 'N'}
	assert.Equal(t, want, payload)

	decoded, err := DecodeStatsRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, q, decoded)
}

func TestStatsQuery_UnknownSubCommand(t *testing.T) {
	_, err := DecodeStatsRequest([]byte{'Q', 'N', 'X'})
	require.Error(t, err)
	assert.Equal(t, "unknown statistics server sub command", err.Error())
}

func TestStatsValues(t *testing.T) {
	reply := EncodeStatsValues([]int64{3, -1, 1})
	values, err := DecodeStatsValues(reply, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, -1, 1}, values)

	_, err = DecodeStatsValues(reply, 2)
	assert.ErrorIs(t, err, apperrors.ErrProtocol)

	_, err = DecodeStatsValues([]byte("Eboom"), 1)
	require.Error(t, err)
	assert.True(t, apperrors.IsRemote(err))
	assert.Equal(t, "boom", err.Error())
}

func TestStatsDelta_NegateAndChunks(t *testing.T) {
	d := StatsDelta{
		CollectionSizeChange: 5,
		Changes: []DFChange{
			{Key: TermKey{"stem", "a"}, Increment: 1},
			{Key: TermKey{"stem", "b"}, Increment: 2},
			{Key: TermKey{"stem", "c"}, Increment: 3},
		},
	}
	n := d.Negate()
	assert.Equal(t, int64(-5), n.CollectionSizeChange)
	assert.Equal(t, int64(-3), n.Changes[2].Increment)
	assert.Equal(t, int64(3), d.Changes[2].Increment, "negation must not alias")

	chunks := d.Chunks(2)
	require.Len(t, chunks, 2)
	assert.Equal(t, int64(5), chunks[0].CollectionSizeChange)
	assert.Equal(t, int64(0), chunks[1].CollectionSizeChange)
	assert.Len(t, chunks[0].Changes, 2)
	assert.Len(t, chunks[1].Changes, 1)
}

func TestQueryEnvelope_RoundTrip(t *testing.T) {
	env := &QueryEnvelope{
		Scheme:         "BM25pff",
		CollectionSize: 1200,
		FirstRank:      0,
		MaxRanks:       30,
		RestrictDocs:   roaring.BitmapOf(7, 3),
		Terms: []Term{
			{Type: "stem", Value: "fox", Length: 1, DocumentFrequency: 12, Weight: 1},
			{Type: "stem", Value: "the", Length: 1, DocumentFrequency: 1100, Weight: 1, CoversQuery: true},
		},
		Links: []LinkFeature{{Type: "vectfeat", Value: "F12", Weight: 0.5}},
		Debug: true,
	}
	payload, err := env.Encode()
	require.NoError(t, err)

	decoded, err := DecodeQueryEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, env.Scheme, decoded.Scheme)
	assert.Equal(t, env.CollectionSize, decoded.CollectionSize)
	assert.Equal(t, env.MaxRanks, decoded.MaxRanks)
	assert.Equal(t, []uint32{3, 7}, decoded.RestrictDocs.ToArray())
	assert.Equal(t, env.Terms, decoded.Terms)
	assert.Equal(t, env.Links, decoded.Links)
	assert.True(t, decoded.Debug)
}

func TestQueryEnvelope_Defaults(t *testing.T) {
	env, err := DecodeQueryEnvelope([]byte{'Q'})
	require.NoError(t, err)
	assert.Equal(t, DefaultScheme, env.Scheme)
	assert.Equal(t, DefaultMaxRanks, env.MaxRanks)
	assert.Equal(t, uint16(0), env.FirstRank)
	assert.Nil(t, env.RestrictDocs)
}

func TestQueryEnvelope_UnknownTag(t *testing.T) {
	_, err := DecodeQueryEnvelope([]byte{'Q', 'Y'})
	require.Error(t, err)
	assert.Equal(t, "unknown parameter", err.Error())
}

func TestIsStopwordOnly(t *testing.T) {
	tests := []struct {
		name  string
		n     int64
		dfs   []int64
		wantS bool
	}{
		{"all frequent", 1200, []int64{500, 100}, true},
		{"one selective", 1200, []int64{500, 99}, false},
		{"unknown terms only", 1200, []int64{0, 0}, true},
		{"no terms", 1200, nil, true},
		{"tiny collection", 11, []int64{1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &QueryEnvelope{CollectionSize: tt.n}
			for _, df := range tt.dfs {
				env.Terms = append(env.Terms, Term{DocumentFrequency: df})
			}
			assert.Equal(t, tt.wantS, env.IsStopwordOnly())
		})
	}
}

func TestShardReply_Layouts(t *testing.T) {
	reply := &ShardReply{
		ServerID: 2,
		Rows: []ResultRow{
			{DocID: 9, Weight: 2.5, Title: "Fox", ParaTitle: "Habitat", Abstract: "The fox ..."},
			{DocID: 4, Weight: 1.0, Title: "Dog", Abstract: "A dog"},
		},
	}
	payload, err := reply.Encode(RowText)
	require.NoError(t, err)
	decoded, err := DecodeShardReply(payload, RowText)
	require.NoError(t, err)
	assert.Equal(t, reply, decoded)

	links := &ShardReply{
		ServerID: 1,
		Rows: []ResultRow{{
			DocID:    1,
			Weight:   3,
			Links:    []WeightedID{{ID: "Berlin", Weight: 0.5}},
			Titles:   []WeightedID{{ID: "Germany", Weight: 1}},
			Features: []WeightedID{{ID: "capital", Weight: 0.25}},
		}},
	}
	payload, err = links.Encode(RowStdLinks)
	require.NoError(t, err)
	decoded, err = DecodeShardReply(payload, RowStdLinks)
	require.NoError(t, err)
	assert.Equal(t, links, decoded)
}

func TestDecodeShardReply_Errors(t *testing.T) {
	_, err := DecodeShardReply([]byte("Etoo busy"), RowText)
	require.Error(t, err)
	assert.True(t, apperrors.IsRemote(err))
	assert.Equal(t, "too busy", err.Error())

	_, err = DecodeShardReply([]byte("X"), RowText)
	assert.ErrorIs(t, err, apperrors.ErrProtocol)

	_, err = DecodeShardReply([]byte{'Y', '_', 'D', 0, 0}, RowText)
	assert.ErrorIs(t, err, apperrors.ErrProtocol)
}

func TestAnalyzeReply_RoundTrip(t *testing.T) {
	reply := &AnalyzeReply{
		Terms:   []AnalyzedTerm{{Type: "stem", Value: "fox", Position: 1, Weight: 1}},
		Related: []RelatedTerm{{Value: "wolf", Index: 12, Weight: 0.8}},
	}
	payload, err := reply.Encode()
	require.NoError(t, err)
	decoded, err := DecodeAnalyzeReply(payload)
	require.NoError(t, err)
	assert.Equal(t, reply, decoded)
}

func TestTextRequest(t *testing.T) {
	payload, err := EncodeTextRequest(TextRequest{Count: 5, Text: "quick fox"}, TagSearchText)
	require.NoError(t, err)

	req, err := DecodeTextRequest(payload, TagSearchText, 20)
	require.NoError(t, err)
	assert.Equal(t, TextRequest{Count: 5, Text: "quick fox"}, req)

	_, err = DecodeTextRequest(payload, TagQueryText, 20)
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestProposals(t *testing.T) {
	payload, err := EncodeProposals([]string{"quick fox", "quack fox"})
	require.NoError(t, err)
	got, err := DecodeProposals(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"quick fox", "quack fox"}, got)
}
