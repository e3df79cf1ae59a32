package dym

import (
	"cmp"
	"context"
	"net"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/wire"
)

func sampleVocabulary(t *testing.T) *Vocabulary {
	t.Helper()
	v, err := LoadVocabulary(strings.NewReader("hello\nhelp\n\nworld\nword\nnew  york\nHello\n"))
	require.NoError(t, err)
	require.Equal(t, 5, v.Len())
	return v
}

func TestNgrams(t *testing.T) {
	assert.Equal(t, []string{"^he", "hel", "elo"}, ngrams("helo"))
	assert.Equal(t, []string{"^ab"}, ngrams("ab"))
	assert.Equal(t, []string{"^a"}, ngrams("a"))
}

func TestCardinality(t *testing.T) {
	for grams, want := range map[int]int{1: 1, 2: 2, 4: 2, 5: 3, 9: 3} {
		assert.Equal(t, want, cardinality(grams), "grams=%d", grams)
	}
}

func TestHasPrefixEditDistance(t *testing.T) {
	tests := []struct {
		s, candidate string
		dist         int
		want         bool
	}{
		{"hello", "hello", 0, true},
		{"hello", "helloworld", 0, true},
		{"Hello", "hello", 0, true},
		{"helo", "hello", 1, true},
		{"helo", "hello", 0, false},
		{"worlt", "world", 2, true},
		{"worlt", "word", 2, true},
		{"helo", "world", 1, false},
		{"ab", "ac", 0, false},
	}
	for _, tt := range tests {
		got := hasPrefixEditDistance([]rune(tt.s), []rune(tt.candidate), tt.dist)
		assert.Equal(t, tt.want, got, "%s -> %s within %d", tt.s, tt.candidate, tt.dist)
	}
}

func TestPropose_CombinesWordsByWeight(t *testing.T) {
	p := NewProposer(sampleVocabulary(t), 0)
	got := p.Propose("helo worlt", 20)
	assert.Equal(t, []string{"help world", "hello world", "help word", "hello word"}, got)
}

func TestPropose_LimitsProposals(t *testing.T) {
	p := NewProposer(sampleVocabulary(t), 2)
	assert.Equal(t, []string{"help world", "hello world"}, p.Propose("helo worlt", 20))
}

func TestPropose_KeepsUnknownWords(t *testing.T) {
	p := NewProposer(sampleVocabulary(t), 0)
	assert.Equal(t, []string{"help qqq", "hello qqq"}, p.Propose("helo qqq", 20))
	assert.Equal(t, []string{"xyzzy"}, p.Propose("xyzzy", 20))
	assert.Equal(t, []string{}, p.Propose("   ", 20))
}

// expandAll builds every combination without pruning.
func expandAll(p *Proposer, query string, ranks int) []string {
	terms := strings.Fields(query)
	candidates := p.candidates(terms, ranks)
	proposals := []Proposal{{}}
	for _, term := range terms {
		options := matching(term, candidates)
		if len(options) == 0 {
			options = []Proposal{{Text: term}}
		}
		var next []Proposal
		for _, cd := range options {
			for _, prp := range proposals {
				next = append(next, Proposal{Text: strings.TrimSpace(prp.Text + " " + cd.Text), Weight: prp.Weight + cd.Weight})
			}
		}
		proposals = next
	}
	slices.SortStableFunc(proposals, func(a, b Proposal) int { return cmp.Compare(b.Weight, a.Weight) })
	out := []string{}
	for _, prp := range proposals[:min(len(proposals), p.maxProposals)] {
		out = append(out, prp.Text)
	}
	return out
}

func TestPropose_PruningKeepsTheBestCombinations(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 5} {
		p := NewProposer(sampleVocabulary(t), limit)
		for _, q := range []string{"helo worlt helo", "worlt qqq helo hel", "hello"} {
			assert.Equal(t, expandAll(p, q, 20), p.Propose(q, 20), "limit=%d query=%q", limit, q)
		}
	}
}

func TestPropose_LongQueryStaysBounded(t *testing.T) {
	v := NewVocabulary()
	for c := 'a'; c <= 'l'; c++ {
		v.Add("wordx" + string(c))
	}
	p := NewProposer(v, 0)
	query := strings.TrimSpace(strings.Repeat("wordxa ", 10))

	done := make(chan []string, 1)
	go func() { done <- p.Propose(query, 100) }()
	select {
	case got := <-done:
		require.Len(t, got, DefaultMaxProposals)
		assert.Equal(t, query, got[0])
	case <-time.After(5 * time.Second):
		t.Fatal("ten word query did not finish")
	}
}

func TestClient_OverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := wire.NewServer("dym", NewHandler(NewProposer(sampleVocabulary(t), 0)))
	go srv.ServeListener(ln)
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := NewClient(ln.Addr().String()).Propose(ctx, "helo worlt", 0)
	require.NoError(t, err)
	assert.Equal(t, "help world", got[0])
	assert.Len(t, got, 4)
}

func TestHandler_UnknownParameter(t *testing.T) {
	h := NewHandler(NewProposer(NewVocabulary(), 0))
	assert.Equal(t, "Eunknown parameter", string(h.ServeFrame(context.Background(), []byte{'Q', 'X'})))
}
