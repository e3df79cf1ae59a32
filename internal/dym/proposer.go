package dym

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"unicode"
)

// DefaultMaxProposals caps the number of proposals returned.
const DefaultMaxProposals = 20

// Proposal is a rewritten query and its weight.
type Proposal struct {
	Text   string
	Weight float64
}

// Proposer computes did-you-mean proposals from a vocabulary.
type Proposer struct {
	vocab        *Vocabulary
	maxProposals int
}

func NewProposer(vocab *Vocabulary, maxProposals int) *Proposer {
	if maxProposals <= 0 {
		maxProposals = DefaultMaxProposals
	}
	return &Proposer{vocab: vocab, maxProposals: maxProposals}
}

// Propose returns rewrites of query. ranks bounds the number of vocabulary
// entries consulted. Each query word is replaced by the candidate words
// within its edit distance, or kept with weight zero when there is none.
func (p *Proposer) Propose(query string, ranks int) []string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return []string{}
	}
	candidates := p.candidates(terms, ranks)
	if candidates == nil {
		return []string{}
	}

	var proposals []Proposal
	for _, term := range terms {
		var next []Proposal
		for _, cd := range matching(term, candidates) {
			if len(proposals) == 0 {
				next = append(next, cd)
				continue
			}
			for _, prp := range proposals {
				next = append(next, Proposal{Text: prp.Text + " " + cd.Text, Weight: prp.Weight + cd.Weight})
			}
		}
		if len(next) == 0 {
			if len(proposals) == 0 {
				next = append(next, Proposal{Text: term})
			}
			for _, prp := range proposals {
				next = append(next, Proposal{Text: prp.Text + " " + term, Weight: prp.Weight})
			}
		}
		proposals = keepBest(next, p.maxProposals)
	}

	slices.SortStableFunc(proposals, func(a, b Proposal) int {
		return cmp.Compare(b.Weight, a.Weight)
	})
	out := make([]string, 0, min(len(proposals), p.maxProposals))
	for _, prp := range proposals[:min(len(proposals), p.maxProposals)] {
		out = append(out, prp.Text)
	}
	return out
}

// keepBest returns the n heaviest proposals, stable on ties, in their
// original order. Weights only ever add up, so a proposal outside the best n
// after one word cannot reach the best n later.
func keepBest(ps []Proposal, n int) []Proposal {
	if len(ps) <= n {
		return ps
	}
	order := make([]int, len(ps))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(ps[b].Weight, ps[a].Weight)
	})
	order = order[:n]
	slices.Sort(order)
	best := make([]Proposal, n)
	for i, j := range order {
		best[i] = ps[j]
	}
	return best
}

type ranked struct {
	id     uint32
	weight float64
}

// candidates ranks the vocabulary entries selected by the query n-grams and
// returns every word of the best ranks with the highest weight it reached.
// It returns nil when the query has no n-grams.
func (p *Proposer) candidates(terms []string, ranks int) map[string]float64 {
	if ranks <= 0 {
		ranks = DefaultMaxProposals
	}
	v := p.vocab
	v.mu.RLock()
	defer v.mu.RUnlock()

	selected := make(map[uint32]struct{})
	matches := make(map[uint32]int)
	anyGrams := false
	for _, term := range terms {
		grams := ngrams(strings.ToLower(term))
		anyGrams = anyGrams || len(grams) > 0
		perTerm := make(map[uint32]int)
		for _, g := range grams {
			bm, ok := v.grams[g]
			if !ok {
				continue
			}
			it := bm.Iterator()
			for it.HasNext() {
				id := it.Next()
				perTerm[id]++
				matches[id]++
			}
		}
		need := cardinality(len(grams))
		for id, n := range perTerm {
			if n >= need {
				selected[id] = struct{}{}
			}
		}
	}
	if !anyGrams {
		return nil
	}

	rs := make([]ranked, 0, len(selected))
	for id := range selected {
		rs = append(rs, ranked{id: id, weight: float64(matches[id]) / math.Sqrt(float64(v.entries[id].ngrams)+1)})
	}
	slices.SortFunc(rs, func(a, b ranked) int {
		if c := cmp.Compare(b.weight, a.weight); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	out := make(map[string]float64)
	for _, r := range rs[:min(len(rs), ranks)] {
		for _, word := range strings.Fields(v.entries[r.id].name) {
			if w, ok := out[word]; !ok || w < r.weight {
				out[word] = r.weight
			}
		}
	}
	return out
}

// cardinality is the number of a word's n-grams an entry must contain to
// be selected.
func cardinality(grams int) int {
	switch {
	case grams >= 5:
		return 3
	case grams >= 2:
		return 2
	default:
		return 1
	}
}

func editBudget(term string) int {
	n := len([]rune(term))
	switch {
	case n >= 5:
		return 2
	case n >= 3:
		return 1
	default:
		return 0
	}
}

// matching returns the candidates within the edit budget of term, in
// lexical order.
func matching(term string, candidates map[string]float64) []Proposal {
	budget := editBudget(term)
	t := []rune(term)
	var out []Proposal
	for name, w := range candidates {
		if hasPrefixEditDistance(t, []rune(name), budget) {
			out = append(out, Proposal{Text: name, Weight: w})
		}
	}
	slices.SortFunc(out, func(a, b Proposal) int { return strings.Compare(a.Text, b.Text) })
	return out
}

// hasPrefixEditDistance reports whether s can be turned into s2, or into a
// prefix of s2, with at most dist replacements, insertions and deletions.
// Letters compare case-insensitively.
func hasPrefixEditDistance(s, s2 []rune, dist int) bool {
	return prefixEdit(s, 0, s2, 0, dist)
}

func prefixEdit(s1 []rune, p1 int, s2 []rune, p2 int, dist int) bool {
	for p1 < len(s1) && p2 < len(s2) {
		switch {
		case unicode.ToLower(s1[p1]) == unicode.ToLower(s2[p2]):
			p1++
			p2++
		case dist == 0:
			return false
		default:
			return prefixEdit(s1, p1+1, s2, p2+1, dist-1) ||
				prefixEdit(s1, p1+1, s2, p2, dist-1) ||
				prefixEdit(s1, p1, s2, p2+1, dist-1)
		}
	}
	return (p1 == p2 || p2 == len(s2)) && p1 == len(s1)
}
