package coordinator

import (
	"cmp"
	"container/heap"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

// cursor walks one shard's rows, which arrive in descending weight order.
type cursor struct {
	rows  []proto.ResultRow
	pos   int
	shard int
}

func (c *cursor) head() *proto.ResultRow {
	return &c.rows[c.pos]
}

// mergeHeap pops the highest weight first. Equal weights go by ascending
// document number, then by shard position.
type mergeHeap []*cursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	a, b := h[i].head(), h[j].head()
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	if a.DocID != b.DocID {
		return a.DocID < b.DocID
	}
	return h[i].shard < h[j].shard
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) {
	*h = append(*h, x.(*cursor))
}

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Merge k-way merges per-shard row lists into the window
// [firstRank, firstRank+maxRanks) of the global order. lists are indexed by
// shard position; nil entries stand for shards that failed.
func Merge(lists [][]proto.ResultRow, firstRank, maxRanks int) []proto.ResultRow {
	limit := firstRank + maxRanks
	h := make(mergeHeap, 0, len(lists))
	for i, rows := range lists {
		if len(rows) > 0 {
			h = append(h, &cursor{rows: rows, shard: i})
		}
	}
	heap.Init(&h)

	merged := make([]proto.ResultRow, 0, min(limit, 64))
	for h.Len() > 0 && len(merged) < limit {
		c := h[0]
		merged = append(merged, *c.head())
		c.pos++
		if c.pos == len(c.rows) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	if firstRank >= len(merged) {
		return []proto.ResultRow{}
	}
	return merged[firstRank:]
}

// AggregateLinks ranks the links referenced by rows. A link's weight is the
// sum over the rows citing it of link weight times row weight. The window
// [first, first+n) of the ranking is returned; equal weights go by link id.
func AggregateLinks(rows []proto.ResultRow, first, n int) []proto.WeightedID {
	sums := make(map[string]float64)
	for _, row := range rows {
		for _, link := range row.Links {
			sums[link.ID] += link.Weight * row.Weight
		}
	}
	ranked := make([]proto.WeightedID, 0, len(sums))
	for id, w := range sums {
		ranked = append(ranked, proto.WeightedID{ID: id, Weight: w})
	}
	slices.SortFunc(ranked, func(x, y proto.WeightedID) int {
		if c := cmp.Compare(y.Weight, x.Weight); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	if first >= len(ranked) {
		return []proto.WeightedID{}
	}
	return ranked[first:min(first+n, len(ranked))]
}
