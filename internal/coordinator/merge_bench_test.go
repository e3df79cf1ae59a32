package coordinator

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

func BenchmarkMerge(b *testing.B) {
	for _, shards := range []int{2, 8, 32} {
		b.Run(fmt.Sprintf("shards_%d", shards), func(b *testing.B) {
			lists := make([][]proto.ResultRow, shards)
			for s := range lists {
				rows := make([]proto.ResultRow, 200)
				for i := range rows {
					rows[i] = proto.ResultRow{
						DocID:  uint32(i*shards + s),
						Weight: float64(len(rows) - i),
					}
				}
				lists[s] = rows
			}
			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				_ = Merge(lists, 10, 20)
			}
		})
	}
}
