package coordinator

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
)

// TermResolver turns query text into the terms sent to the shards.
type TermResolver interface {
	Resolve(ctx context.Context, text string) ([]proto.Term, error)
}

// LocalResolver analyzes queries in process with the engine tokenizer. It
// serves deployments without an analyzer service.
type LocalResolver struct{}

func (LocalResolver) Resolve(_ context.Context, text string) ([]proto.Term, error) {
	seen := make(map[string]struct{})
	var terms []proto.Term
	for _, tok := range engine.Tokenize(text) {
		if _, dup := seen[tok.Term]; dup {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, proto.Term{
			Type:   engine.TermType,
			Value:  tok.Term,
			Length: 1,
			Weight: 1,
		})
	}
	return terms, nil
}
