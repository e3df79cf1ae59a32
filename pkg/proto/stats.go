package proto

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
)

// Statistics query sub-commands.
const (
	StatsTermLookup     byte = 'T'
	StatsCollectionSize byte = 'N'
)

// TermKey identifies a term in the global statistics.
type TermKey struct {
	Type  string
	Value string
}

// DFChange adjusts the document frequency of one term.
type DFChange struct {
	Key       TermKey
	Increment int64
}

// StatsDelta is a batch of statistics changes produced by a shard.
type StatsDelta struct {
	CollectionSizeChange int64
	Changes              []DFChange
}

// Negate returns the delta that undoes d.
func (d StatsDelta) Negate() StatsDelta {
	out := StatsDelta{
		CollectionSizeChange: -d.CollectionSizeChange,
		Changes:              make([]DFChange, len(d.Changes)),
	}
	for i, c := range d.Changes {
		out.Changes[i] = DFChange{Key: c.Key, Increment: -c.Increment}
	}
	return out
}

// Empty reports whether applying d would change nothing.
func (d StatsDelta) Empty() bool {
	return d.CollectionSizeChange == 0 && len(d.Changes) == 0
}

// Chunks splits d into deltas of at most size df changes each. The
// collection size change travels with the first chunk.
func (d StatsDelta) Chunks(size int) []StatsDelta {
	if size <= 0 || len(d.Changes) <= size {
		return []StatsDelta{d}
	}
	var chunks []StatsDelta
	for start := 0; start < len(d.Changes); start += size {
		end := min(start+size, len(d.Changes))
		chunk := StatsDelta{Changes: d.Changes[start:end]}
		if start == 0 {
			chunk.CollectionSizeChange = d.CollectionSizeChange
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (d StatsDelta) writeTo(w *Writer) {
	w.Int64(d.CollectionSizeChange)
	w.Uint32(uint32(len(d.Changes)))
	for _, c := range d.Changes {
		w.String(c.Key.Type).String(c.Key.Value).Int64(c.Increment)
	}
}

func readStatsDelta(r *Reader) (StatsDelta, error) {
	var d StatsDelta
	var err error
	if d.CollectionSizeChange, err = r.Int64(); err != nil {
		return d, fmt.Errorf("collection size change: %w", err)
	}
	count, err := r.Uint32()
	if err != nil {
		return d, fmt.Errorf("change count: %w", err)
	}
	// each change needs at least 12 bytes
	if int64(count)*12 > int64(r.Remaining()) {
		return d, apperrors.Protocolf("delta announces %d changes in %d bytes", count, r.Remaining())
	}
	d.Changes = make([]DFChange, 0, count)
	for i := uint32(0); i < count; i++ {
		var c DFChange
		if c.Key.Type, err = r.String(); err != nil {
			return d, fmt.Errorf("change %d type: %w", i, err)
		}
		if c.Key.Value, err = r.String(); err != nil {
			return d, fmt.Errorf("change %d value: %w", i, err)
		}
		if c.Increment, err = r.Int64(); err != nil {
			return d, fmt.Errorf("change %d increment: %w", i, err)
		}
		d.Changes = append(d.Changes, c)
	}
	return d, nil
}

// StatsRequest is one of *PublishRequest or *StatsQuery.
type StatsRequest interface {
	statsRequest()
}

// PublishRequest carries a delta from the shard identified by ServerID.
type PublishRequest struct {
	ServerID uint16
	Delta    StatsDelta
}

func (*PublishRequest) statsRequest() {}

func (p *PublishRequest) Encode() ([]byte, error) {
	w := NewWriter(CmdPublish).Uint16(p.ServerID)
	p.Delta.writeTo(w)
	return w.Bytes()
}

// StatsLookup is one sub-command of a statistics query: a document
// frequency lookup for Key, or the collection size when CollectionSize is
// set.
type StatsLookup struct {
	Key            TermKey
	CollectionSize bool
}

// StatsQuery asks for one value per lookup, answered in order.
type StatsQuery struct {
	Lookups []StatsLookup
}

func (*StatsQuery) statsRequest() {}

// NewStatsQuery looks up every key and then the collection size.
func NewStatsQuery(keys []TermKey) *StatsQuery {
	q := &StatsQuery{Lookups: make([]StatsLookup, 0, len(keys)+1)}
	for _, k := range keys {
		q.Lookups = append(q.Lookups, StatsLookup{Key: k})
	}
	q.Lookups = append(q.Lookups, StatsLookup{CollectionSize: true})
	return q
}

func (q *StatsQuery) Encode() ([]byte, error) {
	w := NewWriter(CmdQuery)
	for _, l := range q.Lookups {
		if l.CollectionSize {
			w.Byte(StatsCollectionSize)
			continue
		}
		if len(l.Key.Type) > MaxStringLen || len(l.Key.Value) > MaxStringLen {
			return nil, fmt.Errorf("%w: term too long", apperrors.ErrInvalidInput)
		}
		w.Byte(StatsTermLookup).
			Uint16(uint16(len(l.Key.Type))).
			Uint16(uint16(len(l.Key.Value))).
			Raw([]byte(l.Key.Type)).
			Raw([]byte(l.Key.Value))
	}
	return w.Bytes()
}

// DecodeStatsRequest decodes a publish or query command. The whole payload
// must be consumed.
func DecodeStatsRequest(payload []byte) (StatsRequest, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyMessage
	}
	r := NewReader(payload[1:])
	switch payload[0] {
	case CmdPublish:
		serverID, err := r.Uint16()
		if err != nil {
			return nil, fmt.Errorf("server id: %w", err)
		}
		delta, err := readStatsDelta(r)
		if err != nil {
			return nil, err
		}
		if !r.Done() {
			return nil, apperrors.Protocolf("%d trailing bytes after delta", r.Remaining())
		}
		return &PublishRequest{ServerID: serverID, Delta: delta}, nil
	case CmdQuery:
		q := &StatsQuery{}
		for !r.Done() {
			sub, _ := r.Byte()
			switch sub {
			case StatsTermLookup:
				typeLen, err := r.Uint16()
				if err != nil {
					return nil, err
				}
				valueLen, err := r.Uint16()
				if err != nil {
					return nil, err
				}
				typ, err := r.FixedString(int(typeLen))
				if err != nil {
					return nil, err
				}
				value, err := r.FixedString(int(valueLen))
				if err != nil {
					return nil, err
				}
				q.Lookups = append(q.Lookups, StatsLookup{Key: TermKey{Type: typ, Value: value}})
			case StatsCollectionSize:
				q.Lookups = append(q.Lookups, StatsLookup{CollectionSize: true})
			default:
				return nil, ErrUnknownSubCommand
			}
		}
		return q, nil
	default:
		return nil, fmt.Errorf("%w '%c'", ErrUnknownCommand, payload[0])
	}
}

// EncodeStatsValues builds the `Y` reply to a statistics query.
func EncodeStatsValues(values []int64) []byte {
	w := NewWriter(ReplyOK)
	for _, v := range values {
		w.Int64(v)
	}
	b, _ := w.Bytes()
	return b
}

// DecodeStatsValues parses a statistics query reply holding want values.
func DecodeStatsValues(payload []byte, want int) ([]int64, error) {
	r, err := ParseReply(payload)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != want*8 {
		return nil, apperrors.Protocolf("statistics reply has %d bytes, want %d values", r.Remaining(), want)
	}
	values := make([]int64, want)
	for i := range values {
		values[i], _ = r.Int64()
	}
	return values, nil
}
