package proto

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// Query envelope tags.
const (
	TagFirstRank      byte = 'I'
	TagMaxRanks       byte = 'N'
	TagRestrictDoc    byte = 'D'
	TagScheme         byte = 'M'
	TagCollectionSize byte = 'S'
	TagTerm           byte = 'T'
	TagLink           byte = 'L'
	TagDebug          byte = 'B'
)

// Envelope defaults applied when a tag is absent.
const (
	DefaultMaxRanks uint16 = 20
	DefaultScheme          = "BM25"
)

// Term is a query term together with its global document frequency.
type Term struct {
	Type              string
	Value             string
	Length            uint16
	DocumentFrequency int64
	Weight            float64
	CoversQuery       bool
}

// Key returns the statistics key of t.
func (t Term) Key() TermKey {
	return TermKey{Type: t.Type, Value: t.Value}
}

// LinkFeature is an auxiliary matching feature.
type LinkFeature struct {
	Type   string
	Value  string
	Weight float64
}

// QueryEnvelope is the query sent identically to every shard.
type QueryEnvelope struct {
	Scheme         string
	CollectionSize int64
	FirstRank      uint16
	MaxRanks       uint16
	// RestrictDocs limits candidates when non-empty.
	RestrictDocs *roaring.Bitmap
	Terms        []Term
	Links        []LinkFeature
	Debug        bool
}

// Encode serializes the envelope as a `Q` request.
func (e *QueryEnvelope) Encode() ([]byte, error) {
	w := NewWriter(CmdQuery)
	w.Byte(TagFirstRank).Uint16(e.FirstRank)
	w.Byte(TagMaxRanks).Uint16(e.MaxRanks)
	if e.RestrictDocs != nil {
		it := e.RestrictDocs.Iterator()
		for it.HasNext() {
			w.Byte(TagRestrictDoc).Uint32(it.Next())
		}
	}
	w.Byte(TagScheme).String(e.Scheme)
	w.Byte(TagCollectionSize).Int64(e.CollectionSize)
	for _, t := range e.Terms {
		w.Byte(TagTerm).
			String(t.Type).
			String(t.Value).
			Uint16(t.Length).
			Int64(t.DocumentFrequency).
			Float64(t.Weight).
			Bool(t.CoversQuery)
	}
	for _, l := range e.Links {
		w.Byte(TagLink).String(l.Type).String(l.Value).Float64(l.Weight)
	}
	if e.Debug {
		w.Byte(TagDebug)
	}
	return w.Bytes()
}

// DecodeQueryEnvelope parses a `Q` request. Absent tags keep their defaults.
func DecodeQueryEnvelope(payload []byte) (*QueryEnvelope, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyMessage
	}
	if payload[0] != CmdQuery {
		return nil, fmt.Errorf("%w '%c'", ErrUnknownCommand, payload[0])
	}
	e := &QueryEnvelope{
		Scheme:   DefaultScheme,
		MaxRanks: DefaultMaxRanks,
	}
	r := NewReader(payload[1:])
	var err error
	for !r.Done() {
		tag, _ := r.Byte()
		switch tag {
		case TagFirstRank:
			e.FirstRank, err = r.Uint16()
		case TagMaxRanks:
			e.MaxRanks, err = r.Uint16()
		case TagRestrictDoc:
			var docno uint32
			if docno, err = r.Uint32(); err == nil {
				if e.RestrictDocs == nil {
					e.RestrictDocs = roaring.New()
				}
				e.RestrictDocs.Add(docno)
			}
		case TagScheme:
			e.Scheme, err = r.String()
		case TagCollectionSize:
			e.CollectionSize, err = r.Int64()
		case TagTerm:
			var t Term
			t, err = readTerm(r)
			e.Terms = append(e.Terms, t)
		case TagLink:
			var l LinkFeature
			if l.Type, err = r.String(); err != nil {
				break
			}
			if l.Value, err = r.String(); err != nil {
				break
			}
			if l.Weight, err = r.Float64(); err != nil {
				break
			}
			e.Links = append(e.Links, l)
		case TagDebug:
			e.Debug = true
		default:
			return nil, ErrUnknownParameter
		}
		if err != nil {
			return nil, fmt.Errorf("tag '%c': %w", tag, err)
		}
	}
	return e, nil
}

func readTerm(r *Reader) (Term, error) {
	var t Term
	var err error
	if t.Type, err = r.String(); err != nil {
		return t, err
	}
	if t.Value, err = r.String(); err != nil {
		return t, err
	}
	if t.Length, err = r.Uint16(); err != nil {
		return t, err
	}
	if t.DocumentFrequency, err = r.Int64(); err != nil {
		return t, err
	}
	if t.Weight, err = r.Float64(); err != nil {
		return t, err
	}
	t.CoversQuery, err = r.Bool()
	return t, err
}

// IsStopwordOnly reports whether no term is selective enough to drive the
// candidate set: every term is either unknown (df 0) or appears in at least
// a twelfth of the collection.
func (e *QueryEnvelope) IsStopwordOnly() bool {
	for _, t := range e.Terms {
		if t.DocumentFrequency != 0 && t.DocumentFrequency < e.CollectionSize/12 {
			return false
		}
	}
	return true
}
