package proto

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
)

// Analyzer and did-you-mean request tags.
const (
	TagResultCount byte = 'N'
	TagQueryText   byte = 'X'
	TagSearchText  byte = 'S'
)

// Analyzer reply tags.
const (
	TagAnalyzedTerm byte = 'T'
	TagRelatedTerm  byte = 'R'
	TagTermType     byte = 'T'
	TagTermValue    byte = 'V'
	TagPosition     byte = 'P'
	TagIndex        byte = 'I'
	TagEnd          byte = '_'
	TagProposal     byte = 'P'
)

// TextRequest is the request shape shared by the analyzer (`X` text tag)
// and the did-you-mean service (`S` text tag).
type TextRequest struct {
	Count uint16
	Text  string
}

// EncodeTextRequest builds a `Q` request whose text travels under textTag.
func EncodeTextRequest(req TextRequest, textTag byte) ([]byte, error) {
	w := NewWriter(CmdQuery)
	if req.Count > 0 {
		w.Byte(TagResultCount).Uint16(req.Count)
	}
	w.Byte(textTag).String(req.Text)
	return w.Bytes()
}

// DecodeTextRequest parses a `Q` request with text under textTag. Count
// keeps defaultCount when absent.
func DecodeTextRequest(payload []byte, textTag byte, defaultCount uint16) (TextRequest, error) {
	req := TextRequest{Count: defaultCount}
	if len(payload) == 0 {
		return req, ErrEmptyMessage
	}
	if payload[0] != CmdQuery {
		return req, fmt.Errorf("%w '%c'", ErrUnknownCommand, payload[0])
	}
	r := NewReader(payload[1:])
	var err error
	for !r.Done() {
		tag, _ := r.Byte()
		switch tag {
		case TagResultCount:
			req.Count, err = r.Uint16()
		case textTag:
			req.Text, err = r.String()
		default:
			return req, ErrUnknownParameter
		}
		if err != nil {
			return req, err
		}
	}
	return req, nil
}

// AnalyzedTerm is a search term produced from query text.
type AnalyzedTerm struct {
	Type     string  `json:"type"`
	Value    string  `json:"value"`
	Position uint32  `json:"position"`
	Weight   float64 `json:"weight"`
}

// RelatedTerm is a nearest neighbour of the query in the feature space.
type RelatedTerm struct {
	Value  string  `json:"value"`
	Index  uint32  `json:"index"`
	Weight float64 `json:"weight"`
}

// AnalyzeReply is the analyzer's answer.
type AnalyzeReply struct {
	Terms   []AnalyzedTerm
	Related []RelatedTerm
}

func (a *AnalyzeReply) Encode() ([]byte, error) {
	w := NewWriter(ReplyOK)
	for _, t := range a.Terms {
		w.Byte(TagAnalyzedTerm).
			Byte(TagTermType).String(t.Type).
			Byte(TagTermValue).String(t.Value).
			Byte(TagPosition).Uint32(t.Position).
			Byte(TagWeight).Float64(t.Weight).
			Byte(TagEnd)
	}
	for _, rt := range a.Related {
		w.Byte(TagRelatedTerm).
			Byte(TagTermValue).String(rt.Value).
			Byte(TagIndex).Uint32(rt.Index).
			Byte(TagWeight).Float64(rt.Weight).
			Byte(TagEnd)
	}
	return w.Bytes()
}

// DecodeAnalyzeReply parses the analyzer's answer.
func DecodeAnalyzeReply(payload []byte) (*AnalyzeReply, error) {
	r, err := ParseReply(payload)
	if err != nil {
		return nil, err
	}
	reply := &AnalyzeReply{}
	for !r.Done() {
		kind, _ := r.Byte()
		switch kind {
		case TagAnalyzedTerm:
			var t AnalyzedTerm
			if err := readFields(r, func(tag byte) error {
				var err error
				switch tag {
				case TagTermType:
					t.Type, err = r.String()
				case TagTermValue:
					t.Value, err = r.String()
				case TagPosition:
					t.Position, err = r.Uint32()
				case TagWeight:
					t.Weight, err = r.Float64()
				default:
					err = fmt.Errorf("%w '%c' in analyzed term", ErrUnknownParameter, tag)
				}
				return err
			}); err != nil {
				return nil, err
			}
			reply.Terms = append(reply.Terms, t)
		case TagRelatedTerm:
			var rt RelatedTerm
			if err := readFields(r, func(tag byte) error {
				var err error
				switch tag {
				case TagTermValue:
					rt.Value, err = r.String()
				case TagIndex:
					rt.Index, err = r.Uint32()
				case TagWeight:
					rt.Weight, err = r.Float64()
				default:
					err = fmt.Errorf("%w '%c' in related term", ErrUnknownParameter, tag)
				}
				return err
			}); err != nil {
				return nil, err
			}
			reply.Related = append(reply.Related, rt)
		default:
			return nil, fmt.Errorf("%w '%c' in analyzer reply", ErrUnknownParameter, kind)
		}
	}
	return reply, nil
}

// readFields calls field for every tag up to the `_` terminator.
func readFields(r *Reader, field func(tag byte) error) error {
	for {
		tag, err := r.Byte()
		if err != nil {
			return apperrors.Protocolf("unterminated record")
		}
		if tag == TagEnd {
			return nil
		}
		if err := field(tag); err != nil {
			return err
		}
	}
}

// EncodeProposals builds the did-you-mean reply.
func EncodeProposals(proposals []string) ([]byte, error) {
	w := NewWriter(ReplyOK)
	for _, p := range proposals {
		w.Byte(TagEnd).Byte(TagProposal).String(p)
	}
	return w.Bytes()
}

// DecodeProposals parses the did-you-mean reply.
func DecodeProposals(payload []byte) ([]string, error) {
	r, err := ParseReply(payload)
	if err != nil {
		return nil, err
	}
	var proposals []string
	for !r.Done() {
		tag, _ := r.Byte()
		switch tag {
		case TagEnd:
		case TagProposal:
			p, err := r.String()
			if err != nil {
				return nil, err
			}
			proposals = append(proposals, p)
		default:
			return nil, fmt.Errorf("%w '%c' in proposal reply", ErrUnknownParameter, tag)
		}
	}
	return proposals, nil
}
