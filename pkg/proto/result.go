package proto

import (
	"fmt"
)

// Shard reply tags.
const (
	TagServerID  byte = 'Z'
	TagRow       byte = '_'
	TagDocID     byte = 'D'
	TagWeight    byte = 'W'
	TagLinkID    byte = 'L'
	TagTitle     byte = 'T'
	TagFeature   byte = 'F'
	TagParaTitle byte = 'P'
	TagTrace     byte = 'B'
	TagAbstract  byte = 'A'
)

// Query schemes with a row layout of their own.
const (
	SchemeNearLinks   = "NBLNK"
	SchemeTitleLinks  = "TILNK"
	SchemeVectorLinks = "VCLNK"
	SchemeStdLinks    = "STDLNK"
)

// RowKind selects the scheme-specific layout of result rows.
type RowKind int

const (
	RowText RowKind = iota
	RowLinks
	RowStdLinks
)

// RowKindOf maps a scheme name to its row layout.
func RowKindOf(scheme string) RowKind {
	switch scheme {
	case SchemeNearLinks, SchemeTitleLinks, SchemeVectorLinks:
		return RowLinks
	case SchemeStdLinks:
		return RowStdLinks
	default:
		return RowText
	}
}

// AggregatesLinks reports whether the coordinator ranks the links of a
// scheme's rows in addition to the rows themselves.
func AggregatesLinks(scheme string) bool {
	return scheme == SchemeNearLinks || scheme == SchemeTitleLinks
}

// WeightedID is a weighted link, title or feature reference.
type WeightedID struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// ResultRow is one ranked document. Which payload fields are set depends on
// the row kind of the query scheme.
type ResultRow struct {
	DocID     uint32       `json:"docno"`
	Weight    float64      `json:"weight"`
	Title     string       `json:"title,omitempty"`
	ParaTitle string       `json:"paratitle,omitempty"`
	Abstract  string       `json:"abstract,omitempty"`
	Debug     string       `json:"debug,omitempty"`
	Links     []WeightedID `json:"links,omitempty"`
	Titles    []WeightedID `json:"titles,omitempty"`
	Features  []WeightedID `json:"features,omitempty"`
}

// ShardReply is a shard's ranked answer, rows in descending weight order.
type ShardReply struct {
	ServerID uint16
	Rows     []ResultRow
}

// Encode serializes the reply using the row layout of kind.
func (s *ShardReply) Encode(kind RowKind) ([]byte, error) {
	w := NewWriter(ReplyOK)
	w.Byte(TagServerID).Uint16(s.ServerID)
	for _, row := range s.Rows {
		w.Byte(TagRow).Byte(TagDocID).Uint32(row.DocID).Byte(TagWeight).Float64(row.Weight)
		switch kind {
		case RowLinks:
			writeWeighted(w, TagLinkID, row.Links)
		case RowStdLinks:
			writeWeighted(w, TagLinkID, row.Links)
			writeWeighted(w, TagTitle, row.Titles)
			writeWeighted(w, TagFeature, row.Features)
		case RowText:
			w.Byte(TagTitle).String(row.Title)
			if row.ParaTitle != "" {
				w.Byte(TagParaTitle).String(row.ParaTitle)
			}
			if row.Debug != "" {
				w.Byte(TagTrace).String(row.Debug)
			}
			w.Byte(TagAbstract).String(row.Abstract)
		}
	}
	return w.Bytes()
}

func writeWeighted(w *Writer, tag byte, items []WeightedID) {
	for _, it := range items {
		w.Byte(tag).String(it.ID).Float64(it.Weight)
	}
}

// DecodeShardReply parses a shard answer. An `E` reply is returned as a
// *RemoteError; rows before a malformed field are never returned.
func DecodeShardReply(payload []byte, kind RowKind) (*ShardReply, error) {
	r, err := ParseReply(payload)
	if err != nil {
		return nil, err
	}
	reply := &ShardReply{}
	var row *ResultRow
	for !r.Done() {
		tag, _ := r.Byte()
		if tag != TagServerID && tag != TagRow && row == nil {
			return nil, fmt.Errorf("%w: tag '%c' before first row", ErrUnknownParameter, tag)
		}
		switch {
		case tag == TagServerID:
			reply.ServerID, err = r.Uint16()
		case tag == TagRow:
			reply.Rows = append(reply.Rows, ResultRow{})
			row = &reply.Rows[len(reply.Rows)-1]
		case tag == TagDocID:
			row.DocID, err = r.Uint32()
		case tag == TagWeight:
			row.Weight, err = r.Float64()
		case tag == TagLinkID && kind != RowText:
			row.Links, err = readWeighted(r, row.Links)
		case tag == TagTitle && kind == RowStdLinks:
			row.Titles, err = readWeighted(r, row.Titles)
		case tag == TagFeature && kind == RowStdLinks:
			row.Features, err = readWeighted(r, row.Features)
		case tag == TagTitle && kind == RowText:
			row.Title, err = r.String()
		case tag == TagParaTitle && kind == RowText:
			row.ParaTitle, err = r.String()
		case tag == TagTrace && kind == RowText:
			row.Debug, err = r.String()
		case tag == TagAbstract && kind == RowText:
			row.Abstract, err = r.String()
		default:
			return nil, fmt.Errorf("%w '%c' in shard reply", ErrUnknownParameter, tag)
		}
		if err != nil {
			return nil, fmt.Errorf("shard reply tag '%c': %w", tag, err)
		}
	}
	return reply, nil
}

func readWeighted(r *Reader, dst []WeightedID) ([]WeightedID, error) {
	id, err := r.String()
	if err != nil {
		return dst, err
	}
	weight, err := r.Float64()
	if err != nil {
		return dst, err
	}
	return append(dst, WeightedID{ID: id, Weight: weight}), nil
}
