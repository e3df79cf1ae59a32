// Package proto defines the binary messages exchanged over pkg/wire frames.
//
// Every payload starts with a one-byte command (requests) or a `Y`/`E` reply
// header, followed by tagged fields. All integers are big-endian; strings are
// a uint16 length followed by the bytes. Each message kind has an explicit
// encoder and a decoder that switches over every tag it accepts and rejects
// anything else.
package proto

import (
	"encoding/binary"
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
)

// MaxStringLen is the longest string a uint16 length prefix can carry.
const MaxStringLen = math.MaxUint16

// Writer appends big-endian fields to a buffer. The first failure is sticky
// and reported by Bytes.
type Writer struct {
	buf []byte
	err error
}

// NewWriter starts a payload with the given command or reply header byte.
func NewWriter(header byte) *Writer {
	return &Writer{buf: []byte{header}}
}

func (w *Writer) Byte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

func (w *Writer) Uint16(v uint16) *Writer {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) Uint32(v uint32) *Writer {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) Int64(v int64) *Writer {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
	return w
}

func (w *Writer) Float64(v float64) *Writer {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
	return w
}

func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.Byte(1)
	}
	return w.Byte(0)
}

// String writes a uint16 length prefix and the bytes of s.
func (w *Writer) String(s string) *Writer {
	if len(s) > MaxStringLen {
		if w.err == nil {
			w.err = fmt.Errorf("%w: string of %d bytes exceeds %d", apperrors.ErrInvalidInput, len(s), MaxStringLen)
		}
		return w
	}
	w.Uint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// Raw appends b unchanged.
func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// Reader consumes big-endian fields from a payload. Reading past the end
// yields an ErrProtocol error.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Done reports whether every byte has been consumed.
func (r *Reader) Done() bool {
	return r.off >= len(r.buf)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Rest returns the unread bytes and consumes them.
func (r *Reader) Rest() []byte {
	rest := r.buf[r.off:]
	r.off = len(r.buf)
	return rest
}

func (r *Reader) take(n int, what string) ([]byte, error) {
	if r.Remaining() < n {
		return nil, apperrors.Protocolf("truncated %s at offset %d", what, r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Byte() (byte, error) {
	b, err := r.take(1, "byte")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.take(2, "uint16")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) Int64() (int64, error) {
	b, err := r.take(8, "int64")
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) Float64() (float64, error) {
	b, err := r.take(8, "float64")
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.Byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *Reader) String() (string, error) {
	n, err := r.Uint16()
	if err != nil {
		return "", err
	}
	return r.FixedString(int(n))
}

// FixedString reads n bytes whose length was transmitted elsewhere.
func (r *Reader) FixedString(n int) (string, error) {
	b, err := r.take(n, "string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
