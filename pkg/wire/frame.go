// Package wire implements the length-prefixed framing used between the
// coordinator, the statistics aggregator, the shard nodes and the auxiliary
// analyzer and did-you-mean services.
//
// A frame is a 4-byte big-endian payload length followed by the payload.
// Servers keep a connection open and answer one reply frame per request
// frame; clients usually open a connection per logical request.
//
// Example server:
//
//	s := wire.NewServer("statistics", wire.HandlerFunc(func(ctx context.Context, req []byte) []byte {
//	    return []byte("Y")
//	}))
//	go s.Serve(":7183")
//
// Example client:
//
//	reply, err := wire.Request(ctx, "localhost:7183", payload)
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
)

// MaxFrameSize bounds a single payload.
const MaxFrameSize = 64 << 20

const headerSize = 4

// WriteFrame sends payload prefixed with its length in a single write.
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := writeFrame(w, payload)
	return err
}

// writeFrame also reports how many bytes reached w.
func writeFrame(w io.Writer, payload []byte) (int, error) {
	if len(payload) > MaxFrameSize {
		return 0, fmt.Errorf("%w: %d bytes", apperrors.ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)
	n, err := w.Write(buf)
	if err != nil {
		return n, fmt.Errorf("writing frame: %w", err)
	}
	return n, nil
}

// ReadFrame blocks until a whole frame has arrived. A peer that closes the
// stream between frames yields ErrConnectionClosed; one that closes inside a
// frame yields ErrTruncatedFrame, which also matches ErrConnectionClosed.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, apperrors.ErrConnectionClosed
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: %w: header", apperrors.ErrTruncatedFrame, apperrors.ErrConnectionClosed)
		default:
			return nil, fmt.Errorf("reading frame header: %w", err)
		}
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: announced %d bytes", apperrors.ErrFrameTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %w: expected %d payload bytes", apperrors.ErrTruncatedFrame, apperrors.ErrConnectionClosed, size)
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}
