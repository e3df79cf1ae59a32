package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
)

// Conn is a client connection to a framed service. IssueRequest is safe for
// concurrent use; requests on one Conn are serialized.
type Conn struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// Dial connects to addr. The dial honours ctx's deadline and cancellation.
// Its errors match ErrRequestNotSent.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w: %w", addr, apperrors.ErrRequestNotSent, contextError(ctx, err))
	}
	return &Conn{
		addr:   addr,
		conn:   conn,
		reader: bufio.NewReader(conn),
	}, nil
}

// Addr returns the remote address the connection was dialed with.
func (c *Conn) Addr() string {
	return c.addr
}

// IssueRequest sends payload and waits for the reply frame. Cancelling ctx
// or reaching its deadline aborts the in-flight read or write. Only a write
// that failed before any byte went out yields ErrRequestNotSent; once the
// frame is on its way the peer may have acted on it.
func (c *Conn) IssueRequest(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(dl)
	} else {
		c.conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if n, err := writeFrame(c.conn, payload); err != nil {
		err = contextError(ctx, err)
		if n == 0 {
			err = fmt.Errorf("%w: %w", apperrors.ErrRequestNotSent, err)
		}
		return nil, err
	}
	reply, err := ReadFrame(c.reader)
	if err != nil {
		return nil, contextError(ctx, err)
	}
	return reply, nil
}

// Close closes the underlying TCP connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Request opens a connection, performs one request/reply exchange and closes
// the connection again.
func Request(ctx context.Context, addr string, payload []byte) ([]byte, error) {
	conn, err := Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.IssueRequest(ctx, payload)
}

// contextError replaces an I/O error caused by ctx ending with one that
// reports why.
func contextError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", apperrors.ErrTimeout, ctx.Err())
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	default:
		return err
	}
}
