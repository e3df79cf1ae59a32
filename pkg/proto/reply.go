package proto

import (
	"errors"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
)

const (
	ReplyOK    byte = 'Y'
	ReplyError byte = 'E'
)

// Commands understood by the services.
const (
	CmdQuery   byte = 'Q'
	CmdPublish byte = 'P'
)

var (
	ErrUnknownCommand    = errors.New("unknown command")
	ErrUnknownParameter  = errors.New("unknown parameter")
	ErrUnknownSubCommand = errors.New("unknown statistics server sub command")
	ErrEmptyMessage      = errors.New("empty message")
)

// ErrorReply encodes err as an `E` reply carrying its message.
func ErrorReply(err error) []byte {
	msg := err.Error()
	reply := make([]byte, 0, 1+len(msg))
	reply = append(reply, ReplyError)
	return append(reply, msg...)
}

// OKReply is the bare success reply.
func OKReply() []byte {
	return []byte{ReplyOK}
}

// ParseReply checks the reply header. It returns a reader positioned after a
// `Y`, a *RemoteError for an `E`, or a protocol error for anything else.
func ParseReply(payload []byte) (*Reader, error) {
	if len(payload) == 0 {
		return nil, apperrors.Protocolf("empty reply")
	}
	switch payload[0] {
	case ReplyOK:
		return NewReader(payload[1:]), nil
	case ReplyError:
		return nil, apperrors.Remote(string(payload[1:]))
	default:
		return nil, apperrors.Protocolf("unexpected reply header %q", payload[0])
	}
}
