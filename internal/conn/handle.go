// Package conn is the session's façade over a Transport connection.
//
// Ownership boundary:
// - open/send/receive-with-timeout/close on one connection
// - serialized writes
// - the endpoint identifiers of the current session
package conn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrOpenFailed = errors.New("conn: open failed")
	ErrTimedOut   = errors.New("conn: receive timed out")
	ErrPeerClosed = errors.New("conn: peer closed connection")
	ErrClosed     = errors.New("conn: connection closed")
	ErrNoEndpoint = errors.New("conn: endpoint address required")
)

// Endpoint identifies one joined interactive session.
type Endpoint struct {
	Address    string
	ChannelID  uint32
	SessionKey string
}

func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Address) == "" {
		return ErrNoEndpoint
	}
	return nil
}

// Transport opens connections to a session endpoint.
type Transport interface {
	Connect(ctx context.Context, ep Endpoint) (Connection, error)
}

// Connection moves whole encoded packets.
//
// Receive blocks until a packet arrives, ctx ends, or the connection stops.
// A normal close by the peer is reported as ErrPeerClosed.
type Connection interface {
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Handle wraps one open Connection for the lifetime of a session.
type Handle struct {
	ep   Endpoint
	conn Connection

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// Open connects through t and returns a Handle. Failures match ErrOpenFailed.
func Open(ctx context.Context, t Transport, ep Endpoint) (*Handle, error) {
	if err := ep.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
	c, err := t.Connect(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, ep.Address, err)
	}
	return &Handle{
		ep:     ep,
		conn:   c,
		closed: make(chan struct{}),
	}, nil
}

func (h *Handle) Endpoint() Endpoint {
	return h.ep
}

// Send writes one encoded packet. Concurrent callers never interleave.
func (h *Handle) Send(ctx context.Context, data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	select {
	case <-h.closed:
		return ErrClosed
	default:
	}
	return h.conn.Send(ctx, data)
}

// ReceiveWithTimeout waits up to d for the next packet.
func (h *Handle) ReceiveWithTimeout(ctx context.Context, d time.Duration) ([]byte, error) {
	select {
	case <-h.closed:
		return nil, ErrClosed
	default:
	}
	waitCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	data, err := h.conn.Receive(waitCtx)
	if err == nil {
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrTimedOut, d)
	}
	return nil, err
}

func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.closeErr = h.conn.Close()
	})
	return h.closeErr
}
