// Package dispatch routes decoded inbound packets to registered handlers.
//
// At most one handler is registered per packet id. Registering a second
// handler for the same id replaces the first: the last registration wins.
// Packets with no registered handler are ignored, and bytes that do not
// decode to a known packet are reported as unknown. Neither case is an error.
package dispatch

import (
	"context"
	"sync"

	"github.com/danmuck/interactivectl/internal/wire"
)

// Outcome is the result of dispatching one packet.
type Outcome int

const (
	Handled Outcome = iota
	Ignored
	Unknown
)

func (o Outcome) String() string {
	switch o {
	case Handled:
		return "handled"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Handler processes one decoded packet. Returned errors reach the Dispatch caller unchanged.
type Handler func(ctx context.Context, pkt wire.Packet) error

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[wire.ID]Handler
}

func New() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[wire.ID]Handler),
	}
}

// Register installs h for id and reports whether it replaced an earlier handler.
// A nil handler removes the registration.
func (d *Dispatcher) Register(id wire.ID, h Handler) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, replaced := d.handlers[id]
	if h == nil {
		delete(d.handlers, id)
		return replaced
	}
	d.handlers[id] = h
	return replaced
}

func (d *Dispatcher) Registered(id wire.ID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[id]
	return ok
}

// Dispatch invokes the handler registered for pkt. A nil packet, or one whose
// id is outside the catalogue, reports Unknown.
func (d *Dispatcher) Dispatch(ctx context.Context, pkt wire.Packet) (Outcome, error) {
	if pkt == nil || !pkt.PacketID().Known() {
		return Unknown, nil
	}
	d.mu.RLock()
	h, ok := d.handlers[pkt.PacketID()]
	d.mu.RUnlock()
	if !ok {
		return Ignored, nil
	}
	return Handled, h(ctx, pkt)
}
