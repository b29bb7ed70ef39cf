package interactive

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/interactivectl/internal/account"
	"github.com/danmuck/interactivectl/internal/conn"
	"github.com/danmuck/interactivectl/internal/wire"
)

type fakeAccounts struct {
	resolveErr error
	joinErr    error
	resolves   atomic.Int64
	joins      atomic.Int64
}

func (f *fakeAccounts) ResolveIdentity(ctx context.Context, creds account.Credentials) (account.Identity, error) {
	f.resolves.Add(1)
	if f.resolveErr != nil {
		return account.Identity{}, f.resolveErr
	}
	return account.Identity{ChannelID: 7}, nil
}

func (f *fakeAccounts) JoinSession(ctx context.Context, channelID uint32, creds account.Credentials) (account.JoinInfo, error) {
	f.joins.Add(1)
	if f.joinErr != nil {
		return account.JoinInfo{}, f.joinErr
	}
	return account.JoinInfo{Address: "ws://robot.test", Key: "key"}, nil
}

// fakeTransport hands out scripted connections in order. Once the scripts run
// out it either fails (connectErr) or returns idle connections.
type fakeTransport struct {
	mu         sync.Mutex
	connectErr error
	scripts    [][][]byte
	conns      []*fakeConn
	connects   atomic.Int64
}

func (f *fakeTransport) Connect(ctx context.Context, ep conn.Endpoint) (conn.Connection, error) {
	n := f.connects.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if int(n) > len(f.scripts) && f.connectErr != nil {
		return nil, f.connectErr
	}
	c := newFakeConn()
	if int(n) <= len(f.scripts) {
		for _, pkt := range f.scripts[n-1] {
			c.inbox <- pkt
		}
		close(c.inbox)
	}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeTransport) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.conns) {
		return nil
	}
	return f.conns[i]
}

// fakeConn delivers its inbox, then reports ErrPeerClosed once the inbox is
// closed and empty. An inbox that is never closed stays idle.
type fakeConn struct {
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:  make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.inbox:
		if !ok {
			return nil, conn.ErrPeerClosed
		}
		return data, nil
	case <-c.closed:
		return nil, conn.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) sentPackets(t *testing.T) []wire.ProgressUpdate {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.ProgressUpdate, 0, len(c.sent))
	for _, data := range c.sent {
		pkt, err := wire.Decode(data)
		if err != nil {
			t.Fatalf("decode sent packet: %v", err)
		}
		pu, ok := pkt.(wire.ProgressUpdate)
		if !ok {
			t.Fatalf("unexpected sent packet %T", pkt)
		}
		out = append(out, pu)
	}
	return out
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func encode(t *testing.T, p wire.Packet) []byte {
	t.Helper()
	data, err := wire.Encode(p)
	if err != nil {
		t.Fatalf("encode %T: %v", p, err)
	}
	return data
}

func report(t *testing.T, buttons int) []byte {
	t.Helper()
	return encode(t, wire.Report{Tactile: make([]wire.TactileReport, buttons)})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	cfg.ReconnectDelay = time.Millisecond
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

var errDial = errors.New("dial refused")
