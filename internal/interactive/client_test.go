package interactive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/interactivectl/internal/account"
	"github.com/danmuck/interactivectl/internal/conn"
	"github.com/danmuck/interactivectl/internal/testutil/testlog"
	"github.com/danmuck/interactivectl/internal/wire"
	"github.com/google/uuid"
)

func TestStartRetriesWithinBudget(t *testing.T) {
	testlog.Start(t)
	accounts := &fakeAccounts{}
	transport := &fakeTransport{connectErr: errDial}
	cfg := testConfig()
	cfg.AutoReconnect = true
	cfg.MaxReconnectAttempts = 2

	c, err := New(cfg, account.Credentials{Token: "t"}, accounts, transport, Handlers{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = c.Start(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
	if !errors.Is(err, errDial) {
		t.Fatalf("cause missing from %v", err)
	}
	if got := transport.connects.Load(); got != 3 {
		t.Fatalf("expected 3 handshakes, got %d", got)
	}
	if got := accounts.resolves.Load(); got != 3 {
		t.Fatalf("expected 3 identity lookups, got %d", got)
	}
	if c.Attempts() != 3 || c.State() != StateFailed {
		t.Fatalf("unexpected attempts=%d state=%s", c.Attempts(), c.State())
	}
}

func TestStartWithoutAutoReconnectFailsOnce(t *testing.T) {
	testlog.Start(t)
	accounts := &fakeAccounts{joinErr: fmt.Errorf("%w: 502", account.ErrConnectionFailed)}
	transport := &fakeTransport{}
	cfg := testConfig()
	cfg.MaxReconnectAttempts = 10

	c, err := New(cfg, account.Credentials{Token: "t"}, accounts, transport, Handlers{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
	if accounts.joins.Load() != 1 || transport.connects.Load() != 0 {
		t.Fatalf("expected one join and no connect, got joins=%d connects=%d", accounts.joins.Load(), transport.connects.Load())
	}
}

func TestInvalidAuthenticationIsNeverRetried(t *testing.T) {
	testlog.Start(t)
	accounts := &fakeAccounts{resolveErr: fmt.Errorf("%w: login response has no channel id", account.ErrInvalidAuthentication)}
	transport := &fakeTransport{}
	cfg := testConfig()
	cfg.AutoReconnect = true
	cfg.MaxReconnectAttempts = -1

	c, err := New(cfg, account.Credentials{Username: "u", Password: "p"}, accounts, transport, Handlers{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = c.Start(context.Background())
	if !errors.Is(err, ErrInvalidAuthentication) || !errors.Is(err, account.ErrInvalidAuthentication) {
		t.Fatalf("expected invalid authentication, got %v", err)
	}
	if errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("credential failure classified as connection failure: %v", err)
	}
	if accounts.resolves.Load() != 1 || transport.connects.Load() != 0 {
		t.Fatalf("unexpected retries: resolves=%d connects=%d", accounts.resolves.Load(), transport.connects.Load())
	}
}

func TestSendBeforeConnect(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{}
	c, err := New(testConfig(), account.Credentials{Token: "t"}, &fakeAccounts{}, transport, Handlers{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Send(context.Background(), map[string]any{"state": "x"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := c.SetState(context.Background(), "x"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected from SetState, got %v", err)
	}
	if err := c.TactileFire(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected from TactileFire, got %v", err)
	}
	if err := c.TactileCooldown(context.Background(), 100, 1); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected from TactileCooldown, got %v", err)
	}
	if transport.connects.Load() != 0 {
		t.Fatalf("send performed transport I/O")
	}
	if _, ok := c.LastState(); ok {
		t.Fatalf("state cached without a send")
	}
}

func TestUnknownPacketDoesNotHaltReceiveLoop(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{scripts: [][][]byte{{
		{0x09, 0x01},       // id 9 is outside the catalogue
		{0x02, 0x0a, 0xff}, // report with a truncated field
		{},
		report(t, 3),
	}}}
	var reports []int
	h := Handlers{
		OnReport: func(ctx context.Context, r wire.Report) error {
			reports = append(reports, r.Cardinality())
			return nil
		},
	}
	c, err := New(testConfig(), account.Credentials{Token: "t"}, &fakeAccounts{}, transport, h)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	if len(reports) != 1 || reports[0] != 3 {
		t.Fatalf("expected one report with 3 buttons, got %v", reports)
	}
	if c.State() != StateDisconnected || !errors.Is(c.StateReason(), conn.ErrPeerClosed) {
		t.Fatalf("unexpected final state %s (%v)", c.State(), c.StateReason())
	}
	if !transport.conn(0).isClosed() {
		t.Fatalf("connection not released")
	}
}

func TestReportSetsCardinalityBeforeHandler(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{scripts: [][][]byte{{report(t, 2)}}}
	var c *Client
	var seen int
	h := Handlers{
		OnReport: func(ctx context.Context, r wire.Report) error {
			n, ok := c.Cardinality()
			if !ok {
				return errors.New("cardinality unknown inside report handler")
			}
			seen = n
			return c.TactileFire(ctx)
		},
	}
	c, err := New(testConfig(), account.Credentials{Token: "t"}, &fakeAccounts{}, transport, h)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if seen != 2 {
		t.Fatalf("expected cardinality 2, got %d", seen)
	}

	sent := transport.conn(0).sentPackets(t)
	if len(sent) != 2 {
		t.Fatalf("expected fire on and off, got %d packets", len(sent))
	}
	for i, want := range []bool{true, false} {
		tu := sent[i].Update.Tactile
		if len(tu) != 2 || tu[0].ID != 0 || tu[1].ID != 1 {
			t.Fatalf("packet %d: unexpected ids %+v", i, tu)
		}
		for _, e := range tu {
			if f, ok := e.Fired.Get(); !ok || f != want {
				t.Fatalf("packet %d: expected fired=%v, got %v", i, want, e.Fired)
			}
			if e.CooldownMS.IsSet() || e.Progress.IsSet() || e.Disabled.IsSet() {
				t.Fatalf("packet %d: unexpected fields %+v", i, e)
			}
		}
	}
}

func TestTactileHelpersNeedCardinality(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{scripts: [][][]byte{{encode(t, wire.HandshakeACK{})}}}
	var c *Client
	var fireErr, cooldownErr, explicitErr error
	h := Handlers{
		OnConnect: func(ctx context.Context, _ wire.HandshakeACK) error {
			fireErr = c.TactileFire(ctx)
			cooldownErr = c.TactileCooldown(ctx, 250)
			explicitErr = c.TactileCooldown(ctx, 250, 4, 5)
			return nil
		},
	}
	c, err := New(testConfig(), account.Credentials{Token: "t"}, &fakeAccounts{}, transport, h)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !errors.Is(fireErr, ErrUnknownCardinality) || !errors.Is(cooldownErr, ErrUnknownCardinality) {
		t.Fatalf("expected ErrUnknownCardinality, got fire=%v cooldown=%v", fireErr, cooldownErr)
	}
	if explicitErr != nil {
		t.Fatalf("explicit ids should not need cardinality: %v", explicitErr)
	}
	sent := transport.conn(0).sentPackets(t)
	if len(sent) != 1 {
		t.Fatalf("expected one cooldown packet, got %d", len(sent))
	}
	tu := sent[0].Update.Tactile
	if len(tu) != 2 || tu[0].ID != 4 || tu[1].CooldownMS.Or(0) != 250 {
		t.Fatalf("unexpected cooldown packet %+v", tu)
	}
}

func TestHandlerErrorPropagatesWithoutRetry(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("boom")
	transport := &fakeTransport{scripts: [][][]byte{{report(t, 1), report(t, 1)}}}
	calls := 0
	h := Handlers{
		OnReport: func(ctx context.Context, r wire.Report) error {
			calls++
			return boom
		},
	}
	cfg := testConfig()
	cfg.AutoReconnect = true
	c, err := New(cfg, account.Credentials{Token: "t"}, &fakeAccounts{}, transport, h)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = c.Start(context.Background())
	if !errors.Is(err, ErrHandler) || !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if calls != 1 || transport.connects.Load() != 1 {
		t.Fatalf("expected one call and one connect, got calls=%d connects=%d", calls, transport.connects.Load())
	}
}

func TestHandlerErrorsCanBeLogged(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{scripts: [][][]byte{{report(t, 1), report(t, 2)}}}
	calls := 0
	h := Handlers{
		OnReport: func(ctx context.Context, r wire.Report) error {
			calls++
			return errors.New("ignored")
		},
	}
	cfg := testConfig()
	cfg.HandlerErrors = LogHandlerErrors
	c, err := New(cfg, account.Credentials{Token: "t"}, &fakeAccounts{}, transport, h)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both reports handled, got %d", calls)
	}
}

func TestReceiveTimeout(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{}
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	var reasons []error
	h := Handlers{OnDisconnect: func(reason error) { reasons = append(reasons, reason) }}
	c, err := New(cfg, account.Credentials{Token: "t"}, &fakeAccounts{}, transport, h)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = c.Start(context.Background())
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if len(reasons) != 1 || !errors.Is(reasons[0], ErrTimedOut) {
		t.Fatalf("expected one timed out disconnect, got %v", reasons)
	}
	if c.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", c.State())
	}
}

func TestTimeoutReconnectsWithinBudget(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{}
	cfg := testConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.AutoReconnect = true
	cfg.MaxReconnectAttempts = 1
	c, err := New(cfg, account.Credentials{Token: "t"}, &fakeAccounts{}, transport, Handlers{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if transport.connects.Load() != 2 {
		t.Fatalf("expected 2 connects, got %d", transport.connects.Load())
	}
}

func TestCleanCloseReconnectsWhenEnabled(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{scripts: [][][]byte{{report(t, 1)}, {report(t, 1)}}}
	disconnects := 0
	cfg := testConfig()
	cfg.AutoReconnect = true
	cfg.MaxReconnectAttempts = 1
	h := Handlers{OnDisconnect: func(reason error) {
		if errors.Is(reason, conn.ErrPeerClosed) {
			disconnects++
		}
	}}
	c, err := New(cfg, account.Credentials{Token: "t"}, &fakeAccounts{}, transport, h)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("expected nil after budget on clean close, got %v", err)
	}
	if transport.connects.Load() != 2 || disconnects != 2 {
		t.Fatalf("expected 2 connects and disconnects, got %d and %d", transport.connects.Load(), disconnects)
	}
}

func TestCancelDuringReconnectDelay(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{connectErr: errDial}
	cfg := testConfig()
	cfg.AutoReconnect = true
	cfg.ReconnectDelay = time.Hour
	c, err := New(cfg, account.Credentials{Token: "t"}, &fakeAccounts{}, transport, Handlers{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	waitFor(t, "reconnecting state", func() bool { return c.State() == StateReconnecting })
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("start did not return after cancel")
	}
	if transport.connects.Load() != 1 {
		t.Fatalf("expected a single connect, got %d", transport.connects.Load())
	}
}

func TestCancelWhileConnectedReleasesConnection(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{}
	cfg := testConfig()
	cfg.Timeout = time.Hour
	c, err := New(cfg, account.Credentials{Token: "t"}, &fakeAccounts{}, transport, Handlers{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	waitFor(t, "connected state", func() bool { return c.State() == StateConnected })
	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if c.ConnID() == uuid.Nil {
		t.Fatalf("connection id not assigned")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !transport.conn(0).isClosed() {
		t.Fatalf("connection leaked after cancel")
	}
	if err := c.SetState(context.Background(), "late"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after teardown, got %v", err)
	}
}

func TestQueuedModeKeepsReceiveOrder(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{scripts: [][][]byte{{report(t, 1), report(t, 2), report(t, 3), report(t, 4)}}}
	var mu sync.Mutex
	var order []int
	h := Handlers{
		OnReport: func(ctx context.Context, r wire.Report) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, r.Cardinality())
			mu.Unlock()
			return nil
		},
	}
	cfg := testConfig()
	cfg.HandlerMode = HandlersQueued
	c, err := New(cfg, account.Credentials{Token: "t"}, &fakeAccounts{}, transport, h)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 4 {
		t.Fatalf("expected 4 reports, got %v", order)
	}
	for i, n := range order {
		if n != i+1 {
			t.Fatalf("reports out of order: %v", order)
		}
	}
}

func TestQueuedModePropagatesHandlerError(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("queued boom")
	transport := &fakeTransport{scripts: [][][]byte{{report(t, 1)}}}
	h := Handlers{OnReport: func(ctx context.Context, r wire.Report) error { return boom }}
	cfg := testConfig()
	cfg.HandlerMode = HandlersQueued
	c, err := New(cfg, account.Credentials{Token: "t"}, &fakeAccounts{}, transport, h)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestHandleReplacesRegisteredHandler(t *testing.T) {
	testlog.Start(t)
	transport := &fakeTransport{scripts: [][][]byte{{encode(t, wire.Error{Message: "bad"})}}}
	first, second := 0, 0
	h := Handlers{OnError: func(ctx context.Context, e wire.Error) error { first++; return nil }}
	c, err := New(testConfig(), account.Credentials{Token: "t"}, &fakeAccounts{}, transport, h)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Handle(wire.IDError, func(ctx context.Context, pkt wire.Packet) error {
		if e, ok := pkt.(wire.Error); ok && e.Message == "bad" {
			second++
		}
		return nil
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if first != 0 || second != 1 {
		t.Fatalf("last registration should win: first=%d second=%d", first, second)
	}
}

func TestNewRequiresTimeout(t *testing.T) {
	testlog.Start(t)
	_, err := New(DefaultConfig(), account.Credentials{Token: "t"}, &fakeAccounts{}, &fakeTransport{}, Handlers{})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
