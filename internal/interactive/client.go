package interactive

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/interactivectl/internal/account"
	"github.com/danmuck/interactivectl/internal/conn"
	"github.com/danmuck/interactivectl/internal/dispatch"
	"github.com/danmuck/interactivectl/internal/observability"
	"github.com/danmuck/interactivectl/internal/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handlers are the caller's callbacks. Any of them may be nil.
//
// OnConnect, OnReport and OnError run for handshake_ack, report and error
// packets. OnDisconnect runs with the reason every time a connected session
// ends, before any reconnect.
type Handlers struct {
	OnConnect    func(ctx context.Context, ack wire.HandshakeACK) error
	OnReport     func(ctx context.Context, report wire.Report) error
	OnError      func(ctx context.Context, pkt wire.Error) error
	OnDisconnect func(reason error)
}

type Client struct {
	cfg        Config
	creds      account.Credentials
	accounts   account.Service
	transport  conn.Transport
	onDisc     func(reason error)
	dispatcher *dispatch.Dispatcher
	rng        *rand.Rand

	running  atomic.Bool
	attempts atomic.Int64

	mu          sync.RWMutex
	state       State
	reason      error
	handle      *conn.Handle
	connID      uuid.UUID
	cardinality int
	lastState   string
	hasState    bool
}

func New(cfg Config, creds account.Credentials, accounts account.Service, transport conn.Transport, h Handlers) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if accounts == nil || transport == nil {
		return nil, fmt.Errorf("%w: account service and transport required", ErrInvalidConfig)
	}
	c := &Client{
		cfg:         cfg.withDefaults(),
		creds:       creds,
		accounts:    accounts,
		transport:   transport,
		onDisc:      h.OnDisconnect,
		dispatcher:  dispatch.New(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		cardinality: -1,
	}
	if h.OnConnect != nil {
		c.dispatcher.Register(wire.IDHandshakeACK, func(ctx context.Context, pkt wire.Packet) error {
			return h.OnConnect(ctx, pkt.(wire.HandshakeACK))
		})
	}
	if h.OnReport != nil {
		c.dispatcher.Register(wire.IDReport, func(ctx context.Context, pkt wire.Packet) error {
			return h.OnReport(ctx, pkt.(wire.Report))
		})
	}
	if h.OnError != nil {
		c.dispatcher.Register(wire.IDError, func(ctx context.Context, pkt wire.Packet) error {
			return h.OnError(ctx, pkt.(wire.Error))
		})
	}
	return c, nil
}

// Handle installs h for packet id, replacing any earlier handler (including
// one from Handlers). A nil h removes it.
func (c *Client) Handle(id wire.ID, h dispatch.Handler) {
	if c.dispatcher.Register(id, h) {
		log.Debug().Str("packet", id.String()).Msg("interactive: handler replaced")
	}
}

// Start runs the session until it reaches a terminal state and blocks until then.
//
// It returns nil after a clean peer close once no reconnect remains, the
// classified error after a failure that is not retried (or once the retry
// budget is spent), and ctx's error when ctx ends first.
func (c *Client) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.attempts.Store(0)
	c.mu.Lock()
	c.lastState, c.hasState = "", false
	c.mu.Unlock()

	var last error
	for {
		attempt := int(c.attempts.Add(1))
		if attempt > 1 {
			c.setState(StateReconnecting, last)
			delay := NextReconnectDelay(c.cfg.ReconnectDelay, c.cfg.Backoff, attempt-1, c.rng)
			log.Info().Int("attempt", attempt).Dur("delay", delay).AnErr("reason", last).Msg("interactive: reconnecting")
			if err := sleepContext(ctx, delay); err != nil {
				c.setState(StateDisconnected, err)
				return err
			}
		}

		err := c.runAttempt(ctx, attempt)
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.setState(StateDisconnected, ctxErr)
			return ctxErr
		}
		if err == nil {
			if !c.canRetry(attempt) {
				c.setState(StateDisconnected, conn.ErrPeerClosed)
				log.Info().Int("attempt", attempt).Msg("interactive: session closed by peer")
				return nil
			}
			last = conn.ErrPeerClosed
			continue
		}
		if !retryable(err) || !c.canRetry(attempt) {
			c.setState(StateFailed, err)
			log.Error().Err(err).Int("attempt", attempt).Msg("interactive: session failed")
			return err
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("interactive: attempt failed")
		last = err
	}
}

// canRetry reports whether another handshake is allowed after attempt
// handshakes have run.
func (c *Client) canRetry(attempt int) bool {
	if !c.cfg.AutoReconnect {
		return false
	}
	if c.cfg.MaxReconnectAttempts < 0 {
		return true
	}
	return attempt-1 < c.cfg.MaxReconnectAttempts
}

// runAttempt performs one handshake and, once connected, the receive loop.
// A nil result means the peer closed the connection normally.
func (c *Client) runAttempt(ctx context.Context, attempt int) (err error) {
	c.setState(StateHandshaking, nil)
	c.setCardinality(-1)

	started := time.Now()
	h, err := c.handshake(ctx)
	if err != nil {
		observability.RecordHandshake("failed", time.Since(started))
		return err
	}
	observability.RecordHandshake("ok", time.Since(started))

	id := uuid.New()
	c.mu.Lock()
	c.handle = h
	c.connID = id
	c.mu.Unlock()
	c.setState(StateConnected, nil)
	log.Info().
		Int("attempt", attempt).
		Uint32("channel_id", h.Endpoint().ChannelID).
		Str("conn_id", id.String()).
		Msg("interactive: connected")

	defer func() {
		c.mu.Lock()
		c.handle = nil
		c.mu.Unlock()
		if cerr := h.Close(); cerr != nil && !errors.Is(cerr, conn.ErrClosed) {
			log.Debug().Err(cerr).Str("conn_id", id.String()).Msg("interactive: close")
		}
		reason := err
		if reason == nil {
			reason = conn.ErrPeerClosed
		}
		c.setState(StateDisconnected, reason)
		if c.onDisc != nil {
			c.onDisc(reason)
		}
	}()

	if c.cfg.HandlerMode == HandlersQueued {
		return c.receiveQueued(ctx, h)
	}
	return c.receiveInline(ctx, h)
}

func (c *Client) handshake(ctx context.Context) (*conn.Handle, error) {
	ident, err := c.accounts.ResolveIdentity(ctx, c.creds)
	if err != nil {
		return nil, classify(err)
	}
	join, err := c.accounts.JoinSession(ctx, ident.ChannelID, c.creds)
	if err != nil {
		return nil, classify(err)
	}
	h, err := conn.Open(ctx, c.transport, conn.Endpoint{
		Address:    join.Address,
		ChannelID:  ident.ChannelID,
		SessionKey: join.Key,
	})
	if err != nil {
		return nil, classify(err)
	}
	return h, nil
}

func (c *Client) setState(s State, reason error) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.reason = reason
	c.mu.Unlock()
	observability.RecordState(int(s))
	if prev != s {
		log.Debug().Str("from", prev.String()).Str("state", s.String()).AnErr("reason", reason).Msg("interactive: state")
	}
}

func (c *Client) setCardinality(n int) {
	c.mu.Lock()
	c.cardinality = n
	c.mu.Unlock()
}

func (c *Client) currentHandle() *conn.Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// StateReason is the cause recorded with the current state, if any.
func (c *Client) StateReason() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

// LastState is the most recent state label accepted by Send in this Start.
func (c *Client) LastState() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastState, c.hasState
}

// Cardinality is the tactile count from the latest report on this connection.
func (c *Client) Cardinality() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cardinality, c.cardinality >= 0
}

// Attempts counts handshakes started during the current (or last) Start.
func (c *Client) Attempts() int {
	return int(c.attempts.Load())
}

// ConnID identifies the current connection in logs. It is uuid.Nil when
// nothing has connected yet.
func (c *Client) ConnID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connID
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
