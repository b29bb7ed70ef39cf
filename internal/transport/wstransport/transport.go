// Package wstransport connects to an interactive session endpoint over WebSocket.
//
// Every packet is one binary message. The handshake packet (channel id and
// stream key) is written immediately after the socket opens.
package wstransport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/interactivectl/internal/conn"
	"github.com/danmuck/interactivectl/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPath         = "/robot"
	defaultWriteTimeout = 10 * time.Second
	defaultInboxSize    = 64
	defaultReadLimit    = 1 << 20
)

type Config struct {
	// Path is appended to the endpoint address.
	Path             string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	InboxSize        int
	Header           http.Header
	// TLS is used for wss:// endpoints. Nil means the system roots.
	TLS *tls.Config
}

func DefaultConfig() Config {
	return Config{
		Path:             DefaultPath,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     defaultWriteTimeout,
		ReadLimit:        defaultReadLimit,
		InboxSize:        defaultInboxSize,
	}
}

type Transport struct {
	cfg    Config
	dialer *websocket.Dialer
}

func New(cfg Config) *Transport {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	return &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig:  cfg.TLS,
		},
	}
}

// LoadCAFile builds a client TLS config trusting the PEM certificates in path.
func LoadCAFile(path string) (*tls.Config, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wstransport: read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("wstransport: no certificates in %s", path)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// URL returns the websocket URL dialed for ep.
func (t *Transport) URL(ep conn.Endpoint) string {
	return strings.TrimRight(ep.Address, "/") + t.cfg.Path
}

// Connect dials ep, writes the handshake packet, and starts the read pump.
func (t *Transport) Connect(ctx context.Context, ep conn.Endpoint) (conn.Connection, error) {
	url := t.URL(ep)
	ws, _, err := t.dialer.DialContext(ctx, url, t.cfg.Header)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(t.cfg.ReadLimit)

	hs, err := wire.Encode(wire.Handshake{Channel: ep.ChannelID, StreamKey: ep.SessionKey})
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	_ = ws.SetWriteDeadline(writeDeadline(ctx, t.cfg.WriteTimeout))
	if err := ws.WriteMessage(websocket.BinaryMessage, hs); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("wstransport: write handshake: %w", err)
	}

	c := &connection{
		ws:           ws,
		writeTimeout: t.cfg.WriteTimeout,
		inbox:        make(chan []byte, t.cfg.InboxSize),
		done:         make(chan struct{}),
		closed:       make(chan struct{}),
	}
	go c.readPump()
	log.Debug().Str("url", url).Uint32("channel_id", ep.ChannelID).Msg("wstransport: connected")
	return c, nil
}

type connection struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	inbox   chan []byte

	// done closes when the read pump stops; readErr is set before that.
	done    chan struct{}
	readErr error

	closeOnce sync.Once
	closed    chan struct{}
}

var expectedCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

func (c *connection) readPump() {
	defer close(c.done)
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case c.isClosed():
				c.readErr = conn.ErrClosed
			case websocket.IsCloseError(err, expectedCloseCodes...):
				c.readErr = conn.ErrPeerClosed
			default:
				c.readErr = err
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			log.Debug().Int("size", len(data)).Msg("wstransport: ignoring non-binary message")
			continue
		}
		select {
		case c.inbox <- data:
		case <-c.closed:
			c.readErr = conn.ErrClosed
			return
		}
	}
}

func (c *connection) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	default:
	}
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.done:
		// deliver anything queued before the pump stopped
		select {
		case data := <-c.inbox:
			return data, nil
		default:
		}
		return nil, c.readErr
	case <-c.closed:
		return nil, conn.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *connection) Send(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed() {
		return conn.ErrClosed
	}
	_ = c.ws.SetWriteDeadline(writeDeadline(ctx, c.writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
		<-c.done
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
	})
	return err
}

func (c *connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func writeDeadline(ctx context.Context, d time.Duration) time.Time {
	deadline := time.Now().Add(d)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}
