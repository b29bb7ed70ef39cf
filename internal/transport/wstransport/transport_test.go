package wstransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/interactivectl/internal/conn"
	"github.com/danmuck/interactivectl/internal/testutil/testlog"
	"github.com/danmuck/interactivectl/internal/testutil/tlstest"
	"github.com/danmuck/interactivectl/internal/wire"
	"github.com/gorilla/websocket"
)

// robotServer upgrades /robot, forwards the first message on handshakes, then runs script.
func robotServer(t *testing.T, handshakes chan<- []byte, script func(ws *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/robot", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		handshakes <- data
		script(ws)
	})
	return httptest.NewServer(mux)
}

func wsAddress(srv *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestConnectSendsHandshakeAndReceivesPackets(t *testing.T) {
	testlog.Start(t)
	report, err := wire.Encode(wire.Report{Tactile: make([]wire.TactileReport, 4)})
	if err != nil {
		t.Fatalf("encode report: %v", err)
	}
	handshakes := make(chan []byte, 1)
	srv := robotServer(t, handshakes, func(ws *websocket.Conn) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte("noise"))
		_ = ws.WriteMessage(websocket.BinaryMessage, report)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = ws.ReadMessage()
	})
	defer srv.Close()

	tr := New(DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := tr.Connect(ctx, conn.Endpoint{Address: wsAddress(srv), ChannelID: 77, SessionKey: "k3y"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	select {
	case data := <-handshakes:
		pkt, err := wire.Decode(data)
		if err != nil {
			t.Fatalf("decode handshake: %v", err)
		}
		hs, ok := pkt.(wire.Handshake)
		if !ok || hs.Channel != 77 || hs.StreamKey != "k3y" {
			t.Fatalf("unexpected handshake: %#v", pkt)
		}
	case <-ctx.Done():
		t.Fatalf("server never saw a handshake")
	}

	data, err := c.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	pkt, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if r, ok := pkt.(wire.Report); !ok || r.Cardinality() != 4 {
		t.Fatalf("unexpected packet: %#v", pkt)
	}

	if _, err := c.Receive(ctx); !errors.Is(err, conn.ErrPeerClosed) {
		t.Fatalf("expected ErrPeerClosed, got %v", err)
	}
}

func TestReceiveHonoursContext(t *testing.T) {
	testlog.Start(t)
	handshakes := make(chan []byte, 1)
	release := make(chan struct{})
	srv := robotServer(t, handshakes, func(ws *websocket.Conn) { <-release })
	defer srv.Close()
	defer close(release)

	c, err := New(DefaultConfig()).Connect(context.Background(), conn.Endpoint{Address: wsAddress(srv)})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSendDeliversBinaryAndFailsAfterClose(t *testing.T) {
	testlog.Start(t)
	handshakes := make(chan []byte, 1)
	received := make(chan []byte, 1)
	srv := robotServer(t, handshakes, func(ws *websocket.Conn) {
		msgType, data, err := ws.ReadMessage()
		if err == nil && msgType == websocket.BinaryMessage {
			received <- data
		}
		_, _, _ = ws.ReadMessage()
	})
	defer srv.Close()

	c, err := New(DefaultConfig()).Connect(context.Background(), conn.Endpoint{Address: wsAddress(srv)})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Send(context.Background(), []byte{4, 10, 1, 'x'}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case data := <-received:
		if len(data) != 4 || data[0] != 4 {
			t.Fatalf("unexpected payload: %v", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server never received the payload")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := c.Send(context.Background(), []byte{1}); !errors.Is(err, conn.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := c.Receive(context.Background()); !errors.Is(err, conn.ErrClosed) {
		t.Fatalf("expected ErrClosed on receive, got %v", err)
	}
}

func TestConnectFailsWithoutServer(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := wsAddress(srv)
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := New(DefaultConfig()).Connect(ctx, conn.Endpoint{Address: addr}); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestConnectOverTLS(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir)

	handshakes := make(chan []byte, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		if _, data, err := ws.ReadMessage(); err == nil {
			handshakes <- data
		}
	}))
	srv.TLS = ca.ServerConfig(t)
	srv.StartTLS()
	defer srv.Close()

	tlsCfg, err := LoadCAFile(ca.CAFile())
	if err != nil {
		t.Fatalf("load ca: %v", err)
	}
	cfg := DefaultConfig()
	cfg.TLS = tlsCfg
	addr := "wss://" + strings.TrimPrefix(srv.URL, "https://")
	c, err := New(cfg).Connect(context.Background(), conn.Endpoint{Address: addr, ChannelID: 9})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	select {
	case data := <-handshakes:
		if id, err := wire.PeekID(data); err != nil || id != wire.IDHandshake {
			t.Fatalf("unexpected first packet id=%v err=%v", id, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no handshake over tls")
	}
}

func TestLoadCAFileRejectsGarbage(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadCAFile(t.TempDir() + "/missing.crt"); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestURLJoinsPath(t *testing.T) {
	testlog.Start(t)
	tr := New(DefaultConfig())
	if got := tr.URL(conn.Endpoint{Address: "wss://host:443/"}); got != "wss://host:443/robot" {
		t.Fatalf("unexpected url %q", got)
	}
}
