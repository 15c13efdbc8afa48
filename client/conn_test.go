package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"agentdash/domain"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func newWSServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnReconnectsAfterClose(t *testing.T) {
	var attempts atomic.Int64
	release := make(chan struct{})
	url := newWSServer(t, func(conn *websocket.Conn) {
		n := attempts.Add(1)
		if n < 3 {
			// Drop the first connections immediately to force reconnects.
			conn.Close()
			return
		}
		<-release
		conn.Close()
	})

	conn := NewConn(url, log.New())
	conn.ReconnectDelay = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn.Start(ctx)
	defer conn.Close()

	waitFor(t, 3*time.Second, func() bool { return attempts.Load() >= 3 }, "expected repeated reconnection attempts")
	waitFor(t, 3*time.Second, conn.Connected, "expected connection to settle")
	close(release)
}

func TestConnDeliversEventsToSubscribers(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"metrics_update","data":{"total_requests":1}}`))
		// Keep the socket open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn := NewConn(url, log.New())
	conn.ReconnectDelay = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := conn.Subscribe()
	conn.Start(ctx)
	defer conn.Close()

	select {
	case ev := <-events:
		if ev.Type != domain.EventMetricsUpdate {
			t.Fatalf("unexpected event type: %s", ev.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected event to reach subscriber")
	}
}

func TestConnDiscardsMalformedMessages(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`this is not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{"x":1}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"activity_created","data":{"id":"a1"}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	conn := NewConn(url, log.New())
	conn.ReconnectDelay = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := conn.Subscribe()
	conn.Start(ctx)
	defer conn.Close()

	select {
	case ev := <-events:
		if ev.Type != domain.EventActivityCreated {
			t.Fatalf("malformed message forwarded: %#v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("valid event after malformed ones never arrived")
	}
	// Malformed frames must not have torn the connection down.
	if !conn.Connected() {
		t.Fatal("connection marked down after malformed messages")
	}
}

func TestConnCloseStopsReconnecting(t *testing.T) {
	var attempts atomic.Int64
	url := newWSServer(t, func(conn *websocket.Conn) {
		attempts.Add(1)
		conn.Close()
	})

	conn := NewConn(url, log.New())
	conn.ReconnectDelay = 10 * time.Millisecond
	conn.Start(context.Background())

	waitFor(t, 3*time.Second, func() bool { return attempts.Load() >= 2 }, "expected at least one reconnect")
	conn.Close()
	if conn.Connected() {
		t.Fatal("closed connection still reports connected")
	}

	settled := attempts.Load()
	time.Sleep(50 * time.Millisecond)
	if attempts.Load() != settled {
		t.Fatal("reconnect attempts continued after Close")
	}
}
