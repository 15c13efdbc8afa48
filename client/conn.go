package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"agentdash/domain"
)

// DefaultReconnectDelay is the fixed pause between reconnection attempts.
// There is no backoff growth and no retry cap: the monitored system is
// long-lived, so the client keeps trying forever.
const DefaultReconnectDelay = 3 * time.Second

const subscriberBuffer = 16

// Conn maintains the single live connection to the dashboard backend and
// republishes every decoded event to subscribers. Connection failures are
// never raised past this boundary; they are logged and retried.
type Conn struct {
	url string
	log *log.Logger

	// ReconnectDelay overrides the fixed reconnection pause. Set before
	// Start.
	ReconnectDelay time.Duration

	connected atomic.Bool

	mu     sync.Mutex
	subs   map[chan domain.Event]struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConn creates a connection manager for the given websocket URL
// (ws://host/ws). Call Start to begin connecting.
func NewConn(url string, logger *log.Logger) *Conn {
	return &Conn{
		url:            url,
		log:            logger,
		ReconnectDelay: DefaultReconnectDelay,
		subs:           make(map[chan domain.Event]struct{}),
	}
}

// Start launches the connect/read loop. The loop stops when the context is
// cancelled or Close is called.
func (c *Conn) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx)
	}()
}

// Close tears the connection down and stops reconnecting.
func (c *Conn) Close() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Connected reports whether the live channel is currently up. Drives the
// connectivity badge.
func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Subscribe returns a channel receiving every decoded inbound event. Slow
// subscribers lose events rather than stall the read loop.
func (c *Conn) Subscribe() <-chan domain.Event {
	ch := make(chan domain.Event, subscriberBuffer)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel returned by Subscribe.
func (c *Conn) Unsubscribe(ch <-chan domain.Event) {
	c.mu.Lock()
	for sub := range c.subs {
		if sub == ch {
			delete(c.subs, sub)
			close(sub)
			break
		}
	}
	c.mu.Unlock()
}

func (c *Conn) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warnf("live channel connect failed: %v", err)
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		c.connected.Store(true)
		c.log.Debug("live channel connected")
		c.readLoop(ctx, ws)
		c.connected.Store(false)

		ws.Close()
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("live channel closed, reconnecting")
		// The previous socket is fully closed before the next attempt is
		// scheduled; reconnects never overlap.
		if !c.sleep(ctx) {
			return
		}
	}
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) {
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-closed:
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var ev domain.Event
		if err := sonic.Unmarshal(data, &ev); err != nil {
			// Malformed payloads are discarded; they do not affect
			// connection health.
			c.log.Warnf("discarding malformed live message: %v", err)
			continue
		}
		if ev.Type == "" {
			c.log.Warn("discarding live message without type")
			continue
		}
		c.publish(ev)
	}
}

func (c *Conn) publish(ev domain.Event) {
	c.mu.Lock()
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	c.mu.Unlock()
}

func (c *Conn) sleep(ctx context.Context) bool {
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
