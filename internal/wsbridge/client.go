// Package wsbridge carries pad frames over a WebSocket, one binary message
// per frame. It lets the Bluetooth side run on a different machine than
// the tracker.
package wsbridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/johnelliott/walkpad/pkg/session"
	log "github.com/sirupsen/logrus"
)

var (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// Dialer connects to a bridge at URL
type Dialer struct {
	URL string
}

// Dial connects to the bridge. A bridge that is not up yet, or that has no
// pad behind it, counts as not found so the connector retries.
func (d Dialer) Dial(ctx context.Context) (session.Transport, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusServiceUnavailable {
			return nil, fmt.Errorf("%w: bridge has no pad (HTTP %d)", session.ErrNotFound, resp.StatusCode)
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: bridge not listening: %v", session.ErrNotFound, err)
		}
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	log.Debugf("Connected to bridge %s", d.URL)
	return newConn(conn), nil
}

// Conn is a pad reached through a bridge
type Conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:   ws,
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Conn) readLoop() {
	defer close(c.out)
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.WithError(err).Warn("Bridge connection lost")
			}
			return
		}
		// only binary messages carry frames
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case c.out <- data:
		case <-c.done:
			return
		}
	}
}

// Write sends one frame as a binary message
func (c *Conn) Write(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

// Notifications yields frames from the bridge until it goes away
func (c *Conn) Notifications() <-chan []byte { return c.out }

// Close says goodbye and closes the socket
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
