package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrAlreadyConnected is returned by Connect while an earlier session from
// the same Connector has not been closed
var ErrAlreadyConnected = errors.New("a session is already active")

const (
	// DefaultRetries is how many extra dials follow a not found result
	DefaultRetries   = 3
	DefaultRetryWait = time.Second
)

// ConnectorOptions tune Connect
type ConnectorOptions struct {
	// Retries is the number of extra dial attempts after ErrNotFound.
	// Negative means none.
	Retries    int
	RetryDelay time.Duration
	Session    Options
}

// DefaultConnectorOptions matches what the pad needs in practice
func DefaultConnectorOptions() ConnectorOptions {
	return ConnectorOptions{
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryWait,
	}
}

// Connector hands out at most one live Session at a time
type Connector struct {
	dialer Dialer
	opts   ConnectorOptions

	mu   sync.Mutex
	busy bool
}

// NewConnector returns a Connector dialing through d
func NewConnector(d Dialer, opts ConnectorOptions) *Connector {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Connector{dialer: d, opts: opts}
}

// Connect dials the pad and starts a session. Only ErrNotFound is retried.
// The returned session must be closed before Connect succeeds again.
func (c *Connector) Connect(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	c.busy = true
	c.mu.Unlock()

	t, err := c.dial(ctx)
	if err != nil {
		c.release()
		return nil, err
	}
	s := New(t, c.opts.Session)
	s.onClose = c.release
	return s, nil
}

func (c *Connector) dial(ctx context.Context) (Transport, error) {
	attempts := 1 + c.opts.Retries
	var err error
	for i := 1; i <= attempts; i++ {
		var t Transport
		t, err = c.dialer.Dial(ctx)
		if err == nil {
			log.Debugf("Connected on attempt %d", i)
			return t, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("connect: %w", err)
		}
		if i == attempts {
			break
		}
		log.Infof("No pad found, retrying (%d/%d)", i, c.opts.Retries)
		timer := time.NewTimer(c.opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", attempts, err)
}

func (c *Connector) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}
