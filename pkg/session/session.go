package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultPacing is the gap the pad needs between writes before it
	// starts dropping commands
	DefaultPacing = 250 * time.Millisecond
	// DefaultQueueSize bounds the outbound queue
	DefaultQueueSize = 10
	// DefaultWriteGrace is how long Close lets an in-flight write run
	// before cancelling it
	DefaultWriteGrace = time.Second
)

// ErrClosed is reported for requests that were never written because the
// session shut down
var ErrClosed = errors.New("session closed")

// SendError reports a request that could not be written
type SendError struct {
	Request walkingpad.Request
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %v: %v", e.Request, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Options tune a Session
type Options struct {
	// Pacing is the minimum time between the start of two writes
	Pacing time.Duration
	// QueueSize is the number of requests that may wait to be written
	QueueSize int
	// WriteGrace bounds how long Close waits for an in-flight write
	WriteGrace time.Duration
}

func (o Options) withDefaults() Options {
	if o.Pacing <= 0 {
		o.Pacing = DefaultPacing
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.WriteGrace <= 0 {
		o.WriteGrace = DefaultWriteGrace
	}
	return o
}

type pending struct {
	req  walkingpad.Request
	done chan error
}

func (p pending) finish(err error) {
	if p.done != nil {
		p.done <- err
	}
}

// Session is a paced, typed channel to one pad. A single writer goroutine
// owns transport writes and the pacing clock, a single reader goroutine
// decodes notifications and fans them out to subscriptions.
type Session struct {
	transport Transport
	opts      Options

	queue        chan pending
	outDone      chan struct{}
	outOnce      sync.Once
	writerExited chan struct{}
	demuxExited  chan struct{}
	writeCtx     context.Context
	cancelWrite  context.CancelFunc

	mu    sync.Mutex
	err   error
	subs  map[*Subscription]struct{}
	ended bool

	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

// New starts a session over an already connected transport. Most callers
// want Connector.Connect, which also enforces a single active session.
func New(t Transport, opts Options) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		transport:    t,
		opts:         opts,
		queue:        make(chan pending, opts.QueueSize),
		outDone:      make(chan struct{}),
		writerExited: make(chan struct{}),
		demuxExited:  make(chan struct{}),
		writeCtx:     ctx,
		cancelWrite:  cancel,
		subs:         make(map[*Subscription]struct{}),
	}
	go s.writeLoop()
	go s.demux()
	return s
}

// Submit queues a request and returns once it is queued. It only blocks
// while the outbound queue is full. A failed write of a submitted request
// shuts the outbound side: Err returns the failure and every later Submit
// or Send returns a SendError wrapping it. Use Send to learn the outcome of
// one request.
func (s *Session) Submit(ctx context.Context, req walkingpad.Request) error {
	return s.enqueue(ctx, pending{req: req})
}

// Send queues a request and waits until it has been written
func (s *Session) Send(ctx context.Context, req walkingpad.Request) error {
	p := pending{req: req, done: make(chan error, 1)}
	if err := s.enqueue(ctx, p); err != nil {
		return err
	}
	select {
	case err := <-p.done:
		return err
	case <-s.outDone:
		// the writer either finished this request or will drain it on exit
		<-s.writerExited
		select {
		case err := <-p.done:
			return err
		default:
			return s.closedErr(req)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) enqueue(ctx context.Context, p pending) error {
	select {
	case <-s.outDone:
		return s.closedErr(p.req)
	default:
	}
	select {
	case s.queue <- p:
		return nil
	case <-s.outDone:
		return s.closedErr(p.req)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) closedErr(req walkingpad.Request) error {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err == nil {
		err = ErrClosed
	}
	return &SendError{Request: req, Err: err}
}

// Err returns the write error that stopped the outbound side, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) stopOutbound(err error) {
	s.outOnce.Do(func() {
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
		close(s.outDone)
	})
}

func (s *Session) writeLoop() {
	defer close(s.writerExited)
	defer s.drain()

	var lastWrite time.Time
	for {
		var p pending
		select {
		case <-s.outDone:
			return
		case p = <-s.queue:
		}

		if !lastWrite.IsZero() {
			if wait := s.opts.Pacing - time.Since(lastWrite); wait > 0 {
				log.Tracef("Pacing %v before %v", wait, p.req)
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-s.outDone:
					timer.Stop()
					p.finish(s.closedErr(p.req))
					return
				}
			}
		}

		lastWrite = time.Now()
		frame := p.req.Bytes()
		log.Tracef("Writing %v % x", p.req, frame)
		if err := s.transport.Write(s.writeCtx, frame); err != nil {
			log.WithError(err).Warnf("Write %v failed, closing outbound", p.req)
			s.stopOutbound(err)
			p.finish(&SendError{Request: p.req, Err: err})
			return
		}
		p.finish(nil)
	}
}

// drain fails everything still queued once the writer stops
func (s *Session) drain() {
	for {
		select {
		case p := <-s.queue:
			p.finish(s.closedErr(p.req))
		default:
			return
		}
	}
}

func (s *Session) demux() {
	defer close(s.demuxExited)
	for raw := range s.transport.Notifications() {
		r, err := walkingpad.ParseResponse(raw)
		if err != nil {
			log.WithError(err).Warnf("Dropping notification % x", raw)
			continue
		}
		log.Tracef("<-- %v", r)
		s.mu.Lock()
		for sub := range s.subs {
			sub.push(r)
		}
		s.mu.Unlock()
	}
	log.Debug("Notification stream ended")

	s.mu.Lock()
	s.ended = true
	for sub := range s.subs {
		sub.end()
	}
	s.mu.Unlock()
	s.stopOutbound(nil)
}

// Subscribe returns a subscription that receives every response decoded
// from now on
func (s *Session) Subscribe() *Subscription {
	sub := newSubscription(s.unsubscribe)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		sub.end()
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

func (s *Session) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// Done is closed once the inbound stream has ended, either from Close or
// because the pad went away
func (s *Session) Done() <-chan struct{} { return s.demuxExited }

// Close stops the writer, lets an in-flight write finish or cancels it after
// WriteGrace, then closes the transport and waits for subscriptions to see
// end of stream
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.stopOutbound(nil)
		grace := time.NewTimer(s.opts.WriteGrace)
		select {
		case <-s.writerExited:
			grace.Stop()
		case <-grace.C:
			log.Warnf("Write still running after %v, cancelling it", s.opts.WriteGrace)
			s.cancelWrite()
			<-s.writerExited
		}
		s.cancelWrite()
		s.closeErr = s.transport.Close()
		<-s.demuxExited
		if s.onClose != nil {
			s.onClose()
		}
	})
	return s.closeErr
}
