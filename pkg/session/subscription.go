package session

import (
	"sync"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
)

// Subscription receives every response decoded after it was created, in
// arrival order. Its queue is unbounded so a slow reader never loses
// frames and never stalls other subscribers. C is closed once the
// inbound stream ends or Unsubscribe is called.
type Subscription struct {
	out chan walkingpad.Response

	mu      sync.Mutex
	pending []walkingpad.Response
	wake    chan struct{}
	closed  bool
	stop    chan struct{}
	once    sync.Once
	release func(*Subscription)
}

func newSubscription(release func(*Subscription)) *Subscription {
	s := &Subscription{
		out:     make(chan walkingpad.Response),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		release: release,
	}
	go s.pump()
	return s
}

// C yields responses
func (s *Subscription) C() <-chan walkingpad.Response { return s.out }

// Unsubscribe stops delivery and closes C. Queued responses are dropped.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.stop)
		if s.release != nil {
			s.release(s)
		}
	})
}

func (s *Subscription) push(r walkingpad.Response) {
	s.mu.Lock()
	if !s.closed {
		s.pending = append(s.pending, r)
	}
	s.mu.Unlock()
	s.signal()
}

// end marks the inbound stream finished, C closes after the queue drains
func (s *Subscription) end() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		next := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.stop:
			return
		}
	}
}
