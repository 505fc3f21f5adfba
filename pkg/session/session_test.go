package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
)

type write struct {
	at    time.Time
	frame []byte
}

// fakeTransport records writes and lets tests inject notifications
type fakeTransport struct {
	mu       sync.Mutex
	writes   []write
	failAt   int
	notify   chan []byte
	once     sync.Once
	closed   chan struct{}
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failAt: -1,
		notify: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) Write(ctx context.Context, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt == len(f.writes) {
		return f.writeErr
	}
	f.writes = append(f.writes, write{time.Now(), append([]byte(nil), frame...)})
	return nil
}

func (f *fakeTransport) Notifications() <-chan []byte { return f.notify }

func (f *fakeTransport) Close() error {
	f.once.Do(func() {
		close(f.closed)
		close(f.notify)
	})
	return nil
}

func (f *fakeTransport) recorded() []write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]write(nil), f.writes...)
}

func stateNotification(m walkingpad.MotorState) []byte {
	return walkingpad.EncodeResponse(walkingpad.LiveState{MotorState: m, Speed: 20})
}

func receive(t *testing.T, sub *Subscription) walkingpad.Response {
	t.Helper()
	select {
	case r, ok := <-sub.C():
		if !ok {
			t.Fatal("Subscription closed early")
		}
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for response")
	}
	return nil
}

func TestSessionPacing(t *testing.T) {
	ft := newFakeTransport()
	pacing := 60 * time.Millisecond
	s := New(ft, Options{Pacing: pacing})
	defer s.Close()

	ctx := context.Background()
	reqs := []walkingpad.Request{
		walkingpad.Start(),
		walkingpad.SetSpeed(25),
		walkingpad.QueryState(),
	}
	for _, r := range reqs[:2] {
		if err := s.Submit(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Send(ctx, reqs[2]); err != nil {
		t.Fatal(err)
	}

	writes := ft.recorded()
	if len(writes) != len(reqs) {
		t.Fatalf("Expected %d writes, got %d", len(reqs), len(writes))
	}
	for i, w := range writes {
		expected := fmt.Sprintf("% 0#x", reqs[i].Bytes())
		if result := fmt.Sprintf("% 0#x", w.frame); result != expected {
			t.Fatalf("Write %d out of order:\n%v\n%v", i, result, expected)
		}
		if i > 0 {
			if gap := w.at.Sub(writes[i-1].at); gap < pacing {
				t.Fatalf("Writes %d and %d only %v apart", i-1, i, gap)
			}
		}
	}
}

func TestSessionWriteFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.failAt = 1
	ft.writeErr = errors.New("gatt write failed")
	s := New(ft, Options{Pacing: time.Millisecond})
	defer s.Close()

	ctx := context.Background()
	if err := s.Send(ctx, walkingpad.Start()); err != nil {
		t.Fatal(err)
	}
	err := s.Send(ctx, walkingpad.Stop())
	var se *SendError
	if !errors.As(err, &se) || !errors.Is(err, ft.writeErr) {
		t.Fatalf("Expected send error, got %v", err)
	}
	if se.Request != walkingpad.Stop() {
		t.Fatalf("Wrong request in error %v", se.Request)
	}
	if !errors.Is(s.Err(), ft.writeErr) {
		t.Fatalf("Session should hold the write error, got %v", s.Err())
	}

	// outbound is closed for good
	err = s.Submit(ctx, walkingpad.QueryState())
	if !errors.As(err, &se) || !errors.Is(err, ft.writeErr) {
		t.Fatalf("Expected submit to fail, got %v", err)
	}
}

func TestSessionSubmitFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.failAt = 0
	ft.writeErr = errors.New("gatt write failed")
	s := New(ft, Options{Pacing: time.Millisecond})
	defer s.Close()

	ctx := context.Background()
	if err := s.Submit(ctx, walkingpad.Start()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Err() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Write failure never recorded")
		}
		time.Sleep(time.Millisecond)
	}
	if !errors.Is(s.Err(), ft.writeErr) {
		t.Fatalf("Expected the write error, got %v", s.Err())
	}
	var se *SendError
	if err := s.Submit(ctx, walkingpad.Stop()); !errors.As(err, &se) || !errors.Is(err, ft.writeErr) {
		t.Fatalf("Next submit should report the write error, got %v", err)
	}
}

// hangingTransport blocks every write until its context is cancelled
type hangingTransport struct {
	*fakeTransport
	started chan struct{}
}

func (h *hangingTransport) Write(ctx context.Context, frame []byte) error {
	close(h.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestSessionCloseCancelsHungWrite(t *testing.T) {
	ht := &hangingTransport{fakeTransport: newFakeTransport(), started: make(chan struct{})}
	s := New(ht, Options{WriteGrace: 20 * time.Millisecond})

	ctx := context.Background()
	if err := s.Submit(ctx, walkingpad.Start()); err != nil {
		t.Fatal(err)
	}
	<-ht.started

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a hung write")
	}
	select {
	case <-ht.closed:
	default:
		t.Fatal("Transport not closed")
	}
}

func TestSessionDemux(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, Options{})
	defer s.Close()

	a := s.Subscribe()
	b := s.Subscribe()

	ft.notify <- stateNotification(walkingpad.MotorRunning)
	ft.notify <- []byte{0xf8, 0xa2, 0x00} // truncated, dropped
	ft.notify <- []byte{0x01, 0x02}       // garbage, dropped
	ft.notify <- stateNotification(walkingpad.MotorStopped)

	for _, sub := range []*Subscription{a, b} {
		first := receive(t, sub).(walkingpad.LiveState)
		second := receive(t, sub).(walkingpad.LiveState)
		if first.MotorState != walkingpad.MotorRunning || second.MotorState != walkingpad.MotorStopped {
			t.Fatalf("Bad order %v %v", first, second)
		}
	}
}

func TestSessionSlowSubscriber(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, Options{})
	defer s.Close()

	slow := s.Subscribe()
	fast := s.Subscribe()
	n := 40
	go func() {
		for i := 0; i < n; i++ {
			ft.notify <- walkingpad.EncodeResponse(walkingpad.LiveState{Steps: uint32(i)})
		}
	}()

	// fast drains everything while slow is not read at all
	for i := 0; i < n; i++ {
		if steps := receive(t, fast).(walkingpad.LiveState).Steps; steps != uint32(i) {
			t.Fatalf("Expected %d, got %d", i, steps)
		}
	}
	for i := 0; i < n; i++ {
		if steps := receive(t, slow).(walkingpad.LiveState).Steps; steps != uint32(i) {
			t.Fatalf("Slow subscriber lost frames: expected %d, got %d", i, steps)
		}
	}
}

func TestSessionClose(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, Options{})
	sub := s.Subscribe()

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ft.closed:
	default:
		t.Fatal("Transport not closed")
	}
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("Expected end of stream")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscription never closed")
	}
	if err := s.Submit(context.Background(), walkingpad.Start()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}

	late := s.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Fatal("Subscribing after close should yield a closed stream")
	}
}

func TestSessionLinkLoss(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, Options{})
	defer s.Close()
	sub := s.Subscribe()

	ft.Close()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Session did not notice link loss")
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("Expected end of stream")
	}
	if err := s.Submit(context.Background(), walkingpad.Start()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, Options{})
	defer s.Close()

	sub := s.Subscribe()
	sub.Unsubscribe()
	sub.Unsubscribe()
	ft.notify <- stateNotification(walkingpad.MotorRunning)
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("Unsubscribed stream delivered a response")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Unsubscribed stream not closed")
	}
}
