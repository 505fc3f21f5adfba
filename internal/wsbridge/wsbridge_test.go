package wsbridge

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/johnelliott/walkpad/internal/sim"
	"github.com/johnelliott/walkpad/pkg/session"
	"github.com/johnelliott/walkpad/pkg/walkingpad"
)

func startBridge(t *testing.T, opts sim.Options) (*httptest.Server, *sim.Pad, string) {
	t.Helper()
	opts.Tick = time.Hour
	pad := sim.New(opts)
	srv := httptest.NewServer(NewServer(pad))
	t.Cleanup(func() {
		srv.Close()
		pad.Stop()
	})
	return srv, pad, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestBridgeRoundTrip(t *testing.T) {
	_, pad, url := startBridge(t, sim.Options{})
	s := session.New(mustDial(t, url), session.Options{Pacing: time.Millisecond})
	defer s.Close()
	sub := s.Subscribe()

	ctx := context.Background()
	if err := s.Send(ctx, walkingpad.Start()); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-sub.C():
		st, ok := r.(walkingpad.LiveState)
		if !ok || st.MotorState != walkingpad.MotorRunning {
			t.Fatalf("Bad response %v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No response through bridge")
	}
	if pad.State().MotorState != walkingpad.MotorRunning {
		t.Fatal("Pad did not start")
	}
}

func mustDial(t *testing.T, url string) session.Transport {
	t.Helper()
	tr, err := Dialer{URL: url}.Dial(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestBridgeBusy(t *testing.T) {
	_, _, url := startBridge(t, sim.Options{})
	first := mustDial(t, url)
	defer first.Close()

	_, err := Dialer{URL: url}.Dial(context.Background())
	if err == nil || errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Expected a hard error for a busy bridge, got %v", err)
	}
}

func TestBridgeNoPad(t *testing.T) {
	_, _, url := startBridge(t, sim.Options{Hidden: 1})
	if _, err := (Dialer{URL: url}).Dial(context.Background()); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	// the pad shows up on the next attempt
	tr := mustDial(t, url)
	tr.Close()
}

func TestBridgeNotListening(t *testing.T) {
	srv, _, url := startBridge(t, sim.Options{})
	srv.Close()
	if _, err := (Dialer{URL: url}).Dial(context.Background()); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestBridgeBadScheme(t *testing.T) {
	if _, err := (Dialer{URL: "http://localhost/"}).Dial(context.Background()); err == nil {
		t.Fatal("Expected scheme error")
	}
}

func TestBridgePadGone(t *testing.T) {
	_, pad, url := startBridge(t, sim.Options{})
	tr := mustDial(t, url)
	defer tr.Close()

	pad.Stop()
	select {
	case _, ok := <-tr.Notifications():
		for ok {
			_, ok = <-tr.Notifications()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Client never saw the pad leave")
	}
}
