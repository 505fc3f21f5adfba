package homekit

import (
	"context"
	"errors"
	"testing"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
)

type recorder struct {
	reqs []walkingpad.Request
	err  error
}

func (r *recorder) Submit(_ context.Context, req walkingpad.Request) error {
	r.reqs = append(r.reqs, req)
	return r.err
}

func TestSwitches(t *testing.T) {
	pad := &recorder{}
	b := New(pad)

	b.SetBelt(true)
	b.SetBelt(false)
	b.SetLock(true)

	expected := []walkingpad.Request{
		walkingpad.Start(),
		walkingpad.Stop(),
		walkingpad.SetLock(true),
		walkingpad.QuerySettings(),
	}
	if len(pad.reqs) != len(expected) {
		t.Fatalf("Got %v", pad.reqs)
	}
	for i := range expected {
		if pad.reqs[i] != expected[i] {
			t.Fatalf("Request %d: got %v, expected %v", i, pad.reqs[i], expected[i])
		}
	}

	// a failing pad is logged, not fatal
	pad.err = errors.New("closed")
	b.SetBelt(true)
}

func TestReflect(t *testing.T) {
	b := New(&recorder{})
	b.Reflect(walkingpad.LiveState{MotorState: walkingpad.MotorRunning})
	if !b.Belt.Switch.On.GetValue() {
		t.Fatal("Belt switch should be on")
	}
	b.Reflect(walkingpad.LiveState{MotorState: walkingpad.MotorStopped})
	if b.Belt.Switch.On.GetValue() {
		t.Fatal("Belt switch should be off")
	}
	b.Reflect(walkingpad.Settings{Locked: true})
	if !b.Lock.Switch.On.GetValue() {
		t.Fatal("Lock switch should be on")
	}
	b.Reflect(walkingpad.StoredRun{})
	if !b.Lock.Switch.On.GetValue() || b.Belt.Switch.On.GetValue() {
		t.Fatal("Stored runs should not move the switches")
	}
}
