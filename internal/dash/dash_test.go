package dash

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
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

func enter(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestCommandLine(t *testing.T) {
	pad := &recorder{}
	m := New(context.Background(), Options{Pad: pad})

	m, cmd := enter(t, m, "set speed 3.5")
	if cmd == nil {
		t.Fatal("Expected a submit command")
	}
	next, _ := m.Update(cmd())
	m = next.(Model)
	if len(pad.reqs) != 1 || pad.reqs[0] != walkingpad.SetSpeed(35) {
		t.Fatalf("Got %v", pad.reqs)
	}
	if m.input.Value() != "" {
		t.Fatal("Input not cleared")
	}

	m, cmd = enter(t, m, "set speed fast")
	if cmd != nil {
		t.Fatal("A bad line should not submit")
	}
	if len(m.log) == 0 || !m.log[len(m.log)-1].err || !strings.Contains(m.log[len(m.log)-1].msg, "fast") {
		t.Fatalf("Expected an error entry naming the token, got %+v", m.log)
	}

	pad.err = errors.New("closed")
	m, cmd = enter(t, m, "stop")
	next, _ = m.Update(cmd())
	m = next.(Model)
	if last := m.log[len(m.log)-1]; !last.err {
		t.Fatalf("Submit failure not shown: %+v", last)
	}
}

func TestHelpAndQuit(t *testing.T) {
	m := New(context.Background(), Options{Pad: &recorder{}})
	m, _ = enter(t, m, "help")
	if len(m.log) != maxLogEntries {
		t.Fatalf("Help should fill the log, got %d entries", len(m.log))
	}
	m, _ = enter(t, m, "history")
	if !m.log[len(m.log)-1].err {
		t.Fatal("History without a fetcher should be an error")
	}
	m, cmd := enter(t, m, "quit")
	if !m.quitting || cmd == nil {
		t.Fatal("Expected quit")
	}
}

func TestHistory(t *testing.T) {
	fetched := []walkingpad.RunRecord{{DistanceMeters: 100}, {DistanceMeters: 200}}
	m := New(context.Background(), Options{
		Pad: &recorder{},
		History: func(context.Context) ([]walkingpad.RunRecord, error) {
			return fetched, nil
		},
	})
	m, cmd := enter(t, m, "history")
	next, _ := m.Update(cmd())
	m = next.(Model)
	if len(m.runs) != 2 {
		t.Fatalf("Runs not recorded: %v", m.runs)
	}
	// no live state yet, the totals still show
	view := m.View()
	if !strings.Contains(view, "Waiting for the pad") || !strings.Contains(view, "2, 300 m") {
		t.Fatalf("Totals missing from view:\n%s", view)
	}
}

func TestResponses(t *testing.T) {
	ch := make(chan walkingpad.Response, 2)
	m := New(context.Background(), Options{Pad: &recorder{}, Responses: ch})

	ch <- walkingpad.LiveState{MotorState: walkingpad.MotorRunning, Speed: 30, DistanceMeters: 120}
	ch <- walkingpad.Settings{Locked: true}
	for i := 0; i < 2; i++ {
		next, cmd := m.Update(listen(ch)())
		m = next.(Model)
		if cmd == nil {
			t.Fatal("Should keep listening")
		}
	}
	if !m.haveState || m.state.DistanceMeters != 120 || m.settings == nil || !m.settings.Locked {
		t.Fatalf("Bad model %+v", m)
	}
	view := m.View()
	if !strings.Contains(view, "running") || !strings.Contains(view, "120 m") {
		t.Fatalf("State missing from view:\n%s", view)
	}

	close(ch)
	next, _ := m.Update(listen(ch)())
	m = next.(Model)
	if !m.linkLost || !strings.Contains(m.View(), "LINK LOST") {
		t.Fatal("Closed stream should show link lost")
	}
	if _, cmd := m.Update(pollMsg{}); cmd != nil {
		t.Fatal("Should stop polling once the link is lost")
	}
}

func TestSpeedKeys(t *testing.T) {
	pad := &recorder{}
	m := New(context.Background(), Options{Pad: pad})
	m.state.Speed = 30
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	cmd()
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	cmd()
	if len(pad.reqs) != 2 || pad.reqs[0] != walkingpad.SetSpeed(35) || pad.reqs[1] != walkingpad.SetSpeed(25) {
		t.Fatalf("Got %v", pad.reqs)
	}
}
