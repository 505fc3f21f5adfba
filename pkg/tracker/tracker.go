// Package tracker turns the pad's periodic live state into completed runs
package tracker

import (
	"context"
	"time"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
)

// Submitter queues a request for the pad
type Submitter interface {
	Submit(ctx context.Context, req walkingpad.Request) error
}

// Tracker is idle until it sees the motor running, then tracks the run
// until the motor reports anything else. The zero value is not usable,
// use New.
type Tracker struct {
	now func() time.Time

	tracking bool
	start    time.Time
	last     walkingpad.LiveState
}

// New returns an idle tracker reading wall clock time from now, or
// time.Now when nil
func New(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Tracking reports whether a run is in progress
func (t *Tracker) Tracking() bool { return t.tracking }

// Observe feeds one snapshot and returns the completed run, if this
// snapshot ended one
func (t *Tracker) Observe(s walkingpad.LiveState) (walkingpad.RunRecord, bool) {
	running := s.MotorState == walkingpad.MotorRunning
	switch {
	case !t.tracking && running:
		t.tracking = true
		t.start = t.now()
		t.last = s
		log.WithField("start", t.start.Format(time.RFC3339)).Info("Run started")
	case t.tracking && running:
		t.last = s
	case t.tracking && !running:
		t.tracking = false
		r := walkingpad.RunRecord{
			Start:          t.start,
			Duration:       t.last.RunTime,
			DistanceMeters: t.last.DistanceMeters,
			Steps:          t.last.Steps,
		}
		log.WithFields(log.Fields{
			"duration": r.Duration,
			"distance": r.DistanceMeters,
			"steps":    r.Steps,
		}).Info("Run finished")
		return r, true
	}
	return walkingpad.RunRecord{}, false
}

// Watch feeds every LiveState from responses through a new tracker. Each
// completed run is delivered on the returned channel, then the pad is
// told to clear its stored runs. The channel closes when responses closes
// or ctx is done; a run still in progress at that point is not reported.
func Watch(ctx context.Context, responses <-chan walkingpad.Response, sub Submitter, now func() time.Time) <-chan walkingpad.RunRecord {
	out := make(chan walkingpad.RunRecord)
	t := New(now)
	go func() {
		defer close(out)
		for {
			var r walkingpad.Response
			var ok bool
			select {
			case <-ctx.Done():
				return
			case r, ok = <-responses:
				if !ok {
					if t.Tracking() {
						log.Warn("Response stream ended mid run, run dropped")
					}
					return
				}
			}
			state, isState := r.(walkingpad.LiveState)
			if !isState {
				continue
			}
			run, done := t.Observe(state)
			if !done {
				continue
			}
			select {
			case out <- run:
			case <-ctx.Done():
				return
			}
			if err := sub.Submit(ctx, walkingpad.ClearStoredRuns()); err != nil {
				log.WithError(err).Error("Failed to clear stored runs")
			}
		}
	}()
	return out
}
