// Package history downloads the runs a pad keeps in its own memory.
//
// The pad stores runs as a list linked newest to oldest. Asking for id 255
// returns the newest, each record names the id of the one before it, and
// id 0 ends the list.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNoResponse means the pad stopped answering and retries ran out
	ErrNoResponse = errors.New("no stored run received")
	// ErrStreamClosed means the response stream ended mid walk
	ErrStreamClosed = errors.New("response stream closed")
	// ErrTooManyRecords means the pad returned more records than it can
	// address, which only happens when the list loops
	ErrTooManyRecords = errors.New("too many stored runs")
)

// maxRecords is every id other than 0 (end) and 255 (newest)
const maxRecords = 254

const (
	DefaultTimeout = 2 * time.Second
	DefaultRetries = 3
)

// Submitter queues a request for the pad
type Submitter interface {
	Submit(ctx context.Context, req walkingpad.Request) error
}

// Options tune Walk
type Options struct {
	// Timeout is how long to wait for each record
	Timeout time.Duration
	// Retries caps how many times in a row the last request is sent
	// again after a timeout
	Retries int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	return o
}

// Walk fetches every stored run, newest first, then asks the pad to clear
// them. responses must be subscribed before Walk is called so the first
// answer is not missed. Other response kinds arriving meanwhile are
// skipped. On error the records read so far are returned with it.
func Walk(ctx context.Context, sub Submitter, responses <-chan walkingpad.Response, opts Options) ([]walkingpad.StoredRun, error) {
	opts = opts.withDefaults()

	var runs []walkingpad.StoredRun
	last := walkingpad.FetchLatestStoredRun()
	if err := sub.Submit(ctx, last); err != nil {
		return nil, err
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	rearm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(opts.Timeout)
	}

	// late counts answers still owed to re-sends of the fetch whose record
	// was appended last
	retries, late := 0, 0
	for {
		select {
		case <-ctx.Done():
			return runs, ctx.Err()

		case <-timer.C:
			retries++
			if retries > opts.Retries {
				return runs, fmt.Errorf("%w after %d retries of %v", ErrNoResponse, opts.Retries, last)
			}
			log.Warnf("No stored run after %v, sending %v again (%d/%d)", opts.Timeout, last, retries, opts.Retries)
			if err := sub.Submit(ctx, last); err != nil {
				return runs, err
			}
			timer.Reset(opts.Timeout)

		case r, ok := <-responses:
			if !ok {
				return runs, ErrStreamClosed
			}
			run, isRun := r.(walkingpad.StoredRun)
			if !isRun {
				log.Tracef("Skipping %v during history walk", r.Subject())
				continue
			}
			if late > 0 && len(runs) > 0 && sameRun(run, runs[len(runs)-1]) {
				late--
				log.Debugf("Dropping repeated stored run %v", run)
				continue
			}
			runs = append(runs, run)
			retries, late = 0, retries
			log.Debugf("Stored run %d: %v", len(runs), run)
			if len(runs) > maxRecords {
				return runs, ErrTooManyRecords
			}

			next, more := run.Next()
			if !more {
				if err := sub.Submit(ctx, walkingpad.ClearStoredRuns()); err != nil {
					return runs, err
				}
				log.Infof("Fetched %d stored runs", len(runs))
				return runs, nil
			}
			last = walkingpad.FetchStoredRun(next)
			if err := sub.Submit(ctx, last); err != nil {
				return runs, err
			}
			rearm()
		}
	}
}

// sameRun reports whether a and b are the same record on the pad, as sent
// twice when a slow answer and the answer to its re-send both arrive
func sameRun(a, b walkingpad.StoredRun) bool {
	return a.StartTimeRaw == b.StartTimeRaw && a.Duration == b.Duration && a.NextID == b.NextID
}

// Records converts stored runs to run records. The pad keeps no usable
// wall clock, so every record is taken to end at now.
func Records(runs []walkingpad.StoredRun, now time.Time) []walkingpad.RunRecord {
	records := make([]walkingpad.RunRecord, 0, len(runs))
	for _, r := range runs {
		records = append(records, r.Record(now))
	}
	return records
}

// Fetch walks the history and returns it as run records
func Fetch(ctx context.Context, sub Submitter, responses <-chan walkingpad.Response, opts Options) ([]walkingpad.RunRecord, error) {
	runs, err := Walk(ctx, sub, responses, opts)
	if err != nil {
		return nil, err
	}
	return Records(runs, time.Now()), nil
}
