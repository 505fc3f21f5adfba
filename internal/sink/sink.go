// Package sink persists finished runs. A run goes to every configured
// destination: a JSON lines file, a NATS subject and a Redis list.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
)

// Sink stores run records
type Sink interface {
	Save(ctx context.Context, r walkingpad.RunRecord) error
	Close() error
}

// record is the serialized form, one JSON object per run
type record struct {
	Start    time.Time `json:"start_time"`
	Duration string    `json:"duration"`
	Distance uint32    `json:"distance"`
	Steps    uint32    `json:"nb_steps"`
}

// Marshal encodes r the way every sink stores it
func Marshal(r walkingpad.RunRecord) ([]byte, error) {
	return json.Marshal(record{
		Start:    r.Start.UTC(),
		Duration: r.Duration.String(),
		Distance: r.DistanceMeters,
		Steps:    r.Steps,
	})
}

// Unmarshal is the inverse of Marshal
func Unmarshal(b []byte) (walkingpad.RunRecord, error) {
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return walkingpad.RunRecord{}, err
	}
	d, err := time.ParseDuration(rec.Duration)
	if err != nil {
		return walkingpad.RunRecord{}, fmt.Errorf("duration: %w", err)
	}
	return walkingpad.RunRecord{
		Start:          rec.Start,
		Duration:       d,
		DistanceMeters: rec.Distance,
		Steps:          rec.Steps,
	}, nil
}

// Multi saves to every sink in order. A failing sink does not stop the
// others; the errors are joined.
type Multi []Sink

func (m Multi) Save(ctx context.Context, r walkingpad.RunRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveAll stores each record, logging failures rather than giving up
func SaveAll(ctx context.Context, s Sink, records []walkingpad.RunRecord) int {
	saved := 0
	for _, r := range records {
		if err := s.Save(ctx, r); err != nil {
			log.WithError(err).WithField("start", r.Start).Error("Failed to save run")
			continue
		}
		saved++
	}
	return saved
}

// Options picks the destinations. Empty fields are skipped.
type Options struct {
	File        string
	NATSURL     string
	NATSSubject string
	RedisURL    string
	RedisKey    string
}

// Open connects every configured destination. On error the ones already
// opened are closed.
func Open(ctx context.Context, opts Options) (Multi, error) {
	var m Multi
	fail := func(err error) (Multi, error) {
		m.Close()
		return nil, err
	}
	if opts.File != "" {
		f, err := OpenFile(opts.File)
		if err != nil {
			return fail(err)
		}
		m = append(m, f)
	}
	if opts.NATSURL != "" {
		n, err := DialNATS(opts.NATSURL, opts.NATSSubject)
		if err != nil {
			return fail(err)
		}
		m = append(m, n)
	}
	if opts.RedisURL != "" {
		r, err := DialRedis(ctx, opts.RedisURL, opts.RedisKey)
		if err != nil {
			return fail(err)
		}
		m = append(m, r)
	}
	return m, nil
}
