package sink

import (
	"context"
	"fmt"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// NATS publishes each run on a subject
type NATS struct {
	conn    *nats.Conn
	subject string
}

// DialNATS connects to the server at url
func DialNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("walkpad"))
	if err != nil {
		return nil, fmt.Errorf("nats %s: %w", url, err)
	}
	log.Infof("Connected to NATS at %s", conn.ConnectedUrl())
	return &NATS{conn: conn, subject: subject}, nil
}

func (s *NATS) Save(ctx context.Context, r walkingpad.RunRecord) error {
	b, err := Marshal(r)
	if err != nil {
		return err
	}
	if err := s.conn.Publish(s.subject, b); err != nil {
		return fmt.Errorf("nats publish %s: %w", s.subject, err)
	}
	// the publish is buffered, so wait for the server to have it
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

func (s *NATS) Close() error {
	return s.conn.Drain()
}
