package sink

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
)

// File appends one JSON line per run
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenFile opens path for appending, creating it if needed
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("stats file: %w", err)
	}
	log.Debugf("Appending runs to %s", path)
	return &File{path: path, f: f}, nil
}

func (s *File) Save(_ context.Context, r walkingpad.RunRecord) error {
	b, err := Marshal(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	return nil
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// ReadFile loads every record from a file written by File. Lines that do
// not decode are skipped with a warning.
func ReadFile(path string) ([]walkingpad.RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []walkingpad.RunRecord
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		r, err := Unmarshal(sc.Bytes())
		if err != nil {
			log.WithError(err).Warnf("Skipping %s:%d", path, line)
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
