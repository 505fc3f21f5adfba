package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/johnelliott/walkpad/internal/homekit"
	"github.com/johnelliott/walkpad/internal/sink"
	"github.com/johnelliott/walkpad/pkg/history"
	"github.com/johnelliott/walkpad/pkg/session"
	"github.com/johnelliott/walkpad/pkg/tracker"
	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	manual      bool
	withHomeKit bool
	httpAddr    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Log runs from the pad until interrupted",
	Long: `Connects to the pad, saves the runs it has stored, then tracks new runs
as they happen. The connection is made again whenever it drops.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().BoolVar(&manual, "manual", false, "Put the pad in manual mode with metric units after connecting")
	runCmd.Flags().BoolVar(&withHomeKit, "homekit", false, "Expose the pad to HomeKit (env WALKPAD_HOMEKIT)")
	runCmd.Flags().StringVar(&httpAddr, "http", "", "Serve a status page on this address, e.g. :8080")
	rootCmd.AddCommand(runCmd)
}

// padRef is the current session, or nothing between connections
type padRef struct {
	mu sync.Mutex
	s  *session.Session
}

func (p *padRef) set(s *session.Session) {
	p.mu.Lock()
	p.s = s
	p.mu.Unlock()
}

func (p *padRef) Submit(ctx context.Context, req walkingpad.Request) error {
	p.mu.Lock()
	s := p.s
	p.mu.Unlock()
	if s == nil {
		return &session.SendError{Request: req, Err: session.ErrClosed}
	}
	return s.Submit(ctx, req)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if cmd.Flags().Changed("http") {
		cfg.HTTPAddr = httpAddr
	}
	if cmd.Flags().Changed("homekit") {
		cfg.HomeKit.Enabled = withHomeKit
	}

	sinks, err := sink.Open(ctx, sinkOptions())
	if err != nil {
		return err
	}
	defer sinks.Close()

	wg := sync.WaitGroup{}
	st := newStatus()
	if cfg.HTTPAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveStatus(ctx, cfg.HTTPAddr, st); err != nil {
				log.WithError(err).Error("Status page stopped")
			}
		}()
	}

	pad := &padRef{}
	var hk chan walkingpad.Response
	if cfg.HomeKit.Enabled {
		hk = make(chan walkingpad.Response, 16)
		bridge := homekit.New(pad)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := bridge.Run(ctx, homekit.Config{Pin: cfg.HomeKit.Pin, StoragePath: cfg.HomeKit.StoragePath}, hk)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("HomeKit stopped")
			}
		}()
	}

	conn := newConnector()
	for ctx.Err() == nil {
		s, err := conn.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.WithError(err).Error("Connect failed")
			sleep(ctx, cfg.RetryDelay())
			continue
		}
		log.Info("Connected")
		st.setConnected(true)
		pad.set(s)
		err = serve(ctx, s, sinks, st, hk)
		pad.set(nil)
		st.setConnected(false)
		s.Close()
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("Disconnected")
			sleep(ctx, cfg.RetryDelay())
		}
	}

	log.Debug("Main context canceled")
	finalCountdown()
	log.Trace("Waiting for wait group...")
	wg.Wait()
	log.Trace("Wait group done waiting")
	return nil
}

// serve runs one connection: stored runs first, then live tracking
func serve(ctx context.Context, s *session.Session, sinks sink.Sink, st *status, hk chan<- walkingpad.Response) error {
	hsub := s.Subscribe()
	stored, err := history.Walk(ctx, s, hsub.C(), historyOptions())
	hsub.Unsubscribe()
	if err != nil {
		log.WithError(err).Warnf("History incomplete, saving %d runs", len(stored))
	}
	records := history.Records(stored, time.Now())
	if n := sink.SaveAll(ctx, sinks, records); n > 0 {
		log.Infof("Saved %d stored runs", n)
	}
	st.addRuns(records)

	go st.follow(s.Subscribe().C())
	if hk != nil {
		go forward(ctx, s.Subscribe().C(), hk)
	}
	runs := tracker.Watch(ctx, s.Subscribe().C(), s, time.Now)

	if err := s.Submit(ctx, walkingpad.QuerySettings()); err != nil {
		return err
	}
	if manual {
		for _, req := range []walkingpad.Request{walkingpad.SetMode(walkingpad.ModeManual), walkingpad.SetUnits(walkingpad.UnitsMetric)} {
			if err := s.Submit(ctx, req); err != nil {
				return err
			}
		}
	}

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-runs:
			if !ok {
				if err := s.Err(); err != nil {
					return err
				}
				return errors.New("link lost")
			}
			if err := sinks.Save(ctx, r); err != nil {
				log.WithError(err).Error("Failed to save run")
			}
			st.addRuns([]walkingpad.RunRecord{r})
		case <-ticker.C:
			if err := s.Submit(ctx, walkingpad.QueryState()); err != nil {
				return err
			}
		}
	}
}

func forward(ctx context.Context, in <-chan walkingpad.Response, out chan<- walkingpad.Response) {
	for r := range in {
		select {
		case out <- r:
		case <-ctx.Done():
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
