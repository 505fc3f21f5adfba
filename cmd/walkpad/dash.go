package main

import (
	"context"
	"time"

	"github.com/johnelliott/walkpad/internal/dash"
	"github.com/johnelliott/walkpad/internal/sink"
	"github.com/johnelliott/walkpad/pkg/history"
	"github.com/johnelliott/walkpad/pkg/tracker"
	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Live terminal dashboard with a command line",
	Long: `Shows the pad's live state and settings. Commands typed at the bottom
use the same grammar as "walkpad repl". Finished runs are saved to the
configured sinks.`,
	Args: cobra.NoArgs,
	RunE: runDash,
}

func init() {
	rootCmd.AddCommand(dashCmd)
}

func runDash(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	sinks, err := sink.Open(ctx, sinkOptions())
	if err != nil {
		return err
	}
	defer sinks.Close()

	s, err := newConnector().Connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	// the dashboard owns the terminal
	log.SetOutput(cmd.ErrOrStderr())
	log.SetLevel(log.ErrorLevel)

	watched := tracker.Watch(ctx, s.Subscribe().C(), s, time.Now)
	runs := make(chan walkingpad.RunRecord)
	go func() {
		defer close(runs)
		for r := range watched {
			if err := sinks.Save(ctx, r); err != nil {
				log.WithError(err).Error("Failed to save run")
			}
			select {
			case runs <- r:
			case <-ctx.Done():
				return
			}
		}
	}()

	return dash.Run(ctx, dash.Options{
		Pad:       s,
		Responses: s.Subscribe().C(),
		Runs:      runs,
		History: func(ctx context.Context) ([]walkingpad.RunRecord, error) {
			sub := s.Subscribe()
			defer sub.Unsubscribe()
			records, err := history.Fetch(ctx, s, sub.C(), historyOptions())
			if err == nil {
				sink.SaveAll(ctx, sinks, records)
			}
			return records, err
		},
		PollInterval: cfg.PollInterval(),
		Title:        "WALKPAD",
	})
}
