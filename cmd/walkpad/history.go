package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/johnelliott/walkpad/internal/export"
	"github.com/johnelliott/walkpad/internal/sink"
	"github.com/johnelliott/walkpad/pkg/history"
	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	xlsxPath string
	fromFile string
	save     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Download the runs stored on the pad",
	Long: `Downloads every run stored on the pad, newest first, then clears them.

With --from the runs are read from a stats file instead of the pad.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the runs to this spreadsheet")
	historyCmd.Flags().StringVar(&fromFile, "from", "", "Read runs from a stats file written by run")
	historyCmd.Flags().BoolVar(&save, "save", false, "Save downloaded runs to the configured sinks")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var records []walkingpad.RunRecord
	var fetchErr error
	if fromFile != "" {
		runs, err := sink.ReadFile(fromFile)
		if err != nil {
			return err
		}
		records = runs
	} else {
		s, err := newConnector().Connect(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		sub := s.Subscribe()
		stored, err := history.Walk(ctx, s, sub.C(), historyOptions())
		sub.Unsubscribe()
		// keep what arrived before a failure
		records = history.Records(stored, time.Now())
		fetchErr = err
	}

	printRuns(cmd.OutOrStdout(), records)

	if save && fromFile == "" {
		sinks, err := sink.Open(ctx, sinkOptions())
		if err != nil {
			return err
		}
		defer sinks.Close()
		log.Infof("Saved %d runs", sink.SaveAll(ctx, sinks, records))
	}
	if xlsxPath != "" {
		if err := export.Save(xlsxPath, records); err != nil {
			return err
		}
		log.Infof("Wrote %s", xlsxPath)
	}
	return fetchErr
}

func printRuns(out io.Writer, records []walkingpad.RunRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No stored runs")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Start\tDuration\tDistance\tSteps\t")
	var meters, steps uint32
	var total time.Duration
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d m\t%d\t\n", r.Start.Local().Format("2006-01-02 15:04"), r.Duration, r.DistanceMeters, r.Steps)
		meters += r.DistanceMeters
		steps += r.Steps
		total += r.Duration
	}
	fmt.Fprintf(w, "Total\t%s\t%d m\t%d\t\n", total, meters, steps)
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
