package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/johnelliott/walkpad/internal/command"
	"github.com/johnelliott/walkpad/pkg/history"
	"github.com/johnelliott/walkpad/pkg/session"
	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Type commands to the pad",
	Long:  "Reads commands from stdin, one per line, and prints what the pad reports.\n\nCommands:\n" + command.Usage,
	Args:  cobra.NoArgs,
	RunE:  runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

const prompt = "walkpad> "

func runREPL(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := newConnector().Connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	go printResponses(out, s.Subscribe().C())

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		if interactive {
			fmt.Fprint(out, prompt)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.Done():
			return errors.New("link lost")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(ctx, out, s, line)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func execute(ctx context.Context, out io.Writer, s *session.Session, line string) (bool, error) {
	if strings.TrimSpace(line) == "" {
		return false, nil
	}
	c, err := command.Parse(line)
	if err != nil {
		return false, err
	}
	switch c.Action {
	case command.Quit:
		return true, nil
	case command.Help:
		fmt.Fprintln(out, command.Usage)
		return false, nil
	case command.History:
		sub := s.Subscribe()
		defer sub.Unsubscribe()
		stored, err := history.Walk(ctx, s, sub.C(), historyOptions())
		printRuns(out, history.Records(stored, time.Now()))
		return false, err
	}
	log.Debugf("Sending %v", c.Request)
	return false, s.Send(ctx, c.Request)
}

// printResponses shows each response, skipping live states that did not
// change
func printResponses(out io.Writer, responses <-chan walkingpad.Response) {
	var last walkingpad.LiveState
	for r := range responses {
		if st, ok := r.(walkingpad.LiveState); ok {
			if st == last {
				continue
			}
			last = st
		}
		fmt.Fprintln(out, r)
	}
}
