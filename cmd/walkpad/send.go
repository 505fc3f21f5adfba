package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/johnelliott/walkpad/internal/command"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <command>",
	Short: "Send one command to the pad and print the reply",
	Long:  "Send one command to the pad and print the reply.\n\nCommands:\n" + command.Usage,
	Example: `  walkpad send start
  walkpad send set speed 3.5
  walkpad send set display "time, distance"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

// joinArgs quotes arguments the shell already split so the line parses
// the same way again
func joinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\"'") {
			a = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}

func runSend(cmd *cobra.Command, args []string) error {
	c, err := command.Parse(joinArgs(args))
	if err != nil {
		return err
	}
	switch c.Action {
	case command.Help:
		fmt.Fprintln(cmd.OutOrStdout(), command.Usage)
		return nil
	case command.History:
		return errors.New(`use "walkpad history" to download stored runs`)
	case command.Quit:
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()
	s, err := newConnector().Connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	sub := s.Subscribe()
	if err := s.Send(ctx, c.Request); err != nil {
		return err
	}
	want := c.Request.Subject()
	timeout := time.NewTimer(cfg.HistoryTimeout())
	defer timeout.Stop()
	for {
		select {
		case r, ok := <-sub.C():
			if !ok {
				return errors.New("link lost before the pad replied")
			}
			if r.Subject() == want {
				fmt.Fprintln(cmd.OutOrStdout(), r)
				return nil
			}
		case <-timeout.C:
			// not every command is answered
			fmt.Fprintln(cmd.OutOrStdout(), "Sent", c.Request)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
