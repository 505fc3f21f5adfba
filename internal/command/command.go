// Package command turns typed text like "set speed 3.5" into requests
package command

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/johnelliott/walkpad/pkg/walkingpad"
)

// ErrMissingArgument means the line ended early
var ErrMissingArgument = errors.New("missing argument")

// InvalidArgumentError names the token that could not be used
type InvalidArgumentError struct {
	Arg  string
	Kind string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s is not a valid %s", e.Arg, e.Kind)
}

// Action is what a line asks for
type Action int

const (
	// Send means write Command.Request to the pad
	Send Action = iota
	// History means download the stored runs
	History
	// Help means print Usage
	Help
	// Quit ends an interactive session
	Quit
)

// Command is a parsed line
type Command struct {
	Action  Action
	Request walkingpad.Request
}

// Usage lists the grammar
const Usage = `start | stop
get state | settings
history | clear
set speed | max-speed | start-speed <km/h>
set mode auto | manual | sleep | calibration
set calibration | auto-start | lock <on|off>
set sensitivity high | medium | low
set display <time,speed,distance,calorie,step | none>
set units metric | imperial
help | quit`

// Parse reads one line
func Parse(line string) (Command, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return Command{}, fmt.Errorf("%q: %w", line, err)
	}
	for i := range tokens {
		tokens[i] = strings.ToLower(tokens[i])
	}
	tk := &tokenizer{tokens: tokens}

	cmd, ok := tk.next()
	if !ok {
		return Command{}, ErrMissingArgument
	}
	var c Command
	switch cmd {
	case "start":
		c = send(walkingpad.Start())
	case "stop":
		c = send(walkingpad.Stop())
	case "clear":
		c = send(walkingpad.ClearStoredRuns())
	case "history":
		c = Command{Action: History}
	case "help", "?":
		c = Command{Action: Help}
	case "quit", "exit":
		c = Command{Action: Quit}
	case "get":
		c, err = get(tk)
	case "set":
		c, err = set(tk)
	default:
		return Command{}, &InvalidArgumentError{Arg: cmd, Kind: "command"}
	}
	if err != nil {
		return Command{}, err
	}
	if extra, ok := tk.next(); ok {
		return Command{}, &InvalidArgumentError{Arg: extra, Kind: "trailing argument"}
	}
	return c, nil
}

func send(r walkingpad.Request) Command { return Command{Action: Send, Request: r} }

type tokenizer struct {
	tokens []string
	pos    int
}

func (t *tokenizer) next() (string, bool) {
	if t.pos >= len(t.tokens) {
		return "", false
	}
	s := t.tokens[t.pos]
	t.pos++
	return s, true
}

func (t *tokenizer) arg() (string, error) {
	s, ok := t.next()
	if !ok {
		return "", ErrMissingArgument
	}
	return s, nil
}

func get(tk *tokenizer) (Command, error) {
	what, err := tk.arg()
	if err != nil {
		return Command{}, err
	}
	switch what {
	case "state":
		return send(walkingpad.QueryState()), nil
	case "settings":
		return send(walkingpad.QuerySettings()), nil
	}
	return Command{}, &InvalidArgumentError{Arg: what, Kind: "query"}
}

func set(tk *tokenizer) (Command, error) {
	what, err := tk.arg()
	if err != nil {
		return Command{}, err
	}
	switch what {
	case "speed":
		s, err := parseSpeed(tk)
		return send(walkingpad.SetSpeed(s)), err
	case "max-speed":
		s, err := parseSpeed(tk)
		return send(walkingpad.SetMaxSpeed(s)), err
	case "start-speed":
		s, err := parseSpeed(tk)
		return send(walkingpad.SetStartSpeed(s)), err
	case "mode":
		m, err := parseMode(tk)
		return send(walkingpad.SetMode(m)), err
	case "calibration":
		b, err := parseBool(tk)
		return send(walkingpad.SetCalibrationMode(b)), err
	case "auto-start":
		b, err := parseBool(tk)
		return send(walkingpad.SetAutoStart(b)), err
	case "lock":
		b, err := parseBool(tk)
		return send(walkingpad.SetLock(b)), err
	case "sensitivity":
		s, err := parseSensitivity(tk)
		return send(walkingpad.SetSensitivity(s)), err
	case "display":
		f, err := parseDisplay(tk)
		return send(walkingpad.SetDisplayInfo(f)), err
	case "units":
		u, err := parseUnits(tk)
		return send(walkingpad.SetUnits(u)), err
	}
	return Command{}, &InvalidArgumentError{Arg: what, Kind: "setting"}
}

// parseSpeed takes km/h and clamps to what the pad accepts
func parseSpeed(tk *tokenizer) (walkingpad.Speed, error) {
	s, err := tk.arg()
	if err != nil {
		return 0, err
	}
	kmh, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(kmh) || math.IsInf(kmh, 0) {
		return 0, &InvalidArgumentError{Arg: s, Kind: "speed"}
	}
	return walkingpad.SpeedFromKmh(kmh), nil
}

func parseBool(tk *tokenizer) (bool, error) {
	s, err := tk.arg()
	if err != nil {
		return false, err
	}
	switch s {
	case "on", "yes", "enable", "enabled":
		return true, nil
	case "off", "no", "disable", "disabled":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, &InvalidArgumentError{Arg: s, Kind: "bool"}
	}
	return b, nil
}

func parseMode(tk *tokenizer) (walkingpad.Mode, error) {
	s, err := tk.arg()
	if err != nil {
		return 0, err
	}
	for _, m := range []walkingpad.Mode{walkingpad.ModeAuto, walkingpad.ModeManual, walkingpad.ModeSleep, walkingpad.ModeCalibration} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, &InvalidArgumentError{Arg: s, Kind: "mode"}
}

func parseSensitivity(tk *tokenizer) (walkingpad.Sensitivity, error) {
	s, err := tk.arg()
	if err != nil {
		return 0, err
	}
	for _, v := range []walkingpad.Sensitivity{walkingpad.SensitivityHigh, walkingpad.SensitivityMedium, walkingpad.SensitivityLow} {
		if v.String() == s {
			return v, nil
		}
	}
	return 0, &InvalidArgumentError{Arg: s, Kind: "sensitivity"}
}

func parseUnits(tk *tokenizer) (walkingpad.Units, error) {
	s, err := tk.arg()
	if err != nil {
		return 0, err
	}
	for _, u := range []walkingpad.Units{walkingpad.UnitsMetric, walkingpad.UnitsImperial} {
		if u.String() == s {
			return u, nil
		}
	}
	return 0, &InvalidArgumentError{Arg: s, Kind: "units"}
}

// parseDisplay takes a comma or pipe separated list of names, or none
func parseDisplay(tk *tokenizer) (walkingpad.InfoFlags, error) {
	s, err := tk.arg()
	if err != nil {
		return 0, err
	}
	if s == "none" {
		return walkingpad.InfoNone, nil
	}
	var flags walkingpad.InfoFlags
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		f, ok := walkingpad.InfoFlagByName(name)
		if !ok {
			return 0, &InvalidArgumentError{Arg: name, Kind: "display info"}
		}
		flags |= f
	}
	if flags == walkingpad.InfoNone {
		return 0, &InvalidArgumentError{Arg: s, Kind: "display info"}
	}
	return flags, nil
}
