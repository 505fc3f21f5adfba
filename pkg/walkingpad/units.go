package walkingpad

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidValue is wrapped by every construction error for the unit types
var ErrInvalidValue = errors.New("invalid value")

// ValueError reports a byte that doesn't map to a known code of Kind
type ValueError struct {
	Kind  string
	Value byte
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%d isn't a valid %s", e.Value, e.Kind)
}

func (e *ValueError) Unwrap() error { return ErrInvalidValue }

// SpeedError reports a speed above MaxSpeed
type SpeedError struct {
	HmPerHour int
}

func (e *SpeedError) Error() string {
	return fmt.Sprintf("%d hm/h is greater than the maximum supported speed of %d hm/h", e.HmPerHour, MaxSpeed)
}

func (e *SpeedError) Unwrap() error { return ErrInvalidValue }

// MaxSpeed is the fastest the belt goes, in hectometers per hour (6 km/h)
const MaxSpeed = 60

// DefaultSpeed is the factory start speed
const DefaultSpeed Speed = 20

// Speed is a belt speed in hectometers per hour, 0.1 km/h per unit.
// Values are always within 0..MaxSpeed.
type Speed uint8

// NewSpeed returns an error instead of clamping
func NewSpeed(hmPerHour uint8) (Speed, error) {
	if hmPerHour > MaxSpeed {
		return 0, &SpeedError{HmPerHour: int(hmPerHour)}
	}
	return Speed(hmPerHour), nil
}

// SpeedFromHmPerHour clamps to MaxSpeed
func SpeedFromHmPerHour(hmPerHour uint8) Speed {
	if hmPerHour > MaxSpeed {
		return MaxSpeed
	}
	return Speed(hmPerHour)
}

// SpeedFromKmh rounds to the nearest 0.1 km/h and clamps to 0..MaxSpeed
func SpeedFromKmh(kmh float64) Speed {
	hm := math.Round(kmh * 10)
	switch {
	case math.IsNaN(hm) || hm <= 0:
		return 0
	case hm >= MaxSpeed:
		return MaxSpeed
	}
	return Speed(hm)
}

// HmPerHour is the raw wire value
func (s Speed) HmPerHour() uint8 { return uint8(s) }

// Kmh converts for display
func (s Speed) Kmh() float64 { return float64(s) / 10 }

// Add saturates at MaxSpeed
func (s Speed) Add(o Speed) Speed { return s.AddHm(uint8(o)) }

// Sub saturates at zero
func (s Speed) Sub(o Speed) Speed { return s.SubHm(uint8(o)) }

// AddHm adds a raw hm/h count, saturating at MaxSpeed
func (s Speed) AddHm(n uint8) Speed {
	sum := int(s) + int(n)
	if sum > MaxSpeed {
		return MaxSpeed
	}
	return Speed(sum)
}

// SubHm subtracts a raw hm/h count, saturating at zero
func (s Speed) SubHm(n uint8) Speed {
	if n >= uint8(s) {
		return 0
	}
	return s - Speed(n)
}

func (s Speed) String() string {
	return fmt.Sprintf("%.1f km/h", s.Kmh())
}

// Mode is the belt operating mode
type Mode uint8

// Code 3 is never sent by the device
const (
	ModeAuto        Mode = 0
	ModeManual      Mode = 1
	ModeSleep       Mode = 2
	ModeCalibration Mode = 4
)

// ModeFromCode maps a wire byte to a Mode
func ModeFromCode(b byte) (Mode, error) {
	switch m := Mode(b); m {
	case ModeAuto, ModeManual, ModeSleep, ModeCalibration:
		return m, nil
	}
	return 0, &ValueError{Kind: "mode", Value: b}
}

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeManual:
		return "manual"
	case ModeSleep:
		return "sleep"
	case ModeCalibration:
		return "calibration"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Sensitivity governs how eagerly auto mode follows the walker
type Sensitivity uint8

const (
	SensitivityHigh   Sensitivity = 1
	SensitivityMedium Sensitivity = 2
	SensitivityLow    Sensitivity = 3
)

// SensitivityFromCode maps a wire byte to a Sensitivity
func SensitivityFromCode(b byte) (Sensitivity, error) {
	switch s := Sensitivity(b); s {
	case SensitivityHigh, SensitivityMedium, SensitivityLow:
		return s, nil
	}
	return 0, &ValueError{Kind: "sensitivity", Value: b}
}

func (s Sensitivity) String() string {
	switch s {
	case SensitivityHigh:
		return "high"
	case SensitivityMedium:
		return "medium"
	case SensitivityLow:
		return "low"
	}
	return fmt.Sprintf("sensitivity(%d)", uint8(s))
}

// Units only changes the on-board display
type Units uint8

const (
	UnitsMetric   Units = 0
	UnitsImperial Units = 1
)

// UnitsFromCode maps a wire byte to Units
func UnitsFromCode(b byte) (Units, error) {
	switch u := Units(b); u {
	case UnitsMetric, UnitsImperial:
		return u, nil
	}
	return 0, &ValueError{Kind: "units", Value: b}
}

func (u Units) String() string {
	switch u {
	case UnitsMetric:
		return "metric"
	case UnitsImperial:
		return "imperial"
	}
	return fmt.Sprintf("units(%d)", uint8(u))
}

// InfoFlags selects the statistics cycled on the on-board display
type InfoFlags uint8

const (
	InfoTime InfoFlags = 1 << iota
	InfoSpeed
	InfoDistance
	InfoCalorie
	InfoStep

	InfoNone InfoFlags = 0
	InfoAll            = InfoTime | InfoSpeed | InfoDistance | InfoCalorie | InfoStep
)

var infoNames = []struct {
	flag InfoFlags
	name string
}{
	{InfoTime, "time"},
	{InfoSpeed, "speed"},
	{InfoDistance, "distance"},
	{InfoCalorie, "calorie"},
	{InfoStep, "step"},
}

// InfoFlagsFromCode rejects bytes with bits outside InfoAll
func InfoFlagsFromCode(b byte) (InfoFlags, error) {
	if InfoFlags(b)&^InfoAll != 0 {
		return 0, &ValueError{Kind: "info flags", Value: b}
	}
	return InfoFlags(b), nil
}

// InfoFlagByName looks up a single flag by its lowercase name
func InfoFlagByName(name string) (InfoFlags, bool) {
	for _, n := range infoNames {
		if n.name == name {
			return n.flag, true
		}
	}
	return 0, false
}

// Has reports whether every bit of o is set
func (f InfoFlags) Has(o InfoFlags) bool { return f&o == o }

func (f InfoFlags) String() string {
	if f == InfoNone {
		return "none"
	}
	var parts []string
	for _, n := range infoNames {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Subject is the message category byte, shared by both directions
type Subject uint8

const (
	SubjectState       Subject = 0xa2
	SubjectSettings    Subject = 0xa6
	SubjectStoredStats Subject = 0xa7
)

// SubjectFromCode maps a wire byte to a Subject
func SubjectFromCode(b byte) (Subject, error) {
	switch s := Subject(b); s {
	case SubjectState, SubjectSettings, SubjectStoredStats:
		return s, nil
	}
	return 0, &ValueError{Kind: "subject", Value: b}
}

func (s Subject) String() string {
	switch s {
	case SubjectState:
		return "state"
	case SubjectSettings:
		return "settings"
	case SubjectStoredStats:
		return "stored-stats"
	}
	return fmt.Sprintf("subject(0x%02x)", uint8(s))
}

// MotorState is the belt motor status. The device reports bit patterns
// other than the named ones, those are kept as-is.
type MotorState uint8

const (
	MotorStopped  MotorState = 0b0000
	MotorRunning  MotorState = 0b0001
	MotorStarting MotorState = 0b1001
)

// Known is false for bit patterns without a name
func (m MotorState) Known() bool {
	switch m {
	case MotorStopped, MotorRunning, MotorStarting:
		return true
	}
	return false
}

func (m MotorState) String() string {
	switch m {
	case MotorStopped:
		return "stopped"
	case MotorRunning:
		return "running"
	case MotorStarting:
		return "starting"
	}
	return fmt.Sprintf("unknown(0b%04b)", uint8(m))
}
