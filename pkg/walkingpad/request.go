package walkingpad

import (
	"encoding/binary"
	"fmt"
)

const (
	// RequestHeader starts every frame written to the pad
	RequestHeader byte = 0xf7
	// ResponseHeader starts every notification from the pad
	ResponseHeader byte = 0xf8
	// Footer ends frames in both directions
	Footer byte = 0xfd

	// LatestStoredRunID asks for the head of the stored run list. It is
	// only ever sent, the pad never reports it as a next id.
	LatestStoredRunID uint8 = 255
)

// Message codes, only meaningful together with a subject
const (
	CodeQuery       byte = 0
	CodeSpeed       byte = 1 // state
	CodeMode        byte = 2 // state
	CodeCalibration byte = 2 // settings
	CodeMaxSpeed    byte = 3 // settings
	CodeBelt        byte = 4 // state
	CodeStartSpeed  byte = 4 // settings
	CodeAutoStart   byte = 5
	CodeSensitivity byte = 6
	CodeDisplay     byte = 7
	CodeUnits       byte = 8
	CodeLock        byte = 9
	CodeStoredStats byte = 0xaa
)

// Request is a command frame for the pad. Requests are built by the
// factory functions below and never change afterwards.
type Request struct {
	subject Subject
	code    byte
	param   [4]byte
	width   uint8 // 1 or 4
}

func smallRequest(subject Subject, code byte, param uint8) Request {
	return Request{subject: subject, code: code, param: [4]byte{param}, width: 1}
}

func largeRequest(subject Subject, code byte, param uint32) Request {
	r := Request{subject: subject, code: code, width: 4}
	binary.BigEndian.PutUint32(r.param[:], param)
	return r
}

func boolParam(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// QueryState asks for a live state notification
func QueryState() Request { return smallRequest(SubjectState, CodeQuery, 0) }

// QuerySettings asks for a settings notification
func QuerySettings() Request { return largeRequest(SubjectSettings, CodeQuery, 0) }

// Start the belt
func Start() Request { return smallRequest(SubjectState, CodeBelt, 1) }

// Stop the belt
func Stop() Request { return smallRequest(SubjectState, CodeBelt, 0) }

// SetSpeed changes the current belt speed
func SetSpeed(s Speed) Request { return smallRequest(SubjectState, CodeSpeed, s.HmPerHour()) }

// SetMode switches between auto, manual, sleep and calibration
func SetMode(m Mode) Request { return smallRequest(SubjectState, CodeMode, uint8(m)) }

// SetMaxSpeed caps the speed the belt will run at
func SetMaxSpeed(s Speed) Request {
	return largeRequest(SubjectSettings, CodeMaxSpeed, uint32(s))
}

// SetStartSpeed is the speed the belt starts at
func SetStartSpeed(s Speed) Request {
	return largeRequest(SubjectSettings, CodeStartSpeed, uint32(s))
}

// SetCalibrationMode turns calibration on or off
func SetCalibrationMode(enabled bool) Request {
	return largeRequest(SubjectSettings, CodeCalibration, boolParam(enabled))
}

// SetAutoStart lets the belt start when someone steps on it
func SetAutoStart(enabled bool) Request {
	return largeRequest(SubjectSettings, CodeAutoStart, boolParam(enabled))
}

// SetSensitivity of the automatic speed control
func SetSensitivity(s Sensitivity) Request {
	return largeRequest(SubjectSettings, CodeSensitivity, uint32(s))
}

// SetDisplayInfo picks which values the pad's display cycles through
func SetDisplayInfo(f InfoFlags) Request {
	return largeRequest(SubjectSettings, CodeDisplay, uint32(f))
}

// SetUnits switches between metric and imperial
func SetUnits(u Units) Request {
	return largeRequest(SubjectSettings, CodeUnits, uint32(u))
}

// SetLock locks or unlocks the pad's controls
func SetLock(locked bool) Request {
	return largeRequest(SubjectSettings, CodeLock, boolParam(locked))
}

// FetchLatestStoredRun asks for the most recent stored run
func FetchLatestStoredRun() Request { return FetchStoredRun(LatestStoredRunID) }

// FetchStoredRun asks for the stored run with the given id. Id 0 is the
// same frame as ClearStoredRuns.
func FetchStoredRun(id uint8) Request {
	return smallRequest(SubjectStoredStats, CodeStoredStats, id)
}

// ClearStoredRuns deletes every run stored on the pad
func ClearStoredRuns() Request { return smallRequest(SubjectStoredStats, CodeStoredStats, 0) }

// Subject of the request
func (r Request) Subject() Subject { return r.subject }

// Code is the message code within the subject
func (r Request) Code() byte { return r.code }

// Width is the parameter size on the wire, 1 or 4
func (r Request) Width() int { return int(r.width) }

// Param returns the parameter as an integer regardless of width
func (r Request) Param() uint32 {
	if r.width == 1 {
		return uint32(r.param[0])
	}
	return binary.BigEndian.Uint32(r.param[:])
}

// Checksum is the 8 bit wrapping sum of the bytes between header and
// checksum. It only catches additive corruption, it is not a CRC.
func Checksum(buf []byte) byte {
	var sum byte
	for _, b := range buf {
		sum += b
	}
	return sum
}

// Bytes returns a fresh copy of the wire frame:
// header, subject, code, param, checksum, footer
func (r Request) Bytes() []byte {
	buf := make([]byte, 0, 5+r.width)
	buf = append(buf, RequestHeader, byte(r.subject), r.code)
	buf = append(buf, r.param[:r.width]...)
	buf = append(buf, Checksum(buf[1:]), Footer)
	return buf
}

// MarshalBinary never fails
func (r Request) MarshalBinary() ([]byte, error) {
	return r.Bytes(), nil
}

func (r Request) String() string {
	return fmt.Sprintf("Request{subject=%s code=%d param=%d}", r.subject, r.code, r.Param())
}

// paramWidth is fixed per subject for every known command
func paramWidth(s Subject) int {
	if s == SubjectSettings {
		return 4
	}
	return 1
}

// ParseRequest decodes a request frame, e.g. one captured off the air.
// Unlike response decoding the checksum is enforced here since we know
// exactly how it is computed.
func ParseRequest(input []byte) (Request, error) {
	rd := newReader(input)
	h, err := rd.u8()
	if err != nil {
		return Request{}, err
	}
	if h != RequestHeader {
		return Request{}, fmt.Errorf("%w: 0x%02x", ErrInvalidHeader, h)
	}
	sb, err := rd.u8()
	if err != nil {
		return Request{}, err
	}
	subject, err := SubjectFromCode(sb)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %s", ErrInvalidSubject, err)
	}
	code, err := rd.u8()
	if err != nil {
		return Request{}, err
	}
	r := Request{subject: subject, code: code, width: uint8(paramWidth(subject))}
	param, err := rd.take(int(r.width))
	if err != nil {
		return Request{}, err
	}
	copy(r.param[:], param)

	sum, err := rd.u8()
	if err != nil {
		return Request{}, err
	}
	if want := Checksum(input[1 : 3+r.width]); sum != want {
		return Request{}, fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrInvalidChecksum, sum, want)
	}
	if err := rd.footer(); err != nil {
		return Request{}, err
	}
	return r, nil
}
