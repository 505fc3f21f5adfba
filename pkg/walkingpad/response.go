package walkingpad

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Response is one decoded notification: LiveState, Settings or StoredRun.
// Only ParseResponse picks the variant, from the subject byte on the wire.
type Response interface {
	Subject() Subject
	isResponse()
}

// LiveState is the periodic snapshot of the current run
type LiveState struct {
	MotorState     MotorState
	Speed          Speed
	Mode           Mode
	RunTime        time.Duration // whole seconds on the pad's clock
	DistanceMeters uint32
	Steps          uint32
	// Unknown bytes. The third seems to follow remote button presses.
	Opaque [4]byte
}

// Settings is the persistent configuration stored on the pad
type Settings struct {
	GoalType    uint8 // meaning unknown
	Goal        uint32
	Calibration uint8
	MaxSpeed    Speed
	StartSpeed  Speed
	StartMode   Mode
	Sensitivity Sensitivity
	Display     InfoFlags
	Locked      bool
	Units       Units
	Opaque      [4]byte
}

// StoredRun is one entry of the pad's run history. The pad's clock only
// ticks while the belt moves, so the raw times are only good for ordering.
type StoredRun struct {
	CurrentTimeRaw uint32
	StartTimeRaw   uint32
	Duration       time.Duration
	DistanceMeters uint32
	Steps          uint32
	// NextID is the id of the previous run, 0 when this is the oldest
	NextID uint8
}

func (LiveState) Subject() Subject { return SubjectState }
func (Settings) Subject() Subject  { return SubjectSettings }
func (StoredRun) Subject() Subject { return SubjectStoredStats }

func (LiveState) isResponse() {}
func (Settings) isResponse()  {}
func (StoredRun) isResponse() {}

// Next returns the id to fetch after this record
func (s StoredRun) Next() (uint8, bool) {
	return s.NextID, s.NextID != 0
}

func (s LiveState) String() string {
	return fmt.Sprintf("State{motor=%s speed=%s mode=%s distance=%dm time=%s steps=%d}",
		s.MotorState, s.Speed, s.Mode, s.DistanceMeters, s.RunTime, s.Steps)
}

func (s Settings) String() string {
	return fmt.Sprintf("Settings{max=%s start=%s mode=%s sensitivity=%s display=%s units=%s locked=%t}",
		s.MaxSpeed, s.StartSpeed, s.StartMode, s.Sensitivity, s.Display, s.Units, s.Locked)
}

func (s StoredRun) String() string {
	return fmt.Sprintf("StoredRun{start=%d duration=%s distance=%dm steps=%d next=%d}",
		s.StartTimeRaw, s.Duration, s.DistanceMeters, s.Steps, s.NextID)
}

// distance on the wire is in decameters
const metersPerUnit = 10

// All three payloads happen to be 16 bytes
const payloadLen = 16

// FrameLen is the full notification size for a subject
func FrameLen(s Subject) int {
	return 2 + payloadLen + 2
}

func parseLiveState(rd *reader) (LiveState, error) {
	var s LiveState
	motor, err := rd.u8()
	if err != nil {
		return s, err
	}
	s.MotorState = MotorState(motor)

	sp, err := rd.u8()
	if err != nil {
		return s, err
	}
	if s.Speed, err = NewSpeed(sp); err != nil {
		return s, err
	}
	m, err := rd.u8()
	if err != nil {
		return s, err
	}
	if s.Mode, err = ModeFromCode(m); err != nil {
		return s, err
	}
	secs, err := rd.u24()
	if err != nil {
		return s, err
	}
	s.RunTime = time.Duration(secs) * time.Second
	dist, err := rd.u24()
	if err != nil {
		return s, err
	}
	s.DistanceMeters = dist * metersPerUnit
	if s.Steps, err = rd.u24(); err != nil {
		return s, err
	}
	s.Opaque, err = rd.opaque4()
	return s, err
}

func parseSettings(rd *reader) (Settings, error) {
	var s Settings
	var err error
	if s.GoalType, err = rd.u8(); err != nil {
		return s, err
	}
	if s.Goal, err = rd.u24(); err != nil {
		return s, err
	}
	if s.Calibration, err = rd.u8(); err != nil {
		return s, err
	}

	b, err := rd.take(7)
	if err != nil {
		return s, err
	}
	if s.MaxSpeed, err = NewSpeed(b[0]); err != nil {
		return s, err
	}
	if s.StartSpeed, err = NewSpeed(b[1]); err != nil {
		return s, err
	}
	if s.StartMode, err = ModeFromCode(b[2]); err != nil {
		return s, err
	}
	if s.Sensitivity, err = SensitivityFromCode(b[3]); err != nil {
		return s, err
	}
	if s.Display, err = InfoFlagsFromCode(b[4]); err != nil {
		return s, err
	}
	s.Locked = b[5] != 0
	if s.Units, err = UnitsFromCode(b[6]); err != nil {
		return s, err
	}
	s.Opaque, err = rd.opaque4()
	return s, err
}

func parseStoredRun(rd *reader) (StoredRun, error) {
	var s StoredRun
	var err error
	if s.CurrentTimeRaw, err = rd.u24(); err != nil {
		return s, err
	}
	if s.StartTimeRaw, err = rd.u24(); err != nil {
		return s, err
	}
	secs, err := rd.u24()
	if err != nil {
		return s, err
	}
	s.Duration = time.Duration(secs) * time.Second
	dist, err := rd.u24()
	if err != nil {
		return s, err
	}
	s.DistanceMeters = dist * metersPerUnit
	if s.Steps, err = rd.u24(); err != nil {
		return s, err
	}
	s.NextID, err = rd.u8()
	return s, err
}

// ParseResponse decodes one notification frame:
// header, subject, fixed payload, checksum, footer.
// Every failure is returned as an error, arbitrary input never panics.
// A checksum mismatch is only logged, nobody has confirmed how the pad
// computes it.
func ParseResponse(input []byte) (Response, error) {
	rd := newReader(input)
	h, err := rd.u8()
	if err != nil {
		return nil, err
	}
	if h != ResponseHeader {
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidHeader, h)
	}
	sb, err := rd.u8()
	if err != nil {
		return nil, err
	}
	subject, err := SubjectFromCode(sb)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSubject, err)
	}
	// short frames are truncated, whatever garbage the bytes hold
	if len(input) < FrameLen(subject) {
		return nil, fmt.Errorf("%w: %s frame is %d bytes, got %d", ErrTruncated, subject, FrameLen(subject), len(input))
	}

	var resp Response
	switch subject {
	case SubjectState:
		resp, err = parseLiveState(rd)
	case SubjectSettings:
		resp, err = parseSettings(rd)
	case SubjectStoredStats:
		resp, err = parseStoredRun(rd)
	}
	if err != nil {
		return nil, fmt.Errorf("%s payload: %w", subject, err)
	}

	end := rd.off
	sum, err := rd.u8()
	if err != nil {
		return nil, err
	}
	if want := Checksum(input[1:end]); sum != want {
		log.WithFields(log.Fields{
			"subject": subject,
			"got":     sum,
			"want":    want,
		}).Debug("Response checksum mismatch")
	}

	if err := rd.footer(); err != nil {
		return nil, err
	}
	return resp, nil
}

// EncodeResponse builds the notification frame the pad would send for r.
// Distances are rounded down to whole decameters.
func EncodeResponse(r Response) []byte {
	buf := []byte{ResponseHeader, byte(r.Subject())}
	switch v := r.(type) {
	case LiveState:
		buf = append(buf, byte(v.MotorState), v.Speed.HmPerHour(), byte(v.Mode))
		buf = put24(buf, uint32(v.RunTime/time.Second))
		buf = put24(buf, v.DistanceMeters/metersPerUnit)
		buf = put24(buf, v.Steps)
		buf = append(buf, v.Opaque[:]...)
	case Settings:
		buf = append(buf, v.GoalType)
		buf = put24(buf, v.Goal)
		var locked byte
		if v.Locked {
			locked = 1
		}
		buf = append(buf, v.Calibration, v.MaxSpeed.HmPerHour(), v.StartSpeed.HmPerHour(),
			byte(v.StartMode), byte(v.Sensitivity), byte(v.Display), locked, byte(v.Units))
		buf = append(buf, v.Opaque[:]...)
	case StoredRun:
		buf = put24(buf, v.CurrentTimeRaw)
		buf = put24(buf, v.StartTimeRaw)
		buf = put24(buf, uint32(v.Duration/time.Second))
		buf = put24(buf, v.DistanceMeters/metersPerUnit)
		buf = put24(buf, v.Steps)
		buf = append(buf, v.NextID)
	}
	return append(buf, Checksum(buf[1:]), Footer)
}
