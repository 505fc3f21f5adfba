// Package sim is an imaginary WalkingPad for running everything without
// hardware. It answers requests the way the real pad does, sends live state
// while the belt moves and keeps finished runs as a linked list.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/johnelliott/walkpad/pkg/session"
	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultTick is how often the belt reports while running
	DefaultTick   = 700 * time.Millisecond
	metersPerStep = 0.7
	notifyBuffer  = 256
)

// Options for a simulated pad
type Options struct {
	// Tick is both the simulation step and the live state period
	Tick time.Duration
	// Hidden makes the first n dials report not found
	Hidden int
	// Runs are preloaded stored runs, newest first. NextID is ignored,
	// the pad assigns its own ids.
	Runs []walkingpad.StoredRun
}

type entry struct {
	id  uint8
	run walkingpad.StoredRun
}

// Pad is the device side. It outlives connections so stored runs survive a
// reconnect.
type Pad struct {
	mu       sync.Mutex
	tick     time.Duration
	hidden   int
	state    walkingpad.LiveState
	settings walkingpad.Settings
	meters   float64
	elapsed  time.Duration
	started  uint32
	stored   []entry // newest first
	nextID   uint8
	uptime   time.Duration
	link     *Link
	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a stopped pad with factory settings and starts its clock
func New(opts Options) *Pad {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	p := &Pad{
		tick:   opts.Tick,
		hidden: opts.Hidden,
		nextID: 1,
		stop:   make(chan struct{}),
		state: walkingpad.LiveState{
			MotorState: walkingpad.MotorStopped,
			Mode:       walkingpad.ModeManual,
		},
		settings: walkingpad.Settings{
			MaxSpeed:    walkingpad.MaxSpeed,
			StartSpeed:  walkingpad.DefaultSpeed,
			StartMode:   walkingpad.ModeManual,
			Sensitivity: walkingpad.SensitivityMedium,
			Display:     walkingpad.InfoAll,
			Units:       walkingpad.UnitsMetric,
		},
	}
	for i := len(opts.Runs) - 1; i >= 0; i-- {
		p.store(opts.Runs[i])
	}
	go p.run()
	return p
}

// Dial connects to the pad, replacing any earlier link
func (p *Pad) Dial(ctx context.Context) (session.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hidden > 0 {
		p.hidden--
		log.Trace("Simulated pad not advertising")
		return nil, session.ErrNotFound
	}
	if p.link != nil {
		p.link.closeLocked()
	}
	p.link = &Link{pad: p, notify: make(chan []byte, notifyBuffer)}
	log.Debug("Simulated pad connected")
	return p.link, nil
}

// Stop halts the simulation clock and drops the link
func (p *Pad) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.mu.Lock()
		if p.link != nil {
			p.link.closeLocked()
		}
		p.mu.Unlock()
	})
}

// State returns the current live state
func (p *Pad) State() walkingpad.LiveState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Settings returns the current settings
func (p *Pad) Settings() walkingpad.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// StoredRuns returns the stored runs newest first, linked as the pad
// reports them
func (p *Pad) StoredRuns() []walkingpad.StoredRun {
	p.mu.Lock()
	defer p.mu.Unlock()
	runs := make([]walkingpad.StoredRun, len(p.stored))
	for i := range p.stored {
		runs[i] = p.linked(i)
	}
	return runs
}

// Step advances the belt by d and reports live state if it is running, as
// one clock tick would
func (p *Pad) Step(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uptime += d
	if p.state.MotorState == walkingpad.MotorRunning {
		p.advance(d)
		p.emit(p.state)
	}
}

func (p *Pad) run() {
	tic := time.NewTicker(p.tick)
	defer tic.Stop()
	for {
		select {
		case <-p.stop:
			log.Trace("Simulated pad stopped")
			return
		case <-tic.C:
			p.Step(p.tick)
		}
	}
}

// advance moves the belt forward by d at the current speed
func (p *Pad) advance(d time.Duration) {
	p.elapsed += d
	p.meters += float64(p.state.Speed.HmPerHour()) * 100 * d.Seconds() / 3600
	p.state.RunTime = p.elapsed.Truncate(time.Second)
	// the pad only counts whole decameters
	p.state.DistanceMeters = uint32(p.meters/10) * 10
	p.state.Steps = uint32(math.Floor(p.meters / metersPerStep))
}

func (p *Pad) emit(r walkingpad.Response) {
	if p.link == nil {
		return
	}
	p.link.sendLocked(walkingpad.EncodeResponse(r))
}

// store pushes a finished run on the front of the list
func (p *Pad) store(r walkingpad.StoredRun) {
	id := p.nextID
	p.nextID++
	if p.nextID == 0 || p.nextID == walkingpad.LatestStoredRunID {
		p.nextID = 1
	}
	p.stored = append([]entry{{id: id, run: r}}, p.stored...)
}

// linked returns stored run i with its next id filled in
func (p *Pad) linked(i int) walkingpad.StoredRun {
	r := p.stored[i].run
	r.NextID = 0
	if i+1 < len(p.stored) {
		r.NextID = p.stored[i+1].id
	}
	r.CurrentTimeRaw = p.clockRaw()
	return r
}

// clockRaw is the pad's own seconds counter
func (p *Pad) clockRaw() uint32 { return uint32(p.uptime / time.Second) }

func (p *Pad) lookup(id uint8) (walkingpad.StoredRun, bool) {
	for i, e := range p.stored {
		if id == walkingpad.LatestStoredRunID || e.id == id {
			return p.linked(i), true
		}
	}
	return walkingpad.StoredRun{}, false
}

func (p *Pad) startBelt() {
	if p.state.MotorState == walkingpad.MotorRunning {
		return
	}
	p.state.MotorState = walkingpad.MotorRunning
	if p.state.Speed == 0 {
		p.state.Speed = p.settings.StartSpeed
	}
	p.elapsed, p.meters = 0, 0
	p.state.RunTime, p.state.DistanceMeters, p.state.Steps = 0, 0, 0
	p.started = p.clockRaw()
}

func (p *Pad) stopBelt() {
	if p.state.MotorState != walkingpad.MotorRunning {
		return
	}
	p.state.MotorState = walkingpad.MotorStopped
	p.state.Speed = 0
	p.store(walkingpad.StoredRun{
		StartTimeRaw:   p.started,
		Duration:       p.state.RunTime,
		DistanceMeters: p.state.DistanceMeters,
		Steps:          p.state.Steps,
	})
}

// handle applies one request and sends whatever the pad would answer
func (p *Pad) handle(req walkingpad.Request) {
	param := req.Param()
	switch req.Subject() {
	case walkingpad.SubjectState:
		switch req.Code() {
		case walkingpad.CodeSpeed:
			p.state.Speed = walkingpad.SpeedFromHmPerHour(uint8(param))
			if p.state.Speed > p.settings.MaxSpeed {
				p.state.Speed = p.settings.MaxSpeed
			}
		case walkingpad.CodeMode:
			if m, err := walkingpad.ModeFromCode(byte(param)); err == nil {
				p.state.Mode = m
			}
		case walkingpad.CodeBelt:
			if p.settings.Locked {
				log.Debug("Simulated pad locked, ignoring belt command")
			} else if param == 1 {
				p.startBelt()
			} else {
				p.stopBelt()
			}
		}
		p.emit(p.state)

	case walkingpad.SubjectSettings:
		s := &p.settings
		switch req.Code() {
		case walkingpad.CodeCalibration:
			s.Calibration = uint8(param)
		case walkingpad.CodeMaxSpeed:
			s.MaxSpeed = walkingpad.SpeedFromHmPerHour(uint8(param))
		case walkingpad.CodeStartSpeed:
			s.StartSpeed = walkingpad.SpeedFromHmPerHour(uint8(param))
		case walkingpad.CodeAutoStart:
			s.StartMode = walkingpad.ModeManual
			if param == 1 {
				s.StartMode = walkingpad.ModeAuto
			}
		case walkingpad.CodeSensitivity:
			if v, err := walkingpad.SensitivityFromCode(byte(param)); err == nil {
				s.Sensitivity = v
			}
		case walkingpad.CodeDisplay:
			if v, err := walkingpad.InfoFlagsFromCode(byte(param)); err == nil {
				s.Display = v
			}
		case walkingpad.CodeUnits:
			if v, err := walkingpad.UnitsFromCode(byte(param)); err == nil {
				s.Units = v
			}
		case walkingpad.CodeLock:
			s.Locked = param == 1
		}
		p.emit(p.settings)

	case walkingpad.SubjectStoredStats:
		id := uint8(param)
		if id == 0 {
			log.Debugf("Simulated pad cleared %d stored runs", len(p.stored))
			p.stored = nil
			return
		}
		if r, ok := p.lookup(id); ok {
			p.emit(r)
		}
	}
}

// Link is one connection to the pad
type Link struct {
	pad    *Pad
	notify chan []byte
	closed bool
}

// Write delivers a request frame to the pad
func (l *Link) Write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req, err := walkingpad.ParseRequest(frame)
	l.pad.mu.Lock()
	defer l.pad.mu.Unlock()
	if l.closed {
		return session.ErrClosed
	}
	if err != nil {
		// the real pad ignores garbage
		log.WithError(err).Debugf("Simulated pad ignoring % x", frame)
		return nil
	}
	log.Tracef("Simulated pad got %v", req)
	l.pad.handle(req)
	return nil
}

// Notifications yields response frames until the link closes
func (l *Link) Notifications() <-chan []byte { return l.notify }

// Close drops the link
func (l *Link) Close() error {
	l.pad.mu.Lock()
	defer l.pad.mu.Unlock()
	l.closeLocked()
	if l.pad.link == l {
		l.pad.link = nil
	}
	return nil
}

func (l *Link) closeLocked() {
	if l.closed {
		return
	}
	l.closed = true
	close(l.notify)
}

func (l *Link) sendLocked(frame []byte) {
	if l.closed {
		return
	}
	select {
	case l.notify <- frame:
	default:
		log.Warn("Simulated notification dropped, nobody is reading")
	}
}
