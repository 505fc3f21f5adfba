// Package homekit exposes the pad to the Home app as two switches: the
// belt (on starts, off stops) and the child lock.
package homekit

import (
	"context"
	"sync"

	"github.com/brutella/hc"
	"github.com/brutella/hc/accessory"
	hclog "github.com/brutella/hc/log"
	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
)

// Submitter queues a request for the pad
type Submitter interface {
	Submit(ctx context.Context, req walkingpad.Request) error
}

// Config is what hc needs to pair
type Config struct {
	Pin         string
	StoragePath string
}

// Bridge keeps the switches in step with the pad
type Bridge struct {
	pad  Submitter
	Belt *accessory.Switch
	Lock *accessory.Switch

	mu  sync.Mutex
	ctx context.Context
}

func info(name string) accessory.Info {
	return accessory.Info{
		Name:         name,
		SerialNumber: "1",
		Manufacturer: "johnelliott.org",
		Model:        "WalkingPad Bridge",
	}
}

// New builds the accessories. Remote changes are submitted to pad.
func New(pad Submitter) *Bridge {
	b := &Bridge{
		pad:  pad,
		Belt: accessory.NewSwitch(info("WalkingPad")),
		Lock: accessory.NewSwitch(info("Lock WalkingPad")),
		ctx:  context.Background(),
	}
	b.Belt.Switch.On.OnValueRemoteUpdate(b.SetBelt)
	b.Lock.Switch.On.OnValueRemoteUpdate(b.SetLock)
	return b
}

// SetBelt starts or stops the belt
func (b *Bridge) SetBelt(on bool) {
	req := walkingpad.Stop()
	if on {
		req = walkingpad.Start()
	}
	b.submit(req)
}

// SetLock turns the child lock on or off
func (b *Bridge) SetLock(on bool) {
	b.submit(walkingpad.SetLock(on))
	// the pad only reports the lock with its settings
	b.submit(walkingpad.QuerySettings())
}

func (b *Bridge) submit(req walkingpad.Request) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	log.Debugf("HomeKit request %v", req)
	if err := b.pad.Submit(ctx, req); err != nil {
		log.WithError(err).Warn("HomeKit request failed")
	}
}

// Reflect shows a response on the switches
func (b *Bridge) Reflect(r walkingpad.Response) {
	switch r := r.(type) {
	case walkingpad.LiveState:
		b.Belt.Switch.On.SetValue(r.MotorState == walkingpad.MotorRunning || r.MotorState == walkingpad.MotorStarting)
	case walkingpad.Settings:
		b.Lock.Switch.On.SetValue(r.Locked)
	}
}

// Run serves the accessories until ctx is done or responses closes
func (b *Bridge) Run(ctx context.Context, cfg Config, responses <-chan walkingpad.Response) error {
	hclog.Debug.SetOutput(log.StandardLogger().WriterLevel(log.TraceLevel))
	hclog.Info.SetOutput(log.StandardLogger().WriterLevel(log.DebugLevel))

	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	t, err := hc.NewIPTransport(hc.Config{Pin: cfg.Pin, StoragePath: cfg.StoragePath}, b.Belt.Accessory, b.Lock.Accessory)
	if err != nil {
		return err
	}
	go t.Start()
	log.Infof("HomeKit bridge up, pin %s", cfg.Pin)

	defer func() {
		<-t.Stop()
		log.Trace("HomeKit stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			log.Trace("HomeKit ctx canceled")
			return ctx.Err()
		case r, ok := <-responses:
			if !ok {
				return nil
			}
			b.Reflect(r)
		}
	}
}
