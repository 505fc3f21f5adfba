// Package ble connects to a WalkingPad through BlueZ
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/johnelliott/walkpad/pkg/session"
	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/bluez"
	"github.com/muka/go-bluetooth/bluez/profile/adapter"
	"github.com/muka/go-bluetooth/bluez/profile/agent"
	"github.com/muka/go-bluetooth/bluez/profile/device"
	"github.com/muka/go-bluetooth/bluez/profile/gatt"
	log "github.com/sirupsen/logrus"
)

var (
	// Characteristics
	serviceUUID = "0000fe00-0000-1000-8000-00805f9b34fb"
	notifyUUID  = "0000fe01-0000-1000-8000-00805f9b34fb" // Read Notify
	writeUUID   = "0000fe02-0000-1000-8000-00805f9b34fb" // Writable

	gattCharInterface = "org.bluez.GattCharacteristic1"
)

const (
	DefaultAdapter     = "hci0"
	DefaultName        = "WalkingPad"
	defaultScanTimeout = 10 * time.Second
)

// Dialer finds a pad by address, or by name when no address is set
type Dialer struct {
	AdapterID   string
	Address     string
	Name        string
	ScanTimeout time.Duration

	agentOnce sync.Once
	agentErr  error
}

// Dial scans for the pad, connects and subscribes to notifications. It
// returns session.ErrNotFound when nothing matching advertises before the
// scan timeout.
func (d *Dialer) Dial(ctx context.Context) (session.Transport, error) {
	adapterID := d.AdapterID
	if adapterID == "" {
		adapterID = DefaultAdapter
	}
	log.Infof("Discovering %s on %s", d.target(), adapterID)

	a, err := adapter.NewAdapter1FromAdapterID(adapterID)
	if err != nil {
		return nil, fmt.Errorf("adapter %s: %w", adapterID, err)
	}
	if err := d.exposeAgent(); err != nil {
		return nil, err
	}

	dev, cached, err := d.findDevice(ctx, a)
	if err != nil {
		return nil, err
	}
	if err := connect(dev); err != nil {
		return nil, notVisible(err, cached, d.target())
	}
	l, err := newLink(ctx, dev)
	if err != nil {
		dev.Disconnect()
		return nil, err
	}
	return l, nil
}

func (d *Dialer) target() string {
	if d.Address != "" {
		return d.Address
	}
	if d.Name != "" {
		return d.Name
	}
	return DefaultName
}

// exposeAgent registers a pairing agent once per process
func (d *Dialer) exposeAgent() error {
	d.agentOnce.Do(func() {
		//Connect DBus System bus
		conn, err := dbus.SystemBus()
		if err != nil {
			d.agentErr = err
			return
		}
		// do not reuse agent0 from service
		agent.NextAgentPath()
		ag := agent.NewSimpleAgent()
		if err := agent.ExposeAgent(conn, ag, agent.CapNoInputNoOutput, true); err != nil {
			d.agentErr = fmt.Errorf("SimpleAgent: %w", err)
		}
	})
	return d.agentErr
}

func (d *Dialer) matches(p *device.Device1Properties) bool {
	if p == nil {
		return false
	}
	if d.Address != "" {
		return strings.EqualFold(p.Address, d.Address)
	}
	name := d.Name
	if name == "" {
		name = DefaultName
	}
	return strings.Contains(p.Name, name) || strings.Contains(p.Alias, name)
}

// findDevice returns a matching device BlueZ already knows, or discovers
// one. cached is true for the former.
func (d *Dialer) findDevice(ctx context.Context, a *adapter.Adapter1) (dev *device.Device1, cached bool, err error) {
	devices, err := a.GetDevices()
	if err != nil {
		return nil, false, err
	}
	for _, dev := range devices {
		props, err := dev.GetProperties()
		if err != nil {
			log.Errorf("Failed to load dev props: %s", err)
			continue
		}
		if !d.matches(props) {
			continue
		}
		log.Infof("Found cached device %s Connected=%t Paired=%t", props.Address, props.Connected, props.Paired)
		return dev, true, nil
	}

	timeout := d.ScanTimeout
	if timeout <= 0 {
		timeout = defaultScanTimeout
	}
	discoverCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	dev, err = d.discover(discoverCtx, a)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, false, fmt.Errorf("%w: %s not seen in %v", session.ErrNotFound, d.target(), timeout)
	}
	if err != nil {
		return nil, false, err
	}
	log.Debug("Found device")
	return dev, false, nil
}

// notVisible reports a failed connect to a cached device as not found.
// BlueZ keeps devices it has seen after they power off, so a cached entry
// says nothing about the pad advertising right now.
func notVisible(err error, cached bool, target string) error {
	if err == nil || !cached {
		return err
	}
	return fmt.Errorf("%w: cached %s did not answer: %v", session.ErrNotFound, target, err)
}

func (d *Dialer) discover(ctx context.Context, a *adapter.Adapter1) (*device.Device1, error) {
	if err := a.FlushDevices(); err != nil {
		return nil, err
	}

	filter := adapter.NewDiscoveryFilter()
	filter.AddUUIDs(serviceUUID)
	filter.Transport = "le"
	if err := a.SetDiscoveryFilter(filter.ToMap()); err != nil {
		log.WithError(err).Warn("Failed to set discovery filter")
	}

	discovery, cancelDiscovery, err := api.Discover(a, nil)
	if err != nil {
		return nil, err
	}
	defer cancelDiscovery()

	for {
		select {
		case ev, ok := <-discovery:
			if !ok {
				return nil, session.ErrNotFound
			}
			if ev.Type == adapter.DeviceRemoved {
				continue
			}
			dev, err := device.NewDevice1(ev.Path)
			if err != nil {
				return nil, err
			}
			if dev == nil || !d.matches(dev.Properties) {
				continue
			}
			return dev, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func connect(dev *device.Device1) error {
	props, err := dev.GetProperties()
	if err != nil {
		return fmt.Errorf("Failed to load props: %w", err)
	}
	log.Debugf("Found device name=%s addr=%s rssi=%d", props.Name, props.Address, props.RSSI)

	if props.Connected {
		log.Info("Device is connected")
		return nil
	}
	// The pad needs neither pairing nor trust
	log.Trace("Connecting device")
	if err := dev.Connect(); err != nil {
		if !strings.Contains(err.Error(), "Connection refused") {
			return fmt.Errorf("Connect failed: %w", err)
		}
	}
	log.Trace("Connected to device")
	return nil
}

// Link is a connected pad
type Link struct {
	dev       *device.Device1
	write     *gatt.GattCharacteristic1
	notify    *gatt.GattCharacteristic1
	charProps chan *bluez.PropertyChanged
	devProps  chan *bluez.PropertyChanged

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	exited    chan struct{}
}

func newLink(ctx context.Context, dev *device.Device1) (*Link, error) {
	if err := waitForServices(ctx, dev); err != nil {
		return nil, err
	}
	writeChar, err := dev.GetCharByUUID(writeUUID)
	if err != nil {
		return nil, fmt.Errorf("write characteristic: %w", err)
	}
	notifyChar, err := dev.GetCharByUUID(notifyUUID)
	if err != nil {
		return nil, fmt.Errorf("notify characteristic: %w", err)
	}

	// e.g. https://git.tcp.direct/kayos/prototooth/src/release/gattc_linux.go#L223
	charProps, err := notifyChar.WatchProperties()
	if err != nil {
		return nil, err
	}
	devProps, err := dev.WatchProperties()
	if err != nil {
		notifyChar.UnwatchProperties(charProps)
		return nil, err
	}

	l := &Link{
		dev:       dev,
		write:     writeChar,
		notify:    notifyChar,
		charProps: charProps,
		devProps:  devProps,
		out:       make(chan []byte, 64),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	go l.watch()

	if err := notifyChar.StartNotify(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// waitForServices waits until BlueZ has resolved the GATT services
func waitForServices(ctx context.Context, dev *device.Device1) error {
	for {
		list, err := dev.GetCharacteristics()
		if err != nil {
			return err
		}
		if len(list) > 0 {
			log.Debugf("Found %d characteristics", len(list))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (l *Link) watch() {
	defer close(l.exited)
	defer close(l.out)
	log.Trace("Notification watcher starting")
	for {
		select {
		case <-l.done:
			return
		case update, ok := <-l.devProps:
			if !ok || update == nil {
				return
			}
			if update.Name == "Connected" {
				if connected, _ := update.Value.(bool); !connected {
					log.Warn("Pad disconnected")
					return
				}
			}
		case update, ok := <-l.charProps:
			if !ok || update == nil {
				return
			}
			log.Tracef("--> update name=%s int=%s val=%v", update.Name, update.Interface, update.Value)
			if update.Interface != gattCharInterface || update.Name != "Value" {
				continue
			}
			value, isBytes := update.Value.([]byte)
			if !isBytes {
				continue
			}
			frame := append([]byte(nil), value...)
			select {
			case l.out <- frame:
			case <-l.done:
				return
			}
		}
	}
}

// Write sends one frame to the write characteristic
func (l *Link) Write(ctx context.Context, frame []byte) error {
	select {
	case <-l.done:
		return session.ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.write.WriteValue(frame, nil)
}

// Notifications yields raw notification frames until the pad disconnects
func (l *Link) Notifications() <-chan []byte { return l.out }

// Close stops notifications and disconnects
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		<-l.exited
		if e := l.notify.StopNotify(); e != nil {
			log.WithError(e).Debug("StopNotify")
		}
		l.notify.UnwatchProperties(l.charProps)
		l.dev.UnwatchProperties(l.devProps)
		log.Trace("Disconnecting from bluetooth...")
		err = l.dev.Disconnect()
		log.Trace("Disconnected from bluetooth")
	})
	return err
}

// Exit releases the shared D-Bus connection, call once on shutdown
func Exit() {
	api.Exit()
}
