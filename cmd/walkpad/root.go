package main

import (
	"sync"
	"time"

	"github.com/johnelliott/walkpad/internal/ble"
	"github.com/johnelliott/walkpad/internal/config"
	"github.com/johnelliott/walkpad/internal/sim"
	"github.com/johnelliott/walkpad/internal/sink"
	"github.com/johnelliott/walkpad/internal/wsbridge"
	"github.com/johnelliott/walkpad/pkg/history"
	"github.com/johnelliott/walkpad/pkg/session"
	"github.com/johnelliott/walkpad/pkg/walkingpad"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	simulate   bool
	adapterF   string
	addrF      string
	bridgeF    string

	cfg     *config.Config
	usedBLE bool
)

var rootCmd = &cobra.Command{
	Use:   "walkpad",
	Short: "Control and log a KingSmith WalkingPad",
	Long: `walkpad talks to a KingSmith WalkingPad over Bluetooth LE.

It downloads the runs stored on the pad, tracks new runs live and saves
them to a JSON lines file, NATS or Redis. The pad can also be driven from
the command line, a prompt, a terminal dashboard or HomeKit.

Connection modes:
  Bluetooth: --adapter hci0 [--addr AA:BB:CC:DD:EE:FF]
  Bridge:    --bridge ws://host:8765/ (see "walkpad bridge")
  Simulated: --simulate

Settings come from --config, then WALKPAD_* environment variables, then flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "panic, warn, info, debug or trace (env LOGLEVEL)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Talk to a simulated pad instead of a real one")
	rootCmd.PersistentFlags().StringVar(&adapterF, "adapter", "", "Bluetooth adapter, e.g. hci0")
	rootCmd.PersistentFlags().StringVar(&addrF, "addr", "", "Pad address, discovered by name when empty")
	rootCmd.PersistentFlags().StringVar(&bridgeF, "bridge", "", "WebSocket bridge URL (ws:// or wss://)")
}

func setup(cmd *cobra.Command) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("adapter") {
		c.Adapter = adapterF
	}
	if flags.Changed("addr") {
		c.Address = addrF
	}
	if flags.Changed("bridge") {
		c.BridgeURL = bridgeF
	}
	if err := config.Validate(c); err != nil {
		return err
	}
	setLogLevel(c.LogLevel)
	cfg = c
	return nil
}

func setLogLevel(level string) {
	switch level {
	case "panic":
		log.SetLevel(log.PanicLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "trace":
		log.SetLevel(log.TraceLevel)
	default:
		lvl, err := log.ParseLevel(level)
		if err != nil {
			lvl = log.InfoLevel
		}
		log.SetLevel(lvl)
	}
}

var (
	simOnce sync.Once
	simPad  *sim.Pad
)

// demoPad is shared by every connection of the process, so stored runs
// and belt state survive reconnects
func demoPad() *sim.Pad {
	simOnce.Do(func() {
		log.Warn("Using a simulated pad")
		simPad = sim.New(sim.Options{
			Runs: []walkingpad.StoredRun{
				{Duration: 31 * time.Minute, DistanceMeters: 2070, Steps: 2950},
				{Duration: 12 * time.Minute, DistanceMeters: 640, Steps: 910},
			},
		})
	})
	return simPad
}

func dialer() session.Dialer {
	switch {
	case simulate:
		return demoPad()
	case cfg.BridgeURL != "":
		log.Infof("Using bridge %s", cfg.BridgeURL)
		return wsbridge.Dialer{URL: cfg.BridgeURL}
	}
	return localDialer()
}

// localDialer skips the bridge, for serving one
func localDialer() session.Dialer {
	if simulate {
		return demoPad()
	}
	usedBLE = true
	return &ble.Dialer{
		AdapterID: cfg.Adapter,
		Address:   cfg.Address,
		Name:      cfg.DeviceName,
	}
}

func newConnector() *session.Connector {
	return session.NewConnector(dialer(), session.ConnectorOptions{
		Retries:    cfg.ConnectRetries,
		RetryDelay: cfg.RetryDelay(),
		Session:    session.Options{Pacing: cfg.Pacing()},
	})
}

func historyOptions() history.Options {
	return history.Options{
		Timeout: cfg.HistoryTimeout(),
		Retries: cfg.HistoryRetries,
	}
}

func sinkOptions() sink.Options {
	return sink.Options{
		File:        cfg.StatsFile,
		NATSURL:     cfg.NATSURL,
		NATSSubject: cfg.NATSSubject,
		RedisURL:    cfg.RedisURL,
		RedisKey:    cfg.RedisKey,
	}
}
