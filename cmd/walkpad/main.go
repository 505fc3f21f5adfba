package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnelliott/walkpad/internal/ble"
	log "github.com/sirupsen/logrus"
)

func main() {
	err := rootCmd.Execute()
	if usedBLE {
		ble.Exit()
	}
	if err != nil {
		os.Exit(1)
	}
}

// signalContext is canceled on the first SIGTERM, SIGHUP, SIGINT or SIGQUIT
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(
			sig,
			syscall.SIGTERM,
			syscall.SIGHUP,  // kill -SIGHUP XXXX
			syscall.SIGINT,  // kill -SIGINT XXXX or Ctrl+c
			syscall.SIGQUIT, // kill -SIGQUIT XXXX
		)
		defer signal.Stop(sig)
		log.Trace("Listening for signals")
		select {
		case s := <-sig:
			log.Debug("Got signal: ", s)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// bail hard if shutdown takes too long
func finalCountdown() {
	theFinalCountdown := 30 * time.Second
	log.Debugf("Waiting %v then exiting", theFinalCountdown)
	time.AfterFunc(theFinalCountdown, func() {
		panic("Took too long to exit\n")
	})
}
