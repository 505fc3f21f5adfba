package main

import (
	"github.com/johnelliott/walkpad/internal/wsbridge"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var listenAddr string

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Share this machine's pad over WebSocket",
	Long: `Serves the pad to one "walkpad --bridge ws://host:port/" client at a
time, so the pad can be used from a machine without Bluetooth. Frames pass
through untouched; the client paces its own writes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		log.Infof("Bridging the pad on %s", listenAddr)
		return listenAndServe(ctx, listenAddr, wsbridge.NewServer(localDialer()))
	},
}

func init() {
	bridgeCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8765", "Address to listen on")
	rootCmd.AddCommand(bridgeCmd)
}
