package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knowledge-bank/kb-cloud/types"
	"github.com/knowledge-bank/kb-cloud/websocket"
)

var (
	eventsURL       string
	eventsHeartbeat bool
	eventsAttempts  int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow the live job and result event stream",
	Long: `Connects to /api/events and prints one JSON event per line, reconnecting
with backoff when the server goes away.`,
	Args: cobra.NoArgs,
	RunE: followEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsURL, "url", "ws://localhost:3000/api/events", "Event stream URL (http(s) or ws(s))")
	eventsCmd.Flags().BoolVar(&eventsHeartbeat, "heartbeats", false, "Also print heartbeat messages")
	eventsCmd.Flags().IntVar(&eventsAttempts, "max-attempts", 0, "Give up after this many failed connects (0 = never)")
}

func followEvents(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := websocket.NewSubscriber(eventsURL, log)
	if err != nil {
		return err
	}
	sub.MaxAttempts = eventsAttempts

	enc := json.NewEncoder(cmd.OutOrStdout())
	return sub.Run(ctx, func(ev websocket.Event) {
		if ev.Type == types.WSTypeHeartbeat && !eventsHeartbeat {
			return
		}
		_ = enc.Encode(ev)
	})
}
