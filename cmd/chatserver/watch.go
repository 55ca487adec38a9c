package main

import (
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gameday/event-chat/internal/messaging"
)

var watchCmd = &cobra.Command{
	Use:   "watch [EVENT_ID|*]",
	Short: "Print chat events from the NATS feed as JSON lines",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.NATSURL == "" {
			return errors.New("watch needs CHATSERVER_NATS_URL or --nats-url")
		}
		eventID := "*"
		if len(args) == 1 {
			eventID = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = "chatserver-watch"
		nc, err := messaging.NewNATSClient(natsConfig, logger)
		if err != nil {
			return err
		}
		defer nc.Close()

		events := make(chan messaging.ChatEvent, 64)
		if err := nc.SubscribeChatEvents(eventID, func(ev messaging.ChatEvent) {
			select {
			case events <- ev:
			default:
				logger.Warn("watch output is behind, dropping event")
			}
		}); err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-events:
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
		}
	},
}
