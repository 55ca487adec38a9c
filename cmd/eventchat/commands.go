package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gameday/event-chat/internal/chat"
	"github.com/gameday/event-chat/internal/transport"
)

var (
	historySince string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history EVENT_ID",
	Short: "Print one page of an event's chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cursor := chat.Cursor(historySince)
		if !cursor.IsZero() {
			t, err := time.Parse(time.RFC3339Nano, historySince)
			if err != nil {
				return fmt.Errorf("--since must be an RFC 3339 timestamp: %w", err)
			}
			cursor = chat.CursorAt(t)
		}
		page, err := client.FetchSince(cmd.Context(), args[0], cursor, historyLimit)
		if err != nil {
			return err
		}
		p := newPrinter(cmd.OutOrStdout(), jsonOut)
		for _, m := range page.Messages {
			p.message(m)
		}
		if !jsonOut && !page.NextCursor.IsZero() {
			fmt.Fprintf(cmd.ErrOrStderr(), "next cursor: %s\n", page.NextCursor)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send EVENT_ID TEXT...",
	Short: "Post a message to an event's chat",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args[1:], " "))
		if err := chat.ValidateMessage(text); err != nil {
			return err
		}
		msg, err := client.Send(cmd.Context(), args[0], text)
		if err != nil {
			return err
		}
		newPrinter(cmd.OutOrStdout(), jsonOut).message(msg)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete MESSAGE_ID",
	Short: "Delete one of your messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return client.Delete(cmd.Context(), args[0])
	},
}

var getCmd = &cobra.Command{
	Use:   "get MESSAGE_ID",
	Short: "Print a single message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := client.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if msg == nil {
			return fmt.Errorf("message %s not found", args[0])
		}
		newPrinter(cmd.OutOrStdout(), jsonOut).message(*msg)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "", "only messages after this timestamp")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "page size, 1-200 (server default when unset)")
}

// describeError prefers the server's detail message for API failures.
func describeError(err error) string {
	var terr *transport.Error
	if errors.As(err, &terr) && terr.Detail != "" {
		return fmt.Sprintf("%s: %s", terr.Kind, terr.Detail)
	}
	return err.Error()
}
