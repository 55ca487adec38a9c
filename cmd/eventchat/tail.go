package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gameday/event-chat/internal/chat"
	"github.com/gameday/event-chat/internal/session"
	"github.com/gameday/event-chat/internal/visibility"
)

var tailCmd = &cobra.Command{
	Use:   "tail EVENT_ID",
	Short: "Follow an event's chat and post lines from stdin",
	Long: `Follow an event's chat. Each line read from stdin is posted as a message.

Commands:
  /delete ID   delete one of your messages
  /hide        pause polling at the inactive interval
  /show        resume normal polling
  /quit        exit

Sending SIGUSR1 to the process hides the view, SIGUSR2 shows it again.`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vis := visibility.NewSignals()
	defer vis.Close()

	ctrl := session.New(client,
		session.WithMaxMessages(cfg.MaxMessages),
		session.WithPageLimit(cfg.PageLimit),
		session.WithPollerConfig(cfg.Poll.Poller()),
		session.WithNotifier(vis),
		session.WithLogger(logger),
	)
	defer ctrl.Destroy()

	p := newPrinter(cmd.OutOrStdout(), jsonOut)
	unsubscribe := ctrl.Subscribe(p.state)
	defer unsubscribe()

	if err := ctrl.InitForEvent(ctx, args[0]); err != nil {
		return err
	}

	lines := readLines(cmd.InOrStdin())
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, ctrl, vis.Manual, line, cmd.ErrOrStderr()); quit {
				return nil
			}
		}
	}
}

// readLines feeds stdin lines into a channel that closes on EOF.
func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}

// chatActions is the part of session.Controller that tail input drives.
type chatActions interface {
	SendMessage(ctx context.Context, text string) (chat.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	Boost()
}

// handleLine executes one line of tail input and reports whether to exit.
// Any input, including a blank line, counts as activity and boosts polling.
func handleLine(ctx context.Context, ctrl chatActions, vis *visibility.Manual, line string, errOut io.Writer) (quit bool) {
	ctrl.Boost()

	line = strings.TrimSpace(line)
	cmd, arg, _ := strings.Cut(line, " ")
	switch {
	case line == "":
		return false
	case cmd == "/quit":
		return true
	case cmd == "/hide":
		vis.SetVisible(false)
	case cmd == "/show":
		vis.SetVisible(true)
	case cmd == "/delete":
		id := strings.TrimSpace(arg)
		if id == "" {
			fmt.Fprintln(errOut, "usage: /delete MESSAGE_ID")
			return false
		}
		if err := ctrl.DeleteMessage(ctx, id); err != nil {
			fmt.Fprintln(errOut, "delete failed:", describeError(err))
		}
	case strings.HasPrefix(cmd, "/"):
		fmt.Fprintf(errOut, "unknown command %s\n", cmd)
	default:
		if _, err := ctrl.SendMessage(ctx, line); err != nil {
			fmt.Fprintln(errOut, "send failed:", describeError(err))
		}
	}
	return false
}
