// Command eventchat is a terminal client for event chats. It follows a chat
// with adaptive polling and can post, fetch and delete messages.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gameday/event-chat/internal/config"
	"github.com/gameday/event-chat/internal/logging"
	"github.com/gameday/event-chat/internal/transport"
)

var (
	// Flags override the matching EVENTCHAT_* variables.
	baseURL   string
	token     string
	userName  string
	logLevel  string
	logFormat string
	jsonOut   bool

	cfg    *config.Client
	logger *zap.Logger
	client *transport.Client
)

var rootCmd = &cobra.Command{
	Use:           "eventchat",
	Short:         "Follow and post to event chats",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadClient()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("base-url") {
			cfg.BaseURL = baseURL
		}
		if flags.Changed("token") {
			cfg.Token = token
		}
		if flags.Changed("user-name") {
			cfg.UserName = userName
		}
		if flags.Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if flags.Changed("log-format") {
			cfg.Log.Format = logFormat
		}

		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}

		client, err = transport.New(transport.Config{
			BaseURL:           cfg.BaseURL,
			Timeout:           cfg.RequestTimeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
		},
			transport.WithAuthorizer(identityAuthorizer(cfg.Token, cfg.UserName)),
			transport.WithLogger(logger),
		)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// identityAuthorizer sends the bearer token and, when set, the display name
// the development server attaches to new messages.
func identityAuthorizer(token, name string) transport.Authorizer {
	bearer := transport.BearerToken(token)
	return transport.AuthorizerFunc(func(ctx context.Context, req *http.Request) error {
		if name != "" {
			req.Header.Set("X-User-Name", name)
		}
		return bearer.Authorize(ctx, req)
	})
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&baseURL, "base-url", "", "API base URL (env EVENTCHAT_BASE_URL)")
	pf.StringVar(&token, "token", "", "bearer token (env EVENTCHAT_TOKEN)")
	pf.StringVar(&userName, "user-name", "", "display name sent with requests (env EVENTCHAT_USER_NAME)")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (env EVENTCHAT_LOG_LEVEL)")
	pf.StringVar(&logFormat, "log-format", "", "json or console (env EVENTCHAT_LOG_FORMAT)")
	pf.BoolVar(&jsonOut, "json", false, "print messages as JSON lines")

	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(getCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "eventchat:", describeError(err))
		os.Exit(1)
	}
}
