// Command chatserver serves the event chat REST API. Messages live in
// PostgreSQL when CHATSERVER_DATABASE_URL is set and in memory otherwise;
// Redis enables per-user rate limits and NATS enables the chat event feed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gameday/event-chat/internal/config"
	"github.com/gameday/event-chat/internal/logging"
)

var (
	listenAddr  string
	databaseURL string
	redisAddr   string
	natsURL     string
	logLevel    string

	cfg    *config.Server
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "chatserver",
	Short:         "Event chat API server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadServer()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("listen") {
			cfg.ListenAddr = listenAddr
		}
		if flags.Changed("database-url") {
			cfg.DatabaseURL = databaseURL
		}
		if flags.Changed("redis-addr") {
			cfg.RedisAddr = redisAddr
		}
		if flags.Changed("nats-url") {
			cfg.NATSURL = natsURL
		}
		if flags.Changed("log-level") {
			cfg.Log.Level = logLevel
		}

		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&listenAddr, "listen", "", "listen address (env CHATSERVER_LISTEN_ADDR)")
	pf.StringVar(&databaseURL, "database-url", "", "PostgreSQL DSN; empty keeps messages in memory (env CHATSERVER_DATABASE_URL)")
	pf.StringVar(&redisAddr, "redis-addr", "", "Redis address for rate limiting (env CHATSERVER_REDIS_ADDR)")
	pf.StringVar(&natsURL, "nats-url", "", "NATS URL for the chat event feed (env CHATSERVER_NATS_URL)")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (env CHATSERVER_LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "chatserver:", err)
		os.Exit(1)
	}
}
