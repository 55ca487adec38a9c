package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gameday/event-chat/internal/chatlog"
	"github.com/gameday/event-chat/internal/config"
	"github.com/gameday/event-chat/internal/messaging"
	"github.com/gameday/event-chat/internal/ratelimit"
	"github.com/gameday/event-chat/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the API (default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL == "" {
			return errors.New("migrate needs CHATSERVER_DATABASE_URL or --database-url")
		}
		pg, err := chatlog.OpenPostgres(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := chatlog.Migrate(pg.DB()); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := []server.Option{server.WithLogger(logger)}

	if cfg.RedisAddr != "" {
		rdb, err := connectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts = append(opts, server.WithLimiter(ratelimit.NewLimiter(rdb, logger)))
	}

	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		nc, err := messaging.NewNATSClient(natsConfig, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		opts = append(opts, server.WithPublisher(nc))
	}

	srv := server.New(serverConfig(cfg), store, opts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func serverConfig(c *config.Server) server.Config {
	sc := server.DefaultConfig()
	sc.ListenAddr = c.ListenAddr
	sc.ReadTimeout = c.ReadTimeout
	sc.WriteTimeout = c.WriteTimeout
	sc.SendRule = ratelimit.Rule{Key: ratelimit.RuleSend.Key, Limit: c.SendLimit, Window: c.SendWindow}
	return sc
}

func openStore(ctx context.Context, c *config.Server, logger *zap.Logger) (chatlog.Store, error) {
	if c.DatabaseURL == "" {
		logger.Warn("no database configured, messages are kept in memory")
		return chatlog.NewMemory(), nil
	}
	pg, err := chatlog.OpenPostgres(ctx, c.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if c.AutoMigrate {
		if err := chatlog.Migrate(pg.DB()); err != nil {
			pg.Close()
			return nil, err
		}
	}
	logger.Info("using postgres store")
	return pg, nil
}

func connectRedis(ctx context.Context, c *config.Server) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.RedisAddr, err)
	}
	return rdb, nil
}
