package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karthikraju391/rentchat/broker"
	"github.com/karthikraju391/rentchat/config"
	"github.com/karthikraju391/rentchat/handlers"
	"github.com/karthikraju391/rentchat/logging"
	"github.com/karthikraju391/rentchat/nats_service"
	"github.com/karthikraju391/rentchat/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rentchat",
	Short: "Car rental chat relay and client",
	Long: `rentchat runs the chat relay for the car rental marketplace and ships a
terminal client for chatting with other users and browsing the car catalog.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat relay",
	Long: `Serves the REST chat and catalog routes and the live websocket channel.
Messages are fanned out in process, or through NATS JetStream with server.broker=nats.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "rentchat.yaml", "path to the YAML config file")
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd, chatCmd, carsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := store.Seed(ctx, st, cfg.Seed); err != nil {
		return fmt.Errorf("seed store: %w", err)
	}

	br, closeBroker, err := openBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBroker()

	h := handlers.NewHandler(st, br, cfg.Transport, logger)
	app := handlers.NewApp(h, cfg.Logging.Level == "debug")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr),
			zap.String("broker", cfg.Server.Broker), zap.String("store", cfg.Store.Driver))
		return app.Listen(cfg.Server.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server gracefully stopped")
	return nil
}

func openStore(c config.Store) (store.Store, error) {
	switch c.Driver {
	case "sqlite":
		return store.OpenSQLite(c.DSN)
	default:
		return store.NewMemory(), nil
	}
}

func openBroker(ctx context.Context, c *config.Config) (broker.Broker, func(), error) {
	if c.Server.Broker != "nats" {
		return broker.NewLocal(), func() {}, nil
	}
	svc, err := nats_service.NewNatsService(ctx, c.NATS, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize NATS service: %w", err)
	}
	logger.Info("NATS service initialized", zap.String("url", c.NATS.URL))
	return svc, svc.Close, nil
}
