// Command pulsehub runs the PulseHub real-time messaging service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Tyrowin/pulsehub/internal/auth"
	"github.com/Tyrowin/pulsehub/internal/broker"
	"github.com/Tyrowin/pulsehub/internal/cache"
	"github.com/Tyrowin/pulsehub/internal/hub"
)

// version is stamped by the build via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "pulsehub",
	Short: "Real-time WebSocket messaging hub",
	Long: `PulseHub accepts WebSocket connections, fans messages out to rooms,
keeps bounded replay history, tracks presence, and mirrors room traffic
across instances through a pub/sub broker.

Configuration is read from PULSEHUB_* environment variables, an optional
.env file, and an optional pulsehub.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hub server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pulsehub", version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	// Load .env before the config reads the environment.
	dotenvErr := godotenv.Load()

	cfg, err := hub.NewConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()

	if dotenvErr != nil {
		log.Debug("no .env file found, using environment variables")
	}

	ctx := context.Background()

	c, err := buildCache(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect cache: %w", err)
	}

	b, err := buildBroker(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}

	verifier := buildVerifier(cfg, log)

	h := hub.New(*cfg, verifier, c, b, log)
	go h.Run()

	server := hub.CreateServer(cfg.Port, h.Routes())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- hub.StartServer(server, log)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	if err := hub.ShutdownServer(server, cfg.ShutdownTimeout, log); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := h.Shutdown(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("hub shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}

// newLogger builds the service logger: development encoder for debug level,
// production JSON otherwise.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)

	return zcfg.Build()
}

// buildCache selects the cache backend: Redis when a URL is configured,
// otherwise the in-process expiring map.
func buildCache(ctx context.Context, cfg *hub.Config, log *zap.Logger) (cache.Cache, error) {
	if cfg.RedisURL == "" {
		log.Info("using in-memory cache")
		return cache.NewMemory(), nil
	}

	c, err := cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	log.Info("connected to Redis cache")
	return c, nil
}

// buildBroker selects the fan-out broker by URL scheme. An empty URL keeps
// the hub instance local-only on an in-process bus.
func buildBroker(ctx context.Context, cfg *hub.Config, log *zap.Logger) (broker.Broker, error) {
	switch {
	case cfg.BrokerURL == "":
		log.Info("no broker configured, running single-instance")
		return broker.NewMemory(), nil
	case strings.HasPrefix(cfg.BrokerURL, "nats://"), strings.HasPrefix(cfg.BrokerURL, "tls://"):
		b, err := broker.NewNATS(cfg.BrokerURL, log)
		if err != nil {
			return nil, err
		}
		log.Info("connected to NATS broker")
		return b, nil
	case strings.HasPrefix(cfg.BrokerURL, "postgres://"), strings.HasPrefix(cfg.BrokerURL, "postgresql://"):
		b, err := broker.NewPostgres(ctx, cfg.BrokerURL, log)
		if err != nil {
			return nil, err
		}
		log.Info("connected to Postgres broker")
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported broker URL %q", cfg.BrokerURL)
	}
}

// buildVerifier selects the token verifier. With neither an endpoint nor
// static tokens configured every connection attempt is rejected, which keeps
// the operational endpoints reachable on a misconfigured instance.
func buildVerifier(cfg *hub.Config, log *zap.Logger) auth.Verifier {
	if cfg.AuthEndpoint != "" {
		log.Info("using HTTP token verifier", zap.String("endpoint", cfg.AuthEndpoint))
		return auth.NewHTTP(cfg.AuthEndpoint)
	}
	if len(cfg.StaticTokens) > 0 {
		log.Info("using static token verifier", zap.Int("tokens", len(cfg.StaticTokens)))
		return auth.Static(cfg.StaticTokens)
	}
	log.Warn("no authentication configured, all connection attempts will be rejected")
	return auth.Static{}
}
