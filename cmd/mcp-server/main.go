package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mcpguard/mcpserver/internal/api"
	"github.com/mcpguard/mcpserver/internal/config"
	"github.com/mcpguard/mcpserver/internal/detection"
	"github.com/mcpguard/mcpserver/internal/mcp"
	"github.com/mcpguard/mcpserver/internal/stdio"
	"github.com/mcpguard/mcpserver/internal/supervisor"
	"github.com/mcpguard/mcpserver/internal/tools"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	v := config.NewViper()

	var rootCmd = &cobra.Command{
		Use:   "mcp-server",
		Short: "MCP tool server over stdio and HTTP",
		Long: "Serves MCP tools over JSON-RPC 2.0. Transport \"stdio\" reads one request per line\n" +
			"from stdin, \"http\" listens for POST /mcp, and \"both\" runs them together.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), v)
		},
	}

	flags := rootCmd.Flags()
	flags.String("name", "mcp-server", "server name reported by initialize (env SERVER_NAME)")
	flags.String("server-version", "0.1.0", "server version reported by initialize (env SERVER_VERSION)")
	flags.String("transport", "both", "transport mode: stdio, http or both (env MCP_TRANSPORT_MODE)")
	flags.String("host", "0.0.0.0", "HTTP bind host (env HOST)")
	flags.Int("port", 3000, "HTTP bind port (env PORT)")
	flags.Int("workers", 0, "HTTP worker pool size, 0 for min(CPUs, 16) (env WORKER_THREADS)")
	flags.String("config", "kmcp.yaml", "tool configuration file (env MCP_CONFIG_FILE)")
	flags.String("secret-rules", "", "gitleaks rules file for scan_secrets, empty for built-in rules (env GITLEAKS_CONFIG)")
	flags.String("log-level", "info", "log level: debug, info, warn, error (env LOG_LEVEL)")

	for key, flag := range map[string]string{
		config.KeyServerName:    "name",
		config.KeyServerVersion: "server-version",
		config.KeyTransport:     "transport",
		config.KeyHost:          "host",
		config.KeyPort:          "port",
		config.KeyWorkers:       "workers",
		config.KeyConfigFile:    "config",
		config.KeySecretRules:   "secret-rules",
		config.KeyLogLevel:      "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, v *viper.Viper) error {
	// Logs go to stderr; stdout is reserved for protocol envelopes.
	logger := newLogger(v.GetString(config.KeyLogLevel))
	slog.SetDefault(logger)

	cfg, err := config.NewConfig(v)
	if err != nil {
		return err
	}

	settings, err := config.LoadToolSettings(cfg.ConfigFile, logger)
	if err != nil {
		return fmt.Errorf("failed to load tool settings: %w", err)
	}
	settings.Watch()

	engine, err := detection.NewEngine(cfg.SecretRules)
	if err != nil {
		logger.Warn("scan_secrets disabled", slog.Any("err", err))
		engine = nil
	}

	registry := mcp.NewRegistry(logger)
	tools.Register(registry, settings, engine)
	dispatcher := mcp.NewDispatcher(registry, mcp.ServerInfo{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	})

	logger.Info("MCP server starting",
		slog.String("name", cfg.ServerName),
		slog.String("version", cfg.ServerVersion),
		slog.String("transport", string(cfg.Transport)),
		slog.Int("tools", registry.Len()),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream := stdio.NewHandler(dispatcher, stdio.WithLogger(logger))
	httpServer := api.NewServer(
		api.NewAPI(dispatcher, logger),
		api.DefaultOptions(cfg.Addr(), cfg.WorkerCount()),
		logger,
	)

	switch cfg.Transport {
	case config.TransportStdio:
		if err := stream.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case config.TransportHTTP:
		return httpServer.Run(ctx)
	default:
		return supervisor.Run(ctx, logger, httpServer.Run, stream.Serve)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
