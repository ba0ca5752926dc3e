// Command gateway runs the LLM gateway HTTP server, with a cobra
// root/serve/version command structure in place of a bare os.Args switch.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/riftgate/llmgateway/internal/application"
	"github.com/riftgate/llmgateway/internal/infrastructure/config"
	"github.com/riftgate/llmgateway/internal/infrastructure/logger"
	httpiface "github.com/riftgate/llmgateway/internal/interfaces/http"
	"github.com/riftgate/llmgateway/internal/interfaces/http/handlers"
)

const appName = "llmgateway"

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   appName,
		Short: "OpenAI-compatible gateway unifying multiple LLM providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	root.AddCommand(serveCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     logFormatFor(cfg.Server.Env),
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	handlers.Version = version
	log.Info("starting gateway", zap.String("version", version), zap.String("env", cfg.Server.Env))

	app, err := application.New(cfg, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer app.Close()

	server := httpiface.NewServer(httpiface.Config{
		Port:         cfg.Server.Port,
		Mode:         modeFor(cfg.Server.Env),
		SharedSecret: cfg.Server.SharedSecret,
	}, httpiface.Handlers{
		Chat:      handlers.NewChatHandler(app.Orchestrator, log),
		Responses: handlers.NewResponsesHandler(app.Orchestrator, log),
		Sessions:  handlers.NewSessionsHandler(app.Store, cfg.Store.SessionTTL, log),
		Tools:     handlers.NewToolsHandler(app.Registry, app.Executor, log),
		Health:    handlers.NewHealthHandler(app.Store, app.Router),
		Models:    handlers.NewModelsHandler(app.Router),
		WSDebug:   handlers.NewWSDebugHandler(app.Orchestrator, log),
	}, app.Limiter, app.Gate, app.Monitor, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go app.Run(ctx)

	if err := server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

func modeFor(env string) string {
	if env == "production" {
		return "release"
	}
	return "debug"
}

func logFormatFor(env string) string {
	if env == "production" {
		return "json"
	}
	return "console"
}
