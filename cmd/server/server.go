package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/paularlott/cli"
	"golang.org/x/sync/errgroup"

	"github.com/martinsuchenak/gwconsole/internal/api"
	"github.com/martinsuchenak/gwconsole/internal/app"
	"github.com/martinsuchenak/gwconsole/internal/log"
	"github.com/martinsuchenak/gwconsole/internal/mcp"
	"github.com/martinsuchenak/gwconsole/internal/metrics"
	"github.com/martinsuchenak/gwconsole/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// ServerConfig holds configuration for running the server
type ServerConfig struct {
	App        *app.App
	APIHandler *api.Handler
	MCPServer  *mcp.Server
	Scheduler  *worker.Scheduler
}

// NewHandler builds the HTTP handler tree and wraps it in the middleware
// chain.
func NewHandler(cfg *ServerConfig) http.Handler {
	mux := http.NewServeMux()

	cfg.APIHandler.RegisterRoutes(mux)
	mux.HandleFunc("/mcp", cfg.MCPServer.GetHTTPHandler())
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.App.Config.IsAPIAuthEnabled() {
		handler = api.AuthMiddleware(cfg.App.Config.APIAuthToken, handler)
	}
	handler = api.SecurityHeadersMiddleware(handler)
	return api.RequestIDMiddleware(handler)
}

// RunServer serves until ctx is cancelled, then shuts down gracefully.
func RunServer(ctx context.Context, cfg *ServerConfig) error {
	server := &http.Server{
		Addr:              cfg.App.Config.ListenAddr,
		Handler:           NewHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("Starting gwconsole server", "addr", server.Addr)
		log.Info("API available", "url", "http://localhost"+server.Addr+"/api/")
		log.Info("MCP available", "url", "http://localhost"+server.Addr+"/mcp")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", "error", err)
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cfg.Scheduler != nil {
			cfg.Scheduler.Stop()
		}
		return server.Shutdown(shutdownCtx)
	})

	err := group.Wait()
	log.Info("Server stopped")
	return err
}

func Command() *cli.Command {
	return &cli.Command{
		Name:        "server",
		Usage:       "Start the gwconsole server",
		Description: "Serve the console HTTP API, MCP endpoint and metrics, and refresh gateways in the background",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.Config
			log.Info("Configuration loaded", "config", cfg.String())

			apiHandler := api.NewHandler(a.Sessions, a.Gateways, a.Cloner)
			apiHandler.SetLoginDefaults(cfg.ServerURL, cfg.Domain)

			mcpServer := mcp.NewServer(a.Sessions, a.Gateways, a.Cloner, cfg.MCPAuthToken)
			mcpServer.LogStartup()

			scheduler := worker.NewScheduler()
			if err := scheduler.AddRefresh(cfg.RefreshSchedule, worker.RefreshJob(a.Gateways, a.Sessions)); err != nil {
				return err
			}
			scheduler.Start()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return RunServer(ctx, &ServerConfig{
				App:        a,
				APIHandler: apiHandler,
				MCPServer:  mcpServer,
				Scheduler:  scheduler,
			})
		},
	}
}
