package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leobar37/leobit2-sub001/cmd/desktop/handlers"
	"github.com/leobar37/leobit2-sub001/internal/app"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine and the local API",
		Long: `Run the sync engine with periodic and connectivity-triggered cycles,
and serve the local REST API, the state WebSocket and Prometheus metrics.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.Config.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

// newRouter mounts the API, WebSocket and metrics routes.
func newRouter(a *app.App, hub *WSHub) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	handlers.NewHealthHandler(a.Config.App.Name).Register(r)
	handlers.NewSyncHandler(a.Engine, a.Queue).Register(r)
	r.Get("/ws", HandleWebSocket(hub, a.Engine))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// runServer serves until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, a *app.App) error {
	hub := NewWSHub()
	defer hub.Close()
	unwatch := hub.WatchEngine(a.Engine)
	defer unwatch()

	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           newRouter(a, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.Prober != nil {
		a.Prober.Start(ctx)
		defer a.Prober.Stop()
	}
	a.Engine.Start()
	defer a.Engine.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log().Info("HTTP server listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Log().Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
