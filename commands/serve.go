package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"zinga/api"
	"zinga/scheduler"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  "Start the HTTP server for the admin back office and the storefront, with scheduled backup pruning.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, os.Stdout)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, a)
		},
	}
}

// newHTTPServer wraps the router with the server timeouts.
func newHTTPServer(a *app) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	return &http.Server{
		Addr:              a.cfg.ListenAddr(),
		Handler:           api.NewRouter(a.store, a.cfg, a.log, a.metrics, a.audit),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// runServer serves until ctx is done, then drains in-flight requests.
func runServer(ctx context.Context, a *app) error {
	sched := scheduler.New(a.store, a.audit, a.log)
	if err := sched.Start(a.cfg.PruneSchedule); err != nil {
		return err
	}
	defer sched.Stop()

	server := newHTTPServer(a)
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
