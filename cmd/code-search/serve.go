// cmd/code-search/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/code-search/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API",
	Long:  `Serve GET /search?q=<query>&k=<n> and GET /health.`,
	RunE:  runServe,
}

var embedServerCmd = &cobra.Command{
	Use:   "embed-server",
	Short: "Serve the embedding model over HTTP",
	Long: `Serve POST /embed and GET /health backed by the configured model.
With embedding.provider set to "hash" this is a self-contained provider for
the "service" provider of other processes.`,
	RunE: runEmbedServer,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr)")
	embedServerCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.embed_addr)")
	rootCmd.AddCommand(serveCmd, embedServerCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	engine, _, err := a.engine()
	if err != nil {
		return err
	}

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	a.logger.Info("search API starting", "addr", addr, "strategy", engine.Strategy(), "store", a.cfg.Storage.Backend)
	return listenAndServe(cmd.Context(), addr, api.NewSearchRouter(engine, a.cfg.Search.DefaultTopK, a.logger), a.logger)
}

func runEmbedServer(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	gen, err := a.generator()
	if err != nil {
		return err
	}

	addr := a.cfg.Server.EmbedAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	// Load the model up front so the first request does not pay for it
	if err := gen.Ready(cmd.Context()); err != nil {
		a.logger.Error("embedding model unavailable", "error", err)
	}

	a.logger.Info("embedding service starting", "addr", addr, "provider", a.cfg.Embedding.Provider)
	return listenAndServe(cmd.Context(), addr, api.NewEmbeddingRouter(gen, a.logger), a.logger)
}

// listenAndServe runs srv until SIGINT/SIGTERM, then drains in-flight
// requests.
func listenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}
