package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/batopt/internal/server"
	"github.com/cwbudde/batopt/internal/store"
)

var (
	serveAddr  string
	serveTrace bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP job server",
	Long: `Starts the HTTP API. Jobs posted to /api/v1/jobs run in the background;
finished runs are saved to the run store and Prometheus metrics are exposed
on /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&serveTrace, "trace", true, "Write a convergence trace per job under the data dir")
	addStoreFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(st)

	opts := []server.Option{server.WithLogger(logger)}
	if serveTrace {
		opts = append(opts, server.WithTraceDir(dataDir))
	}
	srv := server.NewServer(serveAddr, st, opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
