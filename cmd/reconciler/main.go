package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/creditsync/internal/reconcile"
	"github.com/your-org/creditsync/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "reconciler",
		Short:         "Leave-credit artifact reconciliation and delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newSubmitCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func newSubmitCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "submit <envelope.json>",
		Short:   "Run one reconciliation pass from a file",
		Example: "  reconciler submit ./envelope.json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read envelope: %w", err)
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			report, err := a.service.Process(cmd.Context(), body)
			if report != nil {
				a.logger.Info("run finished",
					zap.String("transaction_id", report.TransactionID),
					zap.Int("matched", report.Matched),
					zap.Int("skipped", len(report.Skipped)),
					zap.Strings("manifests", report.Manifests),
					zap.Bool("stamped", report.Stamped))
			}
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.TransactionID)
			return nil
		},
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	logr := a.logger

	handler := reconcile.NewHTTPHandler(a.service, logr.Named("http"), a.cfg.HTTP.MaxBodyBytes)
	server := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logr.Error("metrics server shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("reconciler starting", zap.String("addr", a.cfg.HTTP.Addr), zap.String("metrics_addr", a.cfg.Metrics.Addr))
	err = server.ListenAndServe()
	a.close(context.Background())
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
