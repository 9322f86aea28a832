package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog"
	"github.com/rs/zerolog"

	"github.com/kapicorp/webhook-relay/config"
	"github.com/kapicorp/webhook-relay/metrics"
	"github.com/kapicorp/webhook-relay/queue"
	"github.com/kapicorp/webhook-relay/relay"
)

const shutdownTimeout = 30 * time.Second

/* The forwarder lives inside the private network: it drains the queue and
 * delivers each webhook to the internal target with bounded retries. It never
 * talks to the original senders
 */

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.ValidateForwarder(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := httplog.NewLogger("webhook-relay-forwarder", httplog.Options{
		JSON:     true,
		LogLevel: cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	backend, err := queue.New(ctx, cfg.Queue)
	if err != nil {
		logger.Error().Err(err).Msg("creating queue backend")
		os.Exit(1)
	}
	defer backend.Close()

	var sink metrics.Sink = metrics.Noop{}
	if cfg.Metrics.Enabled {
		otelSink, err := metrics.NewOTelSink()
		if err != nil {
			logger.Error().Err(err).Msg("creating metrics sink")
			os.Exit(1)
		}
		sink = otelSink
		go serveMetrics(ctx, cfg.Metrics, otelSink.Handler(), logger)
	}

	forwarder := relay.NewForwarder(backend, cfg.Forwarder, cfg.Queue.Type, sink, logger)

	logger.Info().Str("target", cfg.Forwarder.TargetURL).Msg("forwarder starting")
	forwarder.Run(ctx)
}

// serveMetrics exposes the Prometheus scrape endpoint plus a health check
func serveMetrics(ctx context.Context, cfg config.MetricsSettings, handler http.Handler, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		<-ctx.Done()
		ctxTimeout, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		srv.Shutdown(ctxTimeout)
	}()

	logger.Info().Str("addr", cfg.Addr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server failed")
	}
}
