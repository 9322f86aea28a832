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
	chihandlers "github.com/kapicorp/webhook-relay/internal/http/chi"
	"github.com/kapicorp/webhook-relay/metrics"
	"github.com/kapicorp/webhook-relay/queue"
	"github.com/kapicorp/webhook-relay/relay"
	"github.com/kapicorp/webhook-relay/sources"
)

const shutdownTimeout = 30 * time.Second

/* The collector is the only internet-facing component: it verifies inbound
 * webhooks and places them on the queue. Delivery happens elsewhere, in the
 * forwarder, so this process stays small and stateless
 */

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.ValidateCollector(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := httplog.NewLogger("webhook-relay-collector", httplog.Options{
		JSON:     true,
		LogLevel: cfg.LogLevel,
	})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	loader, err := sources.NewLoader(cfg.Collector.Sources)
	if err != nil {
		logger.Error().Err(err).Msg("loading sources")
		os.Exit(1)
	}

	backend, err := queue.New(ctx, cfg.Queue)
	if err != nil {
		logger.Error().Err(err).Msg("creating queue backend")
		os.Exit(1)
	}
	defer backend.Close()

	var sink metrics.Sink = metrics.Noop{}
	var otelSink *metrics.OTelSink
	if cfg.Metrics.Enabled {
		otelSink, err = metrics.NewOTelSink()
		if err != nil {
			logger.Error().Err(err).Msg("creating metrics sink")
			os.Exit(1)
		}
		sink = otelSink
		go serveMetrics(ctx, cfg.Metrics, otelSink.Handler(), logger)
	}

	collector := relay.NewCollector(loader, backend, cfg.Queue.Type, sink)
	sink.Set(metrics.Up, metrics.Labels{"component": "collector"}, 1)
	defer sink.Set(metrics.Up, metrics.Labels{"component": "collector"}, 0)

	r := chihandlers.Handlers(logger, collector)
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         cfg.Collector.Addr,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)

	logger.Info().Str("addr", cfg.Collector.Addr).Int("sources", len(loader.List())).Msg("collector listening")
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
	if err := <-errShutdown; err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
		os.Exit(1)
	}
}

// serveMetrics exposes the Prometheus scrape endpoint on its own listener
func serveMetrics(ctx context.Context, cfg config.MetricsSettings, handler http.Handler, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, handler)
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

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("forcing server close")
	default:
		errShutdown <- err
	}
}
