// Assistant Server
//
// Serves the assistant workflow engine over gRPC and exposes Prometheus
// metrics over HTTP.
//
// Usage:
//
//	go run ./cmd/assistant                          # defaults and environment
//	go run ./cmd/assistant -config assistant.yaml   # with a config file
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeeves-cluster-organization/assistant/coreengine/config"
	"github.com/jeeves-cluster-organization/assistant/coreengine/grpc"
	"github.com/jeeves-cluster-organization/assistant/coreengine/observability"
	"github.com/jeeves-cluster-organization/assistant/coreengine/runtime"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "assistant: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, syncLogs, err := observability.NewLogger(cfg.LoggerOptions())
	if err != nil {
		return err
	}
	defer func() { _ = syncLogs() }()
	logger.Info("assistant_starting", "version", Version, "grpc_addr", cfg.Server.GRPCAddr)

	if cfg.Tracing.Enabled {
		shutdownTracer, err := observability.InitTracer(cfg.TracingOptions(Version))
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracer(sctx); err != nil {
				logger.Warn("tracer_shutdown_failed", "error", err.Error())
			}
		}()
	}

	rt, err := runtime.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("runtime_close_failed", "error", err.Error())
		}
	}()

	stopCleanup := rt.StartCleanup()
	defer stopCleanup()

	metrics := serveMetrics(cfg.Server.MetricsAddr, logger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = metrics.Shutdown(sctx)
	}()

	svc := grpc.NewAssistantServer(rt.Orchestrator, rt.Tracker, logger)
	server := grpc.NewGracefulServer(svc, cfg.Server.GRPCAddr, logger)

	err = server.Start(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("assistant_stopped")
		return nil
	}
	return err
}

func serveMetrics(addr string, logger observability.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics_server_started", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", "error", err.Error())
		}
	}()
	return srv
}
