package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ongoingai/traceview/internal/api"
	"github.com/ongoingai/traceview/internal/config"
	"github.com/ongoingai/traceview/internal/index"
	"github.com/ongoingai/traceview/internal/loader"
	"github.com/ongoingai/traceview/internal/observability"
	"github.com/ongoingai/traceview/internal/version"
)

const (
	serverReadHeaderTimeout = 10 * time.Second
	serverReadTimeout       = 30 * time.Second
	serverIdleTimeout       = 2 * time.Minute
	// shutdownTimeout bounds each shutdown step: HTTP drain, index flush and
	// telemetry export.
	shutdownTimeout = 5 * time.Second
)

var signalNotifyContext = signal.NotifyContext

func runServe(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("serve", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	port := flagSet.Int("port", 0, "Listen port (overrides config)")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() > 1 {
		fmt.Fprintln(errOut, "serve accepts at most one trace directory")
		return 2
	}

	cfg, ok := loadCommandConfig(*configPath, flagSet.Arg(0), errOut)
	if !ok {
		return 1
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger := slog.New(observability.NewTraceLogHandler(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo})))
	otelRuntime, err := observability.Setup(context.Background(), cfg.Observability.OTel, version.String(), logger)
	if err != nil {
		logger.Error("failed to initialize opentelemetry; continuing with instrumentation disabled", "error", err)
	}
	defer withTimeout(func(ctx context.Context) {
		if err := otelRuntime.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown opentelemetry", "error", err)
		}
	})

	store, err := openIndexStore(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize index store: %v\n", err)
		return 1
	}
	defer closeIndexStoreWithWarning(store, errOut)

	loaderOptions := loader.OptionsFromConfig(cfg)
	loaderOptions.Source = "api"
	traceLoader := loader.New(loaderOptions, logger, otelRuntime)

	var diagnostics index.DiagnosticsReader
	if store != nil {
		writer := newIndexWriter(cfg, store, logger, otelRuntime)
		writer.Start(context.Background())
		defer withTimeout(func(ctx context.Context) { flushIndexWriter(ctx, logger, writer) })
		traceLoader.SetIndexWriter(writer)
		diagnostics = writer
	}

	var handler http.Handler = api.NewRouter(api.RouterOptions{
		AppVersion:  version.String(),
		Loader:      traceLoader,
		Store:       store,
		Diagnostics: diagnostics,
		StoragePath: cfg.Storage.Path,
		Logger:      logger,
	})
	if otelRuntime.Enabled() {
		handler = otelRuntime.WrapHTTPHandler(otelRuntime.SpanEnrichmentMiddleware(handler))
	}
	server := newViewerServer(cfg, logger, handler)

	logger.Info("startup banner",
		"version", version.String(),
		"addr", server.Addr,
		"trace_dir", cfg.Traces.Dir,
		"storage_driver", cfg.Storage.Driver,
		"config_path", *configPath,
	)

	ctx, stop := signalNotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serveUntilDone(ctx, server); err != nil {
		logger.Error("traceview failed", "error", err)
		return 1
	}
	logger.Info("traceview stopped")
	return 0
}

// serveUntilDone runs server until it fails or ctx ends, then drains it.
func serveUntilDone(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	var shutdownErr error
	withTimeout(func(shutdownCtx context.Context) {
		if err := server.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("shutdown: %w", err)
		}
	})
	return shutdownErr
}

func newViewerServer(cfg config.Config, logger *slog.Logger, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           api.LoggingMiddleware(logger, handler),
		ReadHeaderTimeout: serverReadHeaderTimeout,
		ReadTimeout:       serverReadTimeout,
		IdleTimeout:       serverIdleTimeout,
	}
}

// newIndexWriter reports queue drops and write failures to logs and metrics.
func newIndexWriter(cfg config.Config, store index.Store, logger *slog.Logger, otelRuntime *observability.Runtime) *index.Writer {
	driver := store.Driver()
	return index.NewWriter(store, cfg.Storage.QueueSize, index.WriterHooks{
		OnDrop: func() {
			logger.Warn("index queue is full; dropping record", "store", driver)
			otelRuntime.RecordIndexQueueDrop(driver)
		},
		OnWriteFailure: func(failure index.WriteFailure) {
			logger.Error("failed to persist index records",
				"operation", failure.Operation,
				"batch_size", failure.BatchSize,
				"failed_count", failure.FailedCount,
				"error_class", failure.ErrorClass,
				"error", failure.Err,
			)
			otelRuntime.RecordIndexWriteFailure(failure.Operation, failure.FailedCount, failure.ErrorClass, driver)
		},
		OnFlush: func(batchSize int, duration time.Duration) {
			logger.Debug("flushed index records", "batch_size", batchSize, "duration_ms", duration.Milliseconds())
		},
	})
}

func flushIndexWriter(ctx context.Context, logger *slog.Logger, writer *index.Writer) {
	started := time.Now()
	if err := writer.Shutdown(ctx); err != nil {
		logger.Error("failed to flush pending index records before shutdown", "error", err)
		return
	}
	logger.Info("flushed pending index records before shutdown", "duration_ms", time.Since(started).Milliseconds())
}

func withTimeout(fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	fn(ctx)
}
