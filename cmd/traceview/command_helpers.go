package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ongoingai/traceview/internal/config"
	"github.com/ongoingai/traceview/internal/index"
	"github.com/ongoingai/traceview/internal/observability"
)

// normalizeTextJSONFormat resolves a --format flag to "text" or "json".
func normalizeTextJSONFormat(command, rawValue, defaultValue string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(rawValue))
	if format == "" {
		format = defaultValue
	}
	if format != "text" && format != "json" {
		return "", fmt.Errorf("invalid %s format %q: expected text or json", command, rawValue)
	}
	return format, nil
}

// loadCommandConfig loads and validates config, then applies an optional
// positional trace directory. Failures are printed to errOut.
func loadCommandConfig(configPath, dirArg string, errOut io.Writer) (config.Config, bool) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		return config.Config{}, false
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(errOut, "config is invalid: %v\n", err)
		return config.Config{}, false
	}
	if dir := strings.TrimSpace(dirArg); dir != "" {
		cfg.Traces.Dir = dir
	}
	return cfg, true
}

// newCommandLogger reports warnings from one-shot commands on errOut so they
// do not mix with command output.
func newCommandLogger(errOut io.Writer) *slog.Logger {
	return slog.New(observability.NewTraceLogHandler(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelWarn})))
}

func openIndexStore(cfg config.Config) (index.Store, error) {
	return index.Open(cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
}

func closeIndexStoreWithWarning(store index.Store, errOut io.Writer) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		fmt.Fprintf(errOut, "warning: failed to close index store: %v\n", err)
	}
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func stringPtrOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return valueOr(*value, fallback)
}
