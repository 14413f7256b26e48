package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// envBinding maps one environment variable onto a Config field. Setting any
// binding marked otel turns OpenTelemetry export on unless OTEL_SDK_DISABLED
// is also set.
type envBinding struct {
	name  string
	otel  bool
	apply func(cfg *Config, value string) error
}

var envBindings = []envBinding{
	{name: "TRACEVIEW_HOST", apply: setString(func(c *Config) *string { return &c.Server.Host })},
	{name: "TRACEVIEW_PORT", apply: setInt(func(c *Config) *int { return &c.Server.Port })},
	{name: "TRACEVIEW_TRACE_DIR", apply: setString(func(c *Config) *string { return &c.Traces.Dir })},
	{name: "TRACEVIEW_RETURN_JUMP_THRESHOLD", apply: setInt(func(c *Config) *int { return &c.Detector.ReturnJumpThreshold })},
	{name: "TRACEVIEW_STORAGE_DRIVER", apply: setString(func(c *Config) *string { return &c.Storage.Driver })},
	{name: "TRACEVIEW_STORAGE_PATH", apply: setString(func(c *Config) *string { return &c.Storage.Path })},
	{name: "TRACEVIEW_STORAGE_DSN", apply: setString(func(c *Config) *string { return &c.Storage.DSN })},

	{name: "OTEL_EXPORTER_OTLP_ENDPOINT", otel: true, apply: setString(func(c *Config) *string { return &c.Observability.OTel.Endpoint })},
	{name: "OTEL_EXPORTER_OTLP_INSECURE", otel: true, apply: setBool(func(c *Config) *bool { return &c.Observability.OTel.Insecure })},
	{name: "OTEL_SERVICE_NAME", otel: true, apply: setString(func(c *Config) *string { return &c.Observability.OTel.ServiceName })},
	{name: "OTEL_TRACES_EXPORTER", otel: true, apply: setExporter(func(c *Config) *bool { return &c.Observability.OTel.TracesEnabled })},
	{name: "OTEL_METRICS_EXPORTER", otel: true, apply: setExporter(func(c *Config) *bool { return &c.Observability.OTel.MetricsEnabled })},
	{name: "OTEL_TRACES_SAMPLER_ARG", otel: true, apply: setFloat(func(c *Config) *float64 { return &c.Observability.OTel.SamplingRatio })},
	{name: "OTEL_EXPORTER_OTLP_TIMEOUT", otel: true, apply: setInt(func(c *Config) *int { return &c.Observability.OTel.ExportTimeoutMS })},
	{name: "OTEL_METRIC_EXPORT_INTERVAL", otel: true, apply: setInt(func(c *Config) *int { return &c.Observability.OTel.MetricExportIntervalMS })},
}

func applyEnv(cfg *Config) error {
	otelTouched := false
	for _, binding := range envBindings {
		value := strings.TrimSpace(os.Getenv(binding.name))
		if value == "" {
			continue
		}
		if err := binding.apply(cfg, value); err != nil {
			return fmt.Errorf("invalid %s: %w", binding.name, err)
		}
		otelTouched = otelTouched || binding.otel
	}

	if raw := strings.TrimSpace(os.Getenv("OTEL_SDK_DISABLED")); raw != "" {
		disabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid OTEL_SDK_DISABLED: %w", err)
		}
		cfg.Observability.OTel.Enabled = !disabled
	} else if otelTouched {
		cfg.Observability.OTel.Enabled = true
	}
	return nil
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		*field(cfg) = value
		return nil
	}
}

func setInt(field func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*field(cfg) = v
		return nil
	}
}

func setFloat(field func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		*field(cfg) = v
		return nil
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		*field(cfg) = v
		return nil
	}
}

// setExporter accepts the OTEL_*_EXPORTER values this binary supports.
func setExporter(field func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		switch strings.ToLower(value) {
		case "otlp":
			*field(cfg) = true
		case "none":
			*field(cfg) = false
		default:
			return fmt.Errorf("must be one of otlp, none (got %q)", value)
		}
		return nil
	}
}
