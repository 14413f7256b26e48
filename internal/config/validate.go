package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports every invalid setting in cfg, joined into one error.
func Validate(cfg Config) error {
	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	check(cfg.Server.Port > 0 && cfg.Server.Port <= 65535,
		"server.port must be between 1 and 65535 (got %d)", cfg.Server.Port)

	check(strings.TrimSpace(cfg.Traces.Dir) != "", "traces.dir must not be empty")
	check(cfg.Traces.RawLineMaxChars > 0,
		"traces.raw_line_max_chars must be > 0 (got %d)", cfg.Traces.RawLineMaxChars)
	check(cfg.Traces.MaxLineBytes >= 1024,
		"traces.max_line_bytes must be >= 1024 (got %d)", cfg.Traces.MaxLineBytes)

	check(strings.TrimSpace(cfg.Detector.DelegationTool) != "", "detector.delegation_tool must not be empty")
	check(strings.TrimSpace(cfg.Detector.MainAgentMarker) != "", "detector.main_agent_marker must not be empty")
	check(cfg.Detector.ReturnJumpThreshold > 0,
		"detector.return_jump_threshold must be > 0 (got %d)", cfg.Detector.ReturnJumpThreshold)

	for i, header := range cfg.Redaction.HeaderDenylist {
		check(strings.TrimSpace(header) != "", "redaction.header_denylist[%d] must not be empty", i)
	}

	problems = append(problems, validateStorage(cfg.Storage), validateOTel(cfg.Observability.OTel))
	return errors.Join(problems...)
}

func validateStorage(cfg StorageConfig) error {
	var err error
	switch strings.TrimSpace(cfg.Driver) {
	case StorageDriverNone:
	case StorageDriverSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			err = errors.New("storage.path is required when storage.driver=sqlite")
		}
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			err = errors.New("storage.dsn is required when storage.driver=postgres")
		}
	default:
		err = fmt.Errorf("storage.driver must be one of none, sqlite, postgres (got %q)", cfg.Driver)
	}
	if cfg.QueueSize <= 0 {
		err = errors.Join(err, fmt.Errorf("storage.queue_size must be > 0 (got %d)", cfg.QueueSize))
	}
	return err
}

// validateOTel only applies when export is enabled.
func validateOTel(cfg OTelConfig) error {
	if !cfg.Enabled {
		return nil
	}
	var problems []error
	if strings.TrimSpace(cfg.Endpoint) == "" {
		problems = append(problems, errors.New("observability.otel.endpoint is required when observability.otel.enabled=true"))
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		problems = append(problems, errors.New("observability.otel.service_name is required when observability.otel.enabled=true"))
	}
	if !cfg.TracesEnabled && !cfg.MetricsEnabled {
		problems = append(problems, errors.New("observability.otel requires traces_enabled and/or metrics_enabled when enabled"))
	}
	if cfg.SamplingRatio < 0 || cfg.SamplingRatio > 1 {
		problems = append(problems, fmt.Errorf("observability.otel.sampling_ratio must be between 0 and 1 (got %g)", cfg.SamplingRatio))
	}
	if cfg.ExportTimeoutMS <= 0 {
		problems = append(problems, fmt.Errorf("observability.otel.export_timeout_ms must be > 0 (got %d)", cfg.ExportTimeoutMS))
	}
	if cfg.MetricExportIntervalMS <= 0 {
		problems = append(problems, fmt.Errorf("observability.otel.metric_export_interval_ms must be > 0 (got %d)", cfg.MetricExportIntervalMS))
	}
	return errors.Join(problems...)
}
