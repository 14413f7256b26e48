package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Address() != "127.0.0.1:8080" {
		t.Fatalf("server address=%q, want 127.0.0.1:8080", cfg.Server.Address())
	}
	if cfg.Traces.Dir != ".claude-trace" {
		t.Fatalf("traces.dir=%q, want .claude-trace", cfg.Traces.Dir)
	}
	if cfg.Traces.RawLineMaxChars != 500 {
		t.Fatalf("traces.raw_line_max_chars=%d, want 500", cfg.Traces.RawLineMaxChars)
	}
	if cfg.Detector.DelegationTool != "Task" {
		t.Fatalf("detector.delegation_tool=%q, want Task", cfg.Detector.DelegationTool)
	}
	if cfg.Detector.MainAgentMarker != "You are Claude Code" {
		t.Fatalf("detector.main_agent_marker=%q", cfg.Detector.MainAgentMarker)
	}
	if cfg.Detector.ReturnJumpThreshold != 50 {
		t.Fatalf("detector.return_jump_threshold=%d, want 50", cfg.Detector.ReturnJumpThreshold)
	}
	if cfg.Storage.IndexEnabled() {
		t.Fatalf("storage.driver=%q, want index disabled by default", cfg.Storage.Driver)
	}
	if cfg.Observability.OTel.Enabled {
		t.Fatalf("observability.otel.enabled=%v, want false", cfg.Observability.OTel.Enabled)
	}
	if cfg.Observability.OTel.ServiceName != "traceview" {
		t.Fatalf("observability.otel.service_name=%q, want traceview", cfg.Observability.OTel.ServiceName)
	}
}

func TestLoadAppliesYAMLAndEnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "traceview.yaml")
	configYAML := `server:
  host: 0.0.0.0
  port: 9090
traces:
  dir: /var/traces
  raw_line_max_chars: 200
detector:
  delegation_tool: Agent
  return_jump_threshold: 30
redaction:
  header_denylist: [x-api-key]
storage:
  driver: sqlite
  path: /tmp/index.db
observability:
  otel:
    enabled: false
    service_name: yaml-traceview
    sampling_ratio: 0.25
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TRACEVIEW_PORT", "7070")
	t.Setenv("TRACEVIEW_TRACE_DIR", "/srv/traces")
	t.Setenv("TRACEVIEW_RETURN_JUMP_THRESHOLD", "75")
	t.Setenv("TRACEVIEW_STORAGE_PATH", "/tmp/env.db")
	t.Setenv("OTEL_SERVICE_NAME", "env-traceview")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("server.host=%q, want yaml value", cfg.Server.Host)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("server.port=%d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Traces.Dir != "/srv/traces" {
		t.Fatalf("traces.dir=%q, want env override", cfg.Traces.Dir)
	}
	if cfg.Traces.RawLineMaxChars != 200 {
		t.Fatalf("traces.raw_line_max_chars=%d, want 200", cfg.Traces.RawLineMaxChars)
	}
	if cfg.Detector.DelegationTool != "Agent" {
		t.Fatalf("detector.delegation_tool=%q, want Agent", cfg.Detector.DelegationTool)
	}
	if cfg.Detector.MainAgentMarker != "You are Claude Code" {
		t.Fatalf("detector.main_agent_marker=%q, want default kept", cfg.Detector.MainAgentMarker)
	}
	if cfg.Detector.ReturnJumpThreshold != 75 {
		t.Fatalf("detector.return_jump_threshold=%d, want env override 75", cfg.Detector.ReturnJumpThreshold)
	}
	if len(cfg.Redaction.HeaderDenylist) != 1 || cfg.Redaction.HeaderDenylist[0] != "x-api-key" {
		t.Fatalf("redaction.header_denylist=%v, want [x-api-key]", cfg.Redaction.HeaderDenylist)
	}
	if cfg.Storage.Driver != StorageDriverSQLite || cfg.Storage.Path != "/tmp/env.db" {
		t.Fatalf("storage=%+v, want sqlite at env path", cfg.Storage)
	}
	if !cfg.Observability.OTel.Enabled {
		t.Fatal("observability.otel.enabled=false, want true once OTEL_* is set")
	}
	if cfg.Observability.OTel.ServiceName != "env-traceview" {
		t.Fatalf("observability.otel.service_name=%q, want env override", cfg.Observability.OTel.ServiceName)
	}
	if cfg.Observability.OTel.SamplingRatio != 0.25 {
		t.Fatalf("observability.otel.sampling_ratio=%v, want 0.25", cfg.Observability.OTel.SamplingRatio)
	}
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(configPath, []byte("server: ["), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatalf("Load() error=nil, want parse error")
	}
	if !strings.Contains(err.Error(), "parse yaml") {
		t.Fatalf("error=%q, want parse yaml message", err.Error())
	}
}

func TestLoadRejectsUnknownYAMLField(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "invalid-field.yaml")
	configYAML := `detector:
  delegation_tool: Task
  unexpected_field: true
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatalf("Load() error=nil, want unknown-field parse error")
	}
	if !strings.Contains(err.Error(), "field unexpected_field not found") {
		t.Fatalf("error=%q, want unknown-field message", err.Error())
	}
}

func TestLoadRejectsMultiDocumentYAML(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "multi-doc.yaml")
	configYAML := `server:
  host: 127.0.0.1
---
traces:
  dir: other
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatalf("Load() error=nil, want multi-document parse error")
	}
	if !strings.Contains(err.Error(), "multiple yaml documents are not supported") {
		t.Fatalf("error=%q, want multi-document message", err.Error())
	}
}

func TestLoadInvalidEnvReturnsError(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "port", key: "TRACEVIEW_PORT", value: "not-a-number"},
		{name: "threshold", key: "TRACEVIEW_RETURN_JUMP_THRESHOLD", value: "fifty"},
		{name: "sampler", key: "OTEL_TRACES_SAMPLER_ARG", value: "not-a-number"},
		{name: "exporter", key: "OTEL_TRACES_EXPORTER", value: "zipkin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load("")
			if err == nil {
				t.Fatalf("Load() error=nil, want invalid %s error", tt.key)
			}
			if !strings.Contains(err.Error(), "invalid "+tt.key) {
				t.Fatalf("error=%q, want %s validation message", err.Error(), tt.key)
			}
		})
	}
}

func TestLoadAppliesStandardOTELEnvOverrides(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://otel-collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.35")
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	t.Setenv("OTEL_METRICS_EXPORTER", "otlp")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	otelCfg := cfg.Observability.OTel
	if !otelCfg.Enabled {
		t.Fatal("observability.otel.enabled=false, want true when OTEL_* vars are configured")
	}
	if otelCfg.Endpoint != "https://otel-collector:4318" {
		t.Fatalf("observability.otel.endpoint=%q", otelCfg.Endpoint)
	}
	if otelCfg.Insecure {
		t.Fatal("observability.otel.insecure=true, want false")
	}
	if otelCfg.SamplingRatio != 0.35 {
		t.Fatalf("observability.otel.sampling_ratio=%v, want 0.35", otelCfg.SamplingRatio)
	}
	if otelCfg.TracesEnabled {
		t.Fatal("observability.otel.traces_enabled=true, want false from OTEL_TRACES_EXPORTER=none")
	}
	if !otelCfg.MetricsEnabled {
		t.Fatal("observability.otel.metrics_enabled=false, want true from OTEL_METRICS_EXPORTER=otlp")
	}
}

func TestLoadAppliesOTELSDKDisabledOverride(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_SDK_DISABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Observability.OTel.Enabled {
		t.Fatal("observability.otel.enabled=true, want false from OTEL_SDK_DISABLED=true")
	}
}

func TestLoadDecodesTOMLConfig(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "traceview.toml")
	configTOML := `[server]
port = 9191

[traces]
dir = "/srv/traces"

[detector]
main_agent_marker = "You are the primary agent"
return_jump_threshold = 20

[storage]
driver = "sqlite"
path = "/tmp/traceview.db"
`
	if err := os.WriteFile(configPath, []byte(configTOML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9191 || cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("server=%+v, want port 9191 on default host", cfg.Server)
	}
	if cfg.Traces.Dir != "/srv/traces" || cfg.Traces.RawLineMaxChars != 500 {
		t.Fatalf("traces=%+v, want /srv/traces with default raw line limit", cfg.Traces)
	}
	if cfg.Detector.MainAgentMarker != "You are the primary agent" || cfg.Detector.ReturnJumpThreshold != 20 {
		t.Fatalf("detector=%+v", cfg.Detector)
	}
	if cfg.Detector.DelegationTool != "Task" {
		t.Fatalf("detector.delegation_tool=%q, want Task", cfg.Detector.DelegationTool)
	}
	if cfg.Storage.Driver != StorageDriverSQLite || cfg.Storage.Path != "/tmp/traceview.db" {
		t.Fatalf("storage=%+v, want sqlite at /tmp/traceview.db", cfg.Storage)
	}
}

func TestLoadRejectsUnknownTOMLField(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "traceview.toml")
	if err := os.WriteFile(configPath, []byte("[server]\nport = 8080\nlisten = \"0.0.0.0\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() error=nil, want unknown field error")
	}
	if !strings.Contains(err.Error(), "server.listen") {
		t.Fatalf("Load() error=%q, want mention of server.listen", err)
	}
}

func TestValidateDefaultConfig(t *testing.T) {
	t.Parallel()

	if err := Validate(Default()); err != nil {
		t.Fatalf("Validate(default) error: %v", err)
	}
}

func TestValidateRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "port out of range",
			mutate:  func(cfg *Config) { cfg.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535",
		},
		{
			name:    "empty trace dir",
			mutate:  func(cfg *Config) { cfg.Traces.Dir = " " },
			wantErr: "traces.dir must not be empty",
		},
		{
			name:    "zero raw line bound",
			mutate:  func(cfg *Config) { cfg.Traces.RawLineMaxChars = 0 },
			wantErr: "traces.raw_line_max_chars",
		},
		{
			name:    "tiny line limit",
			mutate:  func(cfg *Config) { cfg.Traces.MaxLineBytes = 10 },
			wantErr: "traces.max_line_bytes",
		},
		{
			name:    "empty delegation tool",
			mutate:  func(cfg *Config) { cfg.Detector.DelegationTool = "" },
			wantErr: "detector.delegation_tool",
		},
		{
			name:    "empty marker",
			mutate:  func(cfg *Config) { cfg.Detector.MainAgentMarker = "" },
			wantErr: "detector.main_agent_marker",
		},
		{
			name:    "negative threshold",
			mutate:  func(cfg *Config) { cfg.Detector.ReturnJumpThreshold = -1 },
			wantErr: "detector.return_jump_threshold",
		},
		{
			name:    "blank denylist entry",
			mutate:  func(cfg *Config) { cfg.Redaction.HeaderDenylist = []string{"x-api-key", ""} },
			wantErr: "redaction.header_denylist[1]",
		},
		{
			name:    "unknown storage driver",
			mutate:  func(cfg *Config) { cfg.Storage.Driver = "mysql" },
			wantErr: "storage.driver must be one of none, sqlite, postgres",
		},
		{
			name: "postgres without dsn",
			mutate: func(cfg *Config) {
				cfg.Storage.Driver = StorageDriverPostgres
				cfg.Storage.DSN = ""
			},
			wantErr: "storage.dsn is required",
		},
		{
			name: "sqlite without path",
			mutate: func(cfg *Config) {
				cfg.Storage.Driver = StorageDriverSQLite
				cfg.Storage.Path = ""
			},
			wantErr: "storage.path is required",
		},
		{
			name: "otel sampling ratio",
			mutate: func(cfg *Config) {
				cfg.Observability.OTel.Enabled = true
				cfg.Observability.OTel.SamplingRatio = 1.5
			},
			wantErr: "observability.otel.sampling_ratio",
		},
		{
			name: "otel without signals",
			mutate: func(cfg *Config) {
				cfg.Observability.OTel.Enabled = true
				cfg.Observability.OTel.TracesEnabled = false
				cfg.Observability.OTel.MetricsEnabled = false
			},
			wantErr: "observability.otel requires",
		},
		{
			name: "otel without endpoint",
			mutate: func(cfg *Config) {
				cfg.Observability.OTel.Enabled = true
				cfg.Observability.OTel.Endpoint = ""
			},
			wantErr: "observability.otel.endpoint is required",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatalf("Validate() error=nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error=%q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Server.Port = 0
	cfg.Storage.Driver = StorageDriverPostgres
	cfg.Storage.QueueSize = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error=nil, want joined errors")
	}
	for _, want := range []string{"server.port", "storage.dsn is required", "storage.queue_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error=%q, want it to mention %q", err.Error(), want)
		}
	}
}
