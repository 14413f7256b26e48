package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Traces        TracesConfig        `yaml:"traces" toml:"traces"`
	Detector      DetectorConfig      `yaml:"detector" toml:"detector"`
	Redaction     RedactionConfig     `yaml:"redaction" toml:"redaction"`
	Storage       StorageConfig       `yaml:"storage" toml:"storage"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
}

type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TracesConfig locates trace files and bounds how they are read.
type TracesConfig struct {
	Dir             string `yaml:"dir" toml:"dir"`
	RawLineMaxChars int    `yaml:"raw_line_max_chars" toml:"raw_line_max_chars"`
	MaxLineBytes    int    `yaml:"max_line_bytes" toml:"max_line_bytes"`
}

// DetectorConfig tunes the sub-agent conversation heuristics.
type DetectorConfig struct {
	DelegationTool      string `yaml:"delegation_tool" toml:"delegation_tool"`
	MainAgentMarker     string `yaml:"main_agent_marker" toml:"main_agent_marker"`
	ReturnJumpThreshold int    `yaml:"return_jump_threshold" toml:"return_jump_threshold"`
}

type RedactionConfig struct {
	HeaderDenylist []string `yaml:"header_denylist" toml:"header_denylist"`
}

// StorageConfig selects the optional summary index. Driver "none" disables it.
type StorageConfig struct {
	Driver    string `yaml:"driver" toml:"driver"`
	Path      string `yaml:"path" toml:"path"`
	DSN       string `yaml:"dsn" toml:"dsn"`
	QueueSize int    `yaml:"queue_size" toml:"queue_size"`
}

// IndexEnabled reports whether a summary index store is configured.
func (c StorageConfig) IndexEnabled() bool {
	driver := strings.TrimSpace(c.Driver)
	return driver != "" && driver != StorageDriverNone
}

type ObservabilityConfig struct {
	OTel OTelConfig `yaml:"otel" toml:"otel"`
}

type OTelConfig struct {
	Enabled                bool    `yaml:"enabled" toml:"enabled"`
	Endpoint               string  `yaml:"endpoint" toml:"endpoint"`
	Insecure               bool    `yaml:"insecure" toml:"insecure"`
	ServiceName            string  `yaml:"service_name" toml:"service_name"`
	TracesEnabled          bool    `yaml:"traces_enabled" toml:"traces_enabled"`
	MetricsEnabled         bool    `yaml:"metrics_enabled" toml:"metrics_enabled"`
	SamplingRatio          float64 `yaml:"sampling_ratio" toml:"sampling_ratio"`
	ExportTimeoutMS        int     `yaml:"export_timeout_ms" toml:"export_timeout_ms"`
	MetricExportIntervalMS int     `yaml:"metric_export_interval_ms" toml:"metric_export_interval_ms"`
}

const (
	StorageDriverNone     = "none"
	StorageDriverSQLite   = "sqlite"
	StorageDriverPostgres = "postgres"
)

const (
	defaultOTELEndpoint               = "localhost:4318"
	defaultOTELServiceName            = "traceview"
	defaultOTELSamplingRatio          = 1.0
	defaultOTELExportTimeoutMS        = 3000
	defaultOTELMetricExportIntervalMS = 10000
)

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Traces: TracesConfig{
			Dir:             ".claude-trace",
			RawLineMaxChars: 500,
			MaxLineBytes:    64 << 20,
		},
		Detector: DetectorConfig{
			DelegationTool:      "Task",
			MainAgentMarker:     "You are Claude Code",
			ReturnJumpThreshold: 50,
		},
		Redaction: RedactionConfig{
			HeaderDenylist: []string{
				"x-api-key",
				"authorization",
				"proxy-authorization",
				"cookie",
			},
		},
		Storage: StorageConfig{
			Driver:    StorageDriverNone,
			Path:      "./data/traceview.db",
			QueueSize: 1024,
		},
		Observability: ObservabilityConfig{
			OTel: OTelConfig{
				Enabled:                false,
				Endpoint:               defaultOTELEndpoint,
				Insecure:               true,
				ServiceName:            defaultOTELServiceName,
				TracesEnabled:          true,
				MetricsEnabled:         true,
				SamplingRatio:          defaultOTELSamplingRatio,
				ExportTimeoutMS:        defaultOTELExportTimeoutMS,
				MetricExportIntervalMS: defaultOTELMetricExportIntervalMS,
			},
		},
	}
}

// Load builds a Config from defaults, an optional YAML or TOML file and
// environment overrides. A missing file is not an error. Files ending in
// .toml are decoded as TOML; everything else is YAML.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if strings.EqualFold(filepath.Ext(path), ".toml") {
				err = decodeTOML(path, data, &cfg)
			} else {
				err = decodeYAML(path, data, &cfg)
			}
			if err != nil {
				return Config{}, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func decodeYAML(path string, data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	decodeErr := decoder.Decode(cfg)
	if errors.Is(decodeErr, io.EOF) {
		decodeErr = nil
	}
	if decodeErr != nil {
		return fmt.Errorf("parse yaml %q: %w", path, decodeErr)
	}
	var trailing any
	trailingErr := decoder.Decode(&trailing)
	if trailingErr != nil && !errors.Is(trailingErr, io.EOF) {
		return fmt.Errorf("parse yaml %q: %w", path, trailingErr)
	}
	if trailing != nil {
		return fmt.Errorf("parse yaml %q: multiple yaml documents are not supported", path)
	}
	return nil
}

// decodeTOML rejects unknown keys to match the YAML decoder's KnownFields.
func decodeTOML(path string, data []byte, cfg *Config) error {
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("parse toml %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return fmt.Errorf("parse toml %q: unknown fields %s", path, strings.Join(keys, ", "))
	}
	return nil
}
