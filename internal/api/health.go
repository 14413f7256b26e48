package api

import (
	"net/http"
	"os"
	"time"

	"github.com/ongoingai/traceview/internal/index"
	"github.com/ongoingai/traceview/internal/trace"
)

type HealthOptions struct {
	Version     string
	StartedAt   time.Time
	TraceDir    string
	Store       index.Store
	StoragePath string
	Diagnostics index.DiagnosticsReader
}

type healthResponse struct {
	Status    string        `json:"status"`
	Version   string        `json:"version"`
	UptimeSec int64         `json:"uptime_sec"`
	Traces    tracesHealth  `json:"traces"`
	Storage   storageHealth `json:"storage"`
}

type tracesHealth struct {
	Dir    string `json:"dir"`
	Exists bool   `json:"exists"`
	Files  int    `json:"files"`
	Error  string `json:"error,omitempty"`
}

type storageHealth struct {
	Driver        string `json:"driver"`
	SizeBytes     int64  `json:"size_bytes,omitempty"`
	QueueDepth    *int   `json:"queue_depth,omitempty"`
	PressureState string `json:"pressure_state,omitempty"`
}

// HealthHandler reports whether the trace directory can be listed and
// summarizes the summary index. An unreadable trace directory answers 503
// with status "degraded". A missing one is healthy with zero files.
func HealthHandler(options HealthOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}

		resp := healthResponse{
			Status:    "ok",
			Version:   options.Version,
			UptimeSec: int64(time.Since(options.StartedAt).Seconds()),
			Traces:    checkTraceDir(options.TraceDir),
			Storage:   checkStorage(options),
		}
		status := http.StatusOK
		if resp.Traces.Error != "" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	})
}

func checkTraceDir(dir string) tracesHealth {
	health := tracesHealth{Dir: dir}
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		health.Exists = true
	}
	files, err := trace.ListFiles(dir)
	if err != nil {
		health.Error = err.Error()
		return health
	}
	health.Files = len(files)
	return health
}

func checkStorage(options HealthOptions) storageHealth {
	if options.Store == nil {
		return storageHealth{Driver: "none"}
	}
	health := storageHealth{Driver: options.Store.Driver()}
	if health.Driver == "sqlite" && options.StoragePath != "" {
		if info, err := os.Stat(options.StoragePath); err == nil {
			health.SizeBytes = info.Size()
		}
	}
	if options.Diagnostics != nil {
		snapshot := options.Diagnostics.PipelineDiagnostics()
		health.QueueDepth = &snapshot.QueueDepth
		health.PressureState = snapshot.QueuePressureState
	}
	return health
}
