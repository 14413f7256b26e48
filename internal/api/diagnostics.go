package api

import (
	"net/http"
	"time"

	"github.com/ongoingai/traceview/internal/index"
)

const indexPipelineDiagnosticsSchemaVersion = "index-pipeline-diagnostics.v1"

type indexPipelineDiagnosticsResponse struct {
	SchemaVersion string                    `json:"schema_version"`
	GeneratedAt   time.Time                 `json:"generated_at"`
	Diagnostics   index.PipelineDiagnostics `json:"diagnostics"`
}

func IndexPipelineDiagnosticsHandler(reader index.DiagnosticsReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		if reader == nil {
			writeError(w, http.StatusServiceUnavailable, "index pipeline diagnostics unavailable")
			return
		}

		writeJSON(w, http.StatusOK, indexPipelineDiagnosticsResponse{
			SchemaVersion: indexPipelineDiagnosticsSchemaVersion,
			GeneratedAt:   time.Now().UTC(),
			Diagnostics:   reader.PipelineDiagnostics(),
		})
	})
}
