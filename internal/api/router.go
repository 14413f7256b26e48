// Package api serves the trace viewer's JSON endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ongoingai/traceview/internal/index"
	"github.com/ongoingai/traceview/internal/loader"
)

type RouterOptions struct {
	AppVersion  string
	Loader      *loader.Loader
	Store       index.Store
	Diagnostics index.DiagnosticsReader
	StoragePath string
	Logger      *slog.Logger
}

// NewRouter mounts every endpoint behind permissive CORS. All routes are
// read-only.
func NewRouter(options RouterOptions) http.Handler {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	health := HealthOptions{
		Version:     options.AppVersion,
		StartedAt:   time.Now().UTC(),
		TraceDir:    options.Loader.Dir(),
		Store:       options.Store,
		StoragePath: options.StoragePath,
		Diagnostics: options.Diagnostics,
	}

	routes := []struct {
		pattern string
		handler http.Handler
	}{
		{"/api/health", HealthHandler(health)},
		{"/api/files", FilesHandler(options.Loader, logger)},
		{tracePathPrefix + "/", TraceHandler(options.Loader, logger)},
		{"/api/analytics/models", ModelsHandler(options.Store)},
		{"/api/analytics/agents", AgentsHandler(options.Store)},
		{"/api/analytics/records", RecordsHandler(options.Store)},
		{"/api/diagnostics/index-pipeline", IndexPipelineDiagnosticsHandler(options.Diagnostics)},
		{"/", bannerHandler(options.AppVersion)},
	}
	mux := http.NewServeMux()
	for _, route := range routes {
		mux.Handle(route.pattern, route.handler)
	}
	return withCORS(mux)
}

func bannerHandler(appVersion string) http.Handler {
	banner := struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Status  string `json:"status"`
	}{Name: "traceview", Version: appVersion, Status: "ok"}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, http.StatusOK, banner)
	})
}

// writeJSON encodes payload before touching w so an encoding failure can
// still produce a clean 500.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method+", "+http.MethodOptions)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, X-Request-ID, X-Correlation-ID",
}

// withCORS answers preflight requests itself.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name, value := range corsHeaders {
			w.Header().Set(name, value)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
