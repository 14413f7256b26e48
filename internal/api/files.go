package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ongoingai/traceview/internal/loader"
	"github.com/ongoingai/traceview/internal/pathutil"
	"github.com/ongoingai/traceview/internal/trace"
)

const tracePathPrefix = "/api/trace"

type traceResponse struct {
	Entries []*trace.Entry `json:"entries"`
	Total   int            `json:"total"`
	Limit   *int           `json:"limit"`
	Offset  int            `json:"offset"`
}

func FilesHandler(l *loader.Loader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}

		files, err := l.Files(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list trace files", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list trace files")
			return
		}
		writeJSON(w, http.StatusOK, files)
	})
}

// TraceHandler serves one parsed and annotated trace file. The optional
// limit and offset query parameters page through the annotated entries.
func TraceHandler(l *loader.Loader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}

		name, ok := pathutil.Tail(r.URL.Path, tracePathPrefix)
		if !ok || name == "" {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}

		// Only plain names are served. Nested paths are resolved so escapes
		// still report as forbidden, but they are never parsed.
		if strings.ContainsAny(name, `/\`) {
			if _, err := trace.ResolveFile(l.Dir(), name); err != nil {
				writeLoadError(w, r, logger, name, err)
				return
			}
			writeError(w, http.StatusNotFound, "File not found")
			return
		}

		result, err := l.Load(r.Context(), name)
		if err != nil {
			writeLoadError(w, r, logger, name, err)
			return
		}

		limit, offset := parsePage(r)
		writeJSON(w, http.StatusOK, traceResponse{
			Entries: pageEntries(result.Entries, limit, offset),
			Total:   len(result.Entries),
			Limit:   limit,
			Offset:  offset,
		})
	})
}

func writeLoadError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, name string, err error) {
	switch {
	case errors.Is(err, trace.ErrInvalidFileName):
		writeError(w, http.StatusBadRequest, "Invalid file type")
	case errors.Is(err, trace.ErrOutsideDir):
		writeError(w, http.StatusForbidden, "Invalid file path")
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "File not found")
	default:
		logger.ErrorContext(r.Context(), "failed to load trace file", "file", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to parse file: "+err.Error())
	}
}

// parsePage reads limit and offset leniently: unparsable or negative values
// fall back to no limit and a zero offset.
func parsePage(r *http.Request) (*int, int) {
	query := r.URL.Query()

	var limit *int
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			limit = &parsed
		}
	}

	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func pageEntries(entries []*trace.Entry, limit *int, offset int) []*trace.Entry {
	if offset >= len(entries) {
		return []*trace.Entry{}
	}
	end := len(entries)
	if limit != nil && *limit < end-offset {
		end = offset + *limit
	}
	return entries[offset:end]
}
