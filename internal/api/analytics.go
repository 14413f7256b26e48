package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ongoingai/traceview/internal/index"
)

type recordsResponse struct {
	Items      []*index.Record `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func ModelsHandler(store index.Store) http.Handler {
	return indexQueryHandler(store, parseAnalyticsFilter,
		func(ctx context.Context, filter index.AnalyticsFilter) (any, error) {
			stats, err := store.GetModelStats(ctx, filter)
			if stats == nil {
				stats = []index.ModelStats{}
			}
			return stats, err
		})
}

func AgentsHandler(store index.Store) http.Handler {
	return indexQueryHandler(store, parseAnalyticsFilter,
		func(ctx context.Context, filter index.AnalyticsFilter) (any, error) {
			stats, err := store.GetAgentStats(ctx, filter)
			if stats == nil {
				stats = []index.AgentStats{}
			}
			return stats, err
		})
}

func RecordsHandler(store index.Store) http.Handler {
	return indexQueryHandler(store, parseRecordFilter,
		func(ctx context.Context, filter index.RecordFilter) (any, error) {
			result, err := store.QueryRecords(ctx, filter)
			if err != nil {
				return nil, err
			}
			response := recordsResponse{Items: result.Items, NextCursor: result.NextCursor}
			if response.Items == nil {
				response.Items = []*index.Record{}
			}
			return response, nil
		})
}

// indexQueryHandler serves one read-only index query: GET only, 503 without
// a store, 400 for a bad filter.
func indexQueryHandler[F any](store index.Store, parse func(*http.Request) (F, error), query func(context.Context, F) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "index store is not configured")
			return
		}
		filter, err := parse(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		payload, err := query(r.Context(), filter)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, payload)
		case errors.Is(err, index.ErrInvalidCursor):
			writeError(w, http.StatusBadRequest, "invalid cursor")
		case errors.Is(err, index.ErrNotImplemented):
			writeError(w, http.StatusNotImplemented, "analytics query is not implemented")
		default:
			writeError(w, http.StatusInternalServerError, "failed to read analytics")
		}
	})
}

func parseAnalyticsFilter(r *http.Request) (index.AnalyticsFilter, error) {
	query := r.URL.Query()
	from, to, err := index.ParseTimeRange(query.Get("from"), query.Get("to"))
	if err != nil {
		return index.AnalyticsFilter{}, err
	}

	return index.AnalyticsFilter{
		File:     strings.TrimSpace(query.Get("file")),
		Provider: strings.TrimSpace(query.Get("provider")),
		Model:    strings.TrimSpace(query.Get("model")),
		From:     from,
		To:       to,
	}, nil
}

func parseRecordFilter(r *http.Request) (index.RecordFilter, error) {
	query := r.URL.Query()
	from, to, err := index.ParseTimeRange(query.Get("from"), query.Get("to"))
	if err != nil {
		return index.RecordFilter{}, err
	}
	limit, err := parseIntQuery(query.Get("limit"), "limit", 1, 1000)
	if err != nil {
		return index.RecordFilter{}, err
	}
	subagent, err := parseBoolQuery(query.Get("subagent"), "subagent")
	if err != nil {
		return index.RecordFilter{}, err
	}
	errorsOnly, err := parseBoolQuery(query.Get("errors"), "errors")
	if err != nil {
		return index.RecordFilter{}, err
	}

	return index.RecordFilter{
		File:      strings.TrimSpace(query.Get("file")),
		Provider:  strings.TrimSpace(query.Get("provider")),
		Model:     strings.TrimSpace(query.Get("model")),
		AgentType: strings.TrimSpace(query.Get("agent_type")),
		Subagent:  subagent,
		Errors:    errorsOnly,
		From:      from,
		To:        to,
		Limit:     limit,
		Cursor:    strings.TrimSpace(query.Get("cursor")),
	}, nil
}

func parseIntQuery(raw, name string, min, max int) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if parsed < min {
		return 0, fmt.Errorf("%s must be >= %d", name, min)
	}
	if max != 0 && parsed > max {
		return 0, fmt.Errorf("%s must be <= %d", name, max)
	}
	return parsed, nil
}

func parseBoolQuery(raw, name string) (*bool, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean", name)
	}
	return &parsed, nil
}
