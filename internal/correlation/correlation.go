// Package correlation tags viewer API requests with a request identifier that
// is echoed in the response, logged, and attached to server spans.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// HeaderName carries the request identifier on requests and responses.
const HeaderName = "X-Request-ID"

// Incoming identifiers are accepted from these headers in order.
var acceptedHeaders = []string{HeaderName, "X-Correlation-ID"}

const maxIDLen = 128

type requestIDKey struct{}

// EnsureRequest returns req carrying a request identifier in its context. An
// identifier already in the context wins, then a well-formed incoming header,
// then a fresh UUID.
func EnsureRequest(req *http.Request) (*http.Request, string) {
	if req == nil {
		return nil, ""
	}
	if id, ok := FromContext(req.Context()); ok {
		return req, id
	}
	id := ""
	for _, header := range acceptedHeaders {
		if id = normalizeID(req.Header.Get(header)); id != "" {
			break
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	return req.WithContext(context.WithValue(req.Context(), requestIDKey{}, id)), id
}

// WithContext stores id in ctx. Malformed identifiers are dropped.
func WithContext(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if id = normalizeID(id); id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// FromContext returns the request identifier stored in ctx.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id, id != ""
}

// normalizeID trims raw and caps it at maxIDLen. Anything outside
// [A-Za-z0-9-_.:] rejects the whole value.
func normalizeID(raw string) string {
	id := strings.TrimSpace(raw)
	if len(id) > maxIDLen {
		id = id[:maxIDLen]
	}
	if strings.IndexFunc(id, func(r rune) bool { return !idRune(r) }) >= 0 {
		return ""
	}
	return id
}

func idRune(r rune) bool {
	switch {
	case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		return true
	}
	return strings.ContainsRune("-_.:", r)
}
