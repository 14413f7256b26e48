package redact

import (
	"strings"
	"unicode/utf8"
)

// DefaultHeaderDenylist names the request headers whose values are masked
// before a parsed entry leaves the parser.
var DefaultHeaderDenylist = []string{"x-api-key", "authorization"}

// minSuffixKeyLength is the shortest key for which revealing the last four
// characters still hides the bulk of the secret.
const minSuffixKeyLength = 10

// KeySuffix returns "..." followed by the last four characters of key when
// key is longer than ten characters. ok is false for shorter keys.
func KeySuffix(key string) (string, bool) {
	if utf8.RuneCountInString(key) <= minSuffixKeyLength {
		return "", false
	}
	runes := []rune(key)
	return "..." + string(runes[len(runes)-4:]), true
}

// MaskValue returns the displayable form of a secret header value.
func MaskValue(value string) string {
	if value == "" {
		return ""
	}
	if suffix, ok := KeySuffix(value); ok {
		return suffix
	}
	return CredentialRedacted
}

// Lookup finds a header value by case-insensitive name.
func Lookup(headers map[string]string, name string) (string, bool) {
	if value, ok := headers[name]; ok {
		return value, true
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}
	return "", false
}

// MaskHeaders returns a copy of headers with every denylisted header value
// replaced by MaskValue. Header name matching is case-insensitive. Values of
// headers outside the denylist are still scrubbed for embedded credentials.
func MaskHeaders(headers map[string]string, denylist []string) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		if isDenied(key, denylist) {
			out[key] = MaskValue(value)
			continue
		}
		out[key] = ScrubCredentials(value)
	}
	return out
}

func isDenied(name string, denylist []string) bool {
	for _, denied := range denylist {
		if strings.EqualFold(strings.TrimSpace(denied), name) {
			return true
		}
	}
	return false
}
