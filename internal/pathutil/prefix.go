// Package pathutil matches URL paths against route prefixes on segment
// boundaries, so "/api/trace" matches "/api/trace/x" but not "/api/traces".
package pathutil

import "strings"

// cut returns what follows prefix in path, starting with "/" or empty. An
// empty or "/" prefix matches every path.
func cut(path, prefix string) (string, bool) {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return path, true
	}
	rest, ok := strings.CutPrefix(path, "/"+prefix)
	if !ok || (rest != "" && rest[0] != '/') {
		return "", false
	}
	return rest, true
}

// HasPathPrefix reports whether path equals prefix or is nested under it.
func HasPathPrefix(path, prefix string) bool {
	_, ok := cut(path, prefix)
	return ok
}

// Tail returns the part of path below prefix without its leading slash.
func Tail(path, prefix string) (string, bool) {
	rest, ok := cut(path, prefix)
	return strings.TrimPrefix(rest, "/"), ok
}
