// Package jsonvalue reads loosely-typed values out of decoded JSON documents.
//
// Trace records are decoded into map[string]any with json.Number for numbers
// so that ids and token counts round-trip unchanged. The helpers here coerce
// those values without failing on unexpected shapes.
package jsonvalue

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
)

// ErrTrailingData is returned by Decode when more than one JSON value is present.
var ErrTrailingData = errors.New("invalid character after top-level value")

// Decode decodes exactly one JSON value, keeping numbers as json.Number.
func Decode(raw string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()

	var out any
	if err := decoder.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}
	return out, nil
}

// Map returns value as a JSON object.
func Map(value any) (map[string]any, bool) {
	out, ok := value.(map[string]any)
	return out, ok
}

// Object returns the JSON object stored under key.
func Object(values map[string]any, key string) (map[string]any, bool) {
	if values == nil {
		return nil, false
	}
	return Map(values[key])
}

// Array returns the JSON array stored under key.
func Array(values map[string]any, key string) ([]any, bool) {
	if values == nil {
		return nil, false
	}
	out, ok := values[key].([]any)
	return out, ok
}

// String returns the string stored under key. Non-string values report false.
func String(values map[string]any, key string) (string, bool) {
	if values == nil {
		return "", false
	}
	out, ok := values[key].(string)
	return out, ok
}

// CoerceInt64 converts a loosely-typed value to int64, handling float64,
// float32, int, int64, int32, json.Number, and string representations.
func CoerceInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case float64:
		return int64(typed), true
	case float32:
		return int64(typed), true
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	case int32:
		return int64(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// Int returns the integer stored under key.
func Int(values map[string]any, key string) (int, bool) {
	if values == nil {
		return 0, false
	}
	raw, ok := values[key]
	if !ok {
		return 0, false
	}
	parsed, ok := CoerceInt64(raw)
	return int(parsed), ok
}

// CoerceFloat64 converts a JSON number to float64. Strings are not numbers.
func CoerceFloat64(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// Float returns the number stored under key.
func Float(values map[string]any, key string) (float64, bool) {
	if values == nil {
		return 0, false
	}
	raw, ok := values[key]
	if !ok {
		return 0, false
	}
	return CoerceFloat64(raw)
}

// Truthy reports whether value is a non-empty JSON value: a non-empty string,
// object or array, a non-zero number, or true.
func Truthy(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case string:
		return typed != ""
	case bool:
		return typed
	case map[string]any:
		return len(typed) > 0
	case []any:
		return len(typed) > 0
	case json.Number:
		parsed, err := typed.Float64()
		return err != nil || parsed != 0
	case float64:
		return typed != 0
	default:
		return true
	}
}
