package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrSessionExpired is joined to errors that ended the session.
// The credentials have been purged; a fresh login is required.
var ErrSessionExpired = errors.New("session expired")

// Error is a non-2xx answer from the API.
type Error struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if detail := e.Detail(); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// Decode unmarshals the error body into v.
func (e *Error) Decode(v any) error {
	return json.Unmarshal(e.Body, v)
}

// Detail returns the "detail" message of a JSON error body, if any.
func (e *Error) Detail() string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return ""
	}
	return body.Detail
}

// FieldErrors flattens a validation error body into field → messages.
//
// Accepts {"field": ["msg"]}, {"field": "msg"} and nested objects, whose keys
// are joined with a dot ("items.0.quantity"). Returns nil when the body is not
// a JSON object.
func (e *Error) FieldErrors() map[string][]string {
	var body map[string]any
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return nil
	}

	fields := make(map[string][]string)
	flattenFieldErrors(fields, "", body)
	return fields
}

func flattenFieldErrors(dst map[string][]string, prefix string, v any) {
	switch val := v.(type) {
	case string:
		dst[prefix] = append(dst[prefix], val)
	case []any:
		for i, item := range val {
			if s, ok := item.(string); ok {
				dst[prefix] = append(dst[prefix], s)
				continue
			}
			flattenFieldErrors(dst, joinKey(prefix, fmt.Sprint(i)), item)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenFieldErrors(dst, joinKey(prefix, k), val[k])
		}
	case nil:
	default:
		dst[prefix] = append(dst[prefix], fmt.Sprint(val))
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.Join([]string{prefix, key}, ".")
}

// TransportError means no response was received at all.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0 if err has none.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
