package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrUnauthorized matches any 401 response from the admin API.
var ErrUnauthorized = errors.New("gateway: unauthorized")

// ErrorKind classifies a failed call.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTransport
	KindUnauthorized
	KindValidation
	KindGeneric
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	default:
		return "generic"
	}
}

// APIError is a non-2xx response from the admin API.
type APIError struct {
	Method           string
	Path             string
	StatusCode       int
	Status           string
	Message          string
	ValidationErrors map[string]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed: %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("request failed: %s", e.Status)
}

// Is reports 401 responses as ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == 401
}

// IsValidation reports whether the server rejected the payload with 422.
func (e *APIError) IsValidation() bool {
	return e.StatusCode == 422
}

// TransportError wraps a failure to reach the admin API.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Classify maps err onto the console's error taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401:
			return KindUnauthorized
		case apiErr.IsValidation():
			return KindValidation
		default:
			return KindGeneric
		}
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return KindTransport
	}
	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return KindTransport
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransport
	}
	return KindGeneric
}

// Message returns the server-provided message when err is an *APIError,
// else err.Error().
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// ValidationErrors returns the field map of a 422 response, or nil.
func ValidationErrors(err error) map[string]string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsValidation() {
		return apiErr.ValidationErrors
	}
	return nil
}

const maxMessageLen = 512

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// parseErrorBody extracts a message and, when present, the field error map
// from an error response body.
func parseErrorBody(body []byte) (string, map[string]string) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "", nil
	}

	var payload struct {
		Message string          `json:"message"`
		Error   string          `json:"error"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return truncate(text, maxMessageLen), nil
	}

	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	return msg, normalizeFieldErrors(payload.Errors)
}

// normalizeFieldErrors accepts either an object of field → message(s) or a
// list of {field, message|defaultMessage} entries.
func normalizeFieldErrors(raw json.RawMessage) map[string]string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var byField map[string]interface{}
	if err := json.Unmarshal(raw, &byField); err == nil {
		out := make(map[string]string, len(byField))
		for field, v := range byField {
			out[field] = flattenMessage(v)
		}
		return out
	}

	var list []struct {
		Field          string `json:"field"`
		Message        string `json:"message"`
		DefaultMessage string `json:"defaultMessage"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make(map[string]string, len(list))
		for _, item := range list {
			msg := item.Message
			if msg == "" {
				msg = item.DefaultMessage
			}
			if prev, ok := out[item.Field]; ok && prev != "" {
				msg = prev + "; " + msg
			}
			out[item.Field] = msg
		}
		return out
	}
	return map[string]string{}
}

func flattenMessage(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, flattenMessage(item))
		}
		return strings.Join(parts, "; ")
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+flattenMessage(val[k]))
		}
		return strings.Join(parts, "; ")
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
