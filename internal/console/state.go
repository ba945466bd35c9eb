// Package console holds the per-operator view controllers: list state,
// polling, pagination, and the mutation protocol of each admin view.
package console

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle of a list-backed view.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// State is the snapshot a view renders from. For list views Data is a slice.
type State[T any] struct {
	Status    Status    `json:"status"`
	Data      T         `json:"data"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

var (
	// ErrNotFound is returned when an id is not in the view's current list.
	ErrNotFound = errors.New("console: not found")
	// ErrPrimaryAdmin guards the configured primary admin account.
	ErrPrimaryAdmin = errors.New("console: primary admin account cannot be modified")
	// ErrNotAuthenticated is returned by workspace calls before login.
	ErrNotAuthenticated = errors.New("console: not logged in")
)

// Severity of a notice.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is the transient message a mutation produces.
type Notice struct {
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Action   *NoticeAction `json:"action,omitempty"`
}

// NoticeAction points the operator at a follow-up view.
type NoticeAction struct {
	Label   string `json:"label"`
	View    string `json:"view"`
	RouteID int64  `json:"routeId,omitempty"`
}

func success(format string, args ...interface{}) Notice {
	return Notice{Severity: SeveritySuccess, Message: fmt.Sprintf(format, args...)}
}

func failure(msg string) Notice {
	return Notice{Severity: SeverityError, Message: msg}
}

// FieldErrors maps a form field to its message. A non-empty FieldErrors is
// returned before any network call is made.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// err returns f as an error, or nil when empty.
func (f FieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return f
}

// AsFieldErrors extracts local validation errors from err.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
