package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code is a machine-readable error class. The set is closed; the MCP
// dispatcher renders codes verbatim inside the bracketed error prefix.
type Code string

const (
	CodeValidation       Code = "validation"
	CodeInvalidParameter Code = "invalid-parameter"
	CodeNotFound         Code = "not-found"
	CodeUnauthorized     Code = "unauthorized"
	CodeForbidden        Code = "forbidden"
	CodePermissions      Code = "insufficient-permissions"
	CodeRateLimited      Code = "rate-limited"
	CodeDuplicate        Code = "duplicate"
	CodeCanvasAPI        Code = "canvas-api"
	CodeNetwork          Code = "network"
	CodeTimeout          Code = "timeout"
	CodeAnonymization    Code = "anonymization"
	CodeCache            Code = "cache"
)

// Error is the envelope every core operation returns on failure. It is
// the only error type that crosses component boundaries; callers branch
// on Code, the dispatcher renders Message/Suggestion/Detail.
type Error struct {
	Code       Code
	Message    string
	StatusCode int
	Detail     map[string]any
	Suggestion string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two envelopes by code so tests can use errors.Is with a
// bare &Error{Code: ...} target.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewError builds an envelope.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds an envelope around an underlying error.
func WrapError(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetail attaches a detail field, allocating the map on first use.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any, 2)
	}
	e.Detail[key] = value
	return e
}

// WithSuggestion attaches a remediation hint.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// AsError extracts an envelope from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// canvasErrorBody covers the two error shapes Canvas responds with:
// {"errors":[{"message":...}]} and {"message":...}.
type canvasErrorBody struct {
	Errors  json.RawMessage `json:"errors"`
	Message string          `json:"message"`
}

type canvasErrorItem struct {
	Message string `json:"message"`
}

// FromStatus maps a non-2xx Canvas response onto an envelope. The body is
// consulted only for a human-readable message; it is never attached to
// Detail and never audited.
func FromStatus(status int, method, endpoint string, body []byte) *Error {
	msg := messageFromBody(body)
	if msg == "" {
		msg = fmt.Sprintf("Canvas returned HTTP %d for %s %s", status, method, endpoint)
	}

	e := &Error{Message: msg, StatusCode: status}
	switch status {
	case 401:
		e.Code = CodeUnauthorized
		e.Suggestion = "Check that CANVAS_API_TOKEN is valid and has not expired."
	case 403:
		e.Code = CodePermissions
		e.Suggestion = "The token's user lacks permission for this resource."
	case 404:
		e.Code = CodeNotFound
		e.Suggestion = "Verify the identifier; SIS course codes need the sis_course_id: prefix."
	case 409:
		e.Code = CodeDuplicate
	case 422:
		e.Code = CodeInvalidParameter
	case 429:
		e.Code = CodeRateLimited
		e.Suggestion = "Canvas is throttling this token; the adaptive limiter has slowed down. Retry shortly."
	default:
		e.Code = CodeCanvasAPI
	}
	return e.WithDetail("method", method).WithDetail("endpoint", endpoint)
}

func messageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var parsed canvasErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	if len(parsed.Errors) == 0 {
		return ""
	}

	var items []canvasErrorItem
	if err := json.Unmarshal(parsed.Errors, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Message != "" {
				msgs = append(msgs, it.Message)
			}
		}
		return strings.Join(msgs, "; ")
	}

	// Field-keyed shape: {"errors":{"name":[{"message":...}]}}
	var keyed map[string][]canvasErrorItem
	if err := json.Unmarshal(parsed.Errors, &keyed); err == nil {
		fields := make([]string, 0, len(keyed))
		for field := range keyed {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		var msgs []string
		for _, field := range fields {
			for _, it := range keyed[field] {
				if it.Message != "" {
					msgs = append(msgs, field+": "+it.Message)
				}
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// ErrorTag returns the audit-safe tag for an error: the HTTP status code
// when known, otherwise the error's Go type name. Never a message.
func ErrorTag(err error) string {
	var e *Error
	if errors.As(err, &e) && e.StatusCode > 0 {
		return fmt.Sprintf("%d", e.StatusCode)
	}
	if e != nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%T", err)
}
