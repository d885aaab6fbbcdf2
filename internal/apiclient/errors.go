package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed call.
type Kind string

// Error kinds.
const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindNetwork    Kind = "network"
	KindServer     Kind = "server"
)

// Sentinels matched with errors.Is against an *Error of the same kind.
var (
	ErrValidation = errors.New("apiclient: validation failed")
	ErrAuth       = errors.New("apiclient: not authorized")
	ErrNotFound   = errors.New("apiclient: not found")
	ErrConflict   = errors.New("apiclient: conflict")
	ErrNetwork    = errors.New("apiclient: network failure")
	ErrServer     = errors.New("apiclient: server error")
)

var kindSentinels = map[Kind]error{
	KindValidation: ErrValidation,
	KindAuth:       ErrAuth,
	KindNotFound:   ErrNotFound,
	KindConflict:   ErrConflict,
	KindNetwork:    ErrNetwork,
	KindServer:     ErrServer,
}

// Error is returned by every Client method that fails.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the transport cause, if any.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Message returns the server message carried by err, falling back to err.Error().
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

type problemBody struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// statusError builds an *Error from a non-2xx response body.
func statusError(status int, body []byte) *Error {
	msg := ""
	var p problemBody
	if json.Unmarshal(body, &p) == nil {
		for _, candidate := range []string{p.Error, p.Detail, p.Message, p.Title} {
			if strings.TrimSpace(candidate) != "" {
				msg = candidate
				break
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Kind: kindForStatus(status), Status: status, Message: msg}
}
