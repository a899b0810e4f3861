package http

import (
	"errors"
	"fmt"
	"net/http"
)

// Status classes matched by StatusError through errors.Is.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrServerError  = errors.New("http: server error")
)

// NetworkError is a transport-level failure: the request never produced a
// response, or the connection failed while the body was being read.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError is returned for responses with a non-2xx status code.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("HTTP error: %d %s", e.Code, http.StatusText(e.Code))
	}
	return "HTTP error: " + e.Status
}

// Is reports whether target is the sentinel for this status class.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrServerError:
		return e.Code >= 500
	}
	return false
}

// MissingHeaderError is returned when a required response header is absent.
type MissingHeaderError struct {
	Name string
}

func (e *MissingHeaderError) Error() string {
	return "missing header: " + e.Name
}

// checkStatusCode returns a *StatusError for non-success status codes.
func checkStatusCode(code int, status string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	return &StatusError{Code: code, Status: status}
}
