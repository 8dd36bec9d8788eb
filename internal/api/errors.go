package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Resource tags carried by FetchError.
const (
	ResourceRounds = "rounds"
	ResourceRound  = "round"
	ResourceCreate = "create"
	ResourceStats  = "stats"
)

// AuthError reports rejected credentials or a failed logout.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// HTTPStatus returns the response status code.
func (e *AuthError) HTTPStatus() int {
	return e.Status
}

// FetchError reports a failed read or create, tagged by resource.
type FetchError struct {
	Resource string
	Status   int
	Detail   string
}

func (e *FetchError) Error() string {
	msg := fetchFailureText(e.Resource)
	if e.Detail == "" {
		return fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	return msg + ": " + e.Detail
}

// HTTPStatus returns the response status code.
func (e *FetchError) HTTPStatus() int {
	return e.Status
}

// TapError reports a rejected or failed tap.
type TapError struct {
	Status  int
	Message string
}

func (e *TapError) Error() string {
	return e.Message
}

// HTTPStatus returns the response status code.
func (e *TapError) HTTPStatus() int {
	return e.Status
}

// NetworkError reports a transport failure: the server was not reached or
// the response could not be read.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is an API error carrying status 401.
func IsUnauthorized(err error) bool {
	var coded interface{ HTTPStatus() int }
	if !errors.As(err, &coded) {
		return false
	}
	return coded.HTTPStatus() == http.StatusUnauthorized
}

func fetchFailureText(resource string) string {
	switch resource {
	case ResourceRounds:
		return "failed to load rounds"
	case ResourceRound:
		return "failed to load round"
	case ResourceCreate:
		return "failed to create round"
	case ResourceStats:
		return "failed to load stats"
	default:
		return "failed to fetch " + resource
	}
}
