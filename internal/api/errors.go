package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrCapacityExceeded means the aggregate endpoint matched more places
	// than it will list in one response. The caller should narrow the query.
	ErrCapacityExceeded = errors.New("upstream: too many places for one request")

	// ErrNotFound is returned for an unknown place or an unresolvable location.
	ErrNotFound = errors.New("upstream: not found")
)

// UpstreamError is returned when an upstream API answers with a non-2xx status.
//
// It unwraps to ErrCapacityExceeded or ErrNotFound when the response carries
// that meaning, so callers can test with errors.Is.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (HTTP %d): %s", e.Status, truncate(e.Body, 300))
}

// Temporary reports whether retrying the same request may succeed.
func (e *UpstreamError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func (e *UpstreamError) Unwrap() error {
	switch {
	case e.capacityExceeded():
		return ErrCapacityExceeded
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// googleError is the error envelope used by the Google APIs.
type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (e *UpstreamError) capacityExceeded() bool {
	if e.Status != http.StatusBadRequest {
		return false
	}
	var ge googleError
	if err := json.Unmarshal([]byte(e.Body), &ge); err == nil {
		if ge.Error.Status == "RESOURCE_EXHAUSTED" {
			return true
		}
		if strings.Contains(strings.ToLower(ge.Error.Message), "too many places") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(e.Body), "too many places")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
