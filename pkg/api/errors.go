package api

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error is a transport or API failure carrying the HTTP-equivalent status
// code, when one is known.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("messaging api: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("messaging api: %s", e.Message)
}

// StatusOf extracts the status code from an error chain, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsAuthError reports whether err indicates an invalid or expired
// credential. Such failures trigger full cleanup, never a retry.
func IsAuthError(err error) bool {
	s := StatusOf(err)
	return s == http.StatusUnauthorized || s == http.StatusForbidden
}
