// Package upstream holds the error type shared by every client that talks
// to the remote authorization, token and FHIR servers.
package upstream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error is returned when a remote server answers with a non-2xx status.
// The status and raw body are preserved for diagnostics, never masked.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// StatusOf extracts the remote status code from err, or 0 when err is not
// an upstream rejection.
func StatusOf(err error) int {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}

// ReadBody drains and returns the response body, converting a non-2xx
// status into an *Error carrying the body.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
