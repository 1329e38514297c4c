package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrClientIDMissing means the client identifier is not configured.
	// This is an operator error, not retryable.
	ErrClientIDMissing = errors.New("client ID not configured")

	// ErrMalformedResponse means the token endpoint answered 2xx but the
	// body carried no access token.
	ErrMalformedResponse = errors.New("token response missing access_token")

	// ErrStateExists is returned by Begin when the state token is already
	// pending. Random generation makes this near-impossible; it is a hard
	// failure rather than a silent overwrite.
	ErrStateExists = errors.New("state already pending")

	// ErrStateNotFound covers a state that was never issued, already
	// consumed, or expired.
	ErrStateNotFound = errors.New("state not found")

	// ErrMissingCode means the callback carried no authorization code.
	ErrMissingCode = errors.New("missing authorization code")

	// ErrInvalidState means the callback state was absent or did not
	// resolve to a pending flow. Covers CSRF attempts and replay.
	ErrInvalidState = errors.New("invalid state parameter")
)

// CallbackError carries an OAuth error delivered on the redirect. The
// authorization server's code, description and URI are surfaced verbatim.
type CallbackError struct {
	Code        string
	Description string
	URI         string

	// LaunchContextRequired marks the deployment-configuration case where
	// the app is registered for EHR launch but runs standalone. The fix is
	// in the developer portal, not in a retried flow.
	LaunchContextRequired bool
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("authorization failed: %s (%s)", e.Code, e.Description)
}
