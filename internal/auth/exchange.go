package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"fhir-relay/internal/upstream"
)

// Exchanger performs the authorization-code-for-token exchange against the
// remote token endpoint. One POST, no retries; the caller decides whether
// to restart the whole flow on failure.
type Exchanger struct {
	client      *http.Client
	tokenURL    string
	clientID    string
	redirectURI string
}

// NewExchanger creates an Exchanger. The client's timeout bounds the call.
func NewExchanger(client *http.Client, tokenURL, clientID, redirectURI string) *Exchanger {
	return &Exchanger{
		client:      client,
		tokenURL:    tokenURL,
		clientID:    clientID,
		redirectURI: redirectURI,
	}
}

// Exchange posts the authorization code and its PKCE verifier to the token
// endpoint and returns the access token record.
//
// Failure kinds: ErrClientIDMissing when unconfigured, *upstream.Error for
// a non-2xx answer (status and raw body preserved), ErrMalformedResponse
// for a 2xx answer without an access token.
func (e *Exchanger) Exchange(ctx context.Context, code, verifier string) (*Token, error) {
	if e.clientID == "" {
		return nil, ErrClientIDMissing
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {e.redirectURI},
		"client_id":     {e.clientID},
		"code_verifier": {verifier},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling token endpoint: %w", err)
	}

	body, err := upstream.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("exchanging code for token: %w", err)
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, ErrMalformedResponse
	}
	return &token, nil
}
