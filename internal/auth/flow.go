package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// stateBytes is the entropy behind each state token, drawn independently
// of the PKCE verifier.
const stateBytes = 32

// Flow orchestrates the OAuth2 PKCE authorization flow: Start builds the
// authorize URL and records the pending state, Finish validates the
// callback, exchanges the code and populates the token cache.
//
// Flow keeps no state of its own between calls beyond the StateStore entry;
// every Start begins a fresh flow regardless of prior outcomes.
type Flow struct {
	oauth     *oauth2.Config
	audience  string
	generator *PKCEGenerator
	states    StateStore
	cache     *TokenCache
	exchanger *Exchanger
	logger    *log.Logger
}

// NewFlow creates a Flow. The audience is the FHIR resource server base
// URL, carried on the authorize URL as the aud parameter.
func NewFlow(clientID, redirectURI, authorizeURL, tokenURL, scopes, audience string,
	generator *PKCEGenerator, states StateStore, cache *TokenCache, exchanger *Exchanger, logger *log.Logger) *Flow {
	return &Flow{
		oauth: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURI,
			Scopes:      strings.Fields(scopes),
			Endpoint: oauth2.Endpoint{
				AuthURL:  authorizeURL,
				TokenURL: tokenURL,
			},
		},
		audience:  audience,
		generator: generator,
		states:    states,
		cache:     cache,
		exchanger: exchanger,
		logger:    logger,
	}
}

// StartResult is returned by Start.
type StartResult struct {
	AuthURL string
	State   string
}

// Start generates a PKCE pair and a fresh state token, records the pending
// flow and returns the fully-formed authorize URL.
func (f *Flow) Start() (*StartResult, error) {
	if f.oauth.ClientID == "" {
		return nil, ErrClientIDMissing
	}

	verifier, err := f.generator.GenerateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("generating code verifier: %w", err)
	}
	challenge, err := f.generator.GenerateCodeChallenge(verifier)
	if err != nil {
		return nil, fmt.Errorf("generating code challenge: %w", err)
	}

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	if err := f.states.Begin(state, verifier); err != nil {
		return nil, fmt.Errorf("recording pending flow: %w", err)
	}

	authURL := f.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("aud", f.audience),
	)

	f.logger.Printf("authorization flow started, state=%s", state)
	return &StartResult{AuthURL: authURL, State: state}, nil
}

// Finish validates the callback query parameters, exchanges the code for a
// token and populates the cache. The returned record is token metadata for
// the caller; handlers must never write the raw token value to the browser.
//
// The error parameter is checked before the state store is touched, so an
// upstream denial never consumes a pending entry. The state entry is
// consumed before the exchange and is not restored when the exchange fails,
// so a replayed callback fails with ErrInvalidState either way.
func (f *Flow) Finish(ctx context.Context, params url.Values) (*Token, error) {
	if errCode := params.Get("error"); errCode != "" {
		cbErr := &CallbackError{
			Code:        errCode,
			Description: params.Get("error_description"),
			URI:         params.Get("error_uri"),
		}
		if strings.Contains(cbErr.URI, "launch:code-required") || errCode == "invalid_request" {
			cbErr.LaunchContextRequired = true
		}
		f.logger.Printf("authorization denied: %s (%s)", cbErr.Code, cbErr.Description)
		return nil, cbErr
	}

	code := params.Get("code")
	if code == "" {
		return nil, ErrMissingCode
	}

	state := params.Get("state")
	if state == "" {
		return nil, ErrInvalidState
	}
	verifier, err := f.states.Take(state)
	if err != nil {
		f.logger.Printf("callback with unresolvable state=%s", state)
		return nil, ErrInvalidState
	}

	token, err := f.exchanger.Exchange(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	f.cache.Set(*token)
	f.logger.Printf("token exchange successful, type=%s expires_in=%d scope=%q",
		token.TokenType, token.ExpiresIn, token.Scope)
	return token, nil
}

// generateState returns a random URL-safe state token.
func generateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
