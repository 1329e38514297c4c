package auth

import "sync"

// Token is the access token record returned by the token endpoint.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
	// Patient is the SMART patient-context ID, present for patient-scoped
	// launches.
	Patient string `json:"patient,omitempty"`
}

// TokenCache is the process-wide single-slot holder of the most recently
// obtained access token. Last write wins; there is no per-user partitioning.
type TokenCache struct {
	mu    sync.Mutex
	token *Token
}

// NewTokenCache creates an empty TokenCache.
func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// Set replaces whatever was cached.
func (c *TokenCache) Set(token Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = &token
}

// Get returns the cached token without consuming it. The second return is
// false when the slot is empty.
func (c *TokenCache) Get() (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return Token{}, false
	}
	return *c.token, true
}

// Clear empties the slot. Called when a resource call comes back 401,
// signaling that a fresh authorization flow is required.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}
