package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhir-relay/internal/auth"
	"fhir-relay/internal/config"
)

// fakeBackend stands in for the authorization and FHIR servers.
type fakeBackend struct {
	mu sync.Mutex

	tokenStatus int
	tokenBody   string

	fhirStatus int
	fhirBody   string
	lastAuth   string
}

func (b *fakeBackend) serveToken(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.tokenStatus)
	w.Write([]byte(b.tokenBody))
}

func (b *fakeBackend) serveFHIR(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastAuth = r.Header.Get("Authorization")
	w.WriteHeader(b.fhirStatus)
	w.Write([]byte(b.fhirBody))
}

func (b *fakeBackend) set(fn func(*fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func newTestApp(t *testing.T) (http.Handler, *Application, *fakeBackend) {
	t.Helper()

	backend := &fakeBackend{
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token":"tok123","token_type":"Bearer","expires_in":3600,"scope":"patient/Patient.read","patient":"12724066"}`,
		fhirStatus:  http.StatusOK,
		fhirBody:    `{"resourceType":"Bundle","type":"searchset","total":1,"entry":[{"resource":{"resourceType":"Patient","id":"12724066"}}]}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", backend.serveToken)
	mux.HandleFunc("GET /Patient", backend.serveFHIR)
	mux.HandleFunc("GET /metadata", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resourceType":"CapabilityStatement","fhirVersion":"4.0.1","name":"Cerner"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		ClientID:            "client-abc",
		TenantID:            "test-tenant",
		RedirectURI:         "http://localhost:8080/callback",
		Scopes:              "patient/Patient.read openid",
		UpstreamTimeout:     5 * time.Second,
		StateTTL:            10 * time.Minute,
		AuthBaseOverride:    server.URL,
		FHIRBaseOverride:    server.URL,
		SandboxBaseOverride: server.URL,
	}

	application, err := New(cfg)
	require.NoError(t, err)
	return application.Routes(), application, backend
}

func doRequest(t *testing.T, handler http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "response must be JSON: %s", rec.Body.String())
	return rec, body
}

func TestHandleRoot(t *testing.T) {
	handler, _, _ := newTestApp(t)

	rec, body := doRequest(t, handler, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/login", body["auth_url"])
}

func TestHandleLogin(t *testing.T) {
	handler, _, _ := newTestApp(t)

	rec, body := doRequest(t, handler, "/login")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "Standalone", body["launch_type"])
	assert.Equal(t, "R4", body["fhir_version"])
	assert.NotEmpty(t, body["state"])

	authURL, err := url.Parse(body["auth_url"].(string))
	require.NoError(t, err)
	query := authURL.Query()
	assert.Equal(t, "/authorize", authURL.Path)
	assert.Equal(t, "client-abc", query.Get("client_id"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))
	assert.NotEmpty(t, query.Get("code_challenge"))
	assert.Equal(t, body["state"], query.Get("state"))

	// A second login is a fresh, independent flow.
	_, second := doRequest(t, handler, "/login")
	assert.NotEqual(t, body["state"], second["state"])
}

func TestHandleLogin_NoClientID(t *testing.T) {
	cfg := &config.Config{
		TenantID:        "test-tenant",
		RedirectURI:     "http://localhost:8080/callback",
		Scopes:          "patient/Patient.read openid",
		UpstreamTimeout: 5 * time.Second,
		StateTTL:        10 * time.Minute,
	}
	application, err := New(cfg)
	require.NoError(t, err)

	rec, body := doRequest(t, application.Routes(), "/login")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "client ID not configured", body["error"])
}

func TestHandleCallback_Success(t *testing.T) {
	handler, _, _ := newTestApp(t)

	_, login := doRequest(t, handler, "/login")
	state := login["state"].(string)

	rec, body := doRequest(t, handler, "/callback?code=code-xyz&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, float64(3600), body["expires_in"])
	assert.Equal(t, "12724066", body["patient"])
	assert.Equal(t, "/patients", body["redirect_to"])
	assert.NotContains(t, rec.Body.String(), "tok123", "the raw token never reaches the browser")
}

func TestHandleCallback_InvalidState(t *testing.T) {
	handler, _, _ := newTestApp(t)

	rec, body := doRequest(t, handler, "/callback?code=code-xyz&state=never-issued")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid state parameter", body["error"])
	assert.Equal(t, "State parameter missing or invalid", body["message"])
}

func TestHandleCallback_MissingCode(t *testing.T) {
	handler, _, _ := newTestApp(t)

	rec, body := doRequest(t, handler, "/callback?state=whatever")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing authorization code", body["error"])
}

func TestHandleCallback_UpstreamDenial(t *testing.T) {
	handler, _, _ := newTestApp(t)

	rec, body := doRequest(t, handler, "/callback?error=access_denied&error_description=User+denied")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Authorization Failed", body["error"])
	assert.Equal(t, "access_denied", body["error_code"])
	assert.Equal(t, "User denied", body["error_description"])
}

func TestHandleCallback_LaunchContextRequired(t *testing.T) {
	handler, _, _ := newTestApp(t)

	rec, body := doRequest(t, handler, "/callback?error=invalid_request")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Launch Context Required", body["error"])

	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "invalid_request", details["error_code"])
}

func TestHandleCallback_ExchangeFailure(t *testing.T) {
	handler, _, backend := newTestApp(t)
	backend.set(func(b *fakeBackend) {
		b.tokenStatus = http.StatusBadRequest
		b.tokenBody = `{"error":"invalid_grant"}`
	})

	_, login := doRequest(t, handler, "/login")
	state := login["state"].(string)

	rec, body := doRequest(t, handler, "/callback?code=bad&state="+url.QueryEscape(state))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Token exchange failed", body["error"])

	// The state was consumed before the exchange: the callback cannot be
	// replayed to retry it.
	rec, body = doRequest(t, handler, "/callback?code=bad&state="+url.QueryEscape(state))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid state parameter", body["error"])
}

func TestHandlePatients_NoToken(t *testing.T) {
	handler, _, _ := newTestApp(t)

	rec, body := doRequest(t, handler, "/patients")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No access token available", body["error"])
	assert.Equal(t, "Please complete the authorization flow first by visiting /login", body["message"])
}

func TestAuthorizationRoundTrip(t *testing.T) {
	handler, _, backend := newTestApp(t)

	// Authorize.
	_, login := doRequest(t, handler, "/login")
	state := login["state"].(string)
	rec, _ := doRequest(t, handler, "/callback?code=code-xyz&state="+url.QueryEscape(state))
	require.Equal(t, http.StatusOK, rec.Code)

	// The cached token is attached to the resource call.
	rec, body := doRequest(t, handler, "/patients")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer tok123", backend.lastAuth)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, "FHIR R4", body["api_version"])
	assert.Equal(t, "Bundle", body["resource_type"])

	// The remote token expires: the relay reports it and drops the cache.
	backend.set(func(b *fakeBackend) {
		b.fhirStatus = http.StatusUnauthorized
		b.fhirBody = `{"issue":[{"code":"expired"}]}`
	})
	rec, body = doRequest(t, handler, "/patients")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Access token expired or invalid", body["error"])

	// With the cache cleared, the next call fails before any upstream call.
	rec, body = doRequest(t, handler, "/patients")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No access token available", body["error"])
}

func TestHandlePatients_UpstreamErrorPassthrough(t *testing.T) {
	handler, application, backend := newTestApp(t)
	application.TokenCache.Set(auth.Token{AccessToken: "tok123", TokenType: "Bearer"})
	backend.set(func(b *fakeBackend) {
		b.fhirStatus = http.StatusForbidden
		b.fhirBody = "insufficient scope"
	})

	rec, body := doRequest(t, handler, "/patients")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FHIR API error", body["error"])
	assert.Equal(t, float64(http.StatusForbidden), body["status"])
	assert.Equal(t, "insufficient scope", body["detail"])

	// A non-401 rejection keeps the cached token.
	_, ok := application.TokenCache.Get()
	assert.True(t, ok)
}

func TestHandleMetadata(t *testing.T) {
	handler, _, _ := newTestApp(t)

	rec, body := doRequest(t, handler, "/fhir/metadata")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["reachable"])
	assert.Equal(t, "4.0.1", body["fhir_version"])
}

func TestHandleHealth(t *testing.T) {
	handler, application, _ := newTestApp(t)

	rec, body := doRequest(t, handler, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "OAuth2 PKCE", body["auth_flow"])
	assert.Equal(t, "test-tenant", body["tenant_id"])
	assert.Equal(t, false, body["has_active_token"])

	application.TokenCache.Set(auth.Token{AccessToken: "tok123"})
	_, body = doRequest(t, handler, "/health")
	assert.Equal(t, true, body["has_active_token"])
}
