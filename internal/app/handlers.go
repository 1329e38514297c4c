package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fhir-relay/internal/auth"
	"fhir-relay/internal/metrics"
	"fhir-relay/internal/upstream"
)

//
// Authorization flow handlers
//

// handleRoot points callers at the flow entry points.
func (a *Application) handleRoot(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{
		"service":  "FHIR API relay",
		"auth_url": "/login",
		"health":   "/health",
	})
}

type loginResponse struct {
	AuthURL     string `json:"auth_url"`
	State       string `json:"state"`
	Message     string `json:"message"`
	LaunchType  string `json:"launch_type"`
	FHIRVersion string `json:"fhir_version"`
}

// handleLogin starts the OAuth2 PKCE flow and returns the authorize URL
// for the browser to follow.
func (a *Application) handleLogin(w http.ResponseWriter, r *http.Request) {
	result, err := a.Flow.Start()
	if err != nil {
		if errors.Is(err, auth.ErrClientIDMissing) {
			a.writeError(w, http.StatusInternalServerError, "client ID not configured",
				"Set ORACLE_CLIENT_ID in the environment.")
			return
		}
		a.Logger.Printf("starting authorization flow: %v", err)
		a.writeError(w, http.StatusInternalServerError, "failed to start authorization flow", "")
		return
	}

	metrics.AuthFlowsStarted.Inc()
	a.writeJSON(w, http.StatusOK, loginResponse{
		AuthURL:     result.AuthURL,
		State:       result.State,
		Message:     "Visit the auth_url to authorize the application",
		LaunchType:  "Standalone",
		FHIRVersion: "R4",
	})
}

type callbackResponse struct {
	Message    string `json:"message"`
	TokenType  string `json:"token_type"`
	ExpiresIn  int64  `json:"expires_in"`
	Scope      string `json:"scope"`
	Patient    string `json:"patient,omitempty"`
	RedirectTo string `json:"redirect_to"`
}

// handleCallback finishes the flow. The success body carries token
// metadata only; the raw token never reaches the browser.
func (a *Application) handleCallback(w http.ResponseWriter, r *http.Request) {
	token, err := a.Flow.Finish(r.Context(), r.URL.Query())
	if err != nil {
		a.writeCallbackError(w, err)
		return
	}

	metrics.TokenExchanges.WithLabelValues("success").Inc()
	a.writeJSON(w, http.StatusOK, callbackResponse{
		Message:    "Authorization successful! You can now fetch patient data.",
		TokenType:  token.TokenType,
		ExpiresIn:  token.ExpiresIn,
		Scope:      token.Scope,
		Patient:    token.Patient,
		RedirectTo: "/patients",
	})
}

func (a *Application) writeCallbackError(w http.ResponseWriter, err error) {
	var cbErr *auth.CallbackError
	switch {
	case errors.As(err, &cbErr):
		if cbErr.LaunchContextRequired {
			a.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "Launch Context Required",
				"message": "This app requires EHR launch context. Configure the registration for standalone launch.",
				"details": map[string]string{
					"error_code":        cbErr.Code,
					"error_description": cbErr.Description,
					"error_uri":         cbErr.URI,
					"solution":          "In the developer portal, change the app launch type to 'Standalone' or remove the 'launch' scope",
				},
			})
			return
		}
		a.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "Authorization Failed",
			"error_code":        cbErr.Code,
			"error_description": cbErr.Description,
			"error_uri":         cbErr.URI,
		})
	case errors.Is(err, auth.ErrMissingCode):
		a.writeError(w, http.StatusBadRequest, "Missing authorization code",
			"No authorization code received from the authorization server")
	case errors.Is(err, auth.ErrInvalidState):
		a.writeError(w, http.StatusBadRequest, "Invalid state parameter",
			"State parameter missing or invalid")
	default:
		metrics.TokenExchanges.WithLabelValues("failure").Inc()
		a.Logger.Printf("token exchange failed: %v", err)
		a.writeError(w, http.StatusInternalServerError, "Token exchange failed", err.Error())
	}
}

//
// Resource handlers
//

type patientsResponse struct {
	Message      string          `json:"message"`
	APIVersion   string          `json:"api_version"`
	Total        int64           `json:"total"`
	ResourceType string          `json:"resource_type"`
	RequestURL   string          `json:"request_url"`
	Response     json.RawMessage `json:"response"`
}

// handlePatients fetches patients from the protected FHIR endpoint using
// the cached token. A remote 401 invalidates the cache so the next call
// tells the user to re-authorize.
func (a *Application) handlePatients(w http.ResponseWriter, r *http.Request) {
	token, ok := a.TokenCache.Get()
	if !ok {
		a.writeError(w, http.StatusUnauthorized, "No access token available",
			"Please complete the authorization flow first by visiting /login")
		return
	}

	bundle, err := a.FHIR.SearchPatients(r.Context(), token.AccessToken)
	if err != nil {
		var ue *upstream.Error
		if errors.As(err, &ue) {
			if ue.StatusCode == http.StatusUnauthorized {
				a.TokenCache.Clear()
				a.writeError(w, http.StatusUnauthorized, "Access token expired or invalid",
					"Please re-authorize via /login")
				return
			}
			a.writeJSON(w, ue.StatusCode, map[string]any{
				"error":  "FHIR API error",
				"status": ue.StatusCode,
				"detail": ue.Body,
			})
			return
		}
		a.Logger.Printf("fetching patients: %v", err)
		a.writeError(w, http.StatusInternalServerError, "Failed to fetch patients", err.Error())
		return
	}

	a.writeJSON(w, http.StatusOK, patientsResponse{
		Message:      "Successfully fetched patients",
		APIVersion:   "FHIR R4",
		Total:        bundle.Total,
		ResourceType: bundle.ResourceType,
		RequestURL:   bundle.URL,
		Response:     bundle.Raw,
	})
}

// handleMetadata probes the FHIR capability statement with a short budget.
func (a *Application) handleMetadata(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	a.writeJSON(w, http.StatusOK, a.FHIR.Metadata(ctx))
}

//
// Health
//

type healthResponse struct {
	Status         string            `json:"status"`
	Service        string            `json:"service"`
	AuthFlow       string            `json:"auth_flow"`
	ClientID       string            `json:"client_id"`
	TenantID       string            `json:"tenant_id"`
	RedirectURI    string            `json:"redirect_uri"`
	Endpoints      map[string]string `json:"endpoints"`
	HasActiveToken bool              `json:"has_active_token"`
}

func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, hasToken := a.TokenCache.Get()
	a.writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		Service:     "FHIR API relay",
		AuthFlow:    "OAuth2 PKCE",
		ClientID:    a.Config.ClientID,
		TenantID:    a.Config.TenantID,
		RedirectURI: a.Config.RedirectURI,
		Endpoints: map[string]string{
			"auth_url":      a.Config.AuthorizeURL(),
			"token_url":     a.Config.TokenURL(),
			"fhir_base_url": a.Config.FHIRBaseURL(),
		},
		HasActiveToken: hasToken,
	})
}
