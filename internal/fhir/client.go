// Package fhir contains the clients for the remote FHIR R4 servers: an
// authenticated client for the protected tenant endpoint and a read-only
// client for the open sandbox.
package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/tidwall/gjson"

	"fhir-relay/internal/metrics"
	"fhir-relay/internal/upstream"
)

const acceptFHIRJSON = "application/fhir+json"

// Client talks to the protected FHIR R4 endpoint using a bearer token.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *log.Logger
}

// NewClient creates a Client for the given resource server base URL.
func NewClient(httpClient *http.Client, baseURL string, logger *log.Logger) *Client {
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Bundle is a searchset response with its raw body preserved for
// passthrough.
type Bundle struct {
	Total        int64
	ResourceType string
	URL          string
	Raw          json.RawMessage
}

// SearchPatients fetches the Patient searchset with the given bearer token.
// A non-2xx answer surfaces as *upstream.Error; a remote 401 is the
// caller's signal to discard the cached token.
func (c *Client) SearchPatients(ctx context.Context, bearer string) (*Bundle, error) {
	reqURL := c.baseURL + "/Patient"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building patient request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", acceptFHIRJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling FHIR server: %w", err)
	}
	metrics.UpstreamRequests.WithLabelValues("patient_search", strconv.Itoa(resp.StatusCode)).Inc()

	body, err := upstream.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("fetching patients: %w", err)
	}

	parsed := gjson.ParseBytes(body)
	return &Bundle{
		Total:        parsed.Get("total").Int(),
		ResourceType: parsed.Get("resourceType").String(),
		URL:          reqURL,
		Raw:          json.RawMessage(body),
	}, nil
}

// MetadataProbe describes the outcome of a capability-statement fetch.
// Transport failures are reported in-band rather than as errors, since the
// probe exists to answer "is the endpoint reachable".
type MetadataProbe struct {
	URL               string `json:"url"`
	Reachable         bool   `json:"reachable"`
	StatusCode        int    `json:"status_code,omitempty"`
	FHIRVersion       string `json:"fhir_version,omitempty"`
	ServerName        string `json:"server_name,omitempty"`
	ServerDescription string `json:"server_description,omitempty"`
	ErrorText         string `json:"error_text,omitempty"`
}

// Metadata probes the unauthenticated /metadata endpoint.
func (c *Client) Metadata(ctx context.Context) *MetadataProbe {
	reqURL := c.baseURL + "/metadata"
	probe := &MetadataProbe{URL: reqURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		probe.ErrorText = err.Error()
		return probe
	}
	req.Header.Set("Accept", acceptFHIRJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		probe.ErrorText = err.Error()
		return probe
	}
	metrics.UpstreamRequests.WithLabelValues("metadata", strconv.Itoa(resp.StatusCode)).Inc()

	probe.Reachable = true
	probe.StatusCode = resp.StatusCode

	body, err := upstream.ReadBody(resp)
	if err != nil {
		probe.ErrorText = err.Error()
		return probe
	}

	parsed := gjson.ParseBytes(body)
	probe.FHIRVersion = parsed.Get("fhirVersion").String()
	probe.ServerName = parsed.Get("name").String()
	probe.ServerDescription = parsed.Get("description").String()
	return probe
}
