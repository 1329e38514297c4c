package fhir

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fhir-relay/internal/upstream"
)

const patientBundle = `{"resourceType":"Bundle","type":"searchset","total":2,"entry":[{"resource":{"resourceType":"Patient","id":"12724066"}},{"resource":{"resourceType":"Patient","id":"12724067"}}]}`

func TestClient_SearchPatients(t *testing.T) {
	var gotAuth, gotAccept string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/r4/Patient", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")

		w.Header().Set("Content-Type", acceptFHIRJSON)
		w.Write([]byte(patientBundle))
	}))
	defer server.Close()

	client := NewClient(http.DefaultClient, server.URL+"/r4", log.New(io.Discard, "", 0))

	bundle, err := client.SearchPatients(context.Background(), "tok123")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Equal(t, acceptFHIRJSON, gotAccept)
	assert.Equal(t, int64(2), bundle.Total)
	assert.Equal(t, "Bundle", bundle.ResourceType)
	assert.Equal(t, server.URL+"/r4/Patient", bundle.URL)
	assert.JSONEq(t, patientBundle, string(bundle.Raw))
}

func TestClient_SearchPatientsRejected(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
	}{
		{name: "expired token", statusCode: http.StatusUnauthorized, body: `{"issue":[{"code":"expired"}]}`},
		{name: "forbidden", statusCode: http.StatusForbidden, body: "insufficient scope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(http.DefaultClient, server.URL, log.New(io.Discard, "", 0))

			_, err := client.SearchPatients(context.Background(), "stale")
			require.Error(t, err)

			var upstreamErr *upstream.Error
			require.ErrorAs(t, err, &upstreamErr)
			assert.Equal(t, tt.statusCode, upstreamErr.StatusCode)
			assert.Equal(t, tt.body, upstreamErr.Body)
		})
	}
}

func TestClient_Metadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/metadata", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"), "the capability statement is public")

		w.Header().Set("Content-Type", acceptFHIRJSON)
		w.Write([]byte(`{"resourceType":"CapabilityStatement","fhirVersion":"4.0.1","name":"Cerner","description":"Oracle Health FHIR server"}`))
	}))
	defer server.Close()

	client := NewClient(http.DefaultClient, server.URL, log.New(io.Discard, "", 0))

	probe := client.Metadata(context.Background())
	assert.True(t, probe.Reachable)
	assert.Equal(t, http.StatusOK, probe.StatusCode)
	assert.Equal(t, "4.0.1", probe.FHIRVersion)
	assert.Equal(t, "Cerner", probe.ServerName)
	assert.Equal(t, "Oracle Health FHIR server", probe.ServerDescription)
	assert.Empty(t, probe.ErrorText)
}

func TestClient_MetadataUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(http.DefaultClient, server.URL, log.New(io.Discard, "", 0))

	probe := client.Metadata(context.Background())
	assert.False(t, probe.Reachable)
	assert.NotEmpty(t, probe.ErrorText)
}
