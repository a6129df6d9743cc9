package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threatflux/scangate/internal/models"
)

const sampleReport = `{
	"report": {
		"registry": "https://registry.hub.docker.com/",
		"repository": "library/alpine",
		"tag": "latest",
		"image_id": "sha256:0123",
		"digest": "sha256:4567",
		"base_os": "alpine:3.18",
		"vulnerabilities": [
			{"name": "CVE-2023-0001", "score": 7.5, "severity": "HIGH", "package_name": "openssl", "package_version": "3.0.0", "fixed_version": "3.0.1", "link": "https://nvd.nist.gov/vuln/detail/CVE-2023-0001"},
			{"name": "CVE-2023-0002", "score": 5.0, "severity": "medium", "package_name": "zlib", "package_version": "1.2.11"},
			{"name": "CVE-2023-0003", "score": 1.0, "severity": "Negligible", "package_name": "musl", "package_version": "1.2.3"}
		]
	}
}`

func TestScanRepository(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, APIPathScanRepository, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "tok", r.Header.Get(AuthTokenHeader))

		var body map[string]map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		req := body["request"]
		assert.Equal(t, "https://registry.hub.docker.com/", req["registry"])
		assert.Equal(t, "user", req["username"])
		assert.Equal(t, "pass", req["password"])
		assert.Equal(t, "library/alpine", req["repository"])
		assert.Equal(t, "latest", req["tag"])
		assert.Equal(t, true, req["scan_layers"])

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sampleReport))
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	require.NoError(t, err)
	client.token = "tok"

	report, err := client.ScanRepository(context.Background(), models.RegistryAuth{
		URL:      "https://registry.hub.docker.com/",
		Username: "user",
		Password: "pass",
	}, "library/alpine", "latest", true)
	require.NoError(t, err)

	assert.Equal(t, "library/alpine:latest", report.Image())
	assert.Equal(t, "alpine:3.18", report.BaseOS)
	require.Len(t, report.Vulnerabilities, 3)
	assert.Equal(t, models.SeverityHigh, report.Vulnerabilities[0].Severity)
	assert.Equal(t, models.SeverityMedium, report.Vulnerabilities[1].Severity)
	assert.Equal(t, models.Severity("Negligible"), report.Vulnerabilities[2].Severity)
	assert.Equal(t, models.SeverityUncategorized, report.Vulnerabilities[2].Severity.Level())
}

func TestScanLocalRepositoryOmitsRegistryFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		req := body["request"]
		assert.NotContains(t, req, "registry")
		assert.NotContains(t, req, "username")
		assert.NotContains(t, req, "password")
		assert.NotContains(t, req, "scan_layers")
		assert.Equal(t, "myapp", req["repository"])

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"report":{"repository":"myapp","tag":"1.0","vulnerabilities":[]}}`))
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	require.NoError(t, err)
	client.token = "tok"

	report, err := client.ScanLocalRepository(context.Background(), "myapp", "1.0", false)
	require.NoError(t, err)
	assert.Empty(t, report.Vulnerabilities)
}

func TestScanNotModified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	require.NoError(t, err)
	client.token = "tok"

	_, err = client.ScanLocalRepository(context.Background(), "myapp", "1.0", false)
	require.Error(t, err)
	assert.True(t, IsNotModified(err))
}

func TestScanWithoutReportBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	require.NoError(t, err)
	client.token = "tok"

	report, err := client.ScanLocalRepository(context.Background(), "myapp", "1.0", false)
	require.NoError(t, err)
	assert.Equal(t, "myapp:1.0", report.Image())
	assert.Empty(t, report.Vulnerabilities)
}

func TestScanRequiresSession(t *testing.T) {
	client, err := NewClient()
	require.NoError(t, err)

	_, err = client.ScanLocalRepository(context.Background(), "myapp", "1.0", false)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	client.token = "tok"
	_, err = client.ScanLocalRepository(context.Background(), "", "1.0", false)
	assert.Error(t, err)
	_, err = client.ScanRepository(context.Background(), models.RegistryAuth{}, "myapp", "1.0", false)
	assert.Error(t, err)
}
