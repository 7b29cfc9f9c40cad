//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	baseURL = strings.TrimSuffix(getenv("E2E_BASE_URL", "http://localhost:8080/v1"), "/")
	timeout = 30 * time.Second
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func rootURL() string { return strings.TrimSuffix(baseURL, "/v1") }

// requireApp skips the test when the server is not reachable.
func requireApp(t *testing.T, client *http.Client) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	resp, err := client.Get(rootURL() + "/healthz")
	if err != nil {
		t.Skip("App not available; skipping E2E")
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Skipf("App not healthy (%d); skipping E2E", resp.StatusCode)
	}
}

func maybeBasicAuth(req *http.Request) {
	if u := os.Getenv("ADMIN_USERNAME"); u != "" {
		req.SetBasicAuth(u, os.Getenv("ADMIN_PASSWORD"))
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// createSubmission stores a pitch submission and returns its id.
func createSubmission(t *testing.T, client *http.Client, company string) string {
	t.Helper()
	resp, body := doJSON(t, client, http.MethodPost, baseURL+"/submissions", map[string]any{
		"rubricId":    "pitch",
		"source":      "e2e",
		"companyName": company,
		"answers": map[string]string{
			"problem":  "Small clinics lose a day a week to insurance paperwork.",
			"solution": "An assistant that files claims from the visit notes.",
			"market":   "40k independent clinics in the US.",
			"team":     "Two founders from a claims processor.",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create: %#v", body)
	sub, ok := body["submission"].(map[string]any)
	require.True(t, ok, "submission missing: %#v", body)
	id, _ := sub["id"].(string)
	require.NotEmpty(t, id)
	return id
}

// waitForTerminal polls the result endpoint until completed or failed.
func waitForTerminal(t *testing.T, client *http.Client, id string, max time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(max)
	var last map[string]any
	for time.Now().Before(deadline) {
		resp, body := doJSON(t, client, http.MethodGet, baseURL+"/submissions/"+id, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		last = body
		if st, _ := body["status"].(string); st == "completed" || st == "failed" {
			return body
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("submission %s not terminal after %s: %#v", id, max, last)
	return nil
}
