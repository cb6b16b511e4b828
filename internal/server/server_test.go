package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stegverse/stegagents/internal/config"
	"github.com/stegverse/stegagents/internal/dispatch"
	"github.com/stegverse/stegagents/internal/llm"
	"github.com/stegverse/stegagents/internal/output"
	"github.com/stegverse/stegagents/pkg/storage"
)

const testRegistry = `
agents:
  - name: X
    schedule: always
    prompt_template: "Hello {topic}"
  - name: Weekly
    schedule: "0 9 * * 1"
    prompt_template: "weekly"
`

func newTestDispatcher(t *testing.T, doc string) (*dispatch.Dispatcher, string, string) {
	t.Helper()
	dir := t.TempDir()
	regPath := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(regPath, []byte(doc), 0o644))
	outDir := filepath.Join(dir, "out")
	store, err := storage.NewLocalStorage(outDir)
	require.NoError(t, err)

	gen := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return "generated for " + req.Prompt, nil
	})
	return dispatch.New(regPath, gen, output.NewWriter(store)), regPath, outDir
}

func newTestServer(t *testing.T, apiKey string) (*httptest.Server, string, string) {
	t.Helper()
	d, regPath, outDir := newTestDispatcher(t, testRegistry)
	s := NewServer(&config.ServerEnv{APIKey: apiKey}, d)
	s.now = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, regPath, outDir
}

func TestServer_Run(t *testing.T) {
	srv, _, outDir := newTestServer(t, "")

	body := `{"at":"2024-01-01T00:00:00Z","vars":{"topic":"steg"},"only":["X"]}`
	resp, err := http.Post(srv.URL+"/api/run", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report dispatch.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	require.Len(t, report.Results, 2)
	assert.Equal(t, dispatch.StatusWritten, report.Results[0].Status)
	assert.Equal(t, dispatch.StatusSkipped, report.Results[1].Status)

	data, err := os.ReadFile(filepath.Join(outDir, "X", "2024-01-01T000000Z.md"))
	require.NoError(t, err)
	assert.Equal(t, "generated for Hello steg\n", string(data))
}

func TestServer_RunConfigError(t *testing.T) {
	srv, regPath, _ := newTestServer(t, "")
	require.NoError(t, os.WriteFile(regPath, []byte("agents: []"), 0o644))

	resp, err := http.Post(srv.URL+"/api/run", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid_argument", body["code"])
	assert.Contains(t, body["message"], "no agents defined")
}

func TestServer_RunInvalidBody(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	resp, err := http.Post(srv.URL+"/api/run", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Agents(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body agentsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Agents, 2)
	assert.True(t, body.Agents[0].Due)
	assert.True(t, body.Agents[1].Due, "monday 09:00 is inside the window")
}

func TestServer_APIKey(t *testing.T) {
	srv, _, _ := newTestServer(t, "secret")

	resp, err := http.Get(srv.URL + "/api/agents")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/agents", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
