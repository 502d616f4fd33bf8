package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/helmcode/agent-fleet/internal/agentclient"
	"github.com/helmcode/agent-fleet/internal/descriptor"
	"github.com/helmcode/agent-fleet/internal/health"
	"github.com/helmcode/agent-fleet/internal/lifecycle"
	"github.com/helmcode/agent-fleet/internal/registry"
	"github.com/helmcode/agent-fleet/internal/runtime"
)

// mockRuntime implements runtime.ContainerRuntime for testing.
type mockRuntime struct {
	mu        sync.Mutex
	buildErr  error
	upErr     error
	downCalls []string
	tailLines []string
}

func (m *mockRuntime) BuildImage(_ context.Context, _ runtime.BuildSpec) error {
	return m.buildErr
}

func (m *mockRuntime) Up(_ context.Context, _ *descriptor.Descriptor) error {
	return m.upErr
}

func (m *mockRuntime) Down(_ context.Context, containerName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downCalls = append(m.downCalls, containerName)
	return nil
}

func (m *mockRuntime) TailLogs(_ context.Context, _ string, _ int) ([]string, error) {
	return m.tailLines, nil
}

func (m *mockRuntime) FollowLogs(_ context.Context, _ string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("log line")), nil
}

// setupTestServer creates a Server with an in-memory registry and mock runtime.
func setupTestServer(t *testing.T) (*Server, *mockRuntime, *registry.Memory) {
	t.Helper()
	store := registry.NewMemory()
	mock := &mockRuntime{}
	monitor := health.New(health.Options{
		MaxAttempts:  3,
		Interval:     time.Millisecond,
		ProbeTimeout: 200 * time.Millisecond,
	})
	ctrl := lifecycle.New(store, mock, monitor, agentclient.New(time.Second), nil, lifecycle.Config{
		DataDir:      t.TempDir(),
		BuildContext: "./runtime",
	})
	return NewServer(ctrl, nil), mock, store
}

// serveAgent answers the health contract on the agent's derived port.
func serveAgent(t *testing.T, agentID string) {
	t.Helper()
	addr := fmt.Sprintf("127.0.0.1:%d", descriptor.DerivePort(agentID))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("listening on derived port %s: %v", addr, err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
}

// doRequest performs an HTTP request against the Fiber app and returns the response.
func doRequest(srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var bodyReader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")

	resp, _ := srv.App.Test(req, -1)

	rec := httptest.NewRecorder()
	rec.Code = resp.StatusCode
	respBody, _ := io.ReadAll(resp.Body)
	rec.Body = bytes.NewBuffer(respBody)
	resp.Body.Close()
	return rec
}

// parseJSON unmarshals the response body into the target.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse response JSON: %v\nbody: %s", err, rec.Body.String())
	}
}

// --- Lifecycle ---

func TestDeployAgent(t *testing.T) {
	srv, _, _ := setupTestServer(t)
	serveAgent(t, "research-1")

	rec := doRequest(srv, "POST", "/api/agents/research-1/deploy", DeployRequest{
		Name:    "research",
		Modules: []string{"news"},
	})
	if rec.Code != 200 {
		t.Fatalf("status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	var res lifecycle.Result
	parseJSON(t, rec, &res)
	if !res.Success {
		t.Fatalf("deploy failed: %s", res.Error)
	}
	if res.URL != descriptor.AgentURL("research-1") {
		t.Errorf("url: got %q, want %q", res.URL, descriptor.AgentURL("research-1"))
	}

	// Registry now exposes the agent.
	rec = doRequest(srv, "GET", "/api/agents/research-1", nil)
	if rec.Code != 200 {
		t.Fatalf("get after deploy: got %d", rec.Code)
	}
	var stored registry.Record
	parseJSON(t, rec, &stored)
	if stored.Status != registry.StatusRunning {
		t.Errorf("status: got %q, want running", stored.Status)
	}
}

func TestDeployAgent_InvalidID(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	rec := doRequest(srv, "POST", "/api/agents/bad%2Fid/deploy", DeployRequest{Name: "x"})
	if rec.Code != 400 {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}

	// Uppercase ids are rejected: container names and data directories are
	// derived from the lowercased id, so "A1" would collide with "a1".
	rec = doRequest(srv, "POST", "/api/agents/A1/deploy", DeployRequest{Name: "x"})
	if rec.Code != 400 {
		t.Fatalf("uppercase id: got %d, want 400", rec.Code)
	}
	rec = doRequest(srv, "POST", "/api/agents/A1/start", nil)
	if rec.Code != 400 {
		t.Fatalf("uppercase id on start: got %d, want 400", rec.Code)
	}
}

func TestDeployAgent_BuildFailure(t *testing.T) {
	srv, mock, _ := setupTestServer(t)
	mock.buildErr = errors.New("no Dockerfile")

	rec := doRequest(srv, "POST", "/api/agents/a1/deploy", DeployRequest{Name: "a1"})
	if rec.Code != 500 {
		t.Fatalf("status: got %d, want 500", rec.Code)
	}

	var res lifecycle.Result
	parseJSON(t, rec, &res)
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v, want structured failure", res)
	}

	// Failed deploy leaves no registry entry.
	rec = doRequest(srv, "GET", "/api/agents/a1", nil)
	if rec.Code != 404 {
		t.Errorf("get after failed deploy: got %d, want 404", rec.Code)
	}
}

func TestStopAgent_NotFound(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	rec := doRequest(srv, "POST", "/api/agents/ghost/stop", nil)
	if rec.Code != 404 {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
	var res lifecycle.Result
	parseJSON(t, rec, &res)
	if res.Success || res.Error != "Agent not found" {
		t.Errorf("result = %+v", res)
	}
}

func TestStopAgent(t *testing.T) {
	srv, _, store := setupTestServer(t)
	_ = store.Set(context.Background(), &registry.Record{
		AgentID: "a1",
		Status:  registry.StatusRunning,
		URL:     "http://localhost:18042",
	})

	rec := doRequest(srv, "POST", "/api/agents/a1/stop", nil)
	if rec.Code != 200 {
		t.Fatalf("status: got %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	stored, err := store.Get(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != registry.StatusStopped || stored.URL != "" {
		t.Errorf("record after stop: %+v", stored)
	}
}

func TestDeleteAgent_Idempotent(t *testing.T) {
	srv, _, store := setupTestServer(t)
	_ = store.Set(context.Background(), &registry.Record{AgentID: "a1", Status: registry.StatusStopped})

	rec := doRequest(srv, "DELETE", "/api/agents/a1", nil)
	if rec.Code != 200 {
		t.Fatalf("first delete: got %d", rec.Code)
	}
	rec = doRequest(srv, "DELETE", "/api/agents/a1", nil)
	if rec.Code != 200 {
		t.Fatalf("second delete: got %d, want 200", rec.Code)
	}
}

// --- Introspection ---

func TestListAgents(t *testing.T) {
	srv, _, store := setupTestServer(t)
	_ = store.Set(context.Background(), &registry.Record{AgentID: "b", Status: registry.StatusRunning})
	_ = store.Set(context.Background(), &registry.Record{AgentID: "a", Status: registry.StatusStopped})

	rec := doRequest(srv, "GET", "/api/agents/", nil)
	if rec.Code != 200 {
		t.Fatalf("status: got %d", rec.Code)
	}
	var records []registry.Record
	parseJSON(t, rec, &records)
	if len(records) != 2 || records[0].AgentID != "a" {
		t.Errorf("records = %+v, want sorted pair", records)
	}
}

func TestAgentStatus_NotFound(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	rec := doRequest(srv, "GET", "/api/agents/ghost/status", nil)
	if rec.Code != 404 {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
}

func TestAgentStatus_Stopped(t *testing.T) {
	srv, _, store := setupTestServer(t)
	_ = store.Set(context.Background(), &registry.Record{AgentID: "a1", Status: registry.StatusStopped})

	rec := doRequest(srv, "GET", "/api/agents/a1/status", nil)
	if rec.Code != 200 {
		t.Fatalf("status: got %d\nbody: %s", rec.Code, rec.Body.String())
	}
	var res lifecycle.StatusResult
	parseJSON(t, rec, &res)
	if res.Status != registry.StatusStopped || res.Health != "" {
		t.Errorf("result = %+v", res)
	}
}

func TestAgentLogs(t *testing.T) {
	srv, mock, store := setupTestServer(t)
	mock.tailLines = []string{"one", "two"}
	_ = store.Set(context.Background(), &registry.Record{AgentID: "a1", Status: registry.StatusRunning})

	rec := doRequest(srv, "GET", "/api/agents/a1/logs?lines=50", nil)
	if rec.Code != 200 {
		t.Fatalf("status: got %d\nbody: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		AgentID string   `json:"agent_id"`
		Lines   []string `json:"lines"`
	}
	parseJSON(t, rec, &body)
	if len(body.Lines) != 2 {
		t.Errorf("lines = %v", body.Lines)
	}
}

func TestAgentLogs_BadLineCount(t *testing.T) {
	srv, _, store := setupTestServer(t)
	_ = store.Set(context.Background(), &registry.Record{AgentID: "a1", Status: registry.StatusRunning})

	rec := doRequest(srv, "GET", "/api/agents/a1/logs?lines=0", nil)
	if rec.Code != 400 {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}

func TestInteractAgent_Validation(t *testing.T) {
	srv, _, store := setupTestServer(t)
	_ = store.Set(context.Background(), &registry.Record{AgentID: "a1", Status: registry.StatusRunning, URL: "http://localhost:18042"})

	rec := doRequest(srv, "POST", "/api/agents/a1/interact", InteractRequest{})
	if rec.Code != 400 {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}

func TestInteractAgent_NotRunning(t *testing.T) {
	srv, _, store := setupTestServer(t)
	_ = store.Set(context.Background(), &registry.Record{AgentID: "a1", Status: registry.StatusStopped})

	rec := doRequest(srv, "POST", "/api/agents/a1/interact", InteractRequest{Message: "hi"})
	if rec.Code != 502 {
		t.Fatalf("status: got %d, want 502", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	rec := doRequest(srv, "GET", "/health", nil)
	if rec.Code != 200 {
		t.Fatalf("status: got %d", rec.Code)
	}
}

// --- Auth ---

func TestBearerAuth(t *testing.T) {
	store := registry.NewMemory()
	ctrl := lifecycle.New(store, &mockRuntime{}, health.New(health.Options{}), agentclient.New(time.Second), nil, lifecycle.Config{DataDir: t.TempDir()})
	secret := []byte("test-secret")
	srv := NewServer(ctrl, secret)

	// Health stays open.
	rec := doRequest(srv, "GET", "/health", nil)
	if rec.Code != 200 {
		t.Fatalf("unauthenticated health: got %d", rec.Code)
	}

	// API requires a token.
	rec = doRequest(srv, "GET", "/api/agents/", nil)
	if rec.Code != 401 {
		t.Fatalf("unauthenticated list: got %d, want 401", rec.Code)
	}

	token, err := NewTokenVerifier(secret).Generate("tester", time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	req := httptest.NewRequest("GET", "/api/agents/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ := srv.App.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("authenticated list: got %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// Wrong secret is rejected.
	badToken, _ := NewTokenVerifier([]byte("other")).Generate("tester", time.Minute)
	req = httptest.NewRequest("GET", "/api/agents/", nil)
	req.Header.Set("Authorization", "Bearer "+badToken)
	resp, _ = srv.App.Test(req, -1)
	if resp.StatusCode != 401 {
		t.Fatalf("forged token: got %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}
