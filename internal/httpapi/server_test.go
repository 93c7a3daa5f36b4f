package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/highbeam/teamd/internal/store"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	st, err := store.New(t.TempDir(), time.Now)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(st.Close)
	const token = "test-token"
	s := NewServer(st, Options{Token: token})
	return s, token
}

func doRequest(s *Server, method, path string, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzBypassesAuth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMissingAuthIsUnauthorized(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/v1/teams", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWrongMethodOnRightPathIs404(t *testing.T) {
	s, token := newTestServer(t)
	rec := doRequest(s, http.MethodDelete, "/v1/teams", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	s, token := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/v1/nope", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateAndClaimTaskRoundTrip(t *testing.T) {
	s, token := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/v1/teams", token, map[string]any{"id": "team-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create team status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodPost, "/v1/tasks", token, map[string]any{
		"teamId": "team-1",
		"title":  "ship it",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Task struct {
			ID string `json:"id"`
		} `json:"task"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doRequest(s, http.MethodPost, "/v1/tasks/"+created.Task.ID+"/claim", token, map[string]any{
		"teamId":  "team-1",
		"agentId": "worker_a",
		"ttlMs":   60000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCanWriteRoute(t *testing.T) {
	s, token := newTestServer(t)
	doRequest(s, http.MethodPost, "/v1/teams", token, map[string]any{"id": "team-1"})

	rec := doRequest(s, http.MethodGet, "/v1/can-write?teamId=team-1&agentId=worker_a&path=src/file.go", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var decoded struct {
		Allow  bool   `json:"allow"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Allow {
		t.Fatal("expected allow=false with no lease")
	}
}
