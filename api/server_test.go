package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-abc/adapters/storage"
	"hospital-abc/core/engine"
)

func newServer(t *testing.T) *Server {
	t.Helper()
	return NewServer("test", storage.NewMemoryStore(), engine.DefaultOptions(), nil)
}

func scenarioRequest(t *testing.T, mutate func(*RunRequest)) []byte {
	t.Helper()
	src, err := os.ReadFile("../core/scenario/testdata/hospital.hcl")
	require.NoError(t, err)

	req := RunRequest{Scenario: ScenarioSource{Filename: "hospital.hcl", Content: string(src)}}
	if mutate != nil {
		mutate(&req)
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return body
}

func do(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewReader(body)))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthAndVersion(t *testing.T) {
	s := newServer(t)

	rec := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]any](t, rec)["status"])

	rec = do(t, s, http.MethodGet, "/version", nil)
	assert.Equal(t, "test", decode[map[string]string](t, rec)["version"])
}

func TestRunLifecycle(t *testing.T) {
	s := newServer(t)

	rec := do(t, s, http.MethodPost, "/runs", scenarioRequest(t, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Saved  bool `json:"saved"`
		Report struct {
			State struct {
				RunID string `json:"run_id"`
			} `json:"state"`
			Metadata struct {
				Outcome string `json:"outcome"`
			} `json:"metadata"`
			Totals struct {
				Cost string `json:"cost"`
			} `json:"totals"`
		} `json:"report"`
		Violations []any `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Saved)
	assert.Equal(t, "completed", resp.Report.Metadata.Outcome)
	assert.NotEqual(t, "0", resp.Report.Totals.Cost)
	assert.Empty(t, resp.Violations)
	runID := resp.Report.State.RunID
	require.NotEmpty(t, runID)

	list := decode[RunListResponse](t, do(t, s, http.MethodGet, "/runs?scenario=annual-2026", nil))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, runID, list.Runs[0].ID)

	rec = do(t, s, http.MethodGet, "/runs/"+runID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/runs/"+runID+"/explain/pc4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pc4", decode[map[string]any](t, rec)["entity_id"])

	rec = do(t, s, http.MethodGet, "/compare?old="+runID+"&new="+runID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["fingerprint_changed"])

	rec = do(t, s, http.MethodDelete, "/runs/"+runID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/runs/"+runID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunWithoutSave(t *testing.T) {
	s := newServer(t)
	no := false

	rec := do(t, s, http.MethodPost, "/runs", scenarioRequest(t, func(r *RunRequest) {
		r.Save = &no
		r.Stages = []string{"rtr", "RTA"}
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["saved"])

	list := decode[RunListResponse](t, do(t, s, http.MethodGet, "/runs", nil))
	assert.Zero(t, list.Count)
}

func TestRunRejectedByDependencies(t *testing.T) {
	s := newServer(t)

	rec := do(t, s, http.MethodPost, "/runs", scenarioRequest(t, func(r *RunRequest) {
		r.Stages = []string{"rta"}
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRunBadRequests(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name string
		body []byte
		code string
	}{
		{"malformed json", []byte("{"), "INVALID_JSON"},
		{"missing content", []byte(`{"scenario":{"filename":"a.hcl"}}`), "VALIDATION_ERROR"},
		{"unknown stage", scenarioRequest(t, func(r *RunRequest) { r.Stages = []string{"abc"} }), "VALIDATION_ERROR"},
		{"bad syntax", []byte(`{"scenario":{"filename":"a.hcl","content":"stage {"}}`), "VALIDATION_ERROR"},
		{"bad extension", []byte(`{"scenario":{"filename":"a.yaml","content":"x: 1"}}`), "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp struct {
				Error ErrorDetail `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	s := newServer(t)

	rec := do(t, s, http.MethodPost, "/validate", scenarioRequest(t, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, true, resp["valid"])

	rec = do(t, s, http.MethodPost, "/validate", scenarioRequest(t, func(r *RunRequest) {
		r.Stages = []string{"ata2"}
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["valid"])
}

func TestListAndCompareQueryErrors(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/runs?limit=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/compare?old=a", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/compare?old=a&new=b", nil).Code)
}
