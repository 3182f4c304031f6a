package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/engine"
	"github.com/cortexmem/cortex/internal/errs"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	cfg := &config.Config{DBPath: ":memory:", Project: "proj-a"}
	eng, err := engine.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return NewServer(eng), eng
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTPStampsRequestID(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/project", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandleAddAndGetMemory(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/memories", map[string]any{
		"title": "note", "content": "some interesting content about databases",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := int64(created["id"].(float64))

	rec2 := doJSON(t, s, http.MethodGet, "/api/memories/"+itoa(id), nil)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestHandleGetMemoryMissingReturnsNotFound(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/memories/99999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAddMemoryRejectsEmptyTitle(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/memories", map[string]any{
		"title": "", "content": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDeleteMemory(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/memories", map[string]any{
		"title": "note", "content": "delete me please",
	})
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := int64(created["id"].(float64))

	del := doJSON(t, s, http.MethodDelete, "/api/memories/"+itoa(id), nil)
	assert.Equal(t, http.StatusNoContent, del.Code)

	get := doJSON(t, s, http.MethodGet, "/api/memories/"+itoa(id), nil)
	assert.Equal(t, http.StatusNotFound, get.Code)
}

func TestHandleSearchReturnsResults(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/memories", map[string]any{
		"title": "Go routines", "content": "goroutines channels and select statements",
	})

	rec := doJSON(t, s, http.MethodGet, "/api/search?q=goroutines", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	results, ok := body["results"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, results)
}

func TestHandleStats(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePauseAndResume(t *testing.T) {
	t.Parallel()
	s, eng := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/control/pause", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, eng.Control.Paused())

	rec = doJSON(t, s, http.MethodPost, "/api/control/resume", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, eng.Control.Paused())
}

func TestHandleSetAndGetProject(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/project", map[string]string{"project": "new-proj"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/project", nil)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "new-proj", body["project"])
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["paused"])
}

func TestHandleConsolidateRunsMediumTick(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/api/consolidate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleConsolidateRefusedWhilePaused(t *testing.T) {
	t.Parallel()
	s, eng := newTestServer(t)
	eng.Control.Pause()

	rec := doJSON(t, s, http.MethodPost, "/api/consolidate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFromErrorMapping(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusBadRequest, statusFromError(errs.New(errs.Validation, "x")))
	assert.Equal(t, http.StatusNotFound, statusFromError(errs.New(errs.NotFound, "x")))
	assert.Equal(t, http.StatusServiceUnavailable, statusFromError(errs.New(errs.Paused, "x")))
	assert.Equal(t, http.StatusInsufficientStorage, statusFromError(errs.New(errs.OverCapacity, "x")))
	assert.Equal(t, http.StatusConflict, statusFromError(errs.New(errs.Contention, "x")))
	assert.Equal(t, http.StatusAccepted, statusFromError(errs.New(errs.Degraded, "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFromError(errs.New(errs.Internal, "x")))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	buf := make([]byte, 0, 20)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}
