package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsmostafa/pagetree/internal/pipeline"
	"github.com/itsmostafa/pagetree/internal/session"
)

func newTestServer(t *testing.T) (*Server, *session.Store) {
	t.Helper()
	store := session.NewStore(t.TempDir(), 5)
	p := pipeline.New(nil, nil, store, pipeline.Options{}, nil)
	return New(p, nil), store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestListSessions(t *testing.T) {
	srv, store := newTestServer(t)

	rec := get(t, srv, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions":[]}`, rec.Body.String())

	_, err := store.Save(session.New("abc", "doc.pdf").Advance(session.StageParsed, nil))
	require.NoError(t, err)

	rec = get(t, srv, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sessions []pipeline.SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "abc", body.Sessions[0].ID)
	assert.Equal(t, session.StageParsed, body.Sessions[0].Stage)
}

func TestSessionStatus(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.Save(session.New("abc", "doc.pdf").Advance(session.StageParsed, nil))
	require.NoError(t, err)

	rec := get(t, srv, "/api/sessions/abc")
	require.Equal(t, http.StatusOK, rec.Code)
	var report pipeline.StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, pipeline.StatusFound, report.Status)
	assert.Equal(t, "doc.pdf", report.Document)
	assert.NotEmpty(t, report.LastEvents)

	rec = get(t, srv, "/api/sessions/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, pipeline.StatusNotFound, report.Status)

	require.NoError(t, os.MkdirAll(filepath.Join(store.BaseDir(), "bad"), 0o755))
	require.NoError(t, os.WriteFile(store.Path("bad"), []byte("{"), 0o644))
	rec = get(t, srv, "/api/sessions/bad")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type brokenSessions struct{}

func (brokenSessions) Status(string) pipeline.StatusReport { panic("boom") }

func (brokenSessions) ListSessions() ([]pipeline.SessionSummary, error) {
	return nil, errors.New("disk gone")
}

func TestErrorsAndPanics(t *testing.T) {
	srv := New(brokenSessions{}, nil)

	rec := get(t, srv, "/api/sessions")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk gone")

	rec = get(t, srv, "/api/sessions/abc")
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "panics are recovered")
}

func TestReadOnly(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/abc", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
