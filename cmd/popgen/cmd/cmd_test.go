package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testId = "6f1c2a3b-4d5e-4f60-8a7b-9c0d1e2f3a4b"

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func fakeServer(t *testing.T) (*httptest.Server, *callLog) {
	calls := &callLog{}
	var artifactPolls int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls.add("generate " + string(body))
		_, _ = w.Write([]byte(`{"uuid":"` + testId + `","configuration":{}}`))
	})
	mux.HandleFunc("GET /requests/{id}/artifact", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&artifactPolls, 1) == 1 {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		_, _ = w.Write([]byte("PK"))
	})
	mux.HandleFunc("GET /requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"uuid":"` + r.PathValue("id") + `","state":"Paused"}`))
	})
	mux.HandleFunc("POST /requests/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
		calls.add(r.PathValue("action") + " " + r.PathValue("id"))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, calls
}

func execute(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	root := RootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--popgenUrl", srv.URL}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestSubmit(t *testing.T) {
	srv, calls := fakeServer(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "configuration.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"population": 5}`), 0o644))

	out, err := execute(t, srv, "submit", configPath, "-o", dir, "--poll-interval", "1ms")
	require.NoError(t, err)
	assert.Equal(t, testId, strings.TrimSpace(out))
	assert.Equal(t, []string{`generate {"population": 5}`}, calls.get())

	data, err := os.ReadFile(filepath.Join(dir, testId+"-default.zip"))
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data))
}

func TestSubmit_InvalidConfiguration(t *testing.T) {
	srv, calls := fakeServer(t)
	configPath := filepath.Join(t.TempDir(), "configuration.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{population`), 0o644))

	_, err := execute(t, srv, "submit", configPath)
	assert.Error(t, err)
	assert.Empty(t, calls.get())
}

func TestStatusAndTransitions(t *testing.T) {
	srv, calls := fakeServer(t)

	out, err := execute(t, srv, "status", testId)
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "Paused"`)

	_, err = execute(t, srv, "resume", testId)
	require.NoError(t, err)
	_, err = execute(t, srv, "stop", testId)
	require.NoError(t, err)
	assert.Equal(t, []string{"resume " + testId, "stop " + testId}, calls.get())
}
