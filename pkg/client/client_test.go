package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testId = "6f1c2a3b-4d5e-4f60-8a7b-9c0d1e2f3a4b"

func newTestClient(t *testing.T, handler http.Handler) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&ApiConnectionDetails{PopgenUrl: srv.URL + "/"})
}

func TestGenerate(t *testing.T) {
	var body []byte
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"uuid":"` + testId + `","configuration":{"seed":42}}`))
	}))

	created, err := client.Generate(context.Background(), json.RawMessage(`{"population":5}`))
	require.NoError(t, err)
	assert.Equal(t, testId, created.Uuid)
	assert.JSONEq(t, `{"seed":42}`, string(created.Configuration))
	assert.JSONEq(t, `{"population":5}`, string(body))
}

func TestTransition_Error(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/requests/"+testId+"/pause", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"request has not started yet"}`))
	}))

	err := client.Pause(context.Background(), testId)
	var apiErr *ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "request has not started yet", apiErr.Message)
	assert.False(t, IsPending(err))
}

func TestStatusAndResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/requests/"+testId, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"uuid":"` + testId + `","state":"Running","produced":2,"population":5}`))
	})
	mux.HandleFunc("/requests/"+testId+"/results", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"n":1},{"n":2}]`))
	})
	client := newTestClient(t, mux)

	status, err := client.Status(context.Background(), testId)
	require.NoError(t, err)
	assert.Equal(t, "Running", status.State)
	assert.Equal(t, 2, status.Produced)

	records, err := client.PollResults(context.Background(), testId)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"n":2}`, string(records[1]))
}

func TestWaitForArtifact(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "csv", r.URL.Query().Get("kind"))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"error":"not ready"}`))
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write([]byte("PK"))
	}))

	data, err := client.WaitForArtifact(context.Background(), testId, "csv", time.Millisecond, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), data)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWaitForArtifact_StopsOnOtherErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.WaitForArtifact(context.Background(), testId, "", time.Millisecond, 10)
	var apiErr *ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWaitForArtifact_GivesUp(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	_, err := client.WaitForArtifact(context.Background(), testId, "", time.Millisecond, 3)
	assert.True(t, IsPending(err))
}
