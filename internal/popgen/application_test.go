package popgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/popgen/internal/common/logctx"
	"github.com/G-Research/popgen/internal/common/logging"
	"github.com/G-Research/popgen/internal/popgen/artifact"
	"github.com/G-Research/popgen/internal/popgen/configuration"
	"github.com/G-Research/popgen/internal/popgen/request"
	"github.com/G-Research/popgen/internal/popgen/testfixtures"
)

func testConfig(t *testing.T) *configuration.PopgenConfiguration {
	root := t.TempDir()
	return &configuration.PopgenConfiguration{
		HttpPort:    8080,
		MetricsPort: 9000,
		Artifacts: configuration.ArtifactsConfiguration{
			Directory:     filepath.Join(root, "artifacts"),
			WorkDirectory: filepath.Join(root, "work"),
			MaxAge:        time.Hour,
			SweepInterval: time.Minute,
			Index: configuration.IndexConfiguration{
				Type:         configuration.IndexTypeSQLite,
				DatabasePath: filepath.Join(root, "index.db"),
			},
		},
	}
}

func TestRectifyConfig_AppliesDefaults(t *testing.T) {
	config := testConfig(t)
	config.Requests.BufferCapacity = -4
	require.NoError(t, RectifyConfig(config))

	assert.Equal(t, request.DefaultBufferCapacity, config.Requests.BufferCapacity)
	assert.Equal(t, artifact.DefaultFlushBatch, config.Requests.LogFlushBatch)
	assert.Equal(t, request.DefaultPausePollInterval, config.Requests.PausePollInterval)
	assert.Equal(t, request.DefaultPopulation, config.Requests.DefaultPopulation)
	assert.Equal(t, defaultSubscriberBuffer, config.Stream.SubscriberBuffer)
	assert.Equal(t, defaultShutdownTimeout, config.ShutdownTimeout)
}

func TestRectifyConfig_KeepsValidValues(t *testing.T) {
	config := testConfig(t)
	config.Requests.BufferCapacity = 10
	config.Requests.IdleTimeout = time.Minute
	require.NoError(t, RectifyConfig(config))
	assert.Equal(t, 10, config.Requests.BufferCapacity)
	assert.Equal(t, time.Minute, config.Requests.IdleTimeout)
}

func TestRectifyConfig_Unrecoverable(t *testing.T) {
	config := testConfig(t)
	config.Requests.DefaultPopulation = 50
	config.Requests.MaxPopulation = 10
	assert.Error(t, RectifyConfig(config))

	config = testConfig(t)
	config.Artifacts.Index.DatabasePath = ""
	assert.Error(t, RectifyConfig(config))
}

func TestStartUp_InvalidConfig(t *testing.T) {
	config := testConfig(t)
	config.Artifacts.Directory = ""
	assert.Error(t, New().StartUp(context.Background(), config))
}

func TestBuild_ServesRequests(t *testing.T) {
	config := testConfig(t)
	config.Requests.PausePollInterval = 10 * time.Millisecond
	require.NoError(t, RectifyConfig(config))

	gen := &testfixtures.FakeGenerator{}
	app := &App{Generator: gen}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := app.build(logctx.New(ctx, logging.NullEntry()), config)
	require.NoError(t, err)
	defer s.close()

	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/generate", "application/json", strings.NewReader(`{"population": 3}`))
	require.NoError(t, err)
	var created struct{ Uuid string }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/requests/" + created.Uuid + "/artifact")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	families, err := s.metrics.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["popgen_requests_created_total"], names)
	assert.True(t, names["go_goroutines"])

	result, err := s.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.ArtifactsDeleted)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	assert.NoError(t, s.manager.Shutdown(shutdownCtx))
}
