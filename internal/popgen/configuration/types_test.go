package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/popgen/internal/common"
	commonconfig "github.com/G-Research/popgen/internal/common/config"
)

const testConfig = `
httpPort: 8080
metricsPort: 9000
shutdownTimeout: 10s
allowedProperties:
  - exporter.years_of_history
artifacts:
  directory: /tmp/popgen/artifacts
  workDirectory: /tmp/popgen/work
  maxAge: 24h
  sweepInterval: 1m
  index:
    type: SQLite
    databasePath: /tmp/popgen/index.db
requests:
  bufferCapacity: 500
  pausePollInterval: 250ms
`

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testConfig), 0o644))

	var config PopgenConfiguration
	_, err := common.ReadConfig(&config, dir, nil, nil, commonconfig.CustomHooks...)
	require.NoError(t, err)

	assert.Equal(t, uint16(8080), config.HttpPort)
	assert.Equal(t, 10*time.Second, config.ShutdownTimeout)
	assert.Equal(t, []string{"exporter.years_of_history"}, config.AllowedProperties)
	assert.Equal(t, 24*time.Hour, config.Artifacts.MaxAge)
	assert.Equal(t, IndexTypeSQLite, config.Artifacts.Index.Type)
	assert.Equal(t, 500, config.Requests.BufferCapacity)
	assert.Equal(t, 250*time.Millisecond, config.Requests.PausePollInterval)
	assert.NoError(t, commonconfig.Validate(config))
}

func TestReadConfig_Override(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testConfig), 0o644))
	override := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(override, []byte("httpPort: 8081\nartifacts:\n  index:\n    type: memory\n"), 0o644))

	var config PopgenConfiguration
	_, err := common.ReadConfig(&config, dir, []string{override}, nil, commonconfig.CustomHooks...)
	require.NoError(t, err)
	assert.Equal(t, uint16(8081), config.HttpPort)
	assert.Equal(t, IndexTypeMemory, config.Artifacts.Index.Type)
	assert.Equal(t, "/tmp/popgen/artifacts", config.Artifacts.Directory)
}

func TestIndexType_UnmarshalText(t *testing.T) {
	var it IndexType
	require.NoError(t, it.UnmarshalText([]byte("")))
	assert.Equal(t, IndexTypeMemory, it)
	assert.Error(t, it.UnmarshalText([]byte("postgres")))
}

func TestReadConfig_Flags(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testConfig), 0o644))
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Uint16("httpPort", 0, "")
	flags.Uint16("metricsPort", 0, "")
	require.NoError(t, flags.Parse([]string{"--httpPort=9090"}))

	var config PopgenConfiguration
	_, err := common.ReadConfig(&config, dir, nil, flags, commonconfig.CustomHooks...)
	require.NoError(t, err)
	assert.Equal(t, uint16(9090), config.HttpPort)
	assert.Equal(t, uint16(9000), config.MetricsPort)
}
