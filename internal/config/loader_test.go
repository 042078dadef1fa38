package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultRetryConfig(), cfg.Retry)
	assert.Equal(t, DefaultQueueConfig(), cfg.Queue)
	assert.Equal(t, "stub", cfg.Provider.Kind)
}

func TestLoad_PartialFileMergesOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
retry:
  max_attempts: 5
provider:
  kind: grpc
  grpc_address: "localhost:9090"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, DefaultRetryConfig().Timeout, cfg.Retry.Timeout)
	assert.Equal(t, "grpc", cfg.Provider.Kind)
	assert.Equal(t, "localhost:9090", cfg.Provider.GRPCAddress)
	// untouched section keeps its defaults
	assert.Equal(t, DefaultQueueConfig(), cfg.Queue)
}

func TestLoad_EnvExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GENENGINE_DB_HOST", "db.internal")
	yaml := `
store:
  host: "${GENENGINE_DB_HOST}"
  database: "genengine"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Store.Host)
}

func TestLoad_InvalidProviderKindFails(t *testing.T) {
	dir := t.TempDir()
	yaml := `
provider:
  kind: "carrier-pigeon"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("not: [valid"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
