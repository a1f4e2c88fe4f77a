package jobs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfiles_Defaults(t *testing.T) {
	p, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfiles(), p)
}

func TestLoadProfiles_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	body := `
profiles:
  postgresql_client:
    queue: aurora_fast_jq
    memory: 4000
  gdal_python_import:
    attemptTimeoutSeconds: 600
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	p, err := LoadProfiles(path)
	require.NoError(t, err)

	pg := p[ProfilePostgresClient]
	assert.Equal(t, "aurora_fast_jq", pg.Queue)
	assert.Equal(t, 4000, pg.MemoryMiB)
	assert.Equal(t, "postgresql_client_jd", pg.Definition)
	assert.Equal(t, 600, p[ProfileGDALImport].AttemptTimeoutSeconds)
	assert.Equal(t, "data_lake_jq", p[ProfileGDALImport].Queue)
}

func TestLoadProfiles_Errors(t *testing.T) {
	_, err := LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: [\n"), 0o600))
	_, err = LoadProfiles(path)
	require.Error(t, err)
}
