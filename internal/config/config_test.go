package config_test

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"filecache-core/internal/config"
)

func TestDefault_UsesInMemoryDatabaseAndPlainDecoder(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, ":memory:", cfg.DatabasePath)
	require.Equal(t, "plain", cfg.Metadata.Type)
	require.Equal(t, 4096, cfg.PathCacheSize)
}

func TestRead_DecodesTOMLOverDefaults(t *testing.T) {
	toml := `
database_path = "/var/lib/cache.db"
path_cache_size = 1024

[metadata]
type = "age"
private_key_path = "/etc/cache/identity.txt"
`
	cfg, err := config.Read(strings.NewReader(toml))
	require.NoError(t, err)
	require.Equal(t, "/var/lib/cache.db", cfg.DatabasePath)
	require.Equal(t, 1024, cfg.PathCacheSize)
	require.Equal(t, "age", cfg.Metadata.Type)
	require.Equal(t, "/etc/cache/identity.txt", cfg.Metadata.PrivateKeyPath)
}

func TestRead_EnvironmentOverridesDatabasePath(t *testing.T) {
	t.Setenv("CACHE_DATABASE_PATH", "/override/cache.db")

	cfg, err := config.Read(strings.NewReader(`database_path = "/from/toml.db"`))
	require.NoError(t, err)
	require.Equal(t, "/override/cache.db", cfg.DatabasePath)
}

func TestWrite_RoundTripsThroughRead(t *testing.T) {
	cfg := config.Default()
	cfg.DatabasePath = "/tmp/roundtrip.db"

	var buf bytes.Buffer
	require.NoError(t, config.Write(&buf, cfg))

	got, err := config.Read(&buf)
	require.NoError(t, err)
	require.Equal(t, cfg.DatabasePath, got.DatabasePath)
}

func TestLoad_ReadsFromFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cache-*.toml")
	require.NoError(t, err)
	_, err = f.WriteString(`database_path = "/file/cache.db"`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := config.Load(f.Name())
	require.NoError(t, err)
	require.Equal(t, "/file/cache.db", cfg.DatabasePath)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := config.Load("/nonexistent/path/cache.toml")
	require.Error(t, err)
}
