package backend

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"finboard/internal/config"
	"finboard/internal/connections"
	"finboard/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFactory() *Factory {
	return NewFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SourceBackend: config.SourceBackendMemory,
		DataDir:       t.TempDir(),
		StoreBackend:  config.StoreBackendMemory,
	}
}

func TestCreateMemory(t *testing.T) {
	cfg := baseConfig(t)
	dir := filepath.Join(cfg.DataDir, "book")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Data.csv"), []byte("Date,Category,Description,Amount\n2024-01-01,Food,,10\n"), 0o644))

	res, err := testFactory().Create(context.Background(), cfg)
	require.NoError(t, err)
	defer res.Cleanup()

	assert.IsType(t, &connections.MemoryKV{}, res.KV)
	assert.Nil(t, res.Broker)
	assert.Nil(t, res.Generator)

	values, err := res.Reader.ReadValues(context.Background(), "book", "Data!A:D")
	require.NoError(t, err)
	assert.Len(t, values, 2)
}

func TestCreateSQLite(t *testing.T) {
	cfg := baseConfig(t)
	cfg.StoreBackend = config.StoreBackendSQLite
	cfg.SQLiteDBPath = filepath.Join(t.TempDir(), "db", "finboard.db")

	res, err := testFactory().Create(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &storage.SQLiteKV{}, res.KV)

	require.NoError(t, res.KV.Set(context.Background(), "k", []byte("v")))
	require.NoError(t, res.Cleanup())
}

func TestCreateRejectsUnknownBackends(t *testing.T) {
	cfg := baseConfig(t)
	cfg.SourceBackend = "ftp"
	_, err := testFactory().Create(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported source backend")

	cfg = baseConfig(t)
	cfg.StoreBackend = "redis"
	_, err = testFactory().Create(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported store backend")

	_, err = testFactory().Create(context.Background(), nil)
	assert.Error(t, err)
}
