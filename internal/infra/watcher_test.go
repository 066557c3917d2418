package infra

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migration-service/internal/usecase"
)

func TestMigrationWatcher_RegistersNewFiles(t *testing.T) {
	dir := t.TempDir()
	fsys := afero.NewOsFs()
	discovery, err := usecase.NewVersionDiscovery(fsys, dir, "Migration", usecase.DefaultExtension)
	require.NoError(t, err)
	loader := NewScriptLoader(fsys, discovery, "migrations", "Migration")
	registry := usecase.NewRegistry()

	w, err := NewMigrationWatcher(loader, registry, discovery)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Migration20240115093000.go"), []byte(failingMigration), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := registry.Lookup("migrations.Migration20240115093000")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"migrations.Migration20240115093000"}, registry.Identifiers())
}

func TestNewMigrationWatcher_MissingDirectory(t *testing.T) {
	fsys := afero.NewOsFs()
	discovery, err := usecase.NewVersionDiscovery(fsys, filepath.Join(t.TempDir(), "missing"), "Migration", usecase.DefaultExtension)
	require.NoError(t, err)
	loader := NewScriptLoader(fsys, discovery, "migrations", "Migration")

	_, err = NewMigrationWatcher(loader, usecase.NewRegistry(), discovery)
	assert.Error(t, err)
}
