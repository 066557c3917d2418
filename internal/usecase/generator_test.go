package usecase

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migration-service/internal/domain"
)

var fixedNow = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func newTestGenerator(fsys afero.Fs, cfg GeneratorConfig) *MigrationGenerator {
	if cfg.Dir == "" {
		cfg.Dir = "/migrations"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "migrations"
	}
	if cfg.ClassPrefix == "" {
		cfg.ClassPrefix = "Migration"
	}
	if cfg.TemplateIndent == "" {
		cfg.TemplateIndent = "\t"
	}
	return NewMigrationGenerator(fsys, cfg, WithClock(func() time.Time { return fixedNow }))
}

func TestRenderStatement(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"CREATE TABLE t (id INT)", `executeQuery("CREATE TABLE t (id INT)")`},
		{"INSERT INTO t VALUES ('a')", `executeQuery("INSERT INTO t VALUES ('a')")`},
		{`UPDATE t SET s = "x\y"`, `executeQuery("UPDATE t SET s = \"x\\y\"")`},
		{"SELECT 1\nFROM dual", `executeQuery("SELECT 1\nFROM dual")`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RenderStatement(tt.sql))
	}
}

func TestMigrationGenerator_NewVersion(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	g := NewMigrationGenerator(afero.NewMemMapFs(), GeneratorConfig{}, WithClock(func() time.Time {
		return time.Date(2024, 1, 15, 18, 30, 0, 0, jst)
	}))

	version := g.NewVersion()
	assert.Equal(t, "20240115093000", version)
	assert.Len(t, version, domain.VersionLength)
}

func TestMigrationGenerator_Generate(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	g := newTestGenerator(fsys, GeneratorConfig{})

	file, err := g.Generate(ctx, []string{"CREATE TABLE t (id INT)", "INSERT INTO t VALUES (1)"})
	require.NoError(t, err)
	assert.Equal(t, "20240115093000", file.Version)
	assert.Equal(t, "/migrations/Migration20240115093000.go", file.FilePath)

	content, err := afero.ReadFile(fsys, file.FilePath)
	require.NoError(t, err)
	src := string(content)

	assert.True(t, strings.HasPrefix(src, "package migrations\n"))
	assert.Contains(t, src, "type Migration20240115093000 struct{}")
	assert.Contains(t, src, "\texecuteQuery(\"CREATE TABLE t (id INT)\")\n\texecuteQuery(\"INSERT INTO t VALUES (1)\")\n")
	assert.Contains(t, src, "func (Migration20240115093000) After(executeQuery func(query string)) {\n}")
	assert.NotContains(t, src, "%")
}

func TestMigrationGenerator_Generate_EmptyStatements(t *testing.T) {
	fsys := afero.NewMemMapFs()
	g := newTestGenerator(fsys, GeneratorConfig{})

	file, err := g.Generate(context.Background(), nil)
	require.NoError(t, err)

	content, err := afero.ReadFile(fsys, file.FilePath)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "executeQuery(\"")
}

func TestMigrationGenerator_Generate_CustomTemplate(t *testing.T) {
	fsys := afero.NewMemMapFs()
	tmpl := "ns=%namespace% v=%version% p=%prefix%\n    %statements%\n"
	require.NoError(t, afero.WriteFile(fsys, "/tmpl/migration.txt", []byte(tmpl), 0o644))

	g := newTestGenerator(fsys, GeneratorConfig{
		Namespace:      "app",
		TemplatePath:   "/tmpl/migration.txt",
		TemplateIndent: "    ",
	})

	file, err := g.Generate(context.Background(), []string{"A", "B"})
	require.NoError(t, err)

	content, err := afero.ReadFile(fsys, file.FilePath)
	require.NoError(t, err)
	want := "ns=app v=20240115093000 p=Migration\n    executeQuery(\"A\")\n    executeQuery(\"B\")\n"
	assert.Equal(t, want, string(content))
}

func TestMigrationGenerator_Generate_MissingTemplate(t *testing.T) {
	g := newTestGenerator(afero.NewMemMapFs(), GeneratorConfig{TemplatePath: "/nope.txt"})

	_, err := g.Generate(context.Background(), []string{"A"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMigrationGenerator_Generate_SameSecondOverwrites(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	g := newTestGenerator(fsys, GeneratorConfig{})

	first, err := g.Generate(ctx, []string{"SELECT 1"})
	require.NoError(t, err)
	second, err := g.Generate(ctx, []string{"SELECT 2"})
	require.NoError(t, err)

	assert.Equal(t, first.FilePath, second.FilePath)
	content, err := afero.ReadFile(fsys, second.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "SELECT 2")
	assert.NotContains(t, string(content), "SELECT 1")
}

func TestMigrationGenerator_Generate_WriteError(t *testing.T) {
	fsys := afero.NewReadOnlyFs(afero.NewMemMapFs())
	g := newTestGenerator(fsys, GeneratorConfig{})

	_, err := g.Generate(context.Background(), []string{"SELECT 1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWriteError)
}

func TestMigrationGenerator_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	g := newTestGenerator(fsys, GeneratorConfig{})
	d := newTestDiscovery(t, fsys)

	file, err := g.Generate(ctx, []string{"SELECT 1"})
	require.NoError(t, err)

	versions, err := d.ListPreparedVersions(ctx)
	require.NoError(t, err)
	assert.Contains(t, versions, file.Version)
}
