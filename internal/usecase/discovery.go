package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"

	"migration-service/internal/domain"
)

// DefaultExtension は生成・探索するマイグレーションファイルの拡張子。
const DefaultExtension = "go"

// VersionDiscovery はmigrationsディレクトリから準備済みバージョンを探索する。
type VersionDiscovery struct {
	fs      afero.Fs
	dir     string
	prefix  string
	ext     string
	pattern glob.Glob
}

// NewVersionDiscovery は新しいVersionDiscoveryを生成する。
// ファイル名パターン <prefix>*.<ext> はここで一度だけコンパイルする。
func NewVersionDiscovery(fsys afero.Fs, dir, prefix, ext string) (*VersionDiscovery, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	pattern, err := glob.Compile(glob.QuoteMeta(prefix) + "*" + glob.QuoteMeta("."+ext))
	if err != nil {
		return nil, fmt.Errorf("compiling migration file pattern: %w", err)
	}
	return &VersionDiscovery{
		fs:      fsys,
		dir:     dir,
		prefix:  prefix,
		ext:     ext,
		pattern: pattern,
	}, nil
}

// Dir は探索対象のディレクトリを返す。
func (d *VersionDiscovery) Dir() string {
	return d.dir
}

// FileName はバージョンに対応するファイル名を返す。
func (d *VersionDiscovery) FileName(version string) string {
	return d.prefix + version + "." + d.ext
}

// VersionFromFileName はファイル名からバージョンを取り出す。
// 命名規則に一致しない場合はfalseを返す。
func (d *VersionDiscovery) VersionFromFileName(name string) (string, bool) {
	if !d.pattern.Match(name) {
		return "", false
	}
	version := strings.TrimSuffix(strings.TrimPrefix(name, d.prefix), "."+d.ext)
	if version == "" {
		return "", false
	}
	return version, true
}

// ListPreparedVersions は準備済み（ファイルが存在する）バージョンを昇順で返す。
// ディレクトリが存在しない場合はErrDirectoryNotFoundを返す。
func (d *VersionDiscovery) ListPreparedVersions(ctx context.Context) ([]string, error) {
	entries, err := afero.ReadDir(d.fs, d.dir)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read migrations directory",
			"operation", "list_prepared_versions",
			"dir", d.dir,
			"error", err,
		)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrDirectoryNotFound, d.dir, err)
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	versions := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, ok := d.VersionFromFileName(entry.Name())
		if !ok {
			continue
		}
		versions = append(versions, version)
	}

	sort.Strings(versions)
	return versions, nil
}
