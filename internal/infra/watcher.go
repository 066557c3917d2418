package infra

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"migration-service/internal/domain"
	"migration-service/internal/usecase"
)

// MigrationWatcher はmigrationsディレクトリを監視し、
// 新しく作成されたマイグレーションファイルをRegistryに読み込む。
type MigrationWatcher struct {
	watcher   *fsnotify.Watcher
	loader    *ScriptLoader
	registry  *usecase.Registry
	discovery *usecase.VersionDiscovery
}

// NewMigrationWatcher はディレクトリの監視を開始する。
func NewMigrationWatcher(loader *ScriptLoader, registry *usecase.Registry, discovery *usecase.VersionDiscovery) (*MigrationWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(discovery.Dir()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", discovery.Dir(), err)
	}
	return &MigrationWatcher{
		watcher:   w,
		loader:    loader,
		registry:  registry,
		discovery: discovery,
	}, nil
}

// Run はctxがキャンセルされるまでイベントを処理する。
func (w *MigrationWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.ErrorContext(ctx, "migration watcher error",
				"operation", "watch",
				"error", err,
			)
		}
	}
}

func (w *MigrationWatcher) handle(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	version, ok := w.discovery.VersionFromFileName(filepath.Base(event.Name))
	if !ok {
		return
	}

	// 書き込み途中のファイルは読み込みに失敗するため、Writeイベントで再試行される
	unit, err := w.loader.Load(ctx, version)
	if err != nil {
		slog.WarnContext(ctx, "failed to load migration script",
			"operation", "watch",
			"version", version,
			"error", err,
		)
		return
	}
	identifier := usecase.UnitIdentifier(w.loader.namespace, w.loader.prefix, version)
	w.registry.Register(identifier, func() domain.MigrationUnit { return unit })
	slog.InfoContext(ctx, "migration script registered",
		"operation", "watch",
		"version", version,
		"identifier", identifier,
	)
}

// Close は監視を終了する。
func (w *MigrationWatcher) Close() error {
	return w.watcher.Close()
}
