package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"gorm.io/gorm"

	"migration-service/config"
	"migration-service/internal/repository"
	"migration-service/internal/usecase"
)

// MigrationComponents は組み立て済みのマイグレーション関連コンポーネント。
type MigrationComponents struct {
	Service   *usecase.MigrationService
	Discovery *usecase.VersionDiscovery
	Loader    *ScriptLoader
	Registry  *usecase.Registry
}

// NewMigrationComponents は設定からMigrationServiceとその依存を組み立てる。
// registryがnilの場合はusecase.DefaultRegistryを使う。
func NewMigrationComponents(
	cfg *config.Config,
	db *gorm.DB,
	fsys afero.Fs,
	registry *usecase.Registry,
	metrics usecase.MetricsRecorder,
) (*MigrationComponents, error) {
	if registry == nil {
		registry = usecase.DefaultRegistry
	}

	discovery, err := usecase.NewVersionDiscovery(fsys, cfg.MigrationsDir, cfg.MigrationClassPrefix, usecase.DefaultExtension)
	if err != nil {
		return nil, fmt.Errorf("creating version discovery: %w", err)
	}
	loader := NewScriptLoader(fsys, discovery, cfg.MigrationNamespace, cfg.MigrationClassPrefix)
	// 監視しない場合は編集されたファイルを反映するため、読み込んだマイグレーションを保持しない
	invoker := usecase.NewMigrationInvoker(registry, loader, cfg.MigrationNamespace, cfg.MigrationClassPrefix,
		usecase.WithLoadedUnitCache(cfg.WatchMigrations),
	)
	generator := usecase.NewMigrationGenerator(fsys, usecase.GeneratorConfig{
		Dir:            cfg.MigrationsDir,
		Namespace:      cfg.MigrationNamespace,
		ClassPrefix:    cfg.MigrationClassPrefix,
		Extension:      usecase.DefaultExtension,
		TemplatePath:   cfg.TemplateFilePath,
		TemplateIndent: cfg.TemplateIndent,
	})

	opts := []usecase.ServiceOption{
		usecase.WithIncludeDropTableInDatabaseSync(cfg.IncludeDropTableInDatabaseSync),
	}
	if metrics != nil {
		opts = append(opts, usecase.WithMetrics(metrics))
	}

	service := usecase.NewMigrationService(
		repository.NewMigrationRepository(db),
		NewGormConnection(db),
		discovery,
		invoker,
		generator,
		opts...,
	)

	return &MigrationComponents{
		Service:   service,
		Discovery: discovery,
		Loader:    loader,
		Registry:  registry,
	}, nil
}

// Preload は準備済みの全バージョンを読み込んでRegistryに登録する。
// ディレクトリが存在しない場合は何もしない。
func (c *MigrationComponents) Preload(ctx context.Context) {
	versions, err := c.Discovery.ListPreparedVersions(ctx)
	if err != nil {
		slog.WarnContext(ctx, "skipping migration preload",
			"operation", "preload",
			"error", err,
		)
		return
	}
	loaded := c.Loader.LoadAll(ctx, c.Registry, versions)
	slog.InfoContext(ctx, "migration scripts preloaded",
		"operation", "preload",
		"prepared", len(versions),
		"loaded", loaded,
	)
}
