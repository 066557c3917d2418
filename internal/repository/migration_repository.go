// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"migration-service/internal/domain"

	"gorm.io/gorm"
)

// MigrationTableName はledgerテーブル名。
const MigrationTableName = "migration"

// MigrationModel はmigrationテーブルのモデル。
// (version, phase) の複合主キーで、フェーズごとに1回のみ記録できる。
type MigrationModel struct {
	Version  string    `gorm:"column:version;primaryKey;type:varchar(14)"`
	Phase    string    `gorm:"column:phase;primaryKey;type:varchar(6)"`
	Executed time.Time `gorm:"column:executed;not null"`
}

// TableName はテーブル名を指定。
func (MigrationModel) TableName() string {
	return MigrationTableName
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *MigrationModel) toDomain() *domain.LedgerEntry {
	return &domain.LedgerEntry{
		Version:  m.Version,
		Phase:    domain.Phase(m.Phase),
		Executed: m.Executed,
	}
}

// MigrationRepository はマイグレーション実行履歴（ledger）を管理するリポジトリ。
type MigrationRepository struct {
	db *gorm.DB
}

// NewMigrationRepository は新しいMigrationRepositoryを生成する。
func NewMigrationRepository(db *gorm.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// CreateTable はledgerテーブルを作成する。
// テーブルが既に存在する場合はストアのエラーをErrSchemaConflictでラップして返す。
func (r *MigrationRepository) CreateTable(ctx context.Context) error {
	migrator := r.db.WithContext(ctx).Migrator()
	if err := migrator.CreateTable(&MigrationModel{}); err != nil {
		slog.ErrorContext(ctx, "failed to create migration table",
			"operation", "create_table",
			"table", MigrationTableName,
			"error", err,
		)
		if migrator.HasTable(&MigrationModel{}) {
			return fmt.Errorf("%w: %w", domain.ErrSchemaConflict, err)
		}
		return err
	}
	return nil
}

// RecordExecution はマイグレーションの実行履歴を記録する。
// upsertではなくinsertのため、同じ (version, phase) の再記録はErrDuplicateEntryになる。
func (r *MigrationRepository) RecordExecution(ctx context.Context, version string, phase domain.Phase, executedAt time.Time) error {
	model := &MigrationModel{
		Version:  version,
		Phase:    string(phase),
		Executed: executedAt.UTC().Truncate(time.Second),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to record migration execution",
			"operation", "record_execution",
			"version", version,
			"phase", phase,
			"error", err,
		)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: version %s phase %s: %w", domain.ErrDuplicateEntry, version, phase, err)
		}
		return err
	}
	return nil
}

// FindExecutedVersions は指定フェーズで実行済みのバージョン一覧を昇順で取得する。
func (r *MigrationRepository) FindExecutedVersions(ctx context.Context, phase domain.Phase) ([]string, error) {
	versions := []string{}
	err := r.db.WithContext(ctx).
		Model(&MigrationModel{}).
		Where("phase = ?", string(phase)).
		Distinct("version").
		Order("version ASC").
		Pluck("version", &versions).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find executed versions",
			"operation", "find_executed_versions",
			"phase", phase,
			"error", err,
		)
		return nil, err
	}
	if versions == nil {
		versions = []string{}
	}
	return versions, nil
}

// FindAllEntries はledgerの全レコードをバージョン・フェーズ順で取得する。
func (r *MigrationRepository) FindAllEntries(ctx context.Context) ([]*domain.LedgerEntry, error) {
	var models []MigrationModel
	if err := r.db.WithContext(ctx).Order("version ASC, phase ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find ledger entries",
			"operation", "find_all_entries",
			"error", err,
		)
		return nil, err
	}

	entries := make([]*domain.LedgerEntry, len(models))
	for i := range models {
		entries[i] = models[i].toDomain()
	}
	return entries, nil
}
