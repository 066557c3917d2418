package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"migration-service/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB はテスト用のSQLiteデータベースを作成する。
// :memory: は接続ごとに別DBになるため、一時ディレクトリのファイルを使う。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "ledger.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// setupLedger はmigrationテーブル作成済みのリポジトリを返す。
func setupLedger(t *testing.T) (*MigrationRepository, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	repo := NewMigrationRepository(db)
	if err := repo.CreateTable(context.Background()); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	return repo, db
}

func TestMigrationRepository_CreateTable(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db)

	if err := repo.CreateTable(ctx); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	if !db.Migrator().HasTable(MigrationTableName) {
		t.Fatal("migration table was not created")
	}
	for _, column := range []string{"version", "phase", "executed"} {
		if !db.Migrator().HasColumn(&MigrationModel{}, column) {
			t.Errorf("column %s was not created", column)
		}
	}
}

func TestMigrationRepository_CreateTable_Twice(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupLedger(t)

	// 既存テーブルに対する2回目の作成はスキーマ衝突になる
	err := repo.CreateTable(ctx)
	if !errors.Is(err, domain.ErrSchemaConflict) {
		t.Fatalf("expected ErrSchemaConflict, got %v", err)
	}
}

func TestMigrationRepository_FindExecutedVersions_Empty(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupLedger(t)

	for _, phase := range domain.Phases {
		versions, err := repo.FindExecutedVersions(ctx, phase)
		if err != nil {
			t.Fatalf("FindExecutedVersions failed: %v", err)
		}
		if versions == nil {
			t.Errorf("phase %s: expected empty slice, got nil", phase)
		}
		if len(versions) != 0 {
			t.Errorf("phase %s: expected no versions, got %v", phase, versions)
		}
	}
}

func TestMigrationRepository_RecordExecution(t *testing.T) {
	ctx := context.Background()
	repo, db := setupLedger(t)

	// 順不同で記録
	now := time.Date(2024, 1, 15, 9, 30, 0, 500, time.UTC)
	for _, version := range []string{"20240301000000", "20240115093000", "20240201120000"} {
		if err := repo.RecordExecution(ctx, version, domain.PhaseBefore, now); err != nil {
			t.Fatalf("RecordExecution(%s) failed: %v", version, err)
		}
	}
	if err := repo.RecordExecution(ctx, "20240115093000", domain.PhaseAfter, now); err != nil {
		t.Fatalf("RecordExecution(after) failed: %v", err)
	}

	// 昇順で返ること
	before, err := repo.FindExecutedVersions(ctx, domain.PhaseBefore)
	if err != nil {
		t.Fatalf("FindExecutedVersions failed: %v", err)
	}
	expected := []string{"20240115093000", "20240201120000", "20240301000000"}
	if len(before) != len(expected) {
		t.Fatalf("expected %d versions, got %v", len(expected), before)
	}
	for i, v := range expected {
		if before[i] != v {
			t.Errorf("before[%d]: expected %s, got %s", i, v, before[i])
		}
	}

	after, err := repo.FindExecutedVersions(ctx, domain.PhaseAfter)
	if err != nil {
		t.Fatalf("FindExecutedVersions failed: %v", err)
	}
	if len(after) != 1 || after[0] != "20240115093000" {
		t.Errorf("expected [20240115093000], got %v", after)
	}

	var count int64
	if err := db.Model(&MigrationModel{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 records, got %d", count)
	}
}

func TestMigrationRepository_RecordExecution_Duplicate(t *testing.T) {
	ctx := context.Background()
	repo, db := setupLedger(t)

	now := time.Now()
	if err := repo.RecordExecution(ctx, "20240115093000", domain.PhaseBefore, now); err != nil {
		t.Fatalf("RecordExecution failed: %v", err)
	}

	err := repo.RecordExecution(ctx, "20240115093000", domain.PhaseBefore, now.Add(time.Minute))
	if !errors.Is(err, domain.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}

	// 最初の記録のみ残っていること
	var count int64
	if err := db.Model(&MigrationModel{}).Where("version = ?", "20240115093000").Count(&count).Error; err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 record, got %d", count)
	}
}

func TestMigrationRepository_RecordExecution_MissingTable(t *testing.T) {
	ctx := context.Background()
	repo := NewMigrationRepository(setupTestDB(t))

	err := repo.RecordExecution(ctx, "20240115093000", domain.PhaseBefore, time.Now())
	if err == nil {
		t.Fatal("expected error without migration table, got nil")
	}
	if errors.Is(err, domain.ErrDuplicateEntry) {
		t.Errorf("unexpected ErrDuplicateEntry: %v", err)
	}
}

func TestMigrationRepository_FindAllEntries(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupLedger(t)

	executed := time.Date(2024, 1, 15, 9, 30, 45, 999, time.UTC)
	if err := repo.RecordExecution(ctx, "20240201120000", domain.PhaseBefore, executed); err != nil {
		t.Fatalf("RecordExecution failed: %v", err)
	}
	if err := repo.RecordExecution(ctx, "20240115093000", domain.PhaseAfter, executed); err != nil {
		t.Fatalf("RecordExecution failed: %v", err)
	}
	if err := repo.RecordExecution(ctx, "20240115093000", domain.PhaseBefore, executed); err != nil {
		t.Fatalf("RecordExecution failed: %v", err)
	}

	entries, err := repo.FindAllEntries(ctx)
	if err != nil {
		t.Fatalf("FindAllEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	expected := []struct {
		version string
		phase   domain.Phase
	}{
		{"20240115093000", domain.PhaseAfter},
		{"20240115093000", domain.PhaseBefore},
		{"20240201120000", domain.PhaseBefore},
	}
	for i, e := range expected {
		if entries[i].Version != e.version || entries[i].Phase != e.phase {
			t.Errorf("entries[%d]: expected %s/%s, got %s/%s", i, e.version, e.phase, entries[i].Version, entries[i].Phase)
		}
	}

	// 秒精度で保存されること
	if !entries[0].Executed.Equal(executed.Truncate(time.Second)) {
		t.Errorf("expected executed=%v, got %v", executed.Truncate(time.Second), entries[0].Executed)
	}
}
