// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"migration-service/internal/domain"
)

var tracer = otel.Tracer("migration-service/usecase")

// 実行結果のラベル
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// MigrationRepository はマイグレーション実行履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	CreateTable(ctx context.Context) error
	RecordExecution(ctx context.Context, version string, phase domain.Phase, executedAt time.Time) error
	FindExecutedVersions(ctx context.Context, phase domain.Phase) ([]string, error)
	FindAllEntries(ctx context.Context) ([]*domain.LedgerEntry, error)
}

// MetricsRecorder はマイグレーション操作のメトリクスを記録する。
type MetricsRecorder interface {
	ObserveExecution(phase domain.Phase, result string, duration time.Duration)
	IncGenerated()
}

type noopMetrics struct{}

func (noopMetrics) ObserveExecution(domain.Phase, string, time.Duration) {}
func (noopMetrics) IncGenerated() {}

// ServiceOption はMigrationServiceの設定を変更する。
type ServiceOption func(*MigrationService)

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *MigrationService) {
		s.metrics = m
	}
}

// WithServiceClock は実行日時の記録に使う時刻の取得元を差し替える。
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *MigrationService) {
		s.now = now
	}
}

// WithIncludeDropTableInDatabaseSync はスキーマ同期でDROP TABLEを含めるかを設定する。
func WithIncludeDropTableInDatabaseSync(include bool) ServiceOption {
	return func(s *MigrationService) {
		s.includeDropTableInDatabaseSync = include
	}
}

// MigrationService はマイグレーションの探索・実行・記録・生成を提供する。
type MigrationService struct {
	repo      MigrationRepository
	conn      domain.Connection
	discovery *VersionDiscovery
	invoker   *MigrationInvoker
	generator *MigrationGenerator
	metrics   MetricsRecorder
	now       func() time.Time

	includeDropTableInDatabaseSync bool
}

// NewMigrationService は新しいMigrationServiceを生成する。
func NewMigrationService(
	repo MigrationRepository,
	conn domain.Connection,
	discovery *VersionDiscovery,
	invoker *MigrationInvoker,
	generator *MigrationGenerator,
	opts ...ServiceOption,
) *MigrationService {
	s := &MigrationService{
		repo:      repo,
		conn:      conn,
		discovery: discovery,
		invoker:   invoker,
		generator: generator,
		metrics:   noopMetrics{},
		now:       time.Now,

		includeDropTableInDatabaseSync: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MigrationsDir はmigrationsディレクトリを返す。
func (s *MigrationService) MigrationsDir() string {
	return s.discovery.Dir()
}

// ShouldIncludeDropTableInDatabaseSync はスキーマ同期でDROP TABLEを含めるかを返す。
// この値は外部のスキーマ差分ツールが参照する。
func (s *MigrationService) ShouldIncludeDropTableInDatabaseSync() bool {
	return s.includeDropTableInDatabaseSync
}

// ExecuteMigration は指定バージョンのフェーズを実行し、実行履歴を記録する。
// 実行に失敗した場合は記録しない。記録に失敗しても実行結果は巻き戻さない。
func (s *MigrationService) ExecuteMigration(ctx context.Context, version string, phase domain.Phase) (err error) {
	ctx, span := tracer.Start(ctx, "MigrationService.ExecuteMigration",
		trace.WithAttributes(
			attribute.String("migration.version", version),
			attribute.String("migration.phase", string(phase)),
		),
	)
	start := time.Now()
	defer func() {
		result := ResultSuccess
		if err != nil {
			result = ResultFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.ObserveExecution(phase, result, time.Since(start))
		span.End()
	}()

	unit, err := s.invoker.Resolve(ctx, version)
	if err != nil {
		return err
	}
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidPhase, phase)
	}

	if err := s.invoker.Invoke(ctx, unit, phase, s.conn); err != nil {
		slog.ErrorContext(ctx, "failed to execute migration",
			"operation", "execute_migration",
			"version", version,
			"phase", phase,
			"error", err,
		)
		return fmt.Errorf("executing migration %s (%s): %w", version, phase, err)
	}

	if err := s.repo.RecordExecution(ctx, version, phase, s.now()); err != nil {
		return fmt.Errorf("recording migration %s (%s): %w", version, phase, err)
	}

	slog.InfoContext(ctx, "migration executed",
		"operation", "execute_migration",
		"version", version,
		"phase", phase,
	)
	return nil
}

// GetPreparedVersions は準備済みバージョンを昇順で返す。
func (s *MigrationService) GetPreparedVersions(ctx context.Context) ([]string, error) {
	return s.discovery.ListPreparedVersions(ctx)
}

// GetExecutedVersions は指定フェーズで実行済みのバージョンを昇順で返す。
func (s *MigrationService) GetExecutedVersions(ctx context.Context, phase domain.Phase) ([]string, error) {
	return s.repo.FindExecutedVersions(ctx, phase)
}

// InitializeMigrationTable はledgerテーブルを作成する。
func (s *MigrationService) InitializeMigrationTable(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "MigrationService.InitializeMigrationTable")
	defer span.End()

	if err := s.repo.CreateTable(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// GenerateMigrationFile はSQL文の一覧からマイグレーションファイルを生成する。
func (s *MigrationService) GenerateMigrationFile(ctx context.Context, statements []string) (*domain.MigrationFile, error) {
	ctx, span := tracer.Start(ctx, "MigrationService.GenerateMigrationFile",
		trace.WithAttributes(attribute.Int("migration.statements", len(statements))),
	)
	defer span.End()

	file, err := s.generator.Generate(ctx, statements)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.metrics.IncGenerated()
	span.SetAttributes(attribute.String("migration.version", file.Version))

	slog.InfoContext(ctx, "migration file generated",
		"operation", "generate_migration_file",
		"version", file.Version,
		"file_path", file.FilePath,
	)
	return file, nil
}

// GetPendingVersions は準備済みかつ指定フェーズで未実行のバージョンを昇順で返す。
func (s *MigrationService) GetPendingVersions(ctx context.Context, phase domain.Phase) ([]string, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPhase, phase)
	}

	prepared, err := s.discovery.ListPreparedVersions(ctx)
	if err != nil {
		return nil, err
	}
	executed, err := s.repo.FindExecutedVersions(ctx, phase)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch executed versions: %w", err)
	}

	executedSet := make(map[string]struct{}, len(executed))
	for _, v := range executed {
		executedSet[v] = struct{}{}
	}

	pending := []string{}
	for _, v := range prepared {
		if _, ok := executedSet[v]; !ok {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

// ExecutePendingMigrations は未実行のマイグレーションをバージョン順に実行する。
// 失敗した時点で中断し、それまでに実行したバージョンを返す。
func (s *MigrationService) ExecutePendingMigrations(ctx context.Context, phase domain.Phase) ([]string, error) {
	pending, err := s.GetPendingVersions(ctx, phase)
	if err != nil {
		return nil, err
	}

	executed := []string{}
	for _, version := range pending {
		if err := s.ExecuteMigration(ctx, version, phase); err != nil {
			return executed, err
		}
		executed = append(executed, version)
	}
	return executed, nil
}

// GetMigrationStatus は準備済み・実行済みのバージョンごとの状態を返す。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.MigrationState, error) {
	prepared, err := s.discovery.ListPreparedVersions(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.FindAllEntries(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch ledger entries",
			"operation", "get_migration_status",
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch ledger entries: %w", err)
	}

	states := make(map[string]*domain.MigrationState)
	stateOf := func(version string) *domain.MigrationState {
		st, ok := states[version]
		if !ok {
			st = &domain.MigrationState{
				Version:    version,
				Identifier: s.invoker.Identifier(version),
			}
			states[version] = st
		}
		return st
	}

	for _, v := range prepared {
		stateOf(v).Prepared = true
	}
	for _, e := range entries {
		executed := e.Executed
		switch e.Phase {
		case domain.PhaseBefore:
			stateOf(e.Version).BeforeAt = &executed
		case domain.PhaseAfter:
			stateOf(e.Version).AfterAt = &executed
		}
	}

	result := make([]*domain.MigrationState, 0, len(states))
	for _, st := range states {
		st.Status = observedStatus(st)
		result = append(result, st)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})
	return result, nil
}

// observedStatus はledgerの記録から状態を導出する。
func observedStatus(st *domain.MigrationState) domain.MigrationStatus {
	switch {
	case st.AfterAt != nil:
		return domain.MigrationStatusAfterExecuted
	case st.BeforeAt != nil:
		return domain.MigrationStatusBeforeExecuted
	default:
		return domain.MigrationStatusPrepared
	}
}
