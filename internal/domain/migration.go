// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"context"
	"fmt"
	"time"
)

// VersionLayout はバージョン文字列の時刻フォーマット（YYYYMMDDHHMMSS）。
// 固定長のため、文字列の辞書順がそのまま時系列順になる。
const VersionLayout = "20060102150405"

// VersionLength はバージョン文字列の長さ。
const VersionLength = len(VersionLayout)

// Phase はマイグレーションの実行フェーズを表す。
type Phase string

const (
	// PhaseBefore はデプロイ前に実行するフェーズ。
	PhaseBefore Phase = "before"
	// PhaseAfter はデプロイ後に実行するフェーズ。
	PhaseAfter Phase = "after"
)

// Phases は有効なフェーズの一覧。
var Phases = []Phase{PhaseBefore, PhaseAfter}

// ParsePhase は文字列をPhaseに変換する。
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhase, s)
	}
	return p, nil
}

// Valid はフェーズが before / after のいずれかであるかを返す。
func (p Phase) Valid() bool {
	return p == PhaseBefore || p == PhaseAfter
}

// MigrationStatus はマイグレーションの状態を表す。
// Unprepared → Prepared → BeforeExecuted → AfterExecuted の順に遷移するが、
// 遷移はledgerから観測されるだけで強制はされない。
type MigrationStatus string

const (
	MigrationStatusPrepared       MigrationStatus = "prepared"
	MigrationStatusBeforeExecuted MigrationStatus = "before_executed"
	MigrationStatusAfterExecuted  MigrationStatus = "after_executed"
)

// LedgerEntry は「バージョンXがフェーズPで時刻Tに実行された」という記録。
type LedgerEntry struct {
	Version  string
	Phase    Phase
	Executed time.Time
}

// MigrationFile は生成されたマイグレーションファイルを表す。
type MigrationFile struct {
	FilePath string
	Version  string
}

// MigrationState はバージョンごとの準備状況と実行状況を表す。
type MigrationState struct {
	Version    string
	Prepared   bool       // マイグレーションファイルが存在するか
	BeforeAt   *time.Time // beforeフェーズの実行日時（未実行の場合はnil）
	AfterAt    *time.Time // afterフェーズの実行日時（未実行の場合はnil）
	Status     MigrationStatus
	Identifier string
}

// ExecutedAt は指定フェーズの実行日時を返す。
func (s *MigrationState) ExecutedAt(phase Phase) *time.Time {
	switch phase {
	case PhaseBefore:
		return s.BeforeAt
	case PhaseAfter:
		return s.AfterAt
	}
	return nil
}

// Connection はマイグレーションに渡される実行コンテキスト（DB接続）。
type Connection interface {
	ExecuteQuery(ctx context.Context, query string, args ...any) error
}

// MigrationUnit はバージョンに対応する実行可能なマイグレーション。
type MigrationUnit interface {
	Before(ctx context.Context, conn Connection) error
	After(ctx context.Context, conn Connection) error
}
