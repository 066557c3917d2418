package domain

import "errors"

var (
	// ErrInvalidPhase はフェーズが before / after 以外の場合のエラー。
	ErrInvalidPhase = errors.New("invalid phase")

	// ErrUnitNotFound はバージョンに対応するマイグレーションが解決できない場合のエラー。
	ErrUnitNotFound = errors.New("migration unit not found")

	// ErrDuplicateEntry は同じ (version, phase) が既にledgerに記録されている場合のエラー。
	ErrDuplicateEntry = errors.New("migration already executed")

	// ErrSchemaConflict はledgerテーブルの作成が既存スキーマと衝突した場合のエラー。
	ErrSchemaConflict = errors.New("migration table schema conflict")

	// ErrWriteError はマイグレーションファイルの書き込みに失敗した場合のエラー。
	ErrWriteError = errors.New("failed to write migration file")

	// ErrDirectoryNotFound はmigrationsディレクトリが存在しない場合のエラー。
	ErrDirectoryNotFound = errors.New("migrations directory not found")

	// ErrInvalidStatements は生成に渡されたSQL文が空の場合のエラー。
	ErrInvalidStatements = errors.New("invalid statements")

	// ErrInvalidVersion はバージョン文字列の形式が不正な場合のエラー。
	ErrInvalidVersion = errors.New("invalid version")
)
