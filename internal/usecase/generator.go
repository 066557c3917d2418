package usecase

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"migration-service/internal/domain"
)

//go:embed template/migration.txt
var defaultTemplate string

// テンプレートのプレースホルダー
const (
	placeholderNamespace  = "%namespace%"
	placeholderPrefix     = "%prefix%"
	placeholderVersion    = "%version%"
	placeholderStatements = "%statements%"
)

// GeneratorConfig はマイグレーションファイル生成の設定。
type GeneratorConfig struct {
	Dir            string // 出力先ディレクトリ
	Namespace      string // 生成するパッケージ名
	ClassPrefix    string // ファイル名・型名のプレフィックス
	Extension      string // ファイル拡張子（空の場合は go）
	TemplatePath   string // テンプレートファイルのパス（空の場合は組み込みテンプレート）
	TemplateIndent string // SQL文の行間に挿入するインデント
}

// GeneratorOption はMigrationGeneratorの設定を変更する。
type GeneratorOption func(*MigrationGenerator)

// WithClock はバージョン採番に使う時刻の取得元を差し替える。
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *MigrationGenerator) {
		g.now = now
	}
}

// MigrationGenerator はSQL文の一覧からマイグレーションファイルを生成する。
type MigrationGenerator struct {
	fs  afero.Fs
	cfg GeneratorConfig
	now func() time.Time
}

// NewMigrationGenerator は新しいMigrationGeneratorを生成する。
func NewMigrationGenerator(fsys afero.Fs, cfg GeneratorConfig, opts ...GeneratorOption) *MigrationGenerator {
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	g := &MigrationGenerator{
		fs:  fsys,
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RenderStatement はSQL文をexecuteQuery呼び出しの1行に変換する。
// SQL文はGoの文字列リテラルとしてエスケープされる。
func RenderStatement(sql string) string {
	return fmt.Sprintf("executeQuery(%s)", strconv.Quote(sql))
}

// NewVersion は現在時刻からバージョンを採番する。
// 秒精度のため、同一秒内の生成は同じバージョンになる。
func (g *MigrationGenerator) NewVersion() string {
	return g.now().UTC().Format(domain.VersionLayout)
}

// Generate はSQL文の一覧から新しいマイグレーションファイルを生成する。
// 同じパスに既存ファイルがある場合は上書きする。
func (g *MigrationGenerator) Generate(ctx context.Context, statements []string) (*domain.MigrationFile, error) {
	rendered := make([]string, len(statements))
	for i, sql := range statements {
		rendered[i] = RenderStatement(sql)
	}

	version := g.NewVersion()

	template, err := g.loadTemplate()
	if err != nil {
		slog.ErrorContext(ctx, "failed to read migration template",
			"operation", "generate",
			"template_path", g.cfg.TemplatePath,
			"error", err,
		)
		return nil, fmt.Errorf("failed to read migration template: %w", err)
	}

	content := strings.ReplaceAll(template, placeholderNamespace, g.cfg.Namespace)
	content = strings.ReplaceAll(content, placeholderPrefix, g.cfg.ClassPrefix)
	content = strings.ReplaceAll(content, placeholderVersion, version)
	content = strings.ReplaceAll(content, placeholderStatements, strings.Join(rendered, "\n"+g.cfg.TemplateIndent))

	if err := g.fs.MkdirAll(g.cfg.Dir, 0o755); err != nil {
		slog.ErrorContext(ctx, "failed to create migrations directory",
			"operation", "generate",
			"dir", g.cfg.Dir,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrWriteError, g.cfg.Dir, err)
	}

	filePath := filepath.Join(g.cfg.Dir, g.cfg.ClassPrefix+version+"."+g.cfg.Extension)
	if err := afero.WriteFile(g.fs, filePath, []byte(content), 0o644); err != nil {
		slog.ErrorContext(ctx, "failed to write migration file",
			"operation", "generate",
			"file_path", filePath,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrWriteError, filePath, err)
	}

	return &domain.MigrationFile{
		FilePath: filePath,
		Version:  version,
	}, nil
}

func (g *MigrationGenerator) loadTemplate() (string, error) {
	if g.cfg.TemplatePath == "" {
		return defaultTemplate, nil
	}
	b, err := afero.ReadFile(g.fs, g.cfg.TemplatePath)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
