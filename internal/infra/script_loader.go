package infra

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"

	"github.com/spf13/afero"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"migration-service/internal/domain"
	"migration-service/internal/usecase"
)

// phaseFunc は生成されたマイグレーションのBefore/Afterのシグネチャ。
type phaseFunc func(executeQuery func(query string))

// ScriptLoader は生成されたマイグレーションファイルをyaegiで解釈して読み込む。
type ScriptLoader struct {
	fs        afero.Fs
	discovery *usecase.VersionDiscovery
	namespace string
	prefix    string
}

// NewScriptLoader は新しいScriptLoaderを生成する。
func NewScriptLoader(fsys afero.Fs, discovery *usecase.VersionDiscovery, namespace, prefix string) *ScriptLoader {
	return &ScriptLoader{
		fs:        fsys,
		discovery: discovery,
		namespace: namespace,
		prefix:    prefix,
	}
}

// Load はバージョンに対応するファイルを読み込み、実行可能なマイグレーションを返す。
func (l *ScriptLoader) Load(ctx context.Context, version string) (domain.MigrationUnit, error) {
	path := filepath.Join(l.discovery.Dir(), l.discovery.FileName(version))
	src, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading migration file %s: %w", path, err)
	}

	// マイグレーションごとに独立したインタプリタを使う
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib symbols: %w", err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("failed to evaluate %s: %w", path, err)
	}

	typeName := l.namespace + "." + l.prefix + version
	before, err := extractPhase(i, typeName, "Before")
	if err != nil {
		return nil, err
	}
	after, err := extractPhase(i, typeName, "After")
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "migration script loaded",
		"operation", "load_script",
		"version", version,
		"file_path", path,
	)
	return &scriptUnit{version: version, before: before, after: after}, nil
}

// LoadAll は指定バージョンのファイルを読み込み、Registryに登録する。
// 起動時の探索で使い、読み込めなかったバージョンはスキップしてログに残す。
func (l *ScriptLoader) LoadAll(ctx context.Context, registry *usecase.Registry, versions []string) int {
	loaded := 0
	for _, version := range versions {
		identifier := usecase.UnitIdentifier(l.namespace, l.prefix, version)
		if _, ok := registry.Lookup(identifier); ok {
			continue
		}
		unit, err := l.Load(ctx, version)
		if err != nil {
			slog.WarnContext(ctx, "failed to load migration script",
				"operation", "load_all",
				"version", version,
				"error", err,
			)
			continue
		}
		registry.Register(identifier, func() domain.MigrationUnit { return unit })
		loaded++
	}
	return loaded
}

// extractPhase は型のメソッドを呼び出す関数を取り出す。
// 関数リテラルを直接評価しても関数値にならないため、名前付き関数を宣言してから名前で評価する。
func extractPhase(i *interp.Interpreter, typeName, method string) (phaseFunc, error) {
	wrapper := "migrationPhase" + method
	decl := fmt.Sprintf("func %s(executeQuery func(query string)) { %s{}.%s(executeQuery) }", wrapper, typeName, method)
	if _, err := i.Eval(decl); err != nil {
		return nil, fmt.Errorf("failed to resolve %s.%s: %w", typeName, method, err)
	}
	v, err := i.Eval(wrapper)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s.%s: %w", typeName, method, err)
	}
	if !v.IsValid() {
		return nil, fmt.Errorf("%s.%s is not a function", typeName, method)
	}
	if fn, ok := v.Interface().(func(func(string))); ok {
		return fn, nil
	}
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s.%s is not a function", typeName, method)
	}
	// yaegiが返す関数の型が一致しない場合はリフレクションで呼び出す
	return func(executeQuery func(query string)) {
		v.Call([]reflect.Value{reflect.ValueOf(executeQuery)})
	}, nil
}

// scriptUnit はインタプリタで読み込んだマイグレーション。
type scriptUnit struct {
	version string
	before  phaseFunc
	after   phaseFunc
}

func (u *scriptUnit) Before(ctx context.Context, conn domain.Connection) error {
	return u.run(ctx, conn, u.before, domain.PhaseBefore)
}

func (u *scriptUnit) After(ctx context.Context, conn domain.Connection) error {
	return u.run(ctx, conn, u.after, domain.PhaseAfter)
}

// run はフェーズを実行する。最初に失敗したSQL文のエラーを返し、以降の文は実行しない。
func (u *scriptUnit) run(ctx context.Context, conn domain.Connection, fn phaseFunc, phase domain.Phase) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in migration %s (%s): %v", u.version, phase, r)
		}
	}()

	var execErr error
	fn(func(query string) {
		if execErr != nil {
			return
		}
		if e := conn.ExecuteQuery(ctx, query); e != nil {
			execErr = fmt.Errorf("executing %q: %w", query, e)
		}
	})
	return execErr
}
