package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"migration-service/internal/domain"
)

// UnitFactory はマイグレーションを生成する関数。
type UnitFactory func() domain.MigrationUnit

// Registry は識別子からマイグレーションへの対応表。
// コンパイル済みのマイグレーションはinit()で登録し、
// 生成ファイルはUnitLoaderによる探索で登録される。
type Registry struct {
	mu        sync.RWMutex
	factories map[string]UnitFactory
}

// DefaultRegistry はinit()から登録するためのグローバルなRegistry。
var DefaultRegistry = NewRegistry()

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]UnitFactory)}
}

// Register は識別子にマイグレーションを登録する。既存の登録は置き換える。
func (r *Registry) Register(identifier string, factory UnitFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[identifier] = factory
}

// Lookup は識別子に対応するマイグレーションを返す。
func (r *Registry) Lookup(identifier string) (UnitFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[identifier]
	return f, ok
}

// Identifiers は登録済みの識別子を昇順で返す。
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnitLoader はバージョンに対応するマイグレーションをファイルから読み込む。
type UnitLoader interface {
	Load(ctx context.Context, version string) (domain.MigrationUnit, error)
}

// MigrationInvoker はバージョンからマイグレーションを解決し、フェーズを実行する。
type MigrationInvoker struct {
	registry   *Registry
	loader     UnitLoader
	namespace  string
	prefix     string
	cacheLoads bool
}

// InvokerOption はMigrationInvokerの設定を変更する。
type InvokerOption func(*MigrationInvoker)

// WithLoadedUnitCache はloaderで読み込んだマイグレーションをRegistryに登録するかを設定する。
// 無効にすると解決のたびにファイルを読み直す。
func WithLoadedUnitCache(enabled bool) InvokerOption {
	return func(i *MigrationInvoker) {
		i.cacheLoads = enabled
	}
}

// NewMigrationInvoker は新しいMigrationInvokerを生成する。loaderはnilでもよい。
func NewMigrationInvoker(registry *Registry, loader UnitLoader, namespace, prefix string, opts ...InvokerOption) *MigrationInvoker {
	i := &MigrationInvoker{
		registry:   registry,
		loader:     loader,
		namespace:  namespace,
		prefix:     prefix,
		cacheLoads: true,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Identifier はバージョンに対応する識別子（<namespace>.<prefix><version>）を返す。
func (i *MigrationInvoker) Identifier(version string) string {
	return UnitIdentifier(i.namespace, i.prefix, version)
}

// UnitIdentifier は名前空間・プレフィックス・バージョンから識別子を組み立てる。
func UnitIdentifier(namespace, prefix, version string) string {
	return namespace + "." + prefix + version
}

// Resolve はバージョンに対応するマイグレーションを返す。
// Registryに無い場合はloaderで読み込み、キャッシュが有効ならRegistryに登録する。
func (i *MigrationInvoker) Resolve(ctx context.Context, version string) (domain.MigrationUnit, error) {
	identifier := i.Identifier(version)
	if factory, ok := i.registry.Lookup(identifier); ok {
		return factory(), nil
	}

	if i.loader == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnitNotFound, identifier)
	}

	unit, err := i.loader.Load(ctx, version)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load migration unit",
			"operation", "resolve",
			"version", version,
			"identifier", identifier,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrUnitNotFound, identifier, err)
	}
	if i.cacheLoads {
		i.registry.Register(identifier, func() domain.MigrationUnit { return unit })
	}
	return unit, nil
}

// Invoke はフェーズに応じてBeforeまたはAfterを実行する。
func (i *MigrationInvoker) Invoke(ctx context.Context, unit domain.MigrationUnit, phase domain.Phase, conn domain.Connection) error {
	switch phase {
	case domain.PhaseBefore:
		return unit.Before(ctx, conn)
	case domain.PhaseAfter:
		return unit.After(ctx, conn)
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidPhase, phase)
	}
}
