// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"migration-service/config"
	"migration-service/internal/handler"
	"migration-service/internal/infra"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// DI
	metrics := infra.NewMetrics()
	fsys := afero.NewOsFs()
	components, err := infra.NewMigrationComponents(cfg, db, fsys, nil, metrics)
	if err != nil {
		slog.Error("failed to init migration service", "error", err)
		os.Exit(1)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	// 監視しない場合は実行のたびにファイルを読み込むため事前読み込みしない
	if cfg.WatchMigrations {
		components.Preload(ctx)
		if err := fsys.MkdirAll(cfg.MigrationsDir, 0o755); err != nil {
			slog.Error("failed to create migrations directory", "dir", cfg.MigrationsDir, "error", err)
			os.Exit(1)
		}
		watcher, err := infra.NewMigrationWatcher(components.Loader, components.Registry, components.Discovery)
		if err != nil {
			slog.Error("failed to start migration watcher", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := watcher.Close(); err != nil {
				slog.Error("failed to close migration watcher", "error", err)
			}
		}()
		go watcher.Run(watchCtx)
	}

	h := handler.NewMigrationHandler(components.Service)
	router := handler.NewRouter(h, metrics.Handler(), cfg)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		stopWatch()
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "migrations_dir", cfg.MigrationsDir)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
