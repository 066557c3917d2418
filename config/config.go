// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"log/slog"
	"os"
	"strconv"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseURL        string
	DatabaseDriver     string
	GoogleCloudProject string
	LogLevel           string

	// マイグレーション関連
	MigrationsDir                  string
	MigrationNamespace             string
	MigrationClassPrefix           string
	IncludeDropTableInDatabaseSync bool
	TemplateFilePath               string
	TemplateIndent                 string
	WatchMigrations                bool

	// OpenTelemetry関連
	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
}

// デフォルト値
const (
	DefaultMigrationsDir        = "./migrations"
	DefaultMigrationNamespace   = "migrations"
	DefaultMigrationClassPrefix = "Migration"
	DefaultTemplateIndent       = "\t"
)

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DatabaseDriver:     getEnv("DATABASE_DRIVER", "mysql"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),

		MigrationsDir:                  getEnv("MIGRATIONS_DIR", DefaultMigrationsDir),
		MigrationNamespace:             getEnv("MIGRATION_NAMESPACE", DefaultMigrationNamespace),
		MigrationClassPrefix:           getEnv("MIGRATION_CLASS_PREFIX", DefaultMigrationClassPrefix),
		IncludeDropTableInDatabaseSync: getEnvBool("INCLUDE_DROP_TABLE_IN_DATABASE_SYNC", true),
		TemplateFilePath:               os.Getenv("MIGRATION_TEMPLATE_PATH"),
		// インデントは空白のみの値も有効なため、未設定の場合のみデフォルトを使う
		TemplateIndent:  getEnvRaw("MIGRATION_TEMPLATE_INDENT", DefaultTemplateIndent),
		WatchMigrations: getEnvBool("MIGRATIONS_WATCH", true),

		OtelEnabled:      getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:     getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:  getEnv("OTEL_SERVICE_NAME", "migration-service"),
		OtelSamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

// ParseLogLevel はLOG_LEVELの値をslog.Levelに変換する。
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvRaw(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}
