package config

import (
	"log/slog"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DATABASE_DRIVER", "MIGRATIONS_DIR", "MIGRATION_NAMESPACE",
		"MIGRATION_CLASS_PREFIX", "INCLUDE_DROP_TABLE_IN_DATABASE_SYNC",
		"MIGRATION_TEMPLATE_PATH", "OTEL_ENABLED", "OTEL_SAMPLING_RATE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.DatabaseDriver != "mysql" {
		t.Errorf("expected driver mysql, got %s", cfg.DatabaseDriver)
	}
	if cfg.MigrationsDir != DefaultMigrationsDir {
		t.Errorf("expected migrations dir %s, got %s", DefaultMigrationsDir, cfg.MigrationsDir)
	}
	if cfg.MigrationNamespace != "migrations" {
		t.Errorf("expected namespace migrations, got %s", cfg.MigrationNamespace)
	}
	if cfg.MigrationClassPrefix != "Migration" {
		t.Errorf("expected prefix Migration, got %s", cfg.MigrationClassPrefix)
	}
	if !cfg.IncludeDropTableInDatabaseSync {
		t.Error("expected IncludeDropTableInDatabaseSync=true by default")
	}
	if cfg.TemplateFilePath != "" {
		t.Errorf("expected empty template path, got %s", cfg.TemplateFilePath)
	}
	if cfg.OtelEnabled {
		t.Error("expected otel disabled by default")
	}
	if cfg.OtelSamplingRate != 1.0 {
		t.Errorf("expected sampling rate 1.0, got %f", cfg.OtelSamplingRate)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MIGRATIONS_DIR", "/var/migrations")
	t.Setenv("MIGRATION_CLASS_PREFIX", "Version")
	t.Setenv("INCLUDE_DROP_TABLE_IN_DATABASE_SYNC", "false")
	t.Setenv("MIGRATION_TEMPLATE_INDENT", "    ")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")

	cfg := Load()

	if cfg.MigrationsDir != "/var/migrations" {
		t.Errorf("expected /var/migrations, got %s", cfg.MigrationsDir)
	}
	if cfg.MigrationClassPrefix != "Version" {
		t.Errorf("expected prefix Version, got %s", cfg.MigrationClassPrefix)
	}
	if cfg.IncludeDropTableInDatabaseSync {
		t.Error("expected IncludeDropTableInDatabaseSync=false")
	}
	if cfg.TemplateIndent != "    " {
		t.Errorf("expected 4-space indent, got %q", cfg.TemplateIndent)
	}
	if cfg.OtelSamplingRate != 0.25 {
		t.Errorf("expected sampling rate 0.25, got %f", cfg.OtelSamplingRate)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"INFO":    slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for input, want := range tests {
		if got := ParseLogLevel(input); got != want {
			t.Errorf("ParseLogLevel(%q): expected %v, got %v", input, want, got)
		}
	}
}
