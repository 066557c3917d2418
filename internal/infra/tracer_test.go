package infra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"migration-service/config"
)

func TestInitTracer_Disabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), &config.Config{OtelEnabled: false})
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestNewResource_MigrationAttributes(t *testing.T) {
	cfg := &config.Config{
		DatabaseDriver:       "postgres",
		MigrationsDir:        "/srv/migrations",
		MigrationNamespace:   "migrations",
		MigrationClassPrefix: "Migration",
		WatchMigrations:      true,
		OtelServiceName:      "migration-service",
	}

	res, err := newResource(context.Background(), cfg)
	require.NoError(t, err)

	set := res.Set()
	want := map[attribute.Key]attribute.Value{
		"service.name":           attribute.StringValue("migration-service"),
		"db.system":              attribute.StringValue("postgres"),
		"migration.dir":          attribute.StringValue("/srv/migrations"),
		"migration.namespace":    attribute.StringValue("migrations"),
		"migration.class_prefix": attribute.StringValue("Migration"),
		"migration.watch":        attribute.BoolValue(true),
	}
	for key, value := range want {
		got, ok := set.Value(key)
		require.True(t, ok, key)
		assert.Equal(t, value, got, key)
	}
}
