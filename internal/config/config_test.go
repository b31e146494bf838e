package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBrokerURL)
	assert.Equal(t, "dsa-historian", cfg.MQTTClientID)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "historian.db", cfg.SQLitePath)
	assert.Equal(t, ":8080", cfg.APIAddr)
	assert.Equal(t, ":2112", cfg.MetricsAddr)
	assert.Equal(t, ":8086", cfg.HealthAddr)
	assert.Equal(t, 5432, cfg.PostgresPort)
	assert.Equal(t, 30, cfg.ShutdownGraceSeconds)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("BROKER_URL", "tcp://broker:1883")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("POSTGRES_PORT", "6543")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBrokerURL)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 6543, cfg.PostgresPort)
}

func TestLoadRejectsUnknownDatabaseDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mongodb")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonIntegerPort(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestPostgresDSNFormatsEveryField(t *testing.T) {
	cfg := Config{
		PostgresHost:     "db.internal",
		PostgresPort:     5432,
		PostgresUser:     "historian",
		PostgresPassword: "secret",
		PostgresDatabase: "historian_values",
		PostgresSSLMode:  "require",
	}
	want := "host=db.internal port=5432 user=historian password=secret dbname=historian_values sslmode=require"
	assert.Equal(t, want, cfg.PostgresDSN())
}
