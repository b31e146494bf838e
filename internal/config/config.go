// Package config collects the historian's environment-variable
// configuration into one typed struct, following the os.Getenv style
// every teacher cmd/*/main.go uses rather than a flag or config-file
// library — none of the retrieved services reach for one.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment-derived setting the historian's
// entrypoint needs to wire up the bus, database, and HTTP surfaces.
type Config struct {
	// Bus (MQTT)
	MQTTBrokerURL       string
	MQTTClientID        string
	MQTTCertificateName string
	MQTTCertDir         string

	// Database backend selection: "postgres" or "sqlite".
	DatabaseDriver string

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
	PostgresSSLMode  string

	SQLitePath string

	// HTTP surfaces
	APIAddr     string
	MetricsAddr string
	HealthAddr  string

	ShutdownGraceSeconds int
}

// Load reads configuration from the process environment, applying the
// same defaults the historian would fall back to in local development.
func Load() (Config, error) {
	cfg := Config{
		MQTTBrokerURL:       getenv("BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:        getenv("MQTT_CLIENT_ID", "dsa-historian"),
		MQTTCertificateName: os.Getenv("CERTIFICATE_NAME"),
		MQTTCertDir:         getenv("CERTIFICATE_DIR", "/certs"),

		DatabaseDriver: getenv("DATABASE_DRIVER", "sqlite"),

		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDatabase: os.Getenv("POSTGRES_DATABASE"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		SQLitePath: getenv("SQLITE_PATH", "historian.db"),

		APIAddr:     getenv("API_ADDR", ":8080"),
		MetricsAddr: getenv("METRICS_ADDR", ":2112"),
		HealthAddr:  getenv("HEALTH_ADDR", ":8086"),
	}

	port, err := getenvInt("POSTGRES_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	cfg.PostgresPort = port

	grace, err := getenvInt("SHUTDOWN_GRACE_SECONDS", 30)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownGraceSeconds = grace

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return Config{}, fmt.Errorf("config: unknown DATABASE_DRIVER %q (want postgres or sqlite)", cfg.DatabaseDriver)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q: %w", key, raw, err)
	}
	return v, nil
}

// PostgresDSN builds a lib/pq-compatible connection string from the
// Postgres fields.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDatabase, c.PostgresSSLMode,
	)
}
