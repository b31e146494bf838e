// Command historian runs the WatchGroup ingestion engine: it connects
// to the link bus, opens the configured database backend, serves the
// HTTP control surface, and blocks until a shutdown signal arrives.
package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ilovepumpkin/dsa-historian/api"
	"github.com/ilovepumpkin/dsa-historian/internal/bus"
	"github.com/ilovepumpkin/dsa-historian/internal/config"
	"github.com/ilovepumpkin/dsa-historian/internal/database"
	"github.com/ilovepumpkin/dsa-historian/internal/health"
	"github.com/ilovepumpkin/dsa-historian/internal/metrics"
	"github.com/ilovepumpkin/dsa-historian/internal/provider"
	"github.com/ilovepumpkin/dsa-historian/internal/shutdown"
)

func main() {
	logger, _ := zap.NewProduction()
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		zap.S().Fatalw("invalid configuration", "error", err)
	}

	metrics.Serve(cfg.MetricsAddr)

	healthHandler := health.New()
	health.Serve(cfg.HealthAddr, healthHandler)

	mqttBus := bus.NewMQTTBus(bus.MQTTConfig{
		BrokerURL:       cfg.MQTTBrokerURL,
		ClientID:        cfg.MQTTClientID,
		CertificateName: cfg.MQTTCertificateName,
		CertDir:         cfg.MQTTCertDir,
	})
	healthHandler.AddLivenessCheck("bus-connection", mqttBus.LivenessCheck())

	newDatabase := databaseFactory(cfg)

	p := provider.New(mqttBus, newDatabase)

	server := api.New(p)
	go func() {
		zap.S().Infow("api: listening", "addr", cfg.APIAddr)
		if err := http.ListenAndServe(cfg.APIAddr, server); err != nil {
			zap.S().Errorw("api: server stopped", "error", err)
		}
	}()

	shutdownHandler := shutdown.New(time.Duration(cfg.ShutdownGraceSeconds)*time.Second, func() error {
		zap.S().Info("shutting down: disconnecting bus and closing groups")
		mqttBus.Shutdown(5 * time.Second)
		p.Shutdown()
		return nil
	})

	zap.S().Info("historian started")
	shutdownHandler.Wait()
}

// databaseFactory selects the backend constructor based on
// configuration. Every group shares the same underlying store — rows
// already carry their originating path, so group-level partitioning
// would only duplicate connection overhead for no isolation benefit.
func databaseFactory(cfg config.Config) provider.Factory {
	switch cfg.DatabaseDriver {
	case "postgres":
		return func(groupID string) (database.Database, error) {
			return database.OpenPostgres(cfg.PostgresDSN())
		}
	case "sqlite":
		return func(groupID string) (database.Database, error) {
			return database.OpenSQLite(cfg.SQLitePath)
		}
	default:
		panic("config: unreachable, validated at Load")
	}
}
