//go:build wireinject
// +build wireinject

package di

import (
	"SignalGuard/pkg/config"
	"SignalGuard/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application with its cleanup.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideClickHouseClient,
		ProvideRedisClient,

		// Stores
		ProvideHistoryStore,
		ProvideQuoteCache,
		ProvideSignalStore,

		// Core
		ProvideWeightManager,
		ProvideRiskHub,
		ProvideRiskMonitor,
		ProvideVerifier,

		// Use cases
		ProvideSignalEmitter,
		ProvideSources,
		ProvideSourceGateway,
		ProvideScheduler,
		ProvideOutcomeConsumer,

		// Delivery
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
