//go:build wireinject
// +build wireinject

package di

import (
	"CandleFlow/pkg/config"
	"CandleFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,
		ProvideDropCollector,

		// Engine
		ProvideEngine,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,

		// Repositories
		ProvideCandleStore,
		ProvideCheckpointStore,
		ProvidePublisher,
		ProvideFeedStream,

		// Use cases
		ProvideTickIngestor,
		ProvideTickProcessor,
		ProvideTickCollector,
		ProvideKafkaConsumer,
		ProvideKafkaTicksHandler,
		ProvideCandleWriter,
		ProvideCheckpointer,
		ProvideRetryQueue,
		ProvideCandlesUseCase,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
