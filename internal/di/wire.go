//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"MarketCore/pkg/config"
	"MarketCore/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideRegistry,
	ProvideLogger,
	ProvideMetrics,
	ProvideRedisClient,
	ProvideClickHouse,
	ProvideKafkaProducer,
	ProvideLogCollector,
)

var analysisSet = wire.NewSet(
	ProvideSessionStore,
	ProvideClock,
	ProvideSessionRegistry,
	ProvideRegimeClassifier,
	ProvideStructureEngine,
	ProvideScorer,
	ProvideProjector,
	ProvideCache,
	ProvidePublisher,
	ProvideBarSource,
	ProvidePipelineConfig,
	ProvidePipeline,
	ProvideBarsUseCase,
)

// InitializeApp builds the service graph. The returned cleanup closes every
// client in reverse construction order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		analysisSet,
		ProvideKafkaConsumer,
		ProvideAnalysisHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
