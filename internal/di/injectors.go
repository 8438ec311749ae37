//go:build wireinject
// +build wireinject

package di

import (
	"usd/internal"
	"usd/internal/controllers"
	"usd/internal/providers"
	"usd/internal/scheduler"
	"usd/internal/services"
	"usd/internal/storage"
	"usd/internal/structures"

	wire "github.com/google/wire"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, error) {

	wire.Build(
		providers.NewConfigProvider,
		providers.NewLogProvider,
		providers.NewMetricsProvider,
		providers.NewInstrumentedCacheProvider,
		providers.NewClockProvider,
		providers.NewFsProvider,

		storage.NewCompressor,
		storage.NewFileManager,
		storage.NewSampleQueue,
		storage.NewSettingsStore,

		services.NewProcessUsageSource,
		newIngestClient,
		services.NewModelProvider,
		services.NewDeviceIdentityService,
		services.NewUploaderService,
		scheduler.NewNetworkProbe,
		scheduler.NewCronScheduler,
		scheduler.NewUploadTrigger,
		services.NewCollectorService,
		scheduler.NewPipeline,

		controllers.NewApiController,
		controllers.NewSyncController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil
}
