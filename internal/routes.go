package internal

import (
	"net/http"
	"usd/internal/controllers"
	"usd/internal/providers"
)

func InitRoutes(apiController *controllers.ApiController, syncController *controllers.SyncController, healthController *controllers.HealthController) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	routers.Get("/health", http.HandlerFunc(healthController.Health))
	routers.Get("/status", http.HandlerFunc(apiController.GetStatus))
	routers.Get("/samples", http.HandlerFunc(apiController.GetSamples))
	routers.Get("/settings", http.HandlerFunc(apiController.GetSettings))
	routers.Post("/settings", http.HandlerFunc(apiController.SaveSettings))
	routers.Post("/settings/reset", http.HandlerFunc(apiController.ResetSettings))
	routers.Post("/collection", http.HandlerFunc(apiController.SetCollection))
	routers.Post("/sync/collect", http.HandlerFunc(syncController.Collect))
	routers.Post("/sync/upload", http.HandlerFunc(syncController.Upload))
	routers.Post("/sync/test", http.HandlerFunc(syncController.TestConnection))
	routers.Post("/sync/test-request", http.HandlerFunc(syncController.SendTestRequest))
	return routers
}
