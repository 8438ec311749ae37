package di

import (
	"net/http"
	"usd/internal/services"
	"usd/internal/structures"
)

// newIngestClient bounds every ingest call by the configured upload timeout.
func newIngestClient(conf *structures.Config) services.IngestClientInterface {
	return services.NewIngestClient(conf, services.WithHTTPClient(&http.Client{Timeout: conf.Uploader.Timeout}))
}
