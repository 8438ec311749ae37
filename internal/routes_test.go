package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"usd/internal/controllers"
	"usd/internal/providers"
	"usd/internal/scheduler"
	"usd/internal/services"
	"usd/internal/storage"
	"usd/internal/testutil"

	"github.com/coder/quartz"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type offlineProbe struct{}

func (offlineProbe) Available(context.Context) bool { return false }

func newTestRouter(t *testing.T) providers.RouterProviderInterface {
	t.Helper()
	conf := testutil.TestConfig("/data")
	logger := &testutil.MockLogger{}
	metrics := testutil.NewMockMetrics()
	clock := quartz.NewMock(t)

	fm := storage.NewFileManager(conf, afero.NewMemMapFs(), &testutil.MockCompressor{}, metrics, logger)
	queue := storage.NewSampleQueue(conf, fm, clock, logger)
	settings := storage.NewSettingsStore(conf, fm, logger)
	identity := services.NewDeviceIdentityService(settings, &testutil.MockModelProvider{Name: "test box"}, logger)
	source := &testutil.MockUsageSource{}
	uploader := services.NewUploaderService(conf, queue, settings, identity, services.NewIngestClient(conf), source, clock, metrics, logger)
	collector := services.NewCollectorService(conf, source, queue, settings, &testutil.MockUploadTrigger{}, clock, metrics, logger)
	jobs := scheduler.NewCronScheduler(conf, offlineProbe{}, clock, metrics, logger)
	t.Cleanup(func() { _ = jobs.Stop(context.Background()) })

	return InitRoutes(
		controllers.NewApiController(logger, testutil.NewMockCache(), queue, settings, identity, jobs),
		controllers.NewSyncController(logger, collector, uploader),
		controllers.NewHealthController(queue),
	)
}

func TestInitRoutes_RegistersControlAPI(t *testing.T) {
	routes := newTestRouter(t).GetRoutes()

	urls := make([]string, 0, len(routes))
	for _, r := range routes {
		urls = append(urls, r.Url)
	}
	assert.Equal(t, []string{
		"/health", "/status", "/samples", "/settings", "/settings/reset", "/collection",
		"/sync/collect", "/sync/upload", "/sync/test", "/sync/test-request",
	}, urls)
}

func TestNewApp_ServesRoutesWithMethodChecks(t *testing.T) {
	conf := testutil.TestConfig("/data")
	conf.WebServer.Host = "127.0.0.1"
	conf.WebServer.Port = 8091
	app := NewApp(newTestRouter(t), nil, nil, conf, &testutil.MockLogger{}, testutil.NewMockMetrics())
	assert.Equal(t, "127.0.0.1:8091", app.WebServer.Addr)

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodPost, "/health", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/settings", "", http.StatusOK},
		{http.MethodPost, "/settings", `{"endpointUrl":""}`, http.StatusBadRequest},
		{http.MethodGet, "/sync/upload", "", http.StatusMethodNotAllowed},
		{http.MethodPost, "/sync/upload", "", http.StatusPreconditionFailed},
		{http.MethodGet, "/unknown", "", http.StatusNotFound},
		{http.MethodGet, "/metrics", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			app.WebServer.Handler.ServeHTTP(rr, req)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
}
