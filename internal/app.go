package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	"usd/internal/providers"
	"usd/internal/scheduler/interfaces"
	"usd/internal/storage"
	"usd/internal/structures"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type App struct {
	WebServer   *http.Server
	pipeline    interfaces.SchedulerInterface
	fileManager *storage.FileManager
	conf        *structures.Config
	logger      providers.Logger
}

func NewApp(router providers.RouterProviderInterface, pipeline interfaces.SchedulerInterface, fileManager *storage.FileManager, conf *structures.Config, logger providers.Logger, metrics providers.MetricsProviderInterface) *App {
	mux := http.NewServeMux()
	for _, route := range router.GetRoutes() {
		mux.Handle(route.Url, providers.MetricsMiddleware(metrics, route.Url, route.Handler))
	}
	if conf.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return &App{
		WebServer: &http.Server{
			Addr:         conf.WebServer.Host + ":" + strconv.Itoa(conf.WebServer.Port),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: conf.Uploader.Timeout + conf.Collector.Timeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		pipeline:    pipeline,
		fileManager: fileManager,
		conf:        conf,
		logger:      logger,
	}
}

// Run restores persisted state, starts the jobs and the control API, and
// blocks until ctx is done or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Infof(providers.TypeApp, "Starting %s %s", a.conf.AppName, a.conf.Version)
	if err := a.pipeline.Restore(); err != nil {
		// Starting on top of an unreadable queue would overwrite it.
		return fmt.Errorf("restore state: %w", err)
	}
	a.pipeline.Init()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Infof(providers.TypeApp, "Listening HTTP clients on %s", a.WebServer.Addr)
		if err := a.WebServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Infof(providers.TypeApp, "Shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.WebServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Errorf(providers.TypeApp, "HTTP shutdown: %s", err)
	}

	a.pipeline.Stop()
	if err := a.pipeline.Persist(); err != nil {
		a.logger.Errorf(providers.TypeApp, "Persist on shutdown: %s", err)
		runErr = errors.Join(runErr, err)
	}
	a.fileManager.Close()

	a.logger.Infof(providers.TypeApp, "gracefully stopped")
	return runErr
}
