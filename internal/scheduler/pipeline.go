package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"usd/internal/models"
	"usd/internal/providers"
	"usd/internal/scheduler/interfaces"
	"usd/internal/services"
	storage "usd/internal/storage/interfaces"
	"usd/internal/structures"

	"go.uber.org/atomic"
)

const shutdownTimeout = 10 * time.Second

// Pipeline owns the lifecycle of the collector and uploader jobs and keeps
// them in step with the settings.
type Pipeline struct {
	conf      *structures.Config
	jobs      interfaces.JobSchedulerInterface
	collector services.CollectorServiceInterface
	uploader  services.UploaderServiceInterface
	queue     storage.SampleQueueInterface
	settings  storage.SettingsStoreInterface
	metrics   providers.MetricsProviderInterface
	logger    providers.Logger

	enabled atomic.Bool
	mu      sync.Mutex
	unsubs  []func()
}

func NewPipeline(
	conf *structures.Config,
	jobs interfaces.JobSchedulerInterface,
	collector services.CollectorServiceInterface,
	uploader services.UploaderServiceInterface,
	queue storage.SampleQueueInterface,
	settings storage.SettingsStoreInterface,
	metrics providers.MetricsProviderInterface,
	logger providers.Logger,
) interfaces.SchedulerInterface {
	return &Pipeline{
		conf:      conf,
		jobs:      jobs,
		collector: collector,
		uploader:  uploader,
		queue:     queue,
		settings:  settings,
		metrics:   metrics,
		logger:    logger,
	}
}

func (p *Pipeline) Restore() error {
	var errs []error
	if err := p.settings.Restore(); err != nil {
		errs = append(errs, fmt.Errorf("restore settings: %w", err))
	}
	if err := p.queue.Restore(); err != nil {
		errs = append(errs, fmt.Errorf("restore queue: %w", err))
	}
	return errors.Join(errs...)
}

func (p *Pipeline) Init() {
	p.mu.Lock()
	p.unsubs = append(p.unsubs,
		p.settings.Subscribe(p.onSettingsChange),
		p.queue.Subscribe(p.onQueueChange),
	)
	p.mu.Unlock()

	p.metrics.SetPendingSamples(p.queue.CountPending())
	p.jobs.Start()

	p.reconcile()
	if !p.enabled.Load() {
		p.logger.Infof(providers.TypeScheduler, "Collection disabled, jobs not scheduled")
	}
}

func (p *Pipeline) Stop() {
	p.mu.Lock()
	for _, unsub := range p.unsubs {
		unsub()
	}
	p.unsubs = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.jobs.Stop(ctx); err != nil {
		p.logger.Errorf(providers.TypeScheduler, "Jobs did not stop cleanly: %s", err)
	}
}

func (p *Pipeline) Persist() error {
	p.logger.Infof(providers.TypeApp, "Flushing queue and settings...")
	return errors.Join(p.queue.Flush(), p.settings.Flush())
}

func (p *Pipeline) enable() {
	p.enabled.Store(true)
	p.jobs.Schedule(CollectorJob, p.conf.Collector.Interval, interfaces.Constraints{}, p.collect)
	p.jobs.Schedule(UploaderJob, p.conf.Uploader.Interval, p.uploadConstraints(), p.upload)
}

func (p *Pipeline) disable() {
	p.enabled.Store(false)
	p.jobs.Cancel(CollectorJob)
	p.jobs.Cancel(UploaderJob)
}

func (p *Pipeline) onSettingsChange(change models.SettingsChange) {
	if change.Has(models.KeyCollectionEnabled) {
		p.reconcile()
	}

	if change.Has(models.KeyEndpointURL) || change.Has(models.KeyAPIKey) {
		if p.jobs.Resume(UploaderJob) {
			p.logger.Infof(providers.TypeScheduler, "Connection settings changed, uploader resumed")
		}
		if p.enabled.Load() {
			p.jobs.RunOnce(UploaderJob, p.uploadConstraints(), p.upload)
		}
	}
}

// reconcile brings the jobs in line with the stored toggle, which may be
// newer than the change being handled.
func (p *Pipeline) reconcile() {
	p.mu.Lock()
	defer p.mu.Unlock()

	enabled := p.settings.CollectionEnabled()
	if enabled == p.enabled.Load() {
		return
	}
	if enabled {
		p.logger.Infof(providers.TypeScheduler, "Collection enabled")
		p.enable()
	} else {
		p.logger.Infof(providers.TypeScheduler, "Collection disabled")
		p.disable()
	}
}

func (p *Pipeline) onQueueChange(stats models.QueueStats) {
	p.metrics.SetPendingSamples(stats.Pending)
}

func (p *Pipeline) uploadConstraints() interfaces.Constraints {
	return interfaces.Constraints{RequiresNetwork: p.conf.Uploader.RequiresNetwork}
}

func (p *Pipeline) collect(ctx context.Context) error {
	_, err := p.collector.Collect(ctx)
	return err
}

func (p *Pipeline) upload(ctx context.Context) error {
	_, err := p.uploader.Upload(ctx)
	return err
}
