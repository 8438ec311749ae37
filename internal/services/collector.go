package services

import (
	"context"
	"sync"
	"time"
	"usd/internal/models"
	"usd/internal/providers"
	"usd/internal/storage/interfaces"
	"usd/internal/structures"

	"github.com/coder/quartz"
)

// UploadTrigger asks for one uploader run outside the periodic schedule.
type UploadTrigger interface {
	TriggerUpload()
}

type CollectorServiceInterface interface {
	Collect(ctx context.Context) (*models.CollectionReport, error)
}

// CollectorService appends one sample per non-empty window. Runs are
// serialized so two triggers can never claim the same window.
type CollectorService struct {
	mu       sync.Mutex
	conf     *structures.Config
	source   UsageSourceInterface
	queue    interfaces.SampleQueueInterface
	settings interfaces.SettingsStoreInterface
	trigger  UploadTrigger
	clock    quartz.Clock
	metrics  providers.MetricsProviderInterface
	logger   providers.Logger
}

func NewCollectorService(
	conf *structures.Config,
	source UsageSourceInterface,
	queue interfaces.SampleQueueInterface,
	settings interfaces.SettingsStoreInterface,
	trigger UploadTrigger,
	clock quartz.Clock,
	metrics providers.MetricsProviderInterface,
	logger providers.Logger,
) CollectorServiceInterface {
	return &CollectorService{
		conf:     conf,
		source:   source,
		queue:    queue,
		settings: settings,
		trigger:  trigger,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

func (c *CollectorService) Collect(ctx context.Context) (*models.CollectionReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now().UTC()
	start := c.windowStart(now)
	end := now

	capped := false
	if maxWindow := c.conf.Collector.MaxWindow; maxWindow > 0 && end.Sub(start) > maxWindow {
		end = start.Add(maxWindow)
		capped = true
	}

	report := &models.CollectionReport{IntervalStart: start, IntervalEnd: end}
	if !start.Before(end) {
		c.logger.Warnf(providers.TypeCollector, "Checkpoint %s is not before %s, skipping run", start.Format(time.RFC3339), end.Format(time.RFC3339))
		c.metrics.IncCollectionsTotal("empty")
		return report, nil
	}

	reading, err := c.collect(ctx, start, end)
	if err != nil {
		c.metrics.IncCollectionsTotal("failed")
		c.logger.Warnf(providers.TypeCollector, "Usage collection for [%s, %s) failed: %s", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
		return nil, models.NewPipelineError(models.KindCollection, "collect", err)
	}
	records := reading.Records

	if len(records) == 0 {
		c.metrics.IncCollectionsTotal("empty")
		if capped {
			// The capped window is entirely in the past, so nothing will be
			// reported for it later either.
			if err = c.settings.SetLastCollectionTime(end); err != nil {
				return nil, err
			}
			reading.Commit()
			c.logger.Infof(providers.TypeCollector, "No usage in capped window, checkpoint moved to %s", end.Format(time.RFC3339))
			return report, nil
		}
		c.logger.Debugf(providers.TypeCollector, "No usage in [%s, %s), checkpoint kept", start.Format(time.RFC3339), end.Format(time.RFC3339))
		return report, nil
	}

	id, err := c.queue.Insert(models.Sample{
		IntervalStart: start,
		IntervalEnd:   end,
		Payload:       records,
	})
	if err != nil {
		c.metrics.IncCollectionsTotal("failed")
		return nil, err
	}
	// The usage is durable in the queue now.
	reading.Commit()

	if err = c.settings.SetLastCollectionTime(end); err != nil {
		// The next run starts from the inserted sample's end anyway.
		c.metrics.IncCollectionsTotal("failed")
		return nil, err
	}

	report.Inserted = true
	report.SampleID = id
	report.Records = len(records)

	c.metrics.IncCollectionsTotal("inserted")
	c.metrics.AddRecordsCollected(len(records))
	c.logger.Infof(providers.TypeCollector, "Sample %d inserted with %d records for [%s, %s)", id, len(records), start.Format(time.RFC3339), end.Format(time.RFC3339))

	c.trigger.TriggerUpload()
	return report, nil
}

// windowStart is the checkpoint, or now minus the default lookback when none
// is stored. A checkpoint behind the newest queued window means a previous
// run stopped between insert and checkpoint write; the queue wins.
func (c *CollectorService) windowStart(now time.Time) time.Time {
	start, ok := c.settings.LastCollectionTime()
	if !ok {
		start = now.Add(-c.conf.Collector.DefaultLookback)
	}
	if latest, ok := c.queue.LatestIntervalEnd(); ok && latest.After(start) {
		c.logger.Warnf(providers.TypeCollector, "Checkpoint %s behind queued window end %s, healing", start.Format(time.RFC3339), latest.Format(time.RFC3339))
		start = latest
	}
	return start.UTC()
}

type collectResult struct {
	reading *models.UsageReading
	err     error
}

// collect bounds the source call by collector.timeout even when the source
// does not watch its context.
func (c *CollectorService) collect(ctx context.Context, start, end time.Time) (*models.UsageReading, error) {
	ctx, cancel := context.WithTimeout(ctx, c.conf.Collector.Timeout)
	defer cancel()

	done := make(chan collectResult, 1)
	go func() {
		reading, err := c.source.CollectUsage(ctx, start, end)
		done <- collectResult{reading: reading, err: err}
	}()

	select {
	case res := <-done:
		return res.reading, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
