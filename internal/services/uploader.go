package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
	"usd/internal/models"
	"usd/internal/providers"
	"usd/internal/storage/interfaces"
	"usd/internal/structures"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const maxErrorDetail = 512

var errBatchRejected = errors.New("ingest endpoint answered ok=false")

type UploaderServiceInterface interface {
	Upload(ctx context.Context) (*models.UploadReport, error)
	TestConnection(ctx context.Context) (*models.ConnectionReport, error)
	SendTestRequest(ctx context.Context) (*models.ConnectionReport, error)
}

// UploaderService drains the queue in batches. Only one run is in flight at a
// time, which keeps batches disjoint and attempt counts exact.
type UploaderService struct {
	sem      *semaphore.Weighted
	conf     *structures.Config
	queue    interfaces.SampleQueueInterface
	settings interfaces.SettingsStoreInterface
	identity DeviceIdentityInterface
	client   IngestClientInterface
	source   UsageSourceInterface
	clock    quartz.Clock
	metrics  providers.MetricsProviderInterface
	logger   providers.Logger
}

func NewUploaderService(
	conf *structures.Config,
	queue interfaces.SampleQueueInterface,
	settings interfaces.SettingsStoreInterface,
	identity DeviceIdentityInterface,
	client IngestClientInterface,
	source UsageSourceInterface,
	clock quartz.Clock,
	metrics providers.MetricsProviderInterface,
	logger providers.Logger,
) UploaderServiceInterface {
	return &UploaderService{
		sem:      semaphore.NewWeighted(1),
		conf:     conf,
		queue:    queue,
		settings: settings,
		identity: identity,
		client:   client,
		source:   source,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

func (u *UploaderService) Upload(ctx context.Context) (*models.UploadReport, error) {
	if err := u.sem.Acquire(ctx, 1); err != nil {
		return nil, models.NewPipelineError(models.KindNetwork, "upload", err)
	}
	defer u.sem.Release(1)

	endpoint, apiKey, err := u.connection()
	if err != nil {
		u.metrics.IncUploadsTotal("misconfigured")
		u.logger.Warnf(providers.TypeUploader, "Upload skipped: %s", err)
		return nil, err
	}

	batch, err := u.queue.GetPending(u.conf.Uploader.BatchLimit)
	if err != nil {
		return nil, models.NewPipelineError(models.KindStorage, "upload", err)
	}
	if len(batch) == 0 {
		u.metrics.IncUploadsTotal("empty")
		u.logger.Debugf(providers.TypeUploader, "Nothing to upload")
		return &models.UploadReport{}, nil
	}

	deviceID, err := u.identity.EnsureDeviceId(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.UploadReport{Attempted: len(batch), DeviceID: deviceID}
	req := BuildIngestRequest(deviceID, u.clock.Now(), batch)
	ids := make([]int64, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}

	resp, err := u.send(ctx, endpoint, apiKey, req)
	if err != nil {
		detail := errorDetail(err)
		if recErr := u.queue.RecordFailures(ids, detail); recErr != nil {
			u.logger.Errorf(providers.TypeUploader, "Could not record failure for %d samples: %s", len(ids), recErr)
			return report, recErr
		}
		u.metrics.IncUploadsTotal("failed")
		u.logger.Warnf(providers.TypeUploader, "Upload of %d samples failed: %s", len(ids), detail)
		return report, models.NewPipelineError(models.KindNetwork, "upload", err)
	}

	sentAt := u.clock.Now().UTC()
	if err = u.queue.MarkSent(ids, sentAt); err != nil {
		// The endpoint has the batch; a later run re-sends it and the
		// endpoint reports duplicates.
		u.logger.Errorf(providers.TypeUploader, "Batch delivered but not marked sent: %s", err)
		return report, err
	}
	report.Sent = len(ids)
	report.Response = resp

	u.metrics.IncUploadsTotal("sent")
	u.metrics.AddSamplesUploaded(len(ids))
	if resp != nil && resp.Duplicates > 0 {
		u.logger.Infof(providers.TypeUploader, "Endpoint reported %d duplicate samples", resp.Duplicates)
	}
	u.logger.Infof(providers.TypeUploader, "Uploaded %d samples as %q", len(ids), deviceID)

	if err = u.settings.SetLastSuccessfulUploadTime(sentAt); err != nil {
		return report, err
	}
	return report, nil
}

func (u *UploaderService) send(ctx context.Context, endpoint string, apiKey string, req *models.IngestRequest) (*models.IngestResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, u.conf.Uploader.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := u.client.Ingest(ctx, endpoint, apiKey, req)
	u.metrics.ObserveUploadDuration(time.Since(start))
	if err != nil {
		return nil, err
	}
	if resp.Rejected() {
		return nil, errBatchRejected
	}
	return resp, nil
}

// connection returns the normalized endpoint and API key, or a configuration
// error when either is unusable.
func (u *UploaderService) connection() (string, string, error) {
	settings := u.settings.Get()
	if strings.TrimSpace(settings.EndpointURL) == "" {
		return "", "", models.NewPipelineError(models.KindConfiguration, "upload", models.ErrMissingEndpoint)
	}
	if strings.TrimSpace(settings.APIKey) == "" {
		return "", "", models.NewPipelineError(models.KindConfiguration, "upload", models.ErrMissingAPIKey)
	}
	endpoint, err := NormalizeEndpoint(settings.EndpointURL)
	if err != nil {
		return "", "", models.NewPipelineError(models.KindConfiguration, "upload", err)
	}
	return endpoint, strings.TrimSpace(settings.APIKey), nil
}

// TestConnection probes the endpoint root with HEAD. The queue is not touched.
func (u *UploaderService) TestConnection(ctx context.Context) (*models.ConnectionReport, error) {
	endpoint, err := NormalizeEndpoint(u.settings.EndpointURL())
	if err != nil {
		return nil, models.NewPipelineError(models.KindConfiguration, "test connection", err)
	}

	ctx, cancel := context.WithTimeout(ctx, u.conf.Uploader.Timeout)
	defer cancel()

	report := &models.ConnectionReport{URL: endpoint}
	status, err := u.client.Probe(ctx, endpoint)
	if err != nil {
		report.Message = "Connection failed: " + err.Error()
		return report, nil
	}

	report.StatusCode = status
	report.Ok = status >= 200 && status <= 299
	if report.Ok {
		report.Message = "Connection successful"
	} else {
		report.Message = fmt.Sprintf("Connection failed: %d", status)
	}
	return report, nil
}

// SendTestRequest uploads the last lookback window of real usage as one
// ad-hoc sample. Nothing is queued or checkpointed.
func (u *UploaderService) SendTestRequest(ctx context.Context) (*models.ConnectionReport, error) {
	endpoint, apiKey, err := u.connection()
	if err != nil {
		return nil, err
	}

	deviceID, err := u.identity.EnsureDeviceId(ctx)
	if err != nil {
		return nil, err
	}

	end := u.clock.Now().UTC()
	start := end.Add(-u.conf.Collector.DefaultLookback)

	collectCtx, cancel := context.WithTimeout(ctx, u.conf.Collector.Timeout)
	// The reading is never committed, so the collector still queues this usage.
	reading, err := u.source.CollectUsage(collectCtx, start, end)
	cancel()
	if err != nil {
		return nil, models.NewPipelineError(models.KindCollection, "test request", err)
	}

	used := make([]models.Record, 0, len(reading.Records))
	for _, r := range reading.Records {
		if r.UsageMillisIncrement > 0 {
			used = append(used, r)
		}
	}

	req := &models.IngestRequest{
		SchemaVersion: models.IngestSchemaVersion,
		DeviceID:      deviceID,
		CollectedAt:   formatInstant(end),
		Samples: []models.IngestSample{{
			SampleID:      uuid.NewString(),
			IntervalStart: formatInstant(start),
			IntervalEnd:   formatInstant(end),
			Records:       used,
		}},
	}

	report := &models.ConnectionReport{URL: endpoint + u.conf.Uploader.IngestPath, Records: len(used)}
	resp, err := u.send(ctx, endpoint, apiKey, req)
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			report.StatusCode = statusErr.StatusCode
		}
		report.Message = "Error: " + errorDetail(err)
		return report, nil
	}

	report.StatusCode = resp.StatusCode
	report.Ok = true
	if len(used) == 0 {
		report.Message = "Success, but no usage found in the lookback window"
	} else {
		report.Message = fmt.Sprintf("Success, %d records sent", len(used))
	}
	return report, nil
}

// BuildIngestRequest maps queued samples onto the wire format.
func BuildIngestRequest(deviceID string, collectedAt time.Time, batch []models.Sample) *models.IngestRequest {
	samples := make([]models.IngestSample, 0, len(batch))
	for _, s := range batch {
		records := s.Payload
		if records == nil {
			records = []models.Record{}
		}
		samples = append(samples, models.IngestSample{
			SampleID:      strconv.FormatInt(s.ID, 10),
			IntervalStart: formatInstant(s.IntervalStart),
			IntervalEnd:   formatInstant(s.IntervalEnd),
			Records:       records,
		})
	}
	return &models.IngestRequest{
		SchemaVersion: models.IngestSchemaVersion,
		DeviceID:      deviceID,
		CollectedAt:   formatInstant(collectedAt),
		Samples:       samples,
	}
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func errorDetail(err error) string {
	detail := err.Error()
	if len(detail) <= maxErrorDetail {
		return detail
	}
	// Cut on a rune boundary.
	n := maxErrorDetail
	for n > 0 && !utf8.RuneStart(detail[n]) {
		n--
	}
	return detail[:n]
}
