package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
	"usd/internal/models"
	"usd/internal/scheduler/interfaces"
	"usd/internal/storage"
	storageinterfaces "usd/internal/storage/interfaces"
	"usd/internal/testutil"

	"github.com/coder/quartz"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCollector struct {
	mu    sync.Mutex
	calls int
}

func (c *fakeCollector) Collect(context.Context) (*models.CollectionReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &models.CollectionReport{}, nil
}

type fakeUploader struct {
	mu    sync.Mutex
	err   error
	calls int
	ran   chan struct{}
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{ran: make(chan struct{}, 16)}
}

func (u *fakeUploader) Upload(context.Context) (*models.UploadReport, error) {
	u.mu.Lock()
	u.calls++
	err := u.err
	u.mu.Unlock()
	u.ran <- struct{}{}
	return &models.UploadReport{}, err
}

func (u *fakeUploader) setErr(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.err = err
}

func (u *fakeUploader) TestConnection(context.Context) (*models.ConnectionReport, error) {
	return &models.ConnectionReport{}, nil
}

func (u *fakeUploader) SendTestRequest(context.Context) (*models.ConnectionReport, error) {
	return &models.ConnectionReport{}, nil
}

type pipelineFixture struct {
	*schedulerFixture
	fs       afero.Fs
	queue    storageinterfaces.SampleQueueInterface
	settings storageinterfaces.SettingsStoreInterface
	uploader *fakeUploader
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T, fs afero.Fs) *pipelineFixture {
	t.Helper()
	sf := newSchedulerFixture(t)
	conf := testutil.TestConfig("/data")
	conf.Uploader.RequiresNetwork = false

	fm := storage.NewFileManager(conf, fs, &testutil.MockCompressor{}, sf.metrics, sf.logger)
	queue := storage.NewSampleQueue(conf, fm, quartz.NewMock(t), sf.logger)
	settings := storage.NewSettingsStore(conf, fm, sf.logger)
	uploader := newFakeUploader()

	p := NewPipeline(conf, sf.jobs, &fakeCollector{}, uploader, queue, settings, sf.metrics, sf.logger).(*Pipeline)
	t.Cleanup(p.Stop)
	return &pipelineFixture{
		schedulerFixture: sf,
		fs:               fs,
		queue:            queue,
		settings:         settings,
		uploader:         uploader,
		pipeline:         p,
	}
}

func TestPipeline_InitSchedulesJobsWhenEnabled(t *testing.T) {
	f := newPipelineFixture(t, afero.NewMemMapFs())
	require.NoError(t, f.settings.SetCollectionEnabled(true))

	f.pipeline.Init()
	assert.True(t, f.jobs.IsScheduled(CollectorJob))
	assert.True(t, f.jobs.IsScheduled(UploaderJob))
}

func TestPipeline_ToggleRegistersAndCancelsJobs(t *testing.T) {
	f := newPipelineFixture(t, afero.NewMemMapFs())
	f.pipeline.Init()
	assert.False(t, f.jobs.IsScheduled(CollectorJob))
	assert.False(t, f.jobs.IsScheduled(UploaderJob))

	require.NoError(t, f.settings.SetCollectionEnabled(true))
	assert.True(t, f.jobs.IsScheduled(CollectorJob))
	assert.True(t, f.jobs.IsScheduled(UploaderJob))

	// Enabling twice does not register duplicates.
	f.pipeline.enable()
	assert.Len(t, f.jobs.cron.Entries(), 2)

	require.NoError(t, f.settings.SetCollectionEnabled(false))
	assert.False(t, f.jobs.IsScheduled(CollectorJob))
	assert.False(t, f.jobs.IsScheduled(UploaderJob))
	assert.Empty(t, f.jobs.cron.Entries())
}

func TestPipeline_LateToggleFollowsStoredValue(t *testing.T) {
	f := newPipelineFixture(t, afero.NewMemMapFs())
	f.pipeline.Init()
	require.NoError(t, f.settings.SetCollectionEnabled(true))
	require.NoError(t, f.settings.SetCollectionEnabled(false))

	// An "on" change handled after the store was switched off again.
	f.pipeline.onSettingsChange(models.SettingsChange{
		Keys:     []string{models.KeyCollectionEnabled},
		Settings: models.Settings{CollectionEnabled: true},
	})
	assert.False(t, f.jobs.IsScheduled(CollectorJob))
	assert.False(t, f.jobs.IsScheduled(UploaderJob))
}

func TestPipeline_ConnectionChangeResumesSuspendedUploader(t *testing.T) {
	ctx := testContext(t)
	f := newPipelineFixture(t, afero.NewMemMapFs())
	require.NoError(t, f.settings.SetCollectionEnabled(true))
	f.pipeline.Init()

	f.uploader.setErr(models.NewPipelineError(models.KindConfiguration, "upload", models.ErrMissingEndpoint))
	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, nil)
	receive(ctx, t, f.uploader.ran)
	f.waitSuspended(t, UploaderJob)

	f.uploader.setErr(nil)
	require.NoError(t, f.settings.SaveConnection("https://ingest.example.com", "secret", "Alice"))
	assert.False(t, f.jobs.IsSuspended(UploaderJob))

	// The new connection is tried right away.
	receive(ctx, t, f.uploader.ran)
}

func TestPipeline_QueueChangesUpdatePendingGauge(t *testing.T) {
	f := newPipelineFixture(t, afero.NewMemMapFs())
	f.pipeline.Init()
	assert.Equal(t, 0, f.metrics.PendingSamples())

	_, err := f.queue.Insert(models.Sample{IntervalStart: time.Unix(0, 0), IntervalEnd: time.Unix(900, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, f.metrics.PendingSamples())
}

func TestPipeline_PersistAndRestore(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newPipelineFixture(t, fs)
	require.NoError(t, f.settings.SaveConnection("https://ingest.example.com", "secret", "Alice"))
	_, err := f.queue.Insert(models.Sample{IntervalStart: time.Unix(0, 0), IntervalEnd: time.Unix(900, 0)})
	require.NoError(t, err)
	require.NoError(t, f.pipeline.Persist())

	restarted := newPipelineFixture(t, fs)
	require.NoError(t, restarted.pipeline.Restore())
	assert.Equal(t, "Alice", restarted.settings.DisplayName())
	assert.Equal(t, 1, restarted.queue.CountPending())

	restarted.pipeline.Init()
	assert.Equal(t, 1, restarted.metrics.PendingSamples())
}

func TestPipeline_RestoreReportsCorruptFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/samples.db", []byte("{broken"), 0644))
	f := newPipelineFixture(t, fs)

	err := f.pipeline.Restore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore queue")
}

func TestUploadTrigger_RunsUploaderOnce(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	uploader := newFakeUploader()
	conf := testutil.TestConfig("/data")
	conf.Uploader.RequiresNetwork = false

	NewUploadTrigger(conf, f.jobs, uploader).TriggerUpload()
	receive(ctx, t, uploader.ran)
	require.NoError(t, f.jobs.Stop(ctx))

	assert.Equal(t, 1, f.metrics.JobRunCount(UploaderJob, "success"))
	assert.False(t, f.jobs.IsScheduled(UploaderJob))
}

func TestUploadTrigger_HonoursNetworkConstraint(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	f.probe.up.Store(false)
	retryTrap := f.clock.Trap().AfterFunc("retry")
	defer retryTrap.Close()
	uploader := newFakeUploader()

	NewUploadTrigger(testutil.TestConfig("/data"), f.jobs, uploader).TriggerUpload()
	retryTrap.MustWait(ctx).MustRelease(ctx)
	require.NoError(t, f.jobs.Stop(ctx))

	assert.Len(t, uploader.ran, 0)
}
