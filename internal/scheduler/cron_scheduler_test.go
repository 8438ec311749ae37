package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"usd/internal/models"
	"usd/internal/scheduler/interfaces"
	"usd/internal/testutil"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type fakeProbe struct {
	up *atomic.Bool
}

func (p *fakeProbe) Available(context.Context) bool {
	return p.up.Load()
}

type schedulerFixture struct {
	jobs    *CronScheduler
	clock   *quartz.Mock
	metrics *testutil.MockMetrics
	logger  *testutil.MockLogger
	probe   *fakeProbe
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	clock := quartz.NewMock(t)
	metrics := testutil.NewMockMetrics()
	logger := &testutil.MockLogger{}
	probe := &fakeProbe{up: atomic.NewBool(true)}
	jobs := NewCronScheduler(testutil.TestConfig("/data"), probe, clock, metrics, logger).(*CronScheduler)
	t.Cleanup(func() { _ = jobs.Stop(context.Background()) })
	return &schedulerFixture{jobs: jobs, clock: clock, metrics: metrics, logger: logger, probe: probe}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func receive(ctx context.Context, t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-ctx.Done():
		t.Fatal("timed out waiting for job run")
	}
}

// waitSuspended waits until the job is suspended and its run has returned.
func (f *schedulerFixture) waitSuspended(t *testing.T, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.jobs.mu.Lock()
		j := f.jobs.jobs[name]
		f.jobs.mu.Unlock()
		return j != nil && j.suspended.Load() && !j.running.Load()
	}, 5*time.Second, 5*time.Millisecond)
}

var networkFailure = models.NewPipelineError(models.KindNetwork, "upload", errors.New("connection refused"))

func noop(context.Context) error { return nil }

func TestCronScheduler_ScheduleIsDeduplicated(t *testing.T) {
	f := newSchedulerFixture(t)

	assert.True(t, f.jobs.Schedule(UploaderJob, time.Hour, interfaces.Constraints{}, noop))
	assert.False(t, f.jobs.Schedule(UploaderJob, time.Minute, interfaces.Constraints{}, noop))
	assert.True(t, f.jobs.IsScheduled(UploaderJob))
	assert.Len(t, f.jobs.cron.Entries(), 1)

	assert.True(t, f.jobs.Cancel(UploaderJob))
	assert.False(t, f.jobs.IsScheduled(UploaderJob))
	assert.False(t, f.jobs.Cancel(UploaderJob))
	assert.Empty(t, f.jobs.cron.Entries())

	assert.True(t, f.jobs.Schedule(UploaderJob, time.Hour, interfaces.Constraints{}, noop))
}

func TestCronScheduler_PeriodicRun(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	ran := make(chan struct{}, 8)

	f.jobs.Schedule(CollectorJob, time.Second, interfaces.Constraints{}, func(context.Context) error {
		ran <- struct{}{}
		return nil
	})
	f.jobs.Start()

	receive(ctx, t, ran)
	require.NoError(t, f.jobs.Stop(ctx))
	assert.GreaterOrEqual(t, f.metrics.JobRunCount(CollectorJob, "success"), 1)
}

func TestCronScheduler_RunOnceSuccess(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	var calls atomic.Int32

	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, func(context.Context) error {
		calls.Inc()
		return nil
	})
	require.NoError(t, f.jobs.Stop(ctx))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, f.metrics.JobRunCount(UploaderJob, "success"))
	assert.False(t, f.jobs.IsScheduled(UploaderJob))
}

func TestCronScheduler_RetriesRetryableFailureWithBackoff(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	retryTrap := f.clock.Trap().AfterFunc("retry")
	defer retryTrap.Close()

	var calls atomic.Int32
	ran := make(chan struct{}, 4)
	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, func(context.Context) error {
		n := calls.Inc()
		ran <- struct{}{}
		if n == 1 {
			return networkFailure
		}
		return nil
	})

	call := retryTrap.MustWait(ctx)
	call.MustRelease(ctx)
	// 30s initial interval with the default randomization of 0.5.
	assert.GreaterOrEqual(t, call.Duration, 15*time.Second)
	assert.LessOrEqual(t, call.Duration, 45*time.Second)

	f.clock.Advance(call.Duration).MustWait(ctx)
	receive(ctx, t, ran)
	receive(ctx, t, ran)
	require.NoError(t, f.jobs.Stop(ctx))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, f.metrics.JobRunCount(UploaderJob, "retry"))
	assert.Equal(t, 1, f.metrics.JobRunCount(UploaderJob, "success"))
}

func TestCronScheduler_CancelDropsPendingRetry(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	retryTrap := f.clock.Trap().AfterFunc("retry")
	defer retryTrap.Close()

	var calls atomic.Int32
	f.jobs.Schedule(UploaderJob, time.Hour, interfaces.Constraints{}, func(context.Context) error {
		calls.Inc()
		return networkFailure
	})
	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, nil)

	call := retryTrap.MustWait(ctx)
	call.MustRelease(ctx)
	require.True(t, f.jobs.Cancel(UploaderJob))

	f.clock.Advance(call.Duration).MustWait(ctx)
	require.NoError(t, f.jobs.Stop(ctx))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCronScheduler_ConfigurationFailureSuspends(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	var calls atomic.Int32
	fail := atomic.NewBool(true)

	f.jobs.Schedule(UploaderJob, time.Hour, interfaces.Constraints{}, func(context.Context) error {
		calls.Inc()
		if fail.Load() {
			return models.NewPipelineError(models.KindConfiguration, "upload", models.ErrMissingEndpoint)
		}
		return nil
	})
	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, nil)
	f.waitSuspended(t, UploaderJob)
	assert.Equal(t, 1, f.metrics.JobRunCount(UploaderJob, "suspend"))

	// Periodic ticks are skipped while suspended.
	f.jobs.dispatch(f.jobs.jobs[UploaderJob], triggerPeriodic)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, f.metrics.JobRunCount(UploaderJob, "suspended"))

	assert.True(t, f.jobs.Resume(UploaderJob))
	assert.False(t, f.jobs.IsSuspended(UploaderJob))
	assert.False(t, f.jobs.Resume(UploaderJob))

	fail.Store(false)
	f.jobs.dispatch(f.jobs.jobs[UploaderJob], triggerPeriodic)
	require.NoError(t, f.jobs.Stop(ctx))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, f.metrics.JobRunCount(UploaderJob, "success"))
}

func TestCronScheduler_ExplicitRunLiftsSuspension(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	fail := atomic.NewBool(true)

	f.jobs.Schedule(UploaderJob, time.Hour, interfaces.Constraints{}, func(context.Context) error {
		if fail.Load() {
			return models.NewPipelineError(models.KindConfiguration, "upload", models.ErrMissingAPIKey)
		}
		return nil
	})
	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, nil)
	f.waitSuspended(t, UploaderJob)

	fail.Store(false)
	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, nil)
	require.NoError(t, f.jobs.Stop(ctx))
	assert.False(t, f.jobs.IsSuspended(UploaderJob))
}

func TestCronScheduler_ReportsStateChanges(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	var mu sync.Mutex
	var changed []string
	f.jobs.OnStateChange(func(name string) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, name)
	})

	f.jobs.Schedule(UploaderJob, time.Hour, interfaces.Constraints{}, func(context.Context) error {
		return models.NewPipelineError(models.KindConfiguration, "upload", models.ErrMissingEndpoint)
	})
	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, nil)
	require.NoError(t, f.jobs.Stop(ctx))
	require.True(t, f.jobs.IsSuspended(UploaderJob))
	require.True(t, f.jobs.Resume(UploaderJob))
	require.True(t, f.jobs.Cancel(UploaderJob))

	mu.Lock()
	defer mu.Unlock()
	// scheduled, suspended, resumed, cancelled
	assert.Equal(t, []string{UploaderJob, UploaderJob, UploaderJob, UploaderJob}, changed)
}

func TestCronScheduler_StorageFailureIsNotRetried(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)

	f.jobs.RunOnce(CollectorJob, interfaces.Constraints{}, func(context.Context) error {
		return models.NewPipelineError(models.KindStorage, "queue insert", errors.New("disk full"))
	})
	require.NoError(t, f.jobs.Stop(ctx))

	assert.Equal(t, 1, f.metrics.JobRunCount(CollectorJob, "failure"))
	assert.Equal(t, 0, f.metrics.JobRunCount(CollectorJob, "retry"))
	assert.False(t, f.jobs.IsSuspended(CollectorJob))
	assert.Equal(t, 1, f.logger.Count("error"))
}

func TestCronScheduler_OverlappingPeriodicRunIsSkipped(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	f.jobs.Schedule(UploaderJob, time.Hour, interfaces.Constraints{}, func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	})
	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, nil)
	receive(ctx, t, started)

	f.jobs.mu.Lock()
	j := f.jobs.jobs[UploaderJob]
	f.jobs.mu.Unlock()
	f.jobs.dispatch(j, triggerPeriodic)
	assert.Equal(t, 1, f.metrics.JobRunCount(UploaderJob, "skipped"))

	close(release)
	require.NoError(t, f.jobs.Stop(ctx))
	assert.Equal(t, 1, f.metrics.JobRunCount(UploaderJob, "success"))
	assert.Len(t, started, 0)
}

func TestCronScheduler_OneShotDuringRunIsQueuedOnce(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	started := make(chan struct{}, 4)
	release := make(chan struct{})

	fn := func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}
	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, fn)
	receive(ctx, t, started)

	// Requests arriving mid-run collapse into a single follow-up run.
	for i := 0; i < 3; i++ {
		f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, fn)
	}
	require.Eventually(t, func() bool {
		return f.metrics.JobRunCount(UploaderJob, "queued") == 3
	}, 5*time.Second, 5*time.Millisecond)

	close(release)
	receive(ctx, t, started)
	require.NoError(t, f.jobs.Stop(ctx))
	assert.Equal(t, 2, f.metrics.JobRunCount(UploaderJob, "success"))
	assert.Len(t, started, 0)
}

func TestCronScheduler_DefersRunWithoutNetwork(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	f.probe.up.Store(false)
	retryTrap := f.clock.Trap().AfterFunc("retry")
	defer retryTrap.Close()

	var calls atomic.Int32
	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{RequiresNetwork: true}, func(context.Context) error {
		calls.Inc()
		return nil
	})
	retryTrap.MustWait(ctx).MustRelease(ctx)
	require.NoError(t, f.jobs.Stop(ctx))

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 1, f.metrics.JobRunCount(UploaderJob, "retry"))
}

func TestCronScheduler_NetworkLossCancelsRun(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	tickerTrap := f.clock.Trap().NewTicker("network")
	defer tickerTrap.Close()

	started := make(chan struct{}, 1)
	causes := make(chan error, 1)
	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{RequiresNetwork: true}, func(runCtx context.Context) error {
		started <- struct{}{}
		<-runCtx.Done()
		causes <- context.Cause(runCtx)
		return models.NewPipelineError(models.KindNetwork, "upload", runCtx.Err())
	})

	call := tickerTrap.MustWait(ctx)
	call.MustRelease(ctx)
	assert.Equal(t, 5*time.Second, call.Duration)
	receive(ctx, t, started)

	f.probe.up.Store(false)
	f.clock.Advance(call.Duration).MustWait(ctx)

	select {
	case cause := <-causes:
		assert.ErrorIs(t, cause, errNetworkLost)
	case <-ctx.Done():
		t.Fatal("run was not cancelled")
	}
	require.NoError(t, f.jobs.Stop(ctx))
	assert.Equal(t, 1, f.metrics.JobRunCount(UploaderJob, "retry"))
}

func TestCronScheduler_PanicIsRecordedAsFailedRun(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)

	f.jobs.RunOnce(CollectorJob, interfaces.Constraints{}, func(context.Context) error {
		panic("boom")
	})
	require.NoError(t, f.jobs.Stop(ctx))
	assert.Equal(t, 1, f.metrics.JobRunCount(CollectorJob, "retry"))
}

func TestCronScheduler_StopCancelsRunsAfterDeadline(t *testing.T) {
	ctx := testContext(t)
	f := newSchedulerFixture(t)
	started := make(chan struct{}, 1)
	causes := make(chan error, 1)

	f.jobs.RunOnce(UploaderJob, interfaces.Constraints{}, func(runCtx context.Context) error {
		started <- struct{}{}
		<-runCtx.Done()
		causes <- context.Cause(runCtx)
		return runCtx.Err()
	})
	receive(ctx, t, started)

	stopCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.jobs.Stop(stopCtx), context.DeadlineExceeded)
	assert.ErrorIs(t, <-causes, errShutdown)

	// Stopped schedulers refuse new work.
	assert.False(t, f.jobs.Schedule(CollectorJob, time.Hour, interfaces.Constraints{}, noop))
	f.jobs.RunOnce(CollectorJob, interfaces.Constraints{}, noop)
	assert.NoError(t, f.jobs.Stop(ctx))
	assert.Equal(t, 0, f.metrics.JobRunCount(CollectorJob, "success"))
}
