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
	"usd/internal/structures"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"
	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
)

var (
	errNetworkUnavailable = errors.New("network unavailable")
	errNetworkLost        = errors.New("network lost during run")
	errShutdown           = errors.New("scheduler stopped")
)

type trigger int

const (
	triggerPeriodic trigger = iota
	triggerOnce
	triggerRetry
)

func (t trigger) String() string {
	switch t {
	case triggerPeriodic:
		return "periodic"
	case triggerOnce:
		return "one-shot"
	default:
		return "retry"
	}
}

type job struct {
	name      string
	running   atomic.Bool
	suspended atomic.Bool

	// guarded by CronScheduler.mu
	period      time.Duration
	constraints interfaces.Constraints
	fn          interfaces.JobFunc
	scheduled   bool
	rerun       bool
	entryID     cron.EntryID
	backoff     *backoff.ExponentialBackOff
	retry       *quartz.Timer
}

// CronScheduler runs named jobs on fixed periods. A job never overlaps with
// itself, retryable failures are retried with exponential backoff and
// configuration failures suspend the job until Resume.
type CronScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]*job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelCauseFunc
	stopped bool

	hooksMu sync.RWMutex
	hooks   []func(name string)

	conf    *structures.Config
	probe   NetworkProbeInterface
	clock   quartz.Clock
	metrics providers.MetricsProviderInterface
	logger  providers.Logger
}

func NewCronScheduler(
	conf *structures.Config,
	probe NetworkProbeInterface,
	clock quartz.Clock,
	metrics providers.MetricsProviderInterface,
	logger providers.Logger,
) interfaces.JobSchedulerInterface {
	cl := &cronLogger{logger: logger}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &CronScheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		jobs:    make(map[string]*job),
		ctx:     ctx,
		cancel:  cancel,
		conf:    conf,
		probe:   probe,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *CronScheduler) Schedule(name string, period time.Duration, constraints interfaces.Constraints, fn interfaces.JobFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	j, ok := s.jobs[name]
	if ok && j.scheduled {
		s.logger.Debugf(providers.TypeScheduler, "Job %s already scheduled", name)
		return false
	}
	if !ok {
		j = s.newJob(name)
		s.jobs[name] = j
	}
	j.period = period
	j.constraints = constraints
	j.fn = fn
	j.scheduled = true
	j.entryID = s.cron.Schedule(cron.Every(period), cron.FuncJob(func() {
		s.dispatch(j, triggerPeriodic)
	}))

	s.logger.Infof(providers.TypeScheduler, "Job %s scheduled every %s", name, period)
	s.stateChanged(name)
	return true
}

func (s *CronScheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	if j.scheduled {
		s.cron.Remove(j.entryID)
	}
	s.stopRetryLocked(j)
	delete(s.jobs, name)

	s.logger.Infof(providers.TypeScheduler, "Job %s cancelled", name)
	s.stateChanged(name)
	return true
}

func (s *CronScheduler) RunOnce(name string, constraints interfaces.Constraints, fn interfaces.JobFunc) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	j, ok := s.jobs[name]
	if !ok {
		j = s.newJob(name)
		j.constraints = constraints
		j.fn = fn
		s.jobs[name] = j
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.run(j, triggerOnce)
	}()
}

func (s *CronScheduler) Resume(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok || !j.suspended.CompareAndSwap(true, false) {
		return false
	}
	j.backoff.Reset()
	s.logger.Infof(providers.TypeScheduler, "Job %s resumed", name)
	s.stateChanged(name)
	return true
}

func (s *CronScheduler) OnStateChange(fn func(name string)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *CronScheduler) stateChanged(name string) {
	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	for _, fn := range s.hooks {
		fn(name)
	}
}

func (s *CronScheduler) IsScheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	return ok && j.scheduled
}

func (s *CronScheduler) IsSuspended(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	return ok && j.suspended.Load()
}

func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for in-flight ones. When ctx expires first
// the running jobs are cancelled and waited for.
func (s *CronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for _, j := range s.jobs {
		s.stopRetryLocked(j)
	}
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel(errShutdown)
		return nil
	case <-ctx.Done():
		s.logger.Warnf(providers.TypeScheduler, "Cancelling running jobs: %s", ctx.Err())
		s.cancel(errShutdown)
		<-done
		return ctx.Err()
	}
}

func (s *CronScheduler) newJob(name string) *job {
	eb := backoff.NewExponentialBackOff()
	if s.conf.Scheduler.RetryInitialInterval > 0 {
		eb.InitialInterval = s.conf.Scheduler.RetryInitialInterval
	}
	if s.conf.Scheduler.RetryMaxInterval > 0 {
		eb.MaxInterval = s.conf.Scheduler.RetryMaxInterval
	}
	eb.MaxElapsedTime = 0 // retry indefinitely
	eb.Reset()
	return &job{name: name, backoff: eb}
}

// dispatch runs j unless the scheduler is stopping or the job was cancelled.
func (s *CronScheduler) dispatch(j *job, t trigger) {
	s.mu.Lock()
	if s.stopped || s.jobs[j.name] != j {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.run(j, t)
}

func (s *CronScheduler) run(j *job, t trigger) {
	if t == triggerPeriodic && j.suspended.Load() {
		s.logger.Debugf(providers.TypeScheduler, "Job %s is suspended, tick skipped", j.name)
		s.metrics.IncJobRuns(j.name, "suspended")
		return
	}
	s.mu.Lock()
	if !j.running.CompareAndSwap(false, true) {
		if t == triggerOnce {
			j.rerun = true
		}
		s.mu.Unlock()
		if t == triggerOnce {
			s.logger.Debugf(providers.TypeScheduler, "Job %s still running, one-shot run queued", j.name)
			s.metrics.IncJobRuns(j.name, "queued")
		} else {
			s.logger.Debugf(providers.TypeScheduler, "Job %s still running, %s run skipped", j.name, t)
			s.metrics.IncJobRuns(j.name, "skipped")
		}
		return
	}
	fn, constraints := j.fn, j.constraints
	s.mu.Unlock()
	defer s.release(j)

	ctx, cancel := context.WithCancelCause(s.ctx)
	defer cancel(nil)

	if constraints.RequiresNetwork {
		if !s.probe.Available(ctx) {
			s.logger.Infof(providers.TypeScheduler, "Job %s deferred: network unavailable", j.name)
			s.finish(j, models.NewPipelineError(models.KindNetwork, j.name, errNetworkUnavailable))
			return
		}
		stopWatch := s.watchNetwork(ctx, cancel, j.name)
		defer stopWatch()
	}

	s.logger.Debugf(providers.TypeScheduler, "Job %s started (%s)", j.name, t)
	s.finish(j, s.invoke(ctx, fn))
}

// release marks j idle and runs it once more when a one-shot run arrived
// while it was busy.
func (s *CronScheduler) release(j *job) {
	s.mu.Lock()
	rerun := j.rerun
	j.rerun = false
	j.running.Store(false)
	s.mu.Unlock()

	if rerun {
		s.dispatch(j, triggerOnce)
	}
}

// invoke runs fn and turns a panic into an error so the outcome is still recorded.
func (s *CronScheduler) invoke(ctx context.Context, fn interfaces.JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// watchNetwork cancels the run when the network disappears mid-run.
func (s *CronScheduler) watchNetwork(ctx context.Context, cancel context.CancelCauseFunc, name string) func() {
	interval := s.conf.Scheduler.NetworkCheckInterval
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	ticker := s.clock.NewTicker(interval, "scheduler", "network")
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !s.probe.Available(ctx) {
					s.logger.Warnf(providers.TypeScheduler, "Network lost, cancelling %s", name)
					cancel(errNetworkLost)
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *CronScheduler) finish(j *job, err error) {
	outcome := models.Classify(err)
	s.metrics.IncJobRuns(j.name, outcome.String())

	switch outcome {
	case models.OutcomeSuccess:
		s.mu.Lock()
		j.backoff.Reset()
		s.stopRetryLocked(j)
		s.mu.Unlock()
		if j.suspended.CompareAndSwap(true, false) {
			s.logger.Infof(providers.TypeScheduler, "Job %s succeeded, suspension lifted", j.name)
			s.stateChanged(j.name)
		}
	case models.OutcomeRetry:
		s.scheduleRetry(j, err)
	case models.OutcomeSuspend:
		j.suspended.Store(true)
		s.mu.Lock()
		s.stopRetryLocked(j)
		s.mu.Unlock()
		s.logger.Warnf(providers.TypeScheduler, "Job %s suspended until reconfigured: %s", j.name, err)
		s.stateChanged(j.name)
	default:
		s.logger.Errorf(providers.TypeScheduler, "Job %s failed and will not be retried: %s", j.name, err)
	}
}

func (s *CronScheduler) scheduleRetry(j *job, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.jobs[j.name] != j || j.retry != nil {
		return
	}

	delay := j.backoff.NextBackOff()
	if delay == backoff.Stop || (j.scheduled && delay >= j.period) {
		s.logger.Warnf(providers.TypeScheduler, "Job %s failed: %s; waiting for the next period", j.name, cause)
		return
	}

	s.logger.Warnf(providers.TypeScheduler, "Job %s failed: %s; retrying in %s", j.name, cause, delay)
	j.retry = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		j.retry = nil
		s.mu.Unlock()
		s.dispatch(j, triggerRetry)
	}, "scheduler", "retry")
}

func (s *CronScheduler) stopRetryLocked(j *job) {
	if j.retry != nil {
		j.retry.Stop()
		j.retry = nil
	}
}

type cronLogger struct {
	logger providers.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugf(providers.TypeScheduler, "cron: %s %v", msg, keysAndValues)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorf(providers.TypeScheduler, "cron: %s: %s %v", msg, err, keysAndValues)
}
