package interfaces

import (
	"context"
	"time"
)

// SchedulerInterface drives the daemon's background work over its lifetime.
type SchedulerInterface interface {
	Init()
	Stop()
	Restore() error
	Persist() error
}

// Constraints gate when a job run may start.
type Constraints struct {
	RequiresNetwork bool
}

type JobFunc func(ctx context.Context) error

type JobSchedulerInterface interface {
	// Schedule registers a periodic job. It returns false when a periodic job
	// with the same name already exists.
	Schedule(name string, period time.Duration, constraints Constraints, fn JobFunc) bool
	Cancel(name string) bool
	// RunOnce starts one run now. When name is already registered the
	// registered function and constraints are used.
	RunOnce(name string, constraints Constraints, fn JobFunc)
	Resume(name string) bool
	IsScheduled(name string) bool
	IsSuspended(name string) bool
	// OnStateChange registers fn to be called with the job name whenever a
	// job is scheduled, cancelled, suspended or resumed. fn must not call
	// back into the scheduler.
	OnStateChange(fn func(name string))
	Start()
	Stop(ctx context.Context) error
}
