package scheduler

import (
	"context"
	"usd/internal/scheduler/interfaces"
	"usd/internal/services"
	"usd/internal/structures"
)

const (
	CollectorJob = "usage-collector"
	UploaderJob  = "usage-uploader"
)

// JobUploadTrigger runs the uploader once through the job scheduler, so a
// triggered run obeys the same constraints and overlap rules as a periodic one.
type JobUploadTrigger struct {
	jobs        interfaces.JobSchedulerInterface
	uploader    services.UploaderServiceInterface
	constraints interfaces.Constraints
}

func NewUploadTrigger(conf *structures.Config, jobs interfaces.JobSchedulerInterface, uploader services.UploaderServiceInterface) services.UploadTrigger {
	return &JobUploadTrigger{
		jobs:        jobs,
		uploader:    uploader,
		constraints: interfaces.Constraints{RequiresNetwork: conf.Uploader.RequiresNetwork},
	}
}

func (t *JobUploadTrigger) TriggerUpload() {
	t.jobs.RunOnce(UploaderJob, t.constraints, t.run)
}

func (t *JobUploadTrigger) run(ctx context.Context) error {
	_, err := t.uploader.Upload(ctx)
	return err
}
