package interfaces

import (
	"time"
	"usd/internal/models"
)

// SampleQueueInterface is the durable outbox of samples. Samples are never deleted.
type SampleQueueInterface interface {
	Insert(sample models.Sample) (int64, error)
	GetPending(limit int) ([]models.Sample, error)
	MarkSent(ids []int64, sentAt time.Time) error
	RecordFailure(id int64, errorMessage string) error
	RecordFailures(ids []int64, errorMessage string) error
	CountPending() int
	LastError() (string, bool)
	LatestIntervalEnd() (time.Time, bool)
	Stats() models.QueueStats
	Subscribe(fn func(models.QueueStats)) func()
	Restore() error
	Flush() error
}
