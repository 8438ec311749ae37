package storage

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
	"usd/internal/models"
	"usd/internal/providers"
	"usd/internal/storage/interfaces"
	"usd/internal/structures"

	"github.com/coder/quartz"
)

const queueSnapshotVersion = 1

// SampleQueue keeps every sample in memory, ordered by id, and mirrors the
// whole set to a single snapshot file. Mutations build a new slice, persist
// it, and only then publish it, so a failed write changes nothing.
type SampleQueue struct {
	mu          sync.RWMutex
	samples     []models.Sample
	nextID      int64
	fileName    string
	fileManager *FileManager
	clock       quartz.Clock
	logger      providers.Logger
	changes     *notifier[models.QueueStats]
}

func NewSampleQueue(conf *structures.Config, fileManager *FileManager, clock quartz.Clock, logger providers.Logger) interfaces.SampleQueueInterface {
	return &SampleQueue{
		nextID:      1,
		fileName:    conf.Storage.QueueFile,
		fileManager: fileManager,
		clock:       clock,
		logger:      logger,
		changes:     newNotifier[models.QueueStats](),
	}
}

func (q *SampleQueue) Insert(sample models.Sample) (int64, error) {
	q.mu.Lock()
	id := q.nextID
	s := sample.Clone()
	s.ID = id
	s.Status = models.StatusPending
	s.CreatedAt = q.clock.Now().UTC()
	s.SentAt = nil
	s.AttemptCount = 0
	s.LastError = ""

	next := make([]models.Sample, len(q.samples), len(q.samples)+1)
	copy(next, q.samples)
	next = append(next, s)

	if err := q.commit(next, id+1, "insert"); err != nil {
		q.mu.Unlock()
		return 0, err
	}
	q.unlockAndNotify()
	return id, nil
}

// GetPending returns copies of up to limit pending samples, oldest first.
// A non-positive limit returns every pending sample.
func (q *SampleQueue) GetPending(limit int) ([]models.Sample, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	pending := make([]models.Sample, 0)
	for i := range q.samples {
		if q.samples[i].IsPending() {
			pending = append(pending, q.samples[i].Clone())
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID < pending[j].ID
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkSent moves every listed sample to SENT in one write. An unknown id
// rejects the whole call. Samples that are already SENT keep their sentAt.
func (q *SampleQueue) MarkSent(ids []int64, sentAt time.Time) error {
	sentAt = sentAt.UTC()
	return q.mutate("mark sent", ids, func(s *models.Sample) bool {
		if !s.IsPending() {
			return false
		}
		t := sentAt
		s.Status = models.StatusSent
		s.SentAt = &t
		return true
	})
}

func (q *SampleQueue) RecordFailure(id int64, errorMessage string) error {
	return q.RecordFailures([]int64{id}, errorMessage)
}

// RecordFailures counts one failed attempt for every listed pending sample.
// Duplicate ids in the list count once.
func (q *SampleQueue) RecordFailures(ids []int64, errorMessage string) error {
	return q.mutate("record failure", ids, func(s *models.Sample) bool {
		if !s.IsPending() {
			return false
		}
		s.AttemptCount++
		s.LastError = errorMessage
		return true
	})
}

func (q *SampleQueue) mutate(op string, ids []int64, apply func(s *models.Sample) bool) error {
	if len(ids) == 0 {
		return nil
	}

	q.mu.Lock()
	var next []models.Sample
	changed := false
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		idx, ok := q.indexOf(id)
		if !ok {
			q.mu.Unlock()
			return fmt.Errorf("%s: %w: %d", op, models.ErrSampleNotFound, id)
		}
		if next == nil {
			next = slices.Clone(q.samples)
		}
		s := next[idx]
		if apply(&s) {
			next[idx] = s
			changed = true
		}
	}
	if !changed {
		q.mu.Unlock()
		return nil
	}

	if err := q.commit(next, q.nextID, op); err != nil {
		q.mu.Unlock()
		return err
	}
	q.unlockAndNotify()
	return nil
}

func (q *SampleQueue) CountPending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.countPendingLocked()
}

// LastError reports the error of the most recently created sample that has one.
func (q *SampleQueue) LastError() (string, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.lastErrorLocked()
}

// LatestIntervalEnd is the end of the newest window ever inserted.
func (q *SampleQueue) LatestIntervalEnd() (time.Time, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var latest time.Time
	for i := range q.samples {
		if q.samples[i].IntervalEnd.After(latest) {
			latest = q.samples[i].IntervalEnd
		}
	}
	return latest, !latest.IsZero()
}

func (q *SampleQueue) Stats() models.QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.statsLocked()
}

// Subscribe registers fn to receive queue stats after every committed
// mutation, in commit order. The returned func removes the subscription.
func (q *SampleQueue) Subscribe(fn func(models.QueueStats)) func() {
	return q.changes.subscribe(fn)
}

func (q *SampleQueue) Restore() error {
	var snapshot models.QueueSnapshot
	found, err := q.fileManager.Load(q.fileName, &snapshot)
	if err != nil {
		return models.NewPipelineError(models.KindStorage, "queue restore", err)
	}
	if !found {
		q.logger.Infof(providers.TypeStorage, "No queue snapshot at %s, starting empty", q.fileManager.Path(q.fileName))
		return nil
	}
	if snapshot.Version > queueSnapshotVersion {
		return models.NewPipelineError(models.KindStorage, "queue restore",
			fmt.Errorf("unsupported snapshot version %d", snapshot.Version))
	}

	samples := snapshot.Samples
	sort.Slice(samples, func(i, j int) bool { return samples[i].ID < samples[j].ID })

	nextID := max(snapshot.NextID, 1)
	if n := len(samples); n > 0 && samples[n-1].ID >= nextID {
		nextID = samples[n-1].ID + 1
	}

	q.mu.Lock()
	q.samples = samples
	q.nextID = nextID
	pending := q.countPendingLocked()
	q.unlockAndNotify()

	q.logger.Infof(providers.TypeStorage, "Restored %d samples (%d pending) from %s", len(samples), pending, q.fileManager.Path(q.fileName))
	return nil
}

func (q *SampleQueue) Flush() error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if err := q.fileManager.Save(q.fileName, q.snapshotOf(q.samples, q.nextID)); err != nil {
		return models.NewPipelineError(models.KindStorage, "queue flush", err)
	}
	return nil
}

func (q *SampleQueue) commit(next []models.Sample, nextID int64, op string) error {
	if err := q.fileManager.Save(q.fileName, q.snapshotOf(next, nextID)); err != nil {
		q.logger.Errorf(providers.TypeStorage, "Queue %s not persisted: %s", op, err)
		return models.NewPipelineError(models.KindStorage, "queue "+op, err)
	}
	q.samples = next
	q.nextID = nextID
	return nil
}

func (q *SampleQueue) snapshotOf(samples []models.Sample, nextID int64) *models.QueueSnapshot {
	return &models.QueueSnapshot{
		Version: queueSnapshotVersion,
		NextID:  nextID,
		Samples: samples,
	}
}

// indexOf relies on samples being sorted by id, which holds because ids are
// assigned in insertion order and Restore sorts.
func (q *SampleQueue) indexOf(id int64) (int, bool) {
	idx := sort.Search(len(q.samples), func(i int) bool { return q.samples[i].ID >= id })
	if idx < len(q.samples) && q.samples[idx].ID == id {
		return idx, true
	}
	return 0, false
}

func (q *SampleQueue) countPendingLocked() int {
	count := 0
	for i := range q.samples {
		if q.samples[i].IsPending() {
			count++
		}
	}
	return count
}

func (q *SampleQueue) lastErrorLocked() (string, bool) {
	var latest *models.Sample
	for i := range q.samples {
		s := &q.samples[i]
		if s.LastError == "" {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) ||
			(s.CreatedAt.Equal(latest.CreatedAt) && s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return "", false
	}
	return latest.LastError, true
}

func (q *SampleQueue) statsLocked() models.QueueStats {
	lastError, _ := q.lastErrorLocked()
	return models.QueueStats{
		Pending:   q.countPendingLocked(),
		LastError: lastError,
	}
}

// unlockAndNotify releases q.mu, which must be write-locked, and publishes
// the stats as of the commit.
func (q *SampleQueue) unlockAndNotify() {
	stats := q.statsLocked()
	ticket := q.changes.ticket()
	q.mu.Unlock()
	q.changes.publish(ticket, stats)
}
