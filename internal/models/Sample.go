package models

import "time"

type SampleStatus string

const (
	StatusPending SampleStatus = "PENDING"
	StatusSent    SampleStatus = "SENT"
)

// Record is one application usage measurement inside a sample.
type Record struct {
	PackageName          string `json:"packageName"`
	AppLabel             string `json:"appLabel"`
	UsageMillisIncrement uint64 `json:"usageMillisIncrement"`
}

// UsageReading is one observation from a usage source. Reading does not
// consume usage; Commit does, and later readings then only report what came
// after it.
type UsageReading struct {
	Records []Record
	commit  func()
}

func NewUsageReading(records []Record, commit func()) *UsageReading {
	return &UsageReading{Records: records, commit: commit}
}

func (r *UsageReading) Commit() {
	if r != nil && r.commit != nil {
		r.commit()
	}
}

// Sample is one queued batch of records covering [IntervalStart, IntervalEnd).
type Sample struct {
	ID            int64        `json:"id"`
	IntervalStart time.Time    `json:"intervalStart"`
	IntervalEnd   time.Time    `json:"intervalEnd"`
	Payload       []Record     `json:"payload"`
	Status        SampleStatus `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	SentAt        *time.Time   `json:"sentAt,omitempty"`
	AttemptCount  int          `json:"attemptCount"`
	LastError     string       `json:"lastError,omitempty"`
}

func (s *Sample) IsPending() bool {
	return s.Status == StatusPending
}

// Clone returns a deep copy so callers never share payload slices with the queue.
func (s *Sample) Clone() Sample {
	c := *s
	if s.Payload != nil {
		c.Payload = make([]Record, len(s.Payload))
		copy(c.Payload, s.Payload)
	}
	if s.SentAt != nil {
		t := *s.SentAt
		c.SentAt = &t
	}
	return c
}

// QueueSnapshot is the on-disk envelope of the sample queue.
type QueueSnapshot struct {
	Version int      `json:"version"`
	NextID  int64    `json:"nextId"`
	Samples []Sample `json:"samples"`
}

// QueueStats is delivered to queue subscribers after every committed mutation.
type QueueStats struct {
	Pending   int    `json:"pending"`
	LastError string `json:"lastError,omitempty"`
}
