package testutil

import (
	"context"
	"sync"
	"time"
	"usd/internal/models"
	"usd/internal/providers"
	"usd/internal/structures"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// Count returns how many entries were logged at level.
func (m *MockLogger) Count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Logs {
		if e.Level == level {
			n++
		}
	}
	return n
}

// MockCache implements providers.CacheProviderInterface.
type MockCache struct {
	mu   sync.Mutex
	Data map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{Data: make(map[string][]byte)}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.Data[key]
	return val, ok
}

func (m *MockCache) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
}

func (m *MockCache) Del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
}

// MockCompressor implements interfaces.CompressorInterface with injectable behavior.
type MockCompressor struct {
	CompressFn   func([]byte) ([]byte, error)
	DecompressFn func([]byte) ([]byte, error)
}

func (m *MockCompressor) Compress(val []byte) ([]byte, error) {
	if m.CompressFn != nil {
		return m.CompressFn(val)
	}
	// Default: return as-is (identity)
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Decompress(val []byte) ([]byte, error) {
	if m.DecompressFn != nil {
		return m.DecompressFn(val)
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MockCompressor) Close() {}

// MockMetrics implements providers.MetricsProviderInterface and counts pipeline events.
type MockMetrics struct {
	mu               sync.Mutex
	Collections      map[string]int
	Uploads          map[string]int
	JobRuns          map[string]int
	RecordsCollected int
	SamplesUploaded  int
	Pending          int
	Persisted        int
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		Collections: make(map[string]int),
		Uploads:     make(map[string]int),
		JobRuns:     make(map[string]int),
	}
}

func (m *MockMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (m *MockMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (m *MockMetrics) IncCacheHits()                                    {}
func (m *MockMetrics) IncCacheMisses()                                  {}
func (m *MockMetrics) ObserveUploadDuration(_ time.Duration)            {}

func (m *MockMetrics) ObservePersistenceDuration(_ string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Persisted++
}

func (m *MockMetrics) IncCollectionsTotal(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Collections[result]++
}

func (m *MockMetrics) AddRecordsCollected(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordsCollected += count
}

func (m *MockMetrics) IncUploadsTotal(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Uploads[result]++
}

func (m *MockMetrics) AddSamplesUploaded(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SamplesUploaded += count
}

func (m *MockMetrics) IncJobRuns(job string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.JobRuns[job+":"+outcome]++
}

func (m *MockMetrics) SetPendingSamples(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pending = count
}

func (m *MockMetrics) JobRunCount(job string, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.JobRuns[job+":"+outcome]
}

func (m *MockMetrics) PendingSamples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Pending
}

// MockUsageSource implements services.UsageSourceInterface.
type MockUsageSource struct {
	mu        sync.Mutex
	Records   []models.Record
	Err       error
	CollectFn func(ctx context.Context, start, end time.Time) ([]models.Record, error)
	Windows   [][2]time.Time
	commits   int
}

func (m *MockUsageSource) CollectUsage(ctx context.Context, start, end time.Time) (*models.UsageReading, error) {
	m.mu.Lock()
	m.Windows = append(m.Windows, [2]time.Time{start, end})
	fn, records, err := m.CollectFn, m.Records, m.Err
	m.mu.Unlock()

	if fn != nil {
		out, err := fn(ctx, start, end)
		if err != nil {
			return nil, err
		}
		return models.NewUsageReading(out, m.commit), nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, len(records))
	copy(out, records)
	return models.NewUsageReading(out, m.commit), nil
}

func (m *MockUsageSource) commit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
}

func (m *MockUsageSource) Calls() [][2]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][2]time.Time, len(m.Windows))
	copy(out, m.Windows)
	return out
}

// Commits counts readings the caller consumed.
func (m *MockUsageSource) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// MockUploadTrigger implements services.UploadTrigger.
type MockUploadTrigger struct {
	mu    sync.Mutex
	Count int
}

func (m *MockUploadTrigger) TriggerUpload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Count++
}

func (m *MockUploadTrigger) Triggered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Count
}

// MockModelProvider implements services.ModelProviderInterface.
type MockModelProvider struct {
	Name string
}

func (m *MockModelProvider) Model(_ context.Context) string {
	return m.Name
}

// TestConfig returns a config with the defaults the daemon ships with,
// rooted at dir.
func TestConfig(dir string) *structures.Config {
	return &structures.Config{
		AppName: "UsageSyncDaemon",
		Version: "test",
		Storage: structures.StorageConfig{
			Dir:          dir,
			QueueFile:    "samples.db",
			SettingsFile: "settings.json",
			Compress:     true,
		},
		Collector: structures.CollectorConfig{
			Interval:        15 * time.Minute,
			DefaultLookback: 15 * time.Minute,
			Timeout:         30 * time.Second,
		},
		Uploader: structures.UploaderConfig{
			Interval:        time.Hour,
			BatchLimit:      50,
			Timeout:         30 * time.Second,
			IngestPath:      "/api/ingest",
			AuthHeader:      "X-API-Key",
			RequiresNetwork: true,
		},
		Scheduler: structures.SchedulerConfig{
			RetryInitialInterval: 30 * time.Second,
			RetryMaxInterval:     10 * time.Minute,
			NetworkCheckInterval: 5 * time.Second,
		},
		Settings: structures.SettingsDefaults{
			DisplayName: "User",
		},
	}
}
