package services

import (
	"testing"
	"time"
	"usd/internal/storage"
	"usd/internal/storage/interfaces"
	"usd/internal/structures"
	"usd/internal/testutil"

	"github.com/coder/quartz"
	"github.com/spf13/afero"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type pipelineFixture struct {
	conf       *structures.Config
	fs         afero.Fs
	clock      *quartz.Mock
	compressor *testutil.MockCompressor
	queue      interfaces.SampleQueueInterface
	settings   interfaces.SettingsStoreInterface
	metrics    *testutil.MockMetrics
	logger     *testutil.MockLogger
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	conf := testutil.TestConfig("/data")
	fs := afero.NewMemMapFs()
	clock := quartz.NewMock(t)
	clock.Set(t0)
	comp := &testutil.MockCompressor{}
	metrics := testutil.NewMockMetrics()
	logger := &testutil.MockLogger{}

	fm := storage.NewFileManager(conf, fs, comp, metrics, logger)
	return &pipelineFixture{
		conf:       conf,
		fs:         fs,
		clock:      clock,
		compressor: comp,
		queue:      storage.NewSampleQueue(conf, fm, clock, logger),
		settings:   storage.NewSettingsStore(conf, fm, logger),
		metrics:    metrics,
		logger:     logger,
	}
}
