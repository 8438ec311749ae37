package storage

import (
	"errors"
	"testing"
	"usd/internal/testutil"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fmPayload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestFileManager(fs afero.Fs, compressor *testutil.MockCompressor) (*FileManager, *testutil.MockMetrics) {
	metrics := testutil.NewMockMetrics()
	conf := testutil.TestConfig("/var/lib/usd")
	return NewFileManager(conf, fs, compressor, metrics, &testutil.MockLogger{}), metrics
}

func TestFileManager_SaveCreatesFileAndRemovesTmp(t *testing.T) {
	fs := afero.NewMemMapFs()
	fm, metrics := newTestFileManager(fs, &testutil.MockCompressor{})

	require.NoError(t, fm.Save("state.json", &fmPayload{Name: "a", Count: 1}))

	exists, err := afero.Exists(fs, "/var/lib/usd/state.json")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = afero.Exists(fs, "/var/lib/usd/state.json.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 1, metrics.Persisted)
}

func TestFileManager_SaveThenLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	fm, _ := newTestFileManager(fs, &testutil.MockCompressor{})

	require.NoError(t, fm.Save("state.json", &fmPayload{Name: "queue", Count: 7}))

	var out fmPayload
	found, err := fm.Load("state.json", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, fmPayload{Name: "queue", Count: 7}, out)
}

func TestFileManager_LoadMissingFile(t *testing.T) {
	fm, _ := newTestFileManager(afero.NewMemMapFs(), &testutil.MockCompressor{})

	var out fmPayload
	found, err := fm.Load("absent.json", &out)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestFileManager_LoadEmptyFileIsIgnored(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/var/lib/usd/state.json", nil, 0o644))
	fm, _ := newTestFileManager(fs, &testutil.MockCompressor{})

	var out fmPayload
	found, err := fm.Load("state.json", &out)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestFileManager_LoadCorruptJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/var/lib/usd/state.json", []byte("{not json"), 0o644))
	fm, _ := newTestFileManager(fs, &testutil.MockCompressor{})

	var out fmPayload
	_, err := fm.Load("state.json", &out)
	assert.Error(t, err)
}

func TestFileManager_CompressErrorKeepsPreviousFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	comp := &testutil.MockCompressor{}
	fm, _ := newTestFileManager(fs, comp)
	require.NoError(t, fm.Save("state.json", &fmPayload{Name: "old"}))

	comp.CompressFn = func([]byte) ([]byte, error) { return nil, errors.New("boom") }
	assert.Error(t, fm.Save("state.json", &fmPayload{Name: "new"}))

	comp.CompressFn = nil
	var out fmPayload
	_, err := fm.Load("state.json", &out)
	require.NoError(t, err)
	assert.Equal(t, "old", out.Name)
}

func TestFileManager_ReadOnlyFsFails(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/var/lib/usd", 0o755))
	fm, metrics := newTestFileManager(afero.NewReadOnlyFs(base), &testutil.MockCompressor{})

	assert.Error(t, fm.Save("state.json", &fmPayload{Name: "x"}))
	assert.Equal(t, 0, metrics.Persisted)
}

func TestFileManager_WithZstd(t *testing.T) {
	zc, err := NewZstdCompressor()
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	fm := NewFileManager(testutil.TestConfig("/data"), fs, zc, testutil.NewMockMetrics(), &testutil.MockLogger{})
	defer fm.Close()

	require.NoError(t, fm.Save("state.json", &fmPayload{Name: "z", Count: 3}))

	raw, err := afero.ReadFile(fs, "/data/state.json")
	require.NoError(t, err)
	assert.Equal(t, zstdMagic, raw[:4])

	var out fmPayload
	found, err := fm.Load("state.json", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, out.Count)
}
