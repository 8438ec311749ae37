package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"usd/internal/providers"
	"usd/internal/storage/interfaces"
	"usd/internal/structures"

	json "github.com/goccy/go-json"
	"github.com/spf13/afero"
)

// FileManager writes whole-state snapshots under storage.dir. A snapshot is
// replaced atomically: readers see either the previous file or the new one.
type FileManager struct {
	fs         afero.Fs
	dir        string
	compressor interfaces.CompressorInterface
	metrics    providers.MetricsProviderInterface
	logger     providers.Logger
}

func NewFileManager(conf *structures.Config, fs afero.Fs, compressor interfaces.CompressorInterface, metrics providers.MetricsProviderInterface, logger providers.Logger) *FileManager {
	return &FileManager{
		fs:         fs,
		dir:        conf.Storage.Dir,
		compressor: compressor,
		metrics:    metrics,
		logger:     logger,
	}
}

func (f *FileManager) Path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *FileManager) Save(name string, v any) error {
	start := time.Now()

	jsonData, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data, err := f.compressor.Compress(jsonData)
	if err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}

	if err = f.fs.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}

	fileName := f.Path(name)
	tmpFile := fileName + ".tmp"
	file, err := f.fs.Create(tmpFile)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	if err != nil {
		file.Close()
		f.fs.Remove(tmpFile)
		return err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		f.fs.Remove(tmpFile)
		return err
	}

	if err = file.Close(); err != nil {
		f.fs.Remove(tmpFile)
		return err
	}

	if err = f.fs.Rename(tmpFile, fileName); err != nil {
		f.fs.Remove(tmpFile)
		return err
	}

	f.metrics.ObservePersistenceDuration(name, time.Since(start))
	return nil
}

// Load decodes the named snapshot into v. It reports false without error when
// the snapshot does not exist yet.
func (f *FileManager) Load(name string, v any) (bool, error) {
	fileName := f.Path(name)
	data, err := afero.ReadFile(f.fs, fileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	if len(data) == 0 {
		f.logger.Warnf(providers.TypeStorage, "Snapshot %s is empty, ignoring", fileName)
		return false, nil
	}

	decompressedData, err := f.compressor.Decompress(data)
	if err != nil {
		return false, fmt.Errorf("decompress %s: %w", name, err)
	}

	if err = json.Unmarshal(decompressedData, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (f *FileManager) Close() {
	f.compressor.Close()
}
