package storage

import (
	"sync"
	"time"
	"usd/internal/models"
	"usd/internal/providers"
	"usd/internal/storage/interfaces"
	"usd/internal/structures"
)

// SettingsStore holds the single settings record. Every setter goes through
// Update, which persists a full copy before publishing it.
type SettingsStore struct {
	mu          sync.RWMutex
	current     models.Settings
	defaults    structures.SettingsDefaults
	fileName    string
	fileManager *FileManager
	logger      providers.Logger
	changes     *notifier[models.SettingsChange]
}

func NewSettingsStore(conf *structures.Config, fileManager *FileManager, logger providers.Logger) interfaces.SettingsStoreInterface {
	return &SettingsStore{
		current:     settingsFromDefaults(conf.Settings),
		defaults:    conf.Settings,
		fileName:    conf.Storage.SettingsFile,
		fileManager: fileManager,
		logger:      logger,
		changes:     newNotifier[models.SettingsChange](),
	}
}

func settingsFromDefaults(d structures.SettingsDefaults) models.Settings {
	return models.Settings{
		EndpointURL:       d.EndpointURL,
		APIKey:            d.APIKey,
		DisplayName:       d.DisplayName,
		CollectionEnabled: d.CollectionEnabled,
	}
}

func (s *SettingsStore) Get() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *SettingsStore) EndpointURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.EndpointURL
}

func (s *SettingsStore) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.APIKey
}

func (s *SettingsStore) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.DisplayName
}

func (s *SettingsStore) CollectionEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.CollectionEnabled
}

func (s *SettingsStore) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.DeviceID
}

func (s *SettingsStore) LastCollectionTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return optionalTime(s.current.LastCollectionTime)
}

func (s *SettingsStore) LastSuccessfulUploadTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return optionalTime(s.current.LastSuccessfulUploadTime)
}

func optionalTime(t *time.Time) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}

func (s *SettingsStore) SetEndpointURL(url string) error {
	return s.Update(func(st *models.Settings) error {
		st.EndpointURL = url
		return nil
	})
}

func (s *SettingsStore) SetAPIKey(key string) error {
	return s.Update(func(st *models.Settings) error {
		st.APIKey = key
		return nil
	})
}

func (s *SettingsStore) SetDisplayName(name string) error {
	return s.Update(func(st *models.Settings) error {
		st.DisplayName = name
		return nil
	})
}

func (s *SettingsStore) SetCollectionEnabled(enabled bool) error {
	return s.Update(func(st *models.Settings) error {
		st.CollectionEnabled = enabled
		return nil
	})
}

func (s *SettingsStore) SetDeviceID(id string) error {
	return s.Update(func(st *models.Settings) error {
		st.DeviceID = id
		return nil
	})
}

func (s *SettingsStore) SetLastCollectionTime(t time.Time) error {
	return s.Update(func(st *models.Settings) error {
		t = t.UTC()
		st.LastCollectionTime = &t
		return nil
	})
}

func (s *SettingsStore) SetLastSuccessfulUploadTime(t time.Time) error {
	return s.Update(func(st *models.Settings) error {
		t = t.UTC()
		st.LastSuccessfulUploadTime = &t
		return nil
	})
}

// SaveConnection stores the connection form in one write.
func (s *SettingsStore) SaveConnection(url string, apiKey string, displayName string) error {
	return s.Update(func(st *models.Settings) error {
		st.EndpointURL = url
		st.APIKey = apiKey
		st.DisplayName = displayName
		return nil
	})
}

// Reset restores the configured connection defaults and disables collection.
// Checkpoints and the device id are kept.
func (s *SettingsStore) Reset() error {
	return s.Update(func(st *models.Settings) error {
		st.EndpointURL = s.defaults.EndpointURL
		st.APIKey = s.defaults.APIKey
		st.DisplayName = s.defaults.DisplayName
		st.CollectionEnabled = false
		return nil
	})
}

func (s *SettingsStore) Update(fn func(st *models.Settings) error) error {
	s.mu.Lock()
	next := s.current.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}

	keys := s.current.ChangedKeys(next)
	if len(keys) == 0 {
		s.mu.Unlock()
		return nil
	}

	if err := s.fileManager.Save(s.fileName, &next); err != nil {
		s.mu.Unlock()
		s.logger.Errorf(providers.TypeStorage, "Settings not persisted: %s", err)
		return models.NewPipelineError(models.KindStorage, "settings update", err)
	}
	s.current = next
	ticket := s.changes.ticket()
	s.mu.Unlock()

	s.changes.publish(ticket, models.SettingsChange{Keys: keys, Settings: next.Clone()})
	return nil
}

// Subscribe registers fn to receive every committed change, in commit order.
// The returned func removes the subscription.
func (s *SettingsStore) Subscribe(fn func(models.SettingsChange)) func() {
	return s.changes.subscribe(fn)
}

// Restore loads the persisted record over the configured defaults.
// Subscribers are not notified.
func (s *SettingsStore) Restore() error {
	loaded := settingsFromDefaults(s.defaults)
	found, err := s.fileManager.Load(s.fileName, &loaded)
	if err != nil {
		return models.NewPipelineError(models.KindStorage, "settings restore", err)
	}
	if !found {
		s.logger.Infof(providers.TypeStorage, "No settings at %s, using defaults", s.fileManager.Path(s.fileName))
		return nil
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()

	s.logger.Infof(providers.TypeStorage, "Restored settings from %s", s.fileManager.Path(s.fileName))
	return nil
}

func (s *SettingsStore) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fileManager.Save(s.fileName, &s.current); err != nil {
		return models.NewPipelineError(models.KindStorage, "settings flush", err)
	}
	return nil
}

