package interfaces

import (
	"time"
	"usd/internal/models"
)

type SettingsStoreInterface interface {
	Get() models.Settings
	EndpointURL() string
	APIKey() string
	DisplayName() string
	CollectionEnabled() bool
	DeviceID() string
	LastCollectionTime() (time.Time, bool)
	LastSuccessfulUploadTime() (time.Time, bool)

	SetEndpointURL(url string) error
	SetAPIKey(key string) error
	SetDisplayName(name string) error
	SetCollectionEnabled(enabled bool) error
	SetDeviceID(id string) error
	SetLastCollectionTime(t time.Time) error
	SetLastSuccessfulUploadTime(t time.Time) error
	SaveConnection(url string, apiKey string, displayName string) error

	// Update applies fn to a copy of the settings and commits the copy
	// atomically. Returning an error from fn discards the copy.
	Update(fn func(s *models.Settings) error) error
	Reset() error
	Subscribe(fn func(models.SettingsChange)) func()
	Restore() error
	Flush() error
}
