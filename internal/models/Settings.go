package models

import "time"

const (
	KeyEndpointURL              = "endpointUrl"
	KeyAPIKey                   = "apiKey"
	KeyDisplayName              = "displayName"
	KeyCollectionEnabled        = "collectionEnabled"
	KeyDeviceID                 = "deviceId"
	KeyLastCollectionTime       = "lastCollectionTime"
	KeyLastSuccessfulUploadTime = "lastSuccessfulUploadTime"
)

type Settings struct {
	EndpointURL              string     `json:"endpointUrl"`
	APIKey                   string     `json:"apiKey"`
	DisplayName              string     `json:"displayName"`
	CollectionEnabled        bool       `json:"collectionEnabled"`
	DeviceID                 string     `json:"deviceId"`
	LastCollectionTime       *time.Time `json:"lastCollectionTime,omitempty"`
	LastSuccessfulUploadTime *time.Time `json:"lastSuccessfulUploadTime,omitempty"`
}

func (s Settings) Clone() Settings {
	c := s
	if s.LastCollectionTime != nil {
		t := *s.LastCollectionTime
		c.LastCollectionTime = &t
	}
	if s.LastSuccessfulUploadTime != nil {
		t := *s.LastSuccessfulUploadTime
		c.LastSuccessfulUploadTime = &t
	}
	return c
}

// ChangedKeys lists the persisted keys whose values differ between s and other.
func (s Settings) ChangedKeys(other Settings) []string {
	var keys []string
	if s.EndpointURL != other.EndpointURL {
		keys = append(keys, KeyEndpointURL)
	}
	if s.APIKey != other.APIKey {
		keys = append(keys, KeyAPIKey)
	}
	if s.DisplayName != other.DisplayName {
		keys = append(keys, KeyDisplayName)
	}
	if s.CollectionEnabled != other.CollectionEnabled {
		keys = append(keys, KeyCollectionEnabled)
	}
	if s.DeviceID != other.DeviceID {
		keys = append(keys, KeyDeviceID)
	}
	if !sameInstant(s.LastCollectionTime, other.LastCollectionTime) {
		keys = append(keys, KeyLastCollectionTime)
	}
	if !sameInstant(s.LastSuccessfulUploadTime, other.LastSuccessfulUploadTime) {
		keys = append(keys, KeyLastSuccessfulUploadTime)
	}
	return keys
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// SettingsChange is delivered to settings subscribers after a committed update.
type SettingsChange struct {
	Keys     []string
	Settings Settings
}

func (c SettingsChange) Has(key string) bool {
	for _, k := range c.Keys {
		if k == key {
			return true
		}
	}
	return false
}
