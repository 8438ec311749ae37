package models

import "time"

type CollectionReport struct {
	Inserted      bool      `json:"inserted"`
	SampleID      int64     `json:"sampleId,omitempty"`
	IntervalStart time.Time `json:"intervalStart"`
	IntervalEnd   time.Time `json:"intervalEnd"`
	Records       int       `json:"records"`
}

type UploadReport struct {
	Attempted int             `json:"attempted"`
	Sent      int             `json:"sent"`
	DeviceID  string          `json:"deviceId,omitempty"`
	Response  *IngestResponse `json:"response,omitempty"`
}

type ConnectionReport struct {
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode"`
	Ok         bool   `json:"ok"`
	Records    int    `json:"records,omitempty"`
	Message    string `json:"message,omitempty"`
}
