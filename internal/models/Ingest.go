package models

const IngestSchemaVersion = 1

type IngestSample struct {
	SampleID      string   `json:"sampleId"`
	IntervalStart string   `json:"intervalStart"`
	IntervalEnd   string   `json:"intervalEnd"`
	Records       []Record `json:"records"`
}

type IngestRequest struct {
	SchemaVersion int            `json:"schemaVersion"`
	DeviceID      string         `json:"deviceId"`
	CollectedAt   string         `json:"collectedAt"`
	Samples       []IngestSample `json:"samples"`
}

// IngestResponse is the optional body of a 2xx ingest reply.
// Ok is a pointer so an absent field can be told apart from an explicit false.
type IngestResponse struct {
	StatusCode      int   `json:"-"`
	Ok              *bool `json:"ok,omitempty"`
	Duplicates      int   `json:"duplicates"`
	InsertedSamples int   `json:"insertedSamples"`
	InsertedRecords int   `json:"insertedRecords"`
}

func (r *IngestResponse) Rejected() bool {
	return r != nil && r.Ok != nil && !*r.Ok
}
