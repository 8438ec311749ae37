package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"usd/internal/models"
	"usd/internal/providers"
	"usd/internal/scheduler"
	schedulerinterfaces "usd/internal/scheduler/interfaces"
	"usd/internal/services"
	"usd/internal/storage/interfaces"

	json "github.com/goccy/go-json"
	"github.com/gookit/validate"
)

const (
	maxRequestBodySize = 1 << 20 // 1 MB
	defaultSampleLimit = 50
	maxSampleLimit     = 1000
	statusCacheKey     = "status"
)

var jobNames = []string{scheduler.CollectorJob, scheduler.UploaderJob}

type ApiController struct {
	logger   providers.Logger
	cache    providers.CacheProviderInterface
	queue    interfaces.SampleQueueInterface
	settings interfaces.SettingsStoreInterface
	identity services.DeviceIdentityInterface
	jobs     schedulerinterfaces.JobSchedulerInterface
}

// NewApiController wires the read and settings endpoints. The cached status
// document is dropped whenever the queue, the settings or a job state change.
func NewApiController(
	logger providers.Logger,
	cache providers.CacheProviderInterface,
	queue interfaces.SampleQueueInterface,
	settings interfaces.SettingsStoreInterface,
	identity services.DeviceIdentityInterface,
	jobs schedulerinterfaces.JobSchedulerInterface,
) *ApiController {
	ac := &ApiController{
		logger:   logger,
		cache:    cache,
		queue:    queue,
		settings: settings,
		identity: identity,
		jobs:     jobs,
	}
	queue.Subscribe(func(models.QueueStats) { cache.Del(statusCacheKey) })
	settings.Subscribe(func(models.SettingsChange) { cache.Del(statusCacheKey) })
	jobs.OnStateChange(func(string) { cache.Del(statusCacheKey) })
	return ac
}

type statusResponse struct {
	PendingCount             int        `json:"pendingCount"`
	LastError                string     `json:"lastError,omitempty"`
	LastCollectionTime       *time.Time `json:"lastCollectionTime,omitempty"`
	LastSuccessfulUploadTime *time.Time `json:"lastSuccessfulUploadTime,omitempty"`
	CollectionEnabled        bool       `json:"collectionEnabled"`
	DeviceID                 string     `json:"deviceId,omitempty"`
	ScheduledJobs            []string   `json:"scheduledJobs"`
	SuspendedJobs            []string   `json:"suspendedJobs"`
}

type settingsResponse struct {
	EndpointURL       string `json:"endpointUrl"`
	APIKey            string `json:"apiKey"`
	DisplayName       string `json:"displayName"`
	CollectionEnabled bool   `json:"collectionEnabled"`
	DeviceID          string `json:"deviceId,omitempty"`
}

// SettingsForm is the body of POST /settings.
type SettingsForm struct {
	EndpointURL string `json:"endpointUrl" validate:"required|maxLen:2048"`
	APIKey      string `json:"apiKey" validate:"required|maxLen:512"`
	DisplayName string `json:"displayName" validate:"maxLen:128"`
}

type collectionForm struct {
	Enabled *bool `json:"enabled"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Report any    `json:"report,omitempty"`
}

func (ac *ApiController) GetStatus(w http.ResponseWriter, r *http.Request) {
	if data, ok := ac.cache.Get(statusCacheKey); ok {
		writeRaw(w, http.StatusOK, data)
		return
	}

	s := ac.settings.Get()
	resp := statusResponse{
		PendingCount:             ac.queue.CountPending(),
		LastCollectionTime:       s.LastCollectionTime,
		LastSuccessfulUploadTime: s.LastSuccessfulUploadTime,
		CollectionEnabled:        s.CollectionEnabled,
		DeviceID:                 s.DeviceID,
		ScheduledJobs:            []string{},
		SuspendedJobs:            []string{},
	}
	if lastErr, ok := ac.queue.LastError(); ok {
		resp.LastError = lastErr
	}
	for _, name := range jobNames {
		if ac.jobs.IsScheduled(name) {
			resp.ScheduledJobs = append(resp.ScheduledJobs, name)
		}
		if ac.jobs.IsSuspended(name) {
			resp.SuspendedJobs = append(resp.SuspendedJobs, name)
		}
	}

	gson, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	ac.cache.Set(statusCacheKey, gson)
	writeRaw(w, http.StatusOK, gson)
}

func (ac *ApiController) GetSamples(w http.ResponseWriter, r *http.Request) {
	limit := defaultSampleLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxSampleLimit)
	}

	samples, err := ac.queue.GetPending(limit)
	if err != nil {
		writePipelineError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (ac *ApiController) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsView(ac.settings.Get()))
}

func (ac *ApiController) SaveSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var form SettingsForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Bad Request"})
		return
	}
	form.EndpointURL = strings.TrimSpace(form.EndpointURL)
	form.APIKey = strings.TrimSpace(form.APIKey)
	form.DisplayName = strings.TrimSpace(form.DisplayName)

	v := validate.Struct(&form)
	if !v.Validate() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: v.Errors.One()})
		return
	}
	endpoint, err := services.NormalizeEndpoint(form.EndpointURL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	current := ac.settings.Get()
	// A masked key echoed back from GET /settings keeps the stored one.
	apiKey := form.APIKey
	if apiKey == maskKey(current.APIKey) {
		apiKey = current.APIKey
	}

	if err = ac.settings.SaveConnection(endpoint, apiKey, form.DisplayName); err != nil {
		ac.logger.Errorf(providers.TypePost, "Could not save settings: %s", err)
		writePipelineError(w, err, nil)
		return
	}
	if _, err = ac.identity.EnsureDeviceId(r.Context()); err != nil {
		ac.logger.Errorf(providers.TypePost, "Could not refresh device id: %s", err)
		writePipelineError(w, err, nil)
		return
	}

	ac.logger.Infof(providers.TypePost, "Connection settings saved for %s", endpoint)
	writeJSON(w, http.StatusOK, settingsView(ac.settings.Get()))
}

func (ac *ApiController) ResetSettings(w http.ResponseWriter, r *http.Request) {
	if err := ac.settings.Reset(); err != nil {
		writePipelineError(w, err, nil)
		return
	}
	ac.logger.Infof(providers.TypePost, "Settings reset to defaults")
	writeJSON(w, http.StatusOK, settingsView(ac.settings.Get()))
}

func (ac *ApiController) SetCollection(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var form collectionForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil || form.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "enabled is required"})
		return
	}

	if err := ac.settings.SetCollectionEnabled(*form.Enabled); err != nil {
		writePipelineError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"collectionEnabled": *form.Enabled})
}

func settingsView(s models.Settings) settingsResponse {
	return settingsResponse{
		EndpointURL:       s.EndpointURL,
		APIKey:            maskKey(s.APIKey),
		DisplayName:       s.DisplayName,
		CollectionEnabled: s.CollectionEnabled,
		DeviceID:          s.DeviceID,
	}
}

// maskKey keeps the last four characters of keys longer than eight.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "********"
	}
	return "********" + key[len(key)-4:]
}

func writeRaw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	gson, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, gson)
}

// writePipelineError maps an error kind onto a status code. report, when not
// nil, is what the run managed before failing.
func writePipelineError(w http.ResponseWriter, err error, report any) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error(), Report: report}

	var pe *models.PipelineError
	if errors.As(err, &pe) {
		resp.Kind = pe.Kind.String()
		switch pe.Kind {
		case models.KindConfiguration:
			status = http.StatusPreconditionFailed
		case models.KindCollection, models.KindNetwork:
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, resp)
}
