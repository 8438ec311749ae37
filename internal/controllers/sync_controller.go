package controllers

import (
	"net/http"
	"usd/internal/providers"
	"usd/internal/services"
)

// SyncController runs pipeline operations on demand. The services serialize
// themselves, so a manual run never overlaps a scheduled one.
type SyncController struct {
	logger    providers.Logger
	collector services.CollectorServiceInterface
	uploader  services.UploaderServiceInterface
}

func NewSyncController(logger providers.Logger, collector services.CollectorServiceInterface, uploader services.UploaderServiceInterface) *SyncController {
	return &SyncController{
		logger:    logger,
		collector: collector,
		uploader:  uploader,
	}
}

func (sc *SyncController) Collect(w http.ResponseWriter, r *http.Request) {
	report, err := sc.collector.Collect(r.Context())
	if err != nil {
		sc.logger.Warnf(providers.TypePost, "Manual collection failed: %s", err)
		writePipelineError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (sc *SyncController) Upload(w http.ResponseWriter, r *http.Request) {
	report, err := sc.uploader.Upload(r.Context())
	if err != nil {
		sc.logger.Warnf(providers.TypePost, "Manual upload failed: %s", err)
		if report != nil {
			writePipelineError(w, err, report)
		} else {
			writePipelineError(w, err, nil)
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (sc *SyncController) TestConnection(w http.ResponseWriter, r *http.Request) {
	report, err := sc.uploader.TestConnection(r.Context())
	if err != nil {
		writePipelineError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (sc *SyncController) SendTestRequest(w http.ResponseWriter, r *http.Request) {
	report, err := sc.uploader.SendTestRequest(r.Context())
	if err != nil {
		writePipelineError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
