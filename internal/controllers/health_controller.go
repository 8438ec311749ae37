package controllers

import (
	"fmt"
	"net/http"
	"time"
	"usd/internal/storage/interfaces"
)

type HealthController struct {
	queue     interfaces.SampleQueueInterface
	startTime time.Time
}

type healthResponse struct {
	Status        string  `json:"status"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	PendingCount  int     `json:"pending_count"`
}

func (hc *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(hc.startTime)
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Uptime:        formatDuration(uptime),
		UptimeSeconds: uptime.Seconds(),
		PendingCount:  hc.queue.CountPending(),
	})
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}

func NewHealthController(queue interfaces.SampleQueueInterface) *HealthController {
	return &HealthController{
		queue:     queue,
		startTime: time.Now(),
	}
}
