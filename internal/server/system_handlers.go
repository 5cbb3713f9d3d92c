package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/scheduler"
)

// JobController lists and starts registered jobs. scheduler.Scheduler satisfies it.
type JobController interface {
	Statuses() []scheduler.JobStatus
	Trigger(name string) error
}

// SystemHandlers serves host and database statistics and manual job triggers.
type SystemHandlers struct {
	log       zerolog.Logger
	databases []*database.DB
	jobs      JobController // Optional
}

// SystemStatsResponse describes host load
type SystemStatsResponse struct {
	CPUPercent  float64 `json:"cpu_percent"`
	RAMPercent  float64 `json:"ram_percent"`
	RAMTotalMB  float64 `json:"ram_total_mb"`
	LogicalCPUs int     `json:"logical_cpus"`
	Goroutines  int     `json:"goroutines"`
	Timestamp   string  `json:"timestamp"`
}

// DBInfo describes one database file
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	PageCount int64   `json:"page_count"`
	Error     string  `json:"error,omitempty"`
}

// DatabaseStatsResponse lists database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// NewSystemHandlers creates system handlers. Nil databases are ignored.
func NewSystemHandlers(log zerolog.Logger, databases []*database.DB, jobs JobController) *SystemHandlers {
	var dbs []*database.DB
	for _, db := range databases {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		databases: dbs,
		jobs:      jobs,
	}
}

// HandleSystemStats returns CPU and RAM usage
func (h *SystemHandlers) HandleSystemStats(w http.ResponseWriter, r *http.Request) {
	// 100ms sample keeps the call responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	response := SystemStatsResponse{
		CPUPercent:  cpuPercent[0],
		LogicalCPUs: runtime.NumCPU(),
		Goroutines:  runtime.NumGoroutine(),
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		response.RAMPercent = memStat.UsedPercent
		response.RAMTotalMB = float64(memStat.Total) / 1024 / 1024
	} else {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	response := DatabaseStatsResponse{
		Databases:   make([]DBInfo, 0, len(h.databases)),
		LastChecked: time.Now().Format(time.RFC3339),
	}

	for _, db := range h.databases {
		info := DBInfo{Name: db.Name(), Path: db.Path()}
		stats, err := db.GetStats()
		if err != nil {
			info.Error = err.Error()
		} else {
			info.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			info.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
			info.PageCount = stats.PageCount
			response.TotalSizeMB += info.SizeMB + info.WALSizeMB
		}
		response.Databases = append(response.Databases, info)
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleListJobs lists the registered jobs with their schedule and last run
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	statuses := []scheduler.JobStatus{}
	if h.jobs != nil {
		statuses = h.jobs.Statuses()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": statuses})
}

// HandleTriggerJob starts a registered job in the background
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := scheduler.ErrUnknownJob
	if h.jobs != nil {
		err = h.jobs.Trigger(name)
	}
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		h.writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  "error",
			"message": "unknown job: " + name,
		})
		return
	case errors.Is(err, scheduler.ErrJobRunning):
		h.writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "error",
			"message": name + " is already running",
		})
		return
	case err != nil:
		h.log.Error().Err(err).Str("job", name).Msg("Failed to trigger job")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	h.log.Info().Str("job", name).Msg("Job triggered manually")
	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": name + " started",
	})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
