package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/tikgrab/internal/downloader"
	"github.com/iconidentify/tikgrab/internal/ratelimit"
	"github.com/iconidentify/tikgrab/internal/service"
)

var startTime = time.Now()

// FreeSpacer reports free bytes on the storage volume.
type FreeSpacer interface {
	FreeSpace() (int64, error)
}

// ProxyChecker probes the download proxy.
type ProxyChecker interface {
	Check(ctx context.Context) *downloader.ProbeResult
}

// HealthDeps are the components health and stats report on. Any of them
// may be nil.
type HealthDeps struct {
	StoragePath string
	Storage     FreeSpacer
	Proxy       ProxyChecker
	Limiter     interface{ Stats() ratelimit.Stats }
	Cache       interface{ CacheLen() int }
	Downloads   interface{ InFlight() []service.Operation }
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	deps HealthDeps
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe. Storage must be reachable.
// An unhealthy proxy only degrades readiness since direct download and
// handoff still work.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: map[string]string{},
	}
	status := http.StatusOK

	if h.deps.Storage != nil {
		if free, err := h.deps.Storage.FreeSpace(); err != nil {
			resp.Status = "error"
			resp.Components["storage"] = "unavailable: " + err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Components["storage"] = humanize.Bytes(uint64(free)) + " free"
		}
	}

	if h.deps.Proxy != nil {
		res := h.deps.Proxy.Check(ctx)
		if res.Healthy {
			resp.Components["proxy"] = "ok"
		} else {
			resp.Components["proxy"] = "unhealthy: " + res.Error
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
	}

	writeJSON(w, status, resp)
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime         int64   `json:"uptime_seconds"`
	UptimeHuman    string  `json:"uptime_human"`
	MemAllocMB     int64   `json:"mem_alloc_mb"`
	MemSysMB       int64   `json:"mem_sys_mb"`
	MemHeapMB      int64   `json:"mem_heap_mb"`
	NumGoroutines  int     `json:"num_goroutines"`
	NumCPU         int     `json:"num_cpu"`
	CPUPct         float64 `json:"cpu_pct"`
	DiskUsedBytes  int64   `json:"disk_used_bytes"`
	DiskFreeBytes  int64   `json:"disk_free_bytes"`
	DiskTotalBytes int64   `json:"disk_total_bytes"`
	DiskUsedPct    float64 `json:"disk_used_pct"`
	DiskFreeHuman  string  `json:"disk_free_human"`
	StoragePath    string  `json:"storage_path"`

	DownloadsInFlight int              `json:"downloads_in_flight"`
	CacheEntries      int              `json:"cache_entries"`
	RateLimit         *ratelimit.Stats `json:"rate_limit,omitempty"`
}

// Stats handles GET /api/v1/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPct:        getCPUUsage(),
		StoragePath:   h.deps.StoragePath,
	}

	if h.deps.StoragePath != "" {
		stats.DiskTotalBytes, stats.DiskFreeBytes, stats.DiskUsedBytes, stats.DiskUsedPct = getDiskStats(h.deps.StoragePath)
		stats.DiskFreeHuman = humanize.Bytes(uint64(stats.DiskFreeBytes))
	}
	if h.deps.Downloads != nil {
		stats.DownloadsInFlight = len(h.deps.Downloads.InFlight())
	}
	if h.deps.Cache != nil {
		stats.CacheEntries = h.deps.Cache.CacheLen()
	}
	if h.deps.Limiter != nil {
		rl := h.deps.Limiter.Stats()
		stats.RateLimit = &rl
	}

	writeJSON(w, http.StatusOK, stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
