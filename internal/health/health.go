package health

import (
	"context"
	"math"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	// diskDegradedPercent is the disk usage above which new captures are
	// at risk of failing.
	diskDegradedPercent = 95.0
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthChecker struct {
	db        Pinger
	diskPath  string
	startedAt time.Time
}

type HealthStatus struct {
	Status     string          `json:"status"`
	Uptime     string          `json:"uptime"`
	Goroutines int             `json:"goroutines"`
	Memory     MemoryStats     `json:"memory"`
	Host       *HostStats      `json:"host,omitempty"`
	Database   *DatabaseHealth `json:"database,omitempty"`
}

type MemoryStats struct {
	AllocMB      float64 `json:"alloc_mb"`
	TotalAllocMB float64 `json:"total_alloc_mb"`
	SysMB        float64 `json:"sys_mb"`
	NumGC        uint32  `json:"num_gc"`
}

// HostStats is only reported when the platform exposes it.
type HostStats struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	DiskPath          string  `json:"disk_path,omitempty"`
	DiskUsedPercent   float64 `json:"disk_used_percent"`
	DiskFreeGB        float64 `json:"disk_free_gb"`
}

type DatabaseHealth struct {
	Status       string `json:"status"`
	ResponseTime int64  `json:"response_time_ms"`
}

// NewHealthChecker reports on the disk holding diskPath. An empty path
// skips the disk check (S3 storage).
func NewHealthChecker(diskPath string) *HealthChecker {
	return &HealthChecker{diskPath: diskPath, startedAt: time.Now()}
}

// WithDatabase adds a database ping to every check.
func (h *HealthChecker) WithDatabase(db Pinger) *HealthChecker {
	h.db = db
	return h
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := StatusHealthy

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	result := HealthStatus{
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryStats{
			AllocMB:      toMB(memStats.Alloc),
			TotalAllocMB: toMB(memStats.TotalAlloc),
			SysMB:        toMB(memStats.Sys),
			NumGC:        memStats.NumGC,
		},
		Host: h.checkHost(ctx),
	}

	if result.Host != nil && result.Host.DiskUsedPercent >= diskDegradedPercent {
		status = StatusDegraded
	}

	if h.db != nil {
		dbHealth := h.checkDatabase(ctx)
		result.Database = &dbHealth
		if dbHealth.Status != StatusHealthy {
			status = StatusUnhealthy
		}
	}

	result.Status = status
	return result
}

func (h *HealthChecker) checkHost(ctx context.Context) *HostStats {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil
	}
	stats := &HostStats{MemoryUsedPercent: round2(vm.UsedPercent)}

	if h.diskPath != "" {
		usage, err := disk.UsageWithContext(ctx, h.diskPath)
		if err == nil {
			stats.DiskPath = h.diskPath
			stats.DiskUsedPercent = round2(usage.UsedPercent)
			stats.DiskFreeGB = round2(float64(usage.Free) / 1024 / 1024 / 1024)
		}
	}
	return stats
}

func (h *HealthChecker) checkDatabase(ctx context.Context) DatabaseHealth {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.db.Ping(ctx)
	responseTime := time.Since(start).Milliseconds()

	if err != nil {
		return DatabaseHealth{Status: StatusUnhealthy, ResponseTime: responseTime}
	}
	return DatabaseHealth{Status: StatusHealthy, ResponseTime: responseTime}
}

func toMB(b uint64) float64 { return round2(float64(b) / 1024 / 1024) }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
