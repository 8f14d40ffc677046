package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"gorm.io/gorm"
)

// HealthHandler serves the deep health check.
type HealthHandler struct {
	db        *gorm.DB
	version   string
	startTime time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db *gorm.DB, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version, startTime: time.Now()}
}

// Register registers the health operation with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Health check",
		Description: "Returns overall status plus database, load, memory and process details. Status degrades when the database is unreachable.",
		Tags:        []string{"Health"},
	}, h.Get)
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status        string          `json:"status" enum:"ok,degraded" doc:"ok, or degraded when the database is unreachable"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Database      HealthDatabase  `json:"database"`
	Load          *HealthLoad     `json:"load,omitempty"`
	Memory        *HealthMemory   `json:"memory,omitempty"`
	Processes     []HealthProcess `json:"processes,omitempty" doc:"This process and its children, ffmpeg workers included"`
}

// HealthDatabase reports connection pool state and ping outcome.
type HealthDatabase struct {
	Healthy         bool   `json:"healthy"`
	Error           string `json:"error,omitempty"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"wait_count"`
}

// HealthLoad carries host load averages.
type HealthLoad struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// HealthMemory carries host memory usage.
type HealthMemory struct {
	TotalBytes uint64  `json:"total_bytes"`
	UsedBytes  uint64  `json:"used_bytes"`
	Percent    float64 `json:"percent"`
}

// HealthProcess is one process in the service tree.
type HealthProcess struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// HealthOutput wraps the health payload.
type HealthOutput struct {
	Body *HealthResponse
}

// Get runs the health probes. Host probes are best effort; only the
// database decides the overall status.
func (h *HealthHandler) Get(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	resp := &HealthResponse{
		Status:        "ok",
		Version:       h.version,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	resp.Database = h.checkDatabase(ctx)
	if !resp.Database.Healthy {
		resp.Status = "degraded"
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		resp.Load = &HealthLoad{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.Memory = &HealthMemory{TotalBytes: vm.Total, UsedBytes: vm.Used, Percent: vm.UsedPercent}
	}
	resp.Processes = processTree(ctx)

	return &HealthOutput{Body: resp}, nil
}

func (h *HealthHandler) checkDatabase(ctx context.Context) HealthDatabase {
	sqlDB, err := h.db.DB()
	if err != nil {
		return HealthDatabase{Error: err.Error()}
	}

	stats := sqlDB.Stats()
	db := HealthDatabase{
		Healthy:         true,
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		db.Healthy = false
		db.Error = err.Error()
	}
	return db
}

// processTree returns this process and its children. Encoding jobs show up
// here as ffmpeg children.
func processTree(ctx context.Context) []HealthProcess {
	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil
	}

	procs := []*process.Process{self}
	if children, err := self.ChildrenWithContext(ctx); err == nil {
		procs = append(procs, children...)
	}

	tree := make([]HealthProcess, 0, len(procs))
	for _, p := range procs {
		entry := HealthProcess{PID: p.Pid}
		if name, err := p.NameWithContext(ctx); err == nil {
			entry.Name = name
		}
		if pct, err := p.CPUPercentWithContext(ctx); err == nil {
			entry.CPUPercent = pct
		}
		if memInfo, err := p.MemoryInfoWithContext(ctx); err == nil {
			entry.RSSBytes = memInfo.RSS
		}
		tree = append(tree, entry)
	}
	return tree
}
