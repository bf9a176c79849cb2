package service

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/padlog/padlog/internal/pkg/logger"
)

// Version 编译期经 -ldflags 注入。
var Version = "dev"

// StatusReport /api/status 的完整载荷。
type StatusReport struct {
	Version     string                     `json:"version"`
	StartedAt   string                     `json:"startedAt"`
	UptimeSec   int64                      `json:"uptimeSec"`
	Go          GoRuntimeStatus            `json:"go"`
	Host        HostStatus                 `json:"host"`
	Store       *StoreCounts               `json:"store,omitempty"`
	Events      EventBusStatus             `json:"events"`
	Webhooks    WebhookQueueStatus         `json:"webhooks"`
	Idempotency IdempotencyMetricsSnapshot `json:"idempotency"`
	Audit       AuditServiceHealth         `json:"audit"`
}

type GoRuntimeStatus struct {
	Version    string `json:"version"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heapAllocBytes"`
	HeapSys    uint64 `json:"heapSysBytes"`
	NumGC      uint32 `json:"numGC"`
}

type HostStatus struct {
	CPUPercent float64 `json:"cpuPercent"`
	MemPercent float64 `json:"memPercent"`
	MemUsed    uint64  `json:"memUsedBytes"`
	MemTotal   uint64  `json:"memTotalBytes"`
}

type EventBusStatus struct {
	Subscribers int `json:"subscribers"`
}

type WebhookQueueStatus struct {
	Inflight int64 `json:"inflight"`
}

// StatusService 运行状态汇总：版本、运行时长、Go 运行时、宿主机
// CPU/内存、存储计数与各异步链路的积压情况。
type StatusService struct {
	stats    StatsRepository
	bus      *EventBus
	webhooks *WebhookService
	audit    *AuditService

	startedAt time.Time
}

func NewStatusService(stats StatsRepository, bus *EventBus, webhooks *WebhookService, audit *AuditService) *StatusService {
	return &StatusService{
		stats:     stats,
		bus:       bus,
		webhooks:  webhooks,
		audit:     audit,
		startedAt: time.Now(),
	}
}

func (s *StatusService) Report(ctx context.Context) *StatusReport {
	report := &StatusReport{
		Version:   Version,
		StartedAt: s.startedAt.UTC().Format(time.RFC3339),
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
		Go:        collectGoRuntime(),
		Host:      collectHost(),
	}

	if s.stats != nil {
		counts, err := s.stats.Counts(ctx)
		if err != nil {
			logger.FromContext(ctx).Warn("collect store counts failed", zap.Error(err))
		} else {
			report.Store = counts
		}
	}
	if s.bus != nil {
		report.Events.Subscribers = s.bus.SubscriberCount()
	}
	if s.webhooks != nil {
		report.Webhooks.Inflight = s.webhooks.InflightDeliveries()
	}
	report.Idempotency = GetIdempotencyMetricsSnapshot()
	if s.audit != nil {
		report.Audit = s.audit.Health()
	}
	return report
}

func collectGoRuntime() GoRuntimeStatus {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return GoRuntimeStatus{
		Version:    runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		NumGC:      ms.NumGC,
	}
}

// collectHost 宿主机指标尽力而为，采不到就留零值。
func collectHost() HostStatus {
	status := HostStatus{}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		status.MemPercent = vm.UsedPercent
		status.MemUsed = vm.Used
		status.MemTotal = vm.Total
	}
	return status
}
