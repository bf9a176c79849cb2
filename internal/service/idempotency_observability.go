package service

import (
	"sync/atomic"
)

// IdempotencyMetricsSnapshot 幂等链路的进程内累计计数，
// 随 /api/status 上报。
type IdempotencyMetricsSnapshot struct {
	// Acquired 本请求抢到键、实际执行的次数
	Acquired uint64 `json:"acquired"`
	// Replayed 命中已存终态响应、直接重放的次数
	Replayed uint64 `json:"replayed"`
	// Conflicts 等待窗口内没等到终态、返回 409 的次数
	Conflicts uint64 `json:"conflicts"`
	// Waits 进入轮询等待的请求数（含最终重放与最终冲突的）
	Waits uint64 `json:"waits"`
}

type idempotencyMetrics struct {
	acquired  atomic.Uint64
	replayed  atomic.Uint64
	conflicts atomic.Uint64
	waits     atomic.Uint64
}

var defaultIdempotencyMetrics idempotencyMetrics

// GetIdempotencyMetricsSnapshot 读取当前幂等指标快照。
func GetIdempotencyMetricsSnapshot() IdempotencyMetricsSnapshot {
	return IdempotencyMetricsSnapshot{
		Acquired:  defaultIdempotencyMetrics.acquired.Load(),
		Replayed:  defaultIdempotencyMetrics.replayed.Load(),
		Conflicts: defaultIdempotencyMetrics.conflicts.Load(),
		Waits:     defaultIdempotencyMetrics.waits.Load(),
	}
}

func recordIdempotencyAcquired() { defaultIdempotencyMetrics.acquired.Add(1) }
func recordIdempotencyReplayed() { defaultIdempotencyMetrics.replayed.Add(1) }
func recordIdempotencyConflict() { defaultIdempotencyMetrics.conflicts.Add(1) }
func recordIdempotencyWait()     { defaultIdempotencyMetrics.waits.Add(1) }

func resetIdempotencyMetricsForTest() {
	defaultIdempotencyMetrics.acquired.Store(0)
	defaultIdempotencyMetrics.replayed.Store(0)
	defaultIdempotencyMetrics.conflicts.Store(0)
	defaultIdempotencyMetrics.waits.Store(0)
}
