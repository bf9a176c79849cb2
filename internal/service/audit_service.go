package service

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/padlog/padlog/internal/pkg/logger"
	"github.com/padlog/padlog/internal/util/logredact"
)

// AuditServiceHealth 审计写入链路的健康指标，状态接口暴露。
type AuditServiceHealth struct {
	QueueDepth    int64  `json:"queue_depth"`
	QueueCapacity int64  `json:"queue_capacity"`
	DroppedCount  uint64 `json:"dropped_count"`
	WriteFailed   uint64 `json:"write_failed_count"`
	WrittenCount  uint64 `json:"written_count"`
}

// AuditService 审计流水异步落库。Record 非阻塞：队列满直接丢弃
// 并计数，绝不让审计拖慢请求。
type AuditService struct {
	repo AuditRepository

	queue         chan *AuditEvent
	batchSize     int
	flushInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	droppedCount uint64
	writeFailed  uint64
	writtenCount uint64
}

func NewAuditService(repo AuditRepository) *AuditService {
	ctx, cancel := context.WithCancel(context.Background())
	return &AuditService{
		repo:          repo,
		queue:         make(chan *AuditEvent, 4096),
		batchSize:     100,
		flushInterval: time.Second,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (s *AuditService) Start() {
	if s == nil || s.repo == nil {
		return
	}
	s.wg.Add(1)
	go s.run()
}

func (s *AuditService) Stop() {
	if s == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

// Record 入队一条审计事件。CreatedAt 为零时补当前时间。
func (s *AuditService) Record(evt *AuditEvent) {
	if s == nil || evt == nil {
		return
	}
	if evt.CreatedAt == 0 {
		evt.CreatedAt = time.Now().UnixMilli()
	}
	select {
	case s.queue <- evt:
	default:
		atomic.AddUint64(&s.droppedCount, 1)
	}
}

// RecordAction Record 的便捷包装，metadata 在这里脱敏并序列化。
// 密钥明文、订阅密钥等字段即使被调用方塞进来也不会落库。
func (s *AuditService) RecordAction(workspaceID, action, resourceType, resourceID, actor, actorType string, metadata map[string]any) {
	evt := &AuditEvent{
		WorkspaceID:  workspaceID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Actor:        actor,
		ActorType:    actorType,
	}
	if len(metadata) > 0 {
		if raw, err := json.Marshal(logredact.RedactMap(metadata)); err == nil {
			evt.Metadata = string(raw)
		}
	}
	s.Record(evt)
}

func (s *AuditService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]*AuditEvent, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.flushBatch(batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-s.ctx.Done():
			// 停机前排空队列，否则已入队的流水会丢
			for {
				select {
				case evt := <-s.queue:
					if evt != nil {
						batch = append(batch, evt)
						if len(batch) >= s.batchSize {
							flush()
						}
					}
				default:
					flush()
					return
				}
			}
		case evt := <-s.queue:
			if evt == nil {
				continue
			}
			batch = append(batch, evt)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *AuditService) flushBatch(batch []*AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, evt := range batch {
		if err := s.repo.Insert(ctx, evt); err != nil {
			atomic.AddUint64(&s.writeFailed, 1)
			logger.L().Warn("audit insert failed",
				zap.String("action", evt.Action), zap.Error(err))
			continue
		}
		atomic.AddUint64(&s.writtenCount, 1)
	}
}

func (s *AuditService) Health() AuditServiceHealth {
	if s == nil {
		return AuditServiceHealth{}
	}
	return AuditServiceHealth{
		QueueDepth:    int64(len(s.queue)),
		QueueCapacity: int64(cap(s.queue)),
		DroppedCount:  atomic.LoadUint64(&s.droppedCount),
		WriteFailed:   atomic.LoadUint64(&s.writeFailed),
		WrittenCount:  atomic.LoadUint64(&s.writtenCount),
	}
}
