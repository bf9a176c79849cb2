package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type memAuditRepo struct {
	mu      sync.Mutex
	nextID  int64
	events  []*AuditEvent
	failAll bool
}

func (r *memAuditRepo) Insert(_ context.Context, evt *AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errors.New("disk on fire")
	}
	r.nextID++
	cp := *evt
	cp.ID = r.nextID
	r.events = append(r.events, &cp)
	return nil
}

func (r *memAuditRepo) ListByWorkspace(_ context.Context, workspaceID string, limit int) ([]*AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*AuditEvent
	for _, evt := range r.events {
		if evt.WorkspaceID == workspaceID {
			cp := *evt
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memAuditRepo) PurgeBefore(_ context.Context, cutoffMS int64, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*AuditEvent
	var purged int64
	for _, evt := range r.events {
		if evt.CreatedAt < cutoffMS && (limit <= 0 || purged < int64(limit)) {
			purged++
			continue
		}
		kept = append(kept, evt)
	}
	r.events = kept
	return purged, nil
}

func (r *memAuditRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestAuditStopDrainsQueue(t *testing.T) {
	repo := &memAuditRepo{}
	svc := NewAuditService(repo)
	svc.Start()

	for i := 0; i < 250; i++ {
		svc.Record(&AuditEvent{WorkspaceID: "ws1", Action: "append", CreatedAt: fixtureNow})
	}
	svc.Stop()

	require.Equal(t, 250, repo.count(), "queued events must be flushed before shutdown")
	require.Equal(t, uint64(250), svc.Health().WrittenCount)
	require.Zero(t, svc.Health().DroppedCount)
}

func TestAuditRecordDropsWhenFull(t *testing.T) {
	repo := &memAuditRepo{}
	svc := NewAuditService(repo)
	// 不启动消费者，把队列灌满
	for i := 0; i < cap(svc.queue)+7; i++ {
		svc.Record(&AuditEvent{Action: "append", CreatedAt: fixtureNow})
	}

	health := svc.Health()
	require.Equal(t, health.QueueCapacity, health.QueueDepth)
	require.Equal(t, uint64(7), health.DroppedCount)
}

func TestAuditRecordActionMarshalsMetadata(t *testing.T) {
	repo := &memAuditRepo{}
	svc := NewAuditService(repo)
	svc.Start()

	svc.RecordAction("ws1", "claim", "append", "a3", "alice", "agent", map[string]any{
		"path":     "/team/todo.md",
		"leaseSec": 1800,
		"secret":   "whsec_should_never_persist",
	})
	svc.Stop()

	events, err := repo.ListByWorkspace(context.Background(), "ws1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	evt := events[0]
	require.Equal(t, "claim", evt.Action)
	require.Equal(t, "append", evt.ResourceType)
	require.Equal(t, "a3", evt.ResourceID)
	require.Equal(t, "alice", evt.Actor)
	require.Equal(t, "agent", evt.ActorType)
	require.Positive(t, evt.CreatedAt, "missing CreatedAt is stamped on record")
	require.Equal(t, "/team/todo.md", gjson.Get(evt.Metadata, "path").String())
	require.Equal(t, int64(1800), gjson.Get(evt.Metadata, "leaseSec").Int())
	// 敏感字段落库前被抹掉
	require.Equal(t, "***", gjson.Get(evt.Metadata, "secret").String())
	require.NotContains(t, evt.Metadata, "whsec_should_never_persist")
}

func TestAuditInsertFailureOnlyCounts(t *testing.T) {
	repo := &memAuditRepo{failAll: true}
	svc := NewAuditService(repo)
	svc.Start()

	svc.Record(&AuditEvent{Action: "append", CreatedAt: fixtureNow})
	svc.Record(&AuditEvent{Action: "claim", CreatedAt: fixtureNow})
	svc.Stop()

	health := svc.Health()
	require.Equal(t, uint64(2), health.WriteFailed)
	require.Zero(t, health.WrittenCount)
	require.Zero(t, repo.count())
}

func TestAuditNilServiceIsSafe(t *testing.T) {
	var svc *AuditService
	svc.Record(&AuditEvent{Action: "append"})
	svc.RecordAction("ws1", "append", "file", "f1", "alice", "agent", nil)
	svc.Stop()
	require.Equal(t, AuditServiceHealth{}, svc.Health())
}
