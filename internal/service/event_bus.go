package service

import "sync"

// Event 进程内领域事件。Name 取 domain.Event* 常量，
// TS 为服务端毫秒精度 ISO 时间串。
type Event struct {
	Name        string         `json:"event"`
	WorkspaceID string         `json:"workspaceId"`
	Path        string         `json:"path,omitempty"`
	AppendID    string         `json:"appendId,omitempty"`
	Author      string         `json:"author,omitempty"`
	Type        string         `json:"type,omitempty"`
	TS          string         `json:"ts"`
	Data        map[string]any `json:"data,omitempty"`
}

type EventHandler func(evt *Event)

// EventBus 进程内同步事件总线。订阅分全局与按工作区两档，
// 发布时先快照订阅者再逐个调用，回调里退订不会死锁。
// 回调在发布方 goroutine 上执行，耗时工作自行异步化。
type EventBus struct {
	mu        sync.RWMutex
	nextID    int64
	global    map[int64]EventHandler
	workspace map[string]map[int64]EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{
		global:    make(map[int64]EventHandler),
		workspace: make(map[string]map[int64]EventHandler),
	}
}

// Subscribe 订阅全部工作区的事件，返回退订函数。
func (b *EventBus) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.global[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.global, id)
		b.mu.Unlock()
	}
}

// SubscribeWorkspace 只订阅单个工作区的事件。
func (b *EventBus) SubscribeWorkspace(workspaceID string, handler EventHandler) func() {
	if handler == nil || workspaceID == "" {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	subs, ok := b.workspace[workspaceID]
	if !ok {
		subs = make(map[int64]EventHandler)
		b.workspace[workspaceID] = subs
	}
	subs[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if subs, ok := b.workspace[workspaceID]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.workspace, workspaceID)
			}
		}
		b.mu.Unlock()
	}
}

// SubscriberCount 当前订阅者总数（全局 + 各工作区），状态接口用。
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.global)
	for _, subs := range b.workspace {
		n += len(subs)
	}
	return n
}

// Publish 同步分发事件。持锁期间只做快照，回调在锁外执行。
func (b *EventBus) Publish(evt *Event) {
	if evt == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.global)+8)
	for _, h := range b.global {
		handlers = append(handlers, h)
	}
	if subs, ok := b.workspace[evt.WorkspaceID]; ok {
		for _, h := range subs {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}
