package service

import (
	"github.com/google/wire"

	"github.com/padlog/padlog/internal/config"
)

// ProvideAuditService 构造并启动异步审计落库通道。
func ProvideAuditService(repo AuditRepository) *AuditService {
	svc := NewAuditService(repo)
	svc.Start()
	return svc
}

// ProvideTimingWheelService 构造并启动时间轮。
func ProvideTimingWheelService() (*TimingWheelService, error) {
	svc, err := NewTimingWheelService()
	if err != nil {
		return nil, err
	}
	svc.Start()
	return svc, nil
}

// ProvideWebhookService 构造投递器并挂上事件总线。
func ProvideWebhookService(repo WebhookRepository, wheel *TimingWheelService, cfg *config.Config, bus *EventBus) *WebhookService {
	svc := NewWebhookService(repo, wheel, cfg)
	svc.BindBus(bus)
	return svc
}

// ProvideSweeperService 构造并启动租约清扫 cron。
func ProvideSweeperService(appends AppendRepository, files FileRepository, audits AuditRepository, bus *EventBus, cfg *config.Config) *SweeperService {
	svc := NewSweeperService(appends, files, audits, bus, cfg)
	svc.Start()
	return svc
}

// ProvideIdempotencyCleanupService 构造并启动幂等记录清理循环。
func ProvideIdempotencyCleanupService(repo IdempotencyRepository, cfg *config.Config) *IdempotencyCleanupService {
	svc := NewIdempotencyCleanupService(repo, cfg)
	svc.Start()
	return svc
}

// ProviderSet is the Wire provider set for services
var ProviderSet = wire.NewSet(
	NewEventBus,
	NewCapabilityService,
	NewAuthzService,
	NewAppendService,
	NewFileService,
	NewWorkspaceService,
	NewIdempotencyService,
	NewStatusService,
	ProvideAuditService,
	ProvideTimingWheelService,
	ProvideWebhookService,
	ProvideSweeperService,
	ProvideIdempotencyCleanupService,
)
