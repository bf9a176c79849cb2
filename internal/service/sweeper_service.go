package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/logger"
	"github.com/padlog/padlog/internal/pkg/response"
)

var sweeperCronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

const (
	sweeperClaimBatch     = 500
	sweeperTombstoneBatch = 100
)

// SweeperService 周期性把到期的 claim 翻成 expired、清除过期墓碑文件。
// 正确性不依赖它：到期判定处处用 expires_at > now 内联完成，
// 扫除只是让读取方和订阅方看到终态。
//
// - 调度：五段 cron 表达式（分 时 日 月 周）。
// - 安全：批量小步删改，避免长事务压住写锁。
type SweeperService struct {
	appends AppendRepository
	files   FileRepository
	audits  AuditRepository
	bus     *EventBus
	cfg     *config.Config

	cron *cron.Cron

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewSweeperService(appends AppendRepository, files FileRepository, audits AuditRepository, bus *EventBus, cfg *config.Config) *SweeperService {
	return &SweeperService{appends: appends, files: files, audits: audits, bus: bus, cfg: cfg}
}

func (s *SweeperService) Start() {
	if s == nil {
		return
	}
	if s.cfg != nil && !s.cfg.Sweeper.Enabled {
		logger.L().Info("sweeper not started (disabled)")
		return
	}
	if s.appends == nil || s.files == nil {
		logger.L().Warn("sweeper not started (missing deps)")
		return
	}

	s.startOnce.Do(func() {
		schedule := "* * * * *"
		if s.cfg != nil && strings.TrimSpace(s.cfg.Sweeper.CronSpec) != "" {
			schedule = strings.TrimSpace(s.cfg.Sweeper.CronSpec)
		}

		c := cron.New(cron.WithParser(sweeperCronParser))
		_, err := c.AddFunc(schedule, func() { s.runOnce() })
		if err != nil {
			logger.L().Error("sweeper not started (invalid schedule)",
				zap.String("schedule", schedule), zap.Error(err))
			return
		}
		s.cron = c
		s.cron.Start()
		logger.L().Info("sweeper started", zap.String("schedule", schedule))
	})
}

func (s *SweeperService) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		if s.cron != nil {
			ctx := s.cron.Stop()
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
				logger.L().Warn("sweeper cron stop timed out")
			}
		}
	})
}

func (s *SweeperService) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.sweepClaims(ctx)
	s.purgeTombstones(ctx)
	s.purgeAuditTrail(ctx)
}

// sweepClaims 到期 claim 翻终态并广播 claim.expired。
// 循环批处理直到一轮扫不满为止。
func (s *SweeperService) sweepClaims(ctx context.Context) {
	nowMS := time.Now().UnixMilli()
	total := 0
	for {
		var swept []*SweptClaim
		err := s.appends.InTx(ctx, func(store AppendStore) error {
			var terr error
			swept, terr = store.ExpireClaimsBefore(ctx, nowMS, sweeperClaimBatch)
			return terr
		})
		if err != nil {
			logger.L().Warn("sweep expired claims failed", zap.Error(err))
			return
		}
		if len(swept) == 0 {
			break
		}
		total += len(swept)
		s.publishExpired(swept, nowMS)
		if len(swept) < sweeperClaimBatch {
			break
		}
	}
	if total > 0 {
		logger.L().Info("expired claims swept", zap.Int("count", total))
	}
}

func (s *SweeperService) publishExpired(swept []*SweptClaim, nowMS int64) {
	if s.bus == nil {
		return
	}
	ts := response.ISOTime(time.UnixMilli(nowMS))
	for _, c := range swept {
		s.bus.Publish(&Event{
			Name:        domain.EventClaimExpired,
			WorkspaceID: c.WorkspaceID,
			Path:        c.Path,
			AppendID:    c.AppendID,
			Author:      c.Author,
			Type:        domain.AppendTypeClaim,
			TS:          ts,
			Data: map[string]any{
				"id":        c.AppendID,
				"ref":       c.Ref,
				"claimedBy": c.Author,
				"expiresAt": response.ISOTime(time.UnixMilli(c.ExpiresAt)),
			},
		})
	}
}

// purgeTombstones 物理清除超过保留期的软删除文件（连带追加与计数器）。
func (s *SweeperService) purgeTombstones(ctx context.Context) {
	days := 7
	if s.cfg != nil && s.cfg.Sweeper.TombstoneRetentionDays > 0 {
		days = s.cfg.Sweeper.TombstoneRetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()

	purged, err := s.files.PurgeTombstonedBefore(ctx, cutoff, sweeperTombstoneBatch)
	if err != nil {
		logger.L().Warn("purge tombstoned files failed", zap.Error(err))
		return
	}
	if purged > 0 {
		logger.L().Info("tombstoned files purged", zap.Int64("count", purged))
	}
}

// purgeAuditTrail 审计流水按保留期裁剪。
func (s *SweeperService) purgeAuditTrail(ctx context.Context) {
	if s.audits == nil {
		return
	}
	days := 90
	if s.cfg != nil && s.cfg.Sweeper.AuditRetentionDays > 0 {
		days = s.cfg.Sweeper.AuditRetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()

	purged, err := s.audits.PurgeBefore(ctx, cutoff, sweeperClaimBatch)
	if err != nil {
		logger.L().Warn("purge audit events failed", zap.Error(err))
		return
	}
	if purged > 0 {
		logger.L().Info("audit events purged", zap.Int64("count", purged))
	}
}
