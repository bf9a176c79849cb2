package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/padlog/padlog/internal/config"
	infraerrors "github.com/padlog/padlog/internal/pkg/errors"
	"github.com/padlog/padlog/internal/pkg/logger"
)

var ErrIdempotencyKeyInvalid = infraerrors.BadRequest("INVALID_REQUEST", "idempotency key is invalid")

// maxStoredResponseLen 终态响应超过该长度时不落库，下一次重试重新执行。
const maxStoredResponseLen = 64 * 1024

// IdempotencyRecord 以 (capability_key_id, key) 为主键的幂等记录。
// ResponseStatus 为 0 表示首个请求仍在执行。
type IdempotencyRecord struct {
	CapabilityKeyID string
	Key             string
	ResponseStatus  int
	ResponseBody    string
	CreatedAt       int64
	FinalizedAt     int64
}

func (r *IdempotencyRecord) Pending() bool {
	return r.ResponseStatus == 0
}

type IdempotencyRepository interface {
	// InsertPending 抢占幂等键（ON CONFLICT 不覆盖），返回是否抢到。
	InsertPending(ctx context.Context, capabilityKeyID, key string, nowMS int64) (bool, error)
	// Get 查记录；不存在返回 nil。
	Get(ctx context.Context, capabilityKeyID, key string) (*IdempotencyRecord, error)
	// Finalize 仅当记录仍为执行中时写入终态响应。
	Finalize(ctx context.Context, capabilityKeyID, key string, status int, body string, nowMS int64) (bool, error)
	// DeletePending 仅删除执行中的记录，已终态的保留用于重放。
	DeletePending(ctx context.Context, capabilityKeyID, key string) (bool, error)
	// DeleteExpired 清理过期记录：已终态按 finalizedBefore，卡死的执行中按 pendingBefore。
	DeleteExpired(ctx context.Context, finalizedBeforeMS, pendingBeforeMS int64, limit int) (int64, error)
}

// IdempotencyOutcome Acquire 的三种去向：本请求执行（Owner）、
// 重放已存响应（Replayed），或两者皆否时由错误承载冲突。
type IdempotencyOutcome struct {
	Owner    bool
	Replayed bool
	Status   int
	Body     []byte
}

// IdempotencyService 保证同一能力密钥下同一幂等键至多执行一次。
// 后到的请求等待首个请求出结果并重放，等不到则 409。
type IdempotencyService struct {
	repo IdempotencyRepository
	cfg  *config.Config
}

func NewIdempotencyService(repo IdempotencyRepository, cfg *config.Config) *IdempotencyService {
	return &IdempotencyService{repo: repo, cfg: cfg}
}

// NormalizeIdempotencyKey 去首尾空白；空串表示未携带键。
// 超长或含不可见字符判为非法。
func NormalizeIdempotencyKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", nil
	}
	if len(key) > 256 {
		return "", ErrIdempotencyKeyInvalid
	}
	for _, r := range key {
		if r < 33 || r > 126 {
			return "", ErrIdempotencyKeyInvalid
		}
	}
	return key, nil
}

// Acquire 抢占幂等键。抢到则本请求执行；没抢到则轮询等待首个请求
// 的终态响应用于重放；等待窗口内仍无终态返回 ErrIdempotencyConflict。
// 首个请求失败清场后记录消失，等待者回到抢占重新竞争。
func (s *IdempotencyService) Acquire(ctx context.Context, capabilityKeyID, key string, nowMS int64) (*IdempotencyOutcome, error) {
	deadline := time.Now().Add(s.cfg.Idempotency.WaitTimeout())
	for {
		owner, err := s.repo.InsertPending(ctx, capabilityKeyID, key, nowMS)
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if owner {
			recordIdempotencyAcquired()
			return &IdempotencyOutcome{Owner: true}, nil
		}

		recordIdempotencyWait()
		vanished, outcome, err := s.waitForResult(ctx, capabilityKeyID, key, deadline)
		if err != nil {
			if errors.Is(err, ErrIdempotencyConflict) {
				recordIdempotencyConflict()
			}
			return nil, err
		}
		if !vanished {
			recordIdempotencyReplayed()
			return outcome, nil
		}
		if time.Now().After(deadline) {
			recordIdempotencyConflict()
			return nil, ErrIdempotencyConflict
		}
	}
}

// waitForResult 轮询已存在的记录直到终态或超时。
// 记录消失（原持有者失败清场）时返回 vanished=true 让调用方重新抢占。
func (s *IdempotencyService) waitForResult(ctx context.Context, capabilityKeyID, key string, deadline time.Time) (bool, *IdempotencyOutcome, error) {
	for {
		rec, err := s.repo.Get(ctx, capabilityKeyID, key)
		if err != nil {
			return false, nil, fmt.Errorf("poll idempotency key: %w", err)
		}
		if rec == nil {
			return true, nil, nil
		}
		if !rec.Pending() {
			return false, &IdempotencyOutcome{
				Replayed: true,
				Status:   rec.ResponseStatus,
				Body:     []byte(rec.ResponseBody),
			}, nil
		}
		if time.Now().After(deadline) {
			return false, nil, ErrIdempotencyConflict
		}
		select {
		case <-ctx.Done():
			return false, nil, ctx.Err()
		case <-time.After(s.cfg.Idempotency.PollInterval()):
		}
	}
}

// Complete 写入终态响应供后续重放。只保留成功报文：
// 错误报文或超长报文改为清场，让重试真正重新执行。
func (s *IdempotencyService) Complete(ctx context.Context, capabilityKeyID, key string, status int, body []byte) error {
	if status >= 400 || !gjson.GetBytes(body, "ok").Bool() || len(body) > maxStoredResponseLen {
		if _, err := s.repo.DeletePending(ctx, capabilityKeyID, key); err != nil {
			return fmt.Errorf("clear pending idempotency key: %w", err)
		}
		return nil
	}
	ok, err := s.repo.Finalize(ctx, capabilityKeyID, key, status, string(body), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("finalize idempotency key: %w", err)
	}
	if !ok {
		logger.FromContext(ctx).Warn("idempotency record was not pending at finalize",
			zap.String("capability_key_id", capabilityKeyID))
	}
	return nil
}

// Abandon 执行失败时清场，释放幂等键给后续重试。
func (s *IdempotencyService) Abandon(ctx context.Context, capabilityKeyID, key string) {
	if _, err := s.repo.DeletePending(ctx, capabilityKeyID, key); err != nil {
		logger.FromContext(ctx).Warn("failed to clear pending idempotency record",
			zap.String("capability_key_id", capabilityKeyID), zap.Error(err))
	}
}
