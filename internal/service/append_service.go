package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/response"
)

// AppendRequest 解码并校验后的单条追加请求。
// 批量模式下 Author 从外层请求体继承。
type AppendRequest struct {
	Author           string   `json:"author"`
	Type             string   `json:"type"`
	Content          string   `json:"content"`
	Ref              string   `json:"ref"`
	Priority         string   `json:"priority"`
	Labels           []string `json:"labels"`
	DueAt            string   `json:"dueAt"`
	Assigned         string   `json:"assigned"`
	Value            string   `json:"value"`
	ExpiresInSeconds int      `json:"expiresInSeconds"`
}

// AppendResult 状态机产物：落库的追加行、响应补丁与事件名。
// Reclaimed 表示 claim 续租复用了既有行，没有新增追加。
type AppendResult struct {
	Append    *Append
	Patch     map[string]any
	EventName string
	Reclaimed bool
}

// AppendService 追加状态机。类型分派、claim 竞争裁决与批量原子执行
// 都在这里；鉴权、幂等与事件扇出由外层调度器负责。
type AppendService struct {
	repo  AppendRepository
	files FileRepository
	cfg   *config.Config
}

func NewAppendService(repo AppendRepository, files FileRepository, cfg *config.Config) *AppendService {
	return &AppendService{repo: repo, files: files, cfg: cfg}
}

// ResolveFile 按归一化路径定位活跃文件。
// 留有墓碑的路径回 FILE_DELETED，从未存在的回 FILE_NOT_FOUND。
func (s *AppendService) ResolveFile(ctx context.Context, workspaceID, path string) (*File, error) {
	return resolveActiveFile(ctx, s.files, workspaceID, path)
}

// validateRequest 请求层校验：作者语法、封闭类型集、内容上限、
// 各类型必填字段。claim/renew 的 expiresInSeconds 在这里补默认值。
func (s *AppendService) validateRequest(req *AppendRequest) error {
	if err := ValidateAuthor(req.Author); err != nil {
		return err
	}
	if _, ok := domain.AppendTypes[req.Type]; !ok {
		return ErrInvalidAppendType.WithMetadata(map[string]any{"type": req.Type})
	}
	if limit := s.cfg.Append.MaxSizeBytes; len(req.Content) > limit {
		return ErrPayloadTooLarge.WithMetadata(map[string]any{
			"limit": limit,
			"size":  len(req.Content),
		})
	}

	switch req.Type {
	case domain.AppendTypeClaim, domain.AppendTypeBlocked, domain.AppendTypeAnswer,
		domain.AppendTypeVote, domain.AppendTypeCancel, domain.AppendTypeRenew:
		if req.Ref == "" {
			return ErrInvalidRequest.WithMessage(fmt.Sprintf("ref is required for type %q", req.Type))
		}
	case domain.AppendTypeResponse:
		if req.Ref == "" {
			return ErrInvalidRequest.WithMessage("ref is required for type \"response\"")
		}
		if req.Content == "" {
			return ErrInvalidRequest.WithMessage("content is required for type \"response\"")
		}
	}

	if req.Type == domain.AppendTypeVote && req.Value != domain.VoteUp && req.Value != domain.VoteDown {
		return ErrInvalidRequest.WithMessage("value must be \"+1\" or \"-1\"")
	}

	if req.Type == domain.AppendTypeClaim || req.Type == domain.AppendTypeRenew {
		if req.ExpiresInSeconds == 0 {
			req.ExpiresInSeconds = domain.ClaimExpiresDefaultSeconds
		}
		if req.ExpiresInSeconds < domain.ClaimExpiresMinSeconds || req.ExpiresInSeconds > domain.ClaimExpiresMaxSeconds {
			return ErrInvalidRequest.WithMessage(fmt.Sprintf(
				"expiresInSeconds must be between %d and %d",
				domain.ClaimExpiresMinSeconds, domain.ClaimExpiresMaxSeconds))
		}
	}
	return nil
}

// Execute 执行单条追加。
// 非 claim 类型先在自动提交连接上取号：后续失败不回收编号，只留空洞。
// claim 走写事务，裁决与插入在同一把写锁下完成。
func (s *AppendService) Execute(ctx context.Context, key *CapabilityKey, file *File, req *AppendRequest, nowMS int64) (*AppendResult, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	if req.Type == domain.AppendTypeClaim {
		if err := s.checkWIPLimit(ctx, key, file.WorkspaceID, req.Author, nowMS); err != nil {
			return nil, err
		}
		var result *AppendResult
		err := s.repo.InTx(ctx, func(store AppendStore) error {
			r, err := s.claimOn(ctx, store, file, req, nowMS)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	seq, err := s.repo.NextAppendID(ctx, file.ID)
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case domain.AppendTypeResponse, domain.AppendTypeCancel, domain.AppendTypeRenew:
		// 要联动改既有行，包进写事务
		var result *AppendResult
		err := s.repo.InTx(ctx, func(store AppendStore) error {
			r, err := s.applyOn(ctx, store, file, req, seq, nowMS)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	default:
		return s.applyOn(ctx, s.repo, file, req, seq, nowMS)
	}
}

// ExecuteBatch 全有或全无的批量追加：预检全部条目后在单个写事务里
// 逐条执行，任一条失败整批回滚并返回该条的错误。
func (s *AppendService) ExecuteBatch(ctx context.Context, key *CapabilityKey, file *File, author string, items []*AppendRequest, nowMS int64) ([]*AppendResult, error) {
	if len(items) == 0 {
		return nil, ErrInvalidRequest.WithMessage("appends must not be empty")
	}
	hasClaim := false
	for _, item := range items {
		item.Author = author
		if err := s.validateRequest(item); err != nil {
			return nil, err
		}
		if item.Type == domain.AppendTypeClaim {
			hasClaim = true
		}
	}
	if hasClaim {
		if err := s.checkWIPLimit(ctx, key, file.WorkspaceID, author, nowMS); err != nil {
			return nil, err
		}
	}

	results := make([]*AppendResult, 0, len(items))
	err := s.repo.InTx(ctx, func(store AppendStore) error {
		results = results[:0]
		for _, item := range items {
			var res *AppendResult
			var err error
			if item.Type == domain.AppendTypeClaim {
				res, err = s.claimOn(ctx, store, file, item, nowMS)
			} else {
				seq, aerr := store.NextAppendID(ctx, file.ID)
				if aerr != nil {
					return aerr
				}
				res, err = s.applyOn(ctx, store, file, item, seq, nowMS)
			}
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// checkWIPLimit 事务外的咨询性上限检查，并发窗口内可能短暂超限。
func (s *AppendService) checkWIPLimit(ctx context.Context, key *CapabilityKey, workspaceID, author string, nowMS int64) error {
	if key == nil || key.WIPLimit <= 0 {
		return nil
	}
	count, err := s.repo.CountActiveClaimsByAuthor(ctx, workspaceID, author, nowMS)
	if err != nil {
		return fmt.Errorf("count active claims: %w", err)
	}
	if count >= int64(key.WIPLimit) {
		return ErrWIPLimitExceeded.WithMetadata(map[string]any{
			"currentCount": count,
			"limit":        key.WIPLimit,
		})
	}
	return nil
}

// claimOn claim 裁决，必须在写事务的 store 上调用：
// 校验目标 task → 查活跃 claim → 同主续租（不新增行）/ 他主 409 / 落新 claim。
func (s *AppendService) claimOn(ctx context.Context, store AppendStore, file *File, req *AppendRequest, nowMS int64) (*AppendResult, error) {
	target, err := store.GetByAppendID(ctx, file.ID, req.Ref)
	if err != nil {
		return nil, err
	}
	if target.Type != domain.AppendTypeTask {
		return nil, ErrInvalidRef
	}
	if target.Status == domain.StatusDone {
		return nil, ErrTaskAlreadyComplete
	}

	existing, err := store.FindActiveClaim(ctx, file.ID, req.Ref, nowMS)
	if err != nil {
		return nil, fmt.Errorf("find active claim: %w", err)
	}
	expiresIn := int64(req.ExpiresInSeconds)

	if existing != nil {
		if existing.Author != req.Author {
			return nil, ErrAlreadyClaimed.WithMetadata(map[string]any{
				"claimedBy":    existing.Author,
				"expiresAt":    response.ISOTime(time.UnixMilli(existing.ExpiresAt)),
				"retryAfterMs": max(int64(0), existing.ExpiresAt-nowMS),
			})
		}
		// 同主重复 claim 视作续租：只延长租约，不产生新行
		newExpiry := max(nowMS+expiresIn*1000, existing.ExpiresAt+1)
		if _, err := store.UpdateClaimExpiry(ctx, existing.ID, newExpiry); err != nil {
			return nil, fmt.Errorf("update claim expiry: %w", err)
		}
		existing.ExpiresAt = newExpiry
		return &AppendResult{
			Append:    existing,
			Patch:     claimPatch(req.Ref, newExpiry, req.ExpiresInSeconds),
			EventName: domain.EventClaimRenewed,
			Reclaimed: true,
		}, nil
	}

	seq, err := store.NextAppendID(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	claim := s.buildAppend(file, req, seq, nowMS)
	claim.Status = domain.StatusActive
	claim.ExpiresAt = nowMS + expiresIn*1000
	if err := store.Insert(ctx, claim); err != nil {
		return nil, fmt.Errorf("insert claim: %w", err)
	}
	return &AppendResult{
		Append:    claim,
		Patch:     claimPatch(req.Ref, claim.ExpiresAt, req.ExpiresInSeconds),
		EventName: domain.EventClaimCreated,
	}, nil
}

func claimPatch(ref string, expiresAtMS int64, expiresInSeconds int) map[string]any {
	return map[string]any{
		"ref":              ref,
		"expiresAt":        response.ISOTime(time.UnixMilli(expiresAtMS)),
		"expiresInSeconds": expiresInSeconds,
	}
}

// applyOn 非 claim 类型的分派执行。编号由调用方先取好传入；
// store 为池连接（插入即提交）或事务句柄（批量/联动类型）。
func (s *AppendService) applyOn(ctx context.Context, store AppendStore, file *File, req *AppendRequest, seq int64, nowMS int64) (*AppendResult, error) {
	a := s.buildAppend(file, req, seq, nowMS)
	patch := map[string]any{}
	event := domain.EventAppend

	switch req.Type {
	case domain.AppendTypeTask:
		a.Status = domain.StatusOpen
		a.Priority = req.Priority
		a.Labels = req.Labels
		a.DueAt = req.DueAt
		a.Assigned = req.Assigned
		patch["status"] = domain.StatusOpen
		if req.Priority != "" {
			patch["priority"] = req.Priority
		}
		if len(req.Labels) > 0 {
			patch["labels"] = req.Labels
		}
		if req.DueAt != "" {
			patch["dueAt"] = req.DueAt
		}
		if req.Assigned != "" {
			patch["assigned"] = req.Assigned
		}
		event = domain.EventTaskCreated

	case domain.AppendTypeComment:
		if req.Ref != "" {
			patch["ref"] = req.Ref
		}

	case domain.AppendTypeBlocked:
		// 不校验被阻塞任务是否存在，也不改它
		a.Status = domain.StatusActive
		patch["ref"] = req.Ref
		patch["status"] = domain.StatusActive
		event = domain.EventTaskBlocked

	case domain.AppendTypeAnswer:
		target, err := store.GetByAppendID(ctx, file.ID, req.Ref)
		if err != nil {
			return nil, err
		}
		if target.Type != domain.AppendTypeBlocked {
			return nil, ErrInvalidRef
		}
		patch["ref"] = req.Ref

	case domain.AppendTypeVote:
		a.Value = req.Value
		patch["ref"] = req.Ref
		patch["value"] = req.Value

	case domain.AppendTypeResponse:
		// 宽容语义：不校验目标存在；claim 完结、任务置 done、响应入列
		if _, err := store.CompleteActiveClaims(ctx, file.ID, req.Ref, nowMS); err != nil {
			return nil, fmt.Errorf("complete active claims: %w", err)
		}
		if _, err := store.SetTaskStatus(ctx, file.ID, req.Ref, domain.StatusDone); err != nil {
			return nil, fmt.Errorf("mark task done: %w", err)
		}
		patch["ref"] = req.Ref
		patch["taskStatus"] = domain.StatusDone
		event = domain.EventTaskCompleted

	case domain.AppendTypeCancel:
		target, err := store.GetByAppendID(ctx, file.ID, req.Ref)
		if err != nil {
			return nil, err
		}
		if target.Type != domain.AppendTypeClaim {
			return nil, ErrInvalidRef
		}
		if target.Author != req.Author {
			return nil, ErrCannotCancelOthersClaim
		}
		if _, err := store.UpdateStatus(ctx, target.ID, domain.StatusCancelled); err != nil {
			return nil, fmt.Errorf("cancel claim: %w", err)
		}
		if target.Ref != "" {
			if _, err := store.SetTaskStatus(ctx, file.ID, target.Ref, domain.StatusOpen); err != nil {
				return nil, fmt.Errorf("reopen task: %w", err)
			}
		}
		patch["ref"] = req.Ref
		patch["taskStatus"] = domain.StatusOpen
		event = domain.EventClaimReleased

	case domain.AppendTypeRenew:
		target, err := store.GetByAppendID(ctx, file.ID, req.Ref)
		if err != nil {
			return nil, err
		}
		if target.Type != domain.AppendTypeClaim {
			return nil, ErrInvalidRef
		}
		if target.Author != req.Author {
			return nil, ErrCannotRenewOthersClaim
		}
		// 续租只会推后到期，永不提前
		newExpiry := max(nowMS+int64(req.ExpiresInSeconds)*1000, target.ExpiresAt+1)
		if _, err := store.UpdateClaimExpiry(ctx, target.ID, newExpiry); err != nil {
			return nil, fmt.Errorf("renew claim: %w", err)
		}
		patch["ref"] = req.Ref
		patch["expiresAt"] = response.ISOTime(time.UnixMilli(newExpiry))
		event = domain.EventClaimRenewed

	default:
		// 透传：type 原样入库，无状态效应。封闭集校验在请求层完成，
		// 这里只为外层放行的类型兜底
		if req.Ref != "" {
			patch["ref"] = req.Ref
		}
	}

	if err := store.Insert(ctx, a); err != nil {
		return nil, fmt.Errorf("insert append: %w", err)
	}
	return &AppendResult{Append: a, Patch: patch, EventName: event}, nil
}

func (s *AppendService) buildAppend(file *File, req *AppendRequest, seq int64, nowMS int64) *Append {
	a := &Append{
		ID:        uuid.NewString(),
		FileID:    file.ID,
		AppendID:  fmt.Sprintf("a%d", seq),
		Seq:       seq,
		Author:    req.Author,
		Type:      req.Type,
		Ref:       req.Ref,
		Content:   req.Content,
		CreatedAt: nowMS,
	}
	if req.Content != "" {
		a.ContentPreview = truncateRunes(req.Content, s.cfg.Append.ContentPreviewLen)
		sum := sha256.Sum256([]byte(req.Content))
		a.ContentHash = hex.EncodeToString(sum[:])
	}
	return a
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
