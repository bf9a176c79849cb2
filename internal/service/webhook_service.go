package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/imroc/req/v3"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/httpclient"
	"github.com/padlog/padlog/internal/pkg/logger"
	"github.com/padlog/padlog/internal/pkg/pathutil"
	"github.com/padlog/padlog/internal/pkg/response"
	"github.com/padlog/padlog/internal/util/urlvalidator"
)

// signatureHeader 带密钥订阅的 HMAC-SHA256 签名头。
const signatureHeader = "X-Padlog-Signature"

// WebhookService 事件回调投递。订阅来自数据库与启动时加载的静态
// YAML 文件两路；投递全程 fire-and-forget，失败重试耗尽后放弃，
// 绝不回灌请求主链路。跨事件的投递顺序不做保证。
type WebhookService struct {
	repo   WebhookRepository
	wheel  *TimingWheelService
	cfg    *config.Config
	client *req.Client
	static []*WebhookSubscription

	inflight atomic.Int64
}

func NewWebhookService(repo WebhookRepository, wheel *TimingWheelService, cfg *config.Config) *WebhookService {
	timeout := 10 * time.Second
	proxyURL := ""
	if cfg != nil {
		if cfg.Webhook.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second
		}
		proxyURL = cfg.Webhook.ProxyURL
	}
	svc := &WebhookService{
		repo:  repo,
		wheel: wheel,
		cfg:   cfg,
		client: httpclient.Get(httpclient.Options{
			Timeout:   timeout,
			ProxyURL:  proxyURL,
			UserAgent: "padlog-webhook/" + Version,
		}),
	}
	if cfg != nil && cfg.Webhook.SubscriptionsFile != "" {
		svc.static = loadStaticSubscriptions(cfg.Webhook.SubscriptionsFile)
	}
	return svc
}

// loadStaticSubscriptions 读取运维侧静态订阅。文件有问题只告警，
// 不阻塞启动。
func loadStaticSubscriptions(path string) []*WebhookSubscription {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.L().Warn("read webhook subscriptions file failed",
			zap.String("path", path), zap.Error(err))
		return nil
	}
	var subs []*WebhookSubscription
	if err := yaml.Unmarshal(data, &subs); err != nil {
		logger.L().Warn("parse webhook subscriptions file failed",
			zap.String("path", path), zap.Error(err))
		return nil
	}
	for i, sub := range subs {
		if sub.ID == "" {
			sub.ID = fmt.Sprintf("static-%d", i+1)
		}
		sub.Active = true
	}
	logger.L().Info("static webhook subscriptions loaded",
		zap.String("path", path), zap.Int("count", len(subs)))
	return subs
}

// BindBus 把自己挂到事件总线上。
func (s *WebhookService) BindBus(bus *EventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(s.HandleEvent)
}

// HandleEvent 事件总线回调入口，转后台协程后立即返回。
func (s *WebhookService) HandleEvent(ev *Event) {
	if ev == nil || s.cfg == nil || !s.cfg.Webhook.Enabled {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Add(-1)
		s.dispatch(ev)
	}()
}

// InflightDeliveries 在途投递数，状态接口用。
func (s *WebhookService) InflightDeliveries() int64 {
	return s.inflight.Load()
}

func (s *WebhookService) dispatch(ev *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	subs, err := s.repo.ListActive(ctx, ev.WorkspaceID)
	cancel()
	if err != nil {
		logger.L().Warn("list webhook subscriptions failed",
			zap.String("workspace_id", ev.WorkspaceID), zap.Error(err))
	}
	subs = append(subs, s.static...)
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"event":       ev.Name,
		"workspaceId": ev.WorkspaceID,
		"filePath":    ev.Path,
		"data":        ev.Data,
		"timestamp":   ev.TS,
	})
	if err != nil {
		logger.L().Warn("marshal webhook payload failed",
			zap.String("event", ev.Name), zap.Error(err))
		return
	}

	for _, sub := range subs {
		if !sub.Matches(ev.WorkspaceID, ev.Name, ev.Path) {
			continue
		}
		s.deliver(sub, payload, uuid.NewString(), 1)
	}
}

// deliver 单次投递尝试。失败时按指数退避把下次尝试排进时间轮，
// 同一次投递的各轮共享 deliveryId。
func (s *WebhookService) deliver(sub *WebhookSubscription, payload []byte, deliveryID string, attempt int) {
	if !s.targetAllowed(sub.URL) {
		logger.L().Warn("webhook target rejected",
			zap.String("delivery_id", deliveryID), zap.String("url", sub.URL))
		return
	}

	body := payload
	body, _ = sjson.SetBytes(body, "deliveryId", deliveryID)
	body, _ = sjson.SetBytes(body, "attempt", attempt)
	body, _ = sjson.SetBytes(body, "sentAt", response.ISOTime(time.Now()))

	r := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if sub.Secret != "" {
		r.SetHeader(signatureHeader, signPayload(sub.Secret, body))
	}

	resp, err := r.Post(sub.URL)
	if err == nil && resp.IsSuccessState() {
		return
	}

	status := 0
	if err == nil {
		status = resp.StatusCode
	}
	logger.L().Warn("webhook delivery failed",
		zap.String("delivery_id", deliveryID),
		zap.String("url", sub.URL),
		zap.Int("attempt", attempt),
		zap.Int("status", status),
		zap.Error(err))

	maxAttempts := s.cfg.Webhook.MaxAttempts
	if attempt >= maxAttempts {
		logger.L().Warn("webhook delivery abandoned",
			zap.String("delivery_id", deliveryID),
			zap.String("url", sub.URL),
			zap.Int("attempts", attempt))
		return
	}

	backoff := time.Duration(s.cfg.Webhook.RetryBackoffSeconds) * time.Second
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	delay := backoff << (attempt - 1)
	next := func() {
		s.inflight.Add(1)
		defer s.inflight.Add(-1)
		s.deliver(sub, payload, deliveryID, attempt+1)
	}
	if s.wheel != nil {
		s.wheel.Schedule(fmt.Sprintf("webhook:%s:%d", deliveryID, attempt+1), delay, next)
		return
	}
	time.AfterFunc(delay, next)
}

// targetAllowed 投递前复核目标地址。每轮尝试都重查，
// 订阅创建后目标解析到内网同样拦截。
func (s *WebhookService) targetAllowed(rawURL string) bool {
	if s.cfg != nil && s.cfg.Webhook.AllowPrivateHosts {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return urlvalidator.ValidateResolvedIP(u.Hostname()) == nil
}

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// SubscribeInput 管理面创建订阅的入参。
type SubscribeInput struct {
	URL       string   `json:"url"`
	Events    []string `json:"events"`
	ScopeType string   `json:"scopeType"`
	ScopePath string   `json:"scopePath"`
	Recursive *bool    `json:"recursive"`
	Secret    string   `json:"secret"`
}

// Subscribe 为工作区创建订阅。folder/file 作用域要求给出路径。
// 目标地址只做格式校验，解析类拦截留到投递时复核。
func (s *WebhookService) Subscribe(ctx context.Context, workspaceID string, in *SubscribeInput) (*WebhookSubscription, error) {
	normalized, err := urlvalidator.ValidateURLFormat(in.URL, true)
	if err != nil {
		return nil, ErrInvalidRequest.WithMessage("url must be a valid http(s) URL")
	}
	scopeType := in.ScopeType
	scopePath := ""
	switch scopeType {
	case "", domain.ScopeWorkspace:
		scopeType = domain.ScopeWorkspace
	case domain.ScopeFolder, domain.ScopeFile:
		if strings.TrimSpace(in.ScopePath) == "" {
			return nil, ErrInvalidRequest.WithMessage("scopePath is required for folder/file scope")
		}
		scopePath, err = pathutil.Normalize(in.ScopePath)
		if err != nil {
			return nil, ErrInvalidPath
		}
	default:
		return nil, ErrInvalidRequest.WithMessage("scopeType must be workspace, folder or file")
	}
	recursive := true
	if in.Recursive != nil {
		recursive = *in.Recursive
	}

	sub := &WebhookSubscription{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		URL:         normalized,
		Secret:      in.Secret,
		Events:      in.Events,
		ScopeType:   scopeType,
		ScopePath:   scopePath,
		Recursive:   recursive,
		Active:      true,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create webhook subscription: %w", err)
	}
	return sub, nil
}

// List 工作区自己的订阅（不含静态与全局订阅）。
func (s *WebhookService) List(ctx context.Context, workspaceID string) ([]*WebhookSubscription, error) {
	return s.repo.List(ctx, workspaceID)
}

// Unsubscribe 删除订阅，找不到（或不属于该工作区）返回 false。
func (s *WebhookService) Unsubscribe(ctx context.Context, workspaceID, id string) (bool, error) {
	return s.repo.Delete(ctx, workspaceID, id)
}
