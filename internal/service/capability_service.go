package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/domain"
)

// 明文密钥格式：plk_ + 24 字节随机数的 base64url，共 36 字符。
const (
	capabilityKeyPrefix    = "plk_"
	capabilityKeyRandBytes = 24
)

type capabilityCacheConfig struct {
	l1Size        int
	l1TTL         time.Duration
	negativeTTL   time.Duration
	jitterPercent int
	singleflight  bool
}

var (
	jitterRandMu sync.Mutex
	// 缓存 TTL 抖动使用独立随机源，避免全局 Seed
	jitterRand = mrand.New(mrand.NewSource(time.Now().UnixNano()))
)

func newCapabilityCacheConfig(cfg *config.Config) capabilityCacheConfig {
	if cfg == nil {
		return capabilityCacheConfig{}
	}
	cache := cfg.Auth.Cache
	return capabilityCacheConfig{
		l1Size:        cache.L1Size,
		l1TTL:         time.Duration(cache.L1TTLSeconds) * time.Second,
		negativeTTL:   time.Duration(cache.NegativeTTLSeconds) * time.Second,
		jitterPercent: cache.JitterPercent,
		singleflight:  cache.Singleflight,
	}
}

func (c capabilityCacheConfig) l1Enabled() bool {
	return c.l1Size > 0 && c.l1TTL > 0
}

func (c capabilityCacheConfig) jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || c.jitterPercent <= 0 {
		return ttl
	}
	percent := c.jitterPercent
	if percent > 100 {
		percent = 100
	}
	delta := float64(percent) / 100
	jitterRandMu.Lock()
	randVal := jitterRand.Float64()
	jitterRandMu.Unlock()
	factor := 1 - delta + randVal*(2*delta)
	if factor <= 0 {
		return ttl
	}
	return time.Duration(float64(ttl) * factor)
}

// capabilityCacheEntry 支持负缓存：查不到的哈希短暂记住，挡住探测风暴。
type capabilityCacheEntry struct {
	NotFound bool
	Key      *CapabilityKey
}

// CapabilityService 能力密钥的签发、哈希定位与缓存。
// 吊销与过期判定由调用方基于返回的记录执行；缓存的是记录本身，
// 因此吊销最多延迟一个 L1 TTL 生效。
type CapabilityService struct {
	repo     CapabilityRepository
	cfg      *config.Config
	salt     []byte
	cacheCfg capabilityCacheConfig
	cacheL1  *ristretto.Cache
	group    singleflight.Group
}

func NewCapabilityService(repo CapabilityRepository, cfg *config.Config) *CapabilityService {
	svc := &CapabilityService{
		repo:     repo,
		cfg:      cfg,
		salt:     []byte(cfg.Auth.KeySalt),
		cacheCfg: newCapabilityCacheConfig(cfg),
	}
	if svc.cacheCfg.l1Enabled() {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: int64(svc.cacheCfg.l1Size) * 10,
			MaxCost:     int64(svc.cacheCfg.l1Size),
			BufferItems: 64,
		})
		if err == nil {
			svc.cacheL1 = cache
		}
	}
	return svc
}

// GenerateKey 生成明文能力密钥。字符集 [A-Za-z0-9_-]，仅在响应中出现一次。
func GenerateKey() (string, error) {
	buf := make([]byte, capabilityKeyRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate capability key: %w", err)
	}
	return capabilityKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashKey 盐化 blake2b-256，数据库只存这个值。
func (s *CapabilityService) HashKey(plaintext string) string {
	h, err := blake2b.New256(s.salt)
	if err != nil {
		// 盐长度在配置校验时已限定 16-64 字节
		panic(fmt.Sprintf("capability hash init: %v", err))
	}
	_, _ = h.Write([]byte(plaintext))
	return hex.EncodeToString(h.Sum(nil))
}

// Resolve 按明文密钥定位记录。查不到返回 ErrInvalidKey；
// 记录的吊销/过期状态由授权层判定。
func (s *CapabilityService) Resolve(ctx context.Context, plaintext string) (*CapabilityKey, error) {
	if plaintext == "" {
		return nil, ErrInvalidKey
	}
	hash := s.HashKey(plaintext)

	if entry, ok := s.cacheGet(hash); ok {
		return s.applyEntry(entry)
	}

	if s.cacheCfg.singleflight {
		value, err, _ := s.group.Do(hash, func() (any, error) {
			return s.loadEntry(ctx, hash)
		})
		if err != nil {
			return nil, err
		}
		entry, _ := value.(*capabilityCacheEntry)
		return s.applyEntry(entry)
	}

	entry, err := s.loadEntry(ctx, hash)
	if err != nil {
		return nil, err
	}
	return s.applyEntry(entry)
}

func (s *CapabilityService) applyEntry(entry *capabilityCacheEntry) (*CapabilityKey, error) {
	if entry == nil || (entry.Key == nil && !entry.NotFound) {
		return nil, ErrInvalidKey
	}
	if entry.NotFound {
		return nil, ErrInvalidKey
	}
	return entry.Key, nil
}

func (s *CapabilityService) loadEntry(ctx context.Context, hash string) (*capabilityCacheEntry, error) {
	key, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrCapabilityNotFound) {
			entry := &capabilityCacheEntry{NotFound: true}
			s.cacheSet(hash, entry)
			return entry, nil
		}
		return nil, fmt.Errorf("get capability key: %w", err)
	}
	entry := &capabilityCacheEntry{Key: key}
	s.cacheSet(hash, entry)
	return entry, nil
}

func (s *CapabilityService) cacheGet(hash string) (*capabilityCacheEntry, bool) {
	if s.cacheL1 == nil {
		return nil, false
	}
	if val, ok := s.cacheL1.Get(hash); ok {
		if entry, ok := val.(*capabilityCacheEntry); ok {
			return entry, true
		}
	}
	return nil, false
}

func (s *CapabilityService) cacheSet(hash string, entry *capabilityCacheEntry) {
	if s.cacheL1 == nil || entry == nil {
		return
	}
	ttl := s.cacheCfg.l1TTL
	if entry.NotFound && s.cacheCfg.negativeTTL > 0 && s.cacheCfg.negativeTTL < ttl {
		ttl = s.cacheCfg.negativeTTL
	}
	_ = s.cacheL1.SetWithTTL(hash, entry, 1, s.cacheCfg.jitterTTL(ttl))
}

// MintOptions 签发选项。零值 = 不绑定作者、不限类型、不限 WIP、永不过期。
type MintOptions struct {
	BoundAuthor  string
	AllowedTypes []string
	WIPLimit     int
	ExpiresAt    int64
}

// Mint 签发一把能力密钥，返回明文与入库记录。
func (s *CapabilityService) Mint(ctx context.Context, workspaceID, permission, scopeType, scopePath string, opts MintOptions) (string, *CapabilityKey, error) {
	plaintext, err := GenerateKey()
	if err != nil {
		return "", nil, err
	}
	key := &CapabilityKey{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		KeyHash:      s.HashKey(plaintext),
		Permission:   permission,
		ScopeType:    scopeType,
		ScopePath:    scopePath,
		BoundAuthor:  opts.BoundAuthor,
		AllowedTypes: opts.AllowedTypes,
		WIPLimit:     opts.WIPLimit,
		ExpiresAt:    opts.ExpiresAt,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return "", nil, fmt.Errorf("create capability key: %w", err)
	}
	return plaintext, key, nil
}

// MintTriple 为指定作用域签发 read/append/write 三把密钥。
// 文件创建与工作区创建都复用这条路径。
func (s *CapabilityService) MintTriple(ctx context.Context, workspaceID, scopeType, scopePath string) (*KeyTriple, error) {
	triple := &KeyTriple{}
	for _, p := range []struct {
		permission string
		dst        *string
	}{
		{domain.PermissionRead, &triple.Read},
		{domain.PermissionAppend, &triple.Append},
		{domain.PermissionWrite, &triple.Write},
	} {
		plaintext, _, err := s.Mint(ctx, workspaceID, p.permission, scopeType, scopePath, MintOptions{})
		if err != nil {
			return nil, err
		}
		*p.dst = plaintext
	}
	return triple, nil
}

// Revoke 吊销密钥。缓存按哈希建键无法反查，生效最多延迟一个 L1 TTL。
func (s *CapabilityService) Revoke(ctx context.Context, id string) (bool, error) {
	return s.repo.Revoke(ctx, id, time.Now().UnixMilli())
}
