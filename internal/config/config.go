// Package config provides configuration loading, defaults, and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/padlog/padlog/internal/pkg/ip"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Security    SecurityConfig    `mapstructure:"security"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Append      AppendConfig      `mapstructure:"append"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Sweeper     SweeperConfig     `mapstructure:"sweeper"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
}

type ServerConfig struct {
	Host              string   `mapstructure:"host"`
	Port              int      `mapstructure:"port"`
	Mode              string   `mapstructure:"mode"` // debug/release/test
	PublicBaseURL     string   `mapstructure:"public_base_url"`
	ReadHeaderTimeout int      `mapstructure:"read_header_timeout"` // 秒
	IdleTimeout       int      `mapstructure:"idle_timeout"`        // 秒
	TrustedProxies    []string `mapstructure:"trusted_proxies"`
	// MaxRequestBodySize 全局请求体上限（字节），413 时在响应头回显
	MaxRequestBodySize int64     `mapstructure:"max_request_body_size"`
	H2C                H2CConfig `mapstructure:"h2c"`
}

// H2CConfig HTTP/2 Cleartext 配置
type H2CConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	MaxConcurrentStreams uint32 `mapstructure:"max_concurrent_streams"`
	IdleTimeout          int    `mapstructure:"idle_timeout"` // 秒
	MaxReadFrameSize     int    `mapstructure:"max_read_frame_size"`
}

type LogConfig struct {
	Level       string            `mapstructure:"level"`
	Format      string            `mapstructure:"format"` // auto/console/json
	ServiceName string            `mapstructure:"service_name"`
	Caller      bool              `mapstructure:"caller"`
	Output      LogOutputConfig   `mapstructure:"output"`
	Rotation    LogRotationConfig `mapstructure:"rotation"`
}

type LogOutputConfig struct {
	ToStdout bool   `mapstructure:"to_stdout"`
	ToFile   bool   `mapstructure:"to_file"`
	FilePath string `mapstructure:"file_path"`
}

type LogRotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
	LocalTime  bool `mapstructure:"local_time"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type SecurityConfig struct {
	Headers SecurityHeadersConfig `mapstructure:"headers"`
}

type SecurityHeadersConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type DatabaseConfig struct {
	// Path SQLite 数据库文件路径
	Path string `mapstructure:"path"`
	// BusyTimeoutMS 写锁等待上限（毫秒）
	BusyTimeoutMS int `mapstructure:"busy_timeout_ms"`
}

// DSN 组装 modernc.org/sqlite 连接串。
// _txlock=immediate 保证写事务从 BEGIN 即持有写锁，claim 竞争依赖该语义。
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		d.Path, d.BusyTimeoutMS,
	)
}

type AuthConfig struct {
	// KeySalt 能力密钥哈希盐，必须固定且保密；更换会使全部已发密钥失效
	KeySalt string `mapstructure:"key_salt"`
	// AdminToken 管理接口令牌；为空时管理接口整体关闭
	AdminToken string `mapstructure:"admin_token"`
	// AdminAllowedIPs 管理接口来源名单（IP 或 CIDR）；为空不限来源
	AdminAllowedIPs []string        `mapstructure:"admin_allowed_ips"`
	Cache           AuthCacheConfig `mapstructure:"cache"`
}

type AuthCacheConfig struct {
	L1Size             int  `mapstructure:"l1_size"`
	L1TTLSeconds       int  `mapstructure:"l1_ttl_seconds"`
	NegativeTTLSeconds int  `mapstructure:"negative_ttl_seconds"`
	JitterPercent      int  `mapstructure:"jitter_percent"`
	Singleflight       bool `mapstructure:"singleflight"`
}

type AppendConfig struct {
	// MaxSizeBytes 单条 append content 上限（UTF-8 字节）
	MaxSizeBytes int `mapstructure:"max_size_bytes"`
	// ContentPreviewLen append 记录里保留的内容预览长度（rune）
	ContentPreviewLen int `mapstructure:"content_preview_len"`
}

type IdempotencyConfig struct {
	// WaitTimeoutMS 等待 pending 结果的上限（毫秒）
	WaitTimeoutMS int `mapstructure:"wait_timeout_ms"`
	// PollIntervalMS pending 轮询间隔（毫秒）
	PollIntervalMS int `mapstructure:"poll_interval_ms"`
	// RetentionSeconds 已完结记录保留时长（秒）
	RetentionSeconds int `mapstructure:"retention_seconds"`
	// PendingTimeoutSeconds pending 残留（owner 崩溃）判定时长（秒）
	PendingTimeoutSeconds  int `mapstructure:"pending_timeout_seconds"`
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
	CleanupBatchSize       int `mapstructure:"cleanup_batch_size"`
}

type WebhookConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	// MaxAttempts 首次投递 + 重试的总次数
	MaxAttempts         int `mapstructure:"max_attempts"`
	RetryBackoffSeconds int `mapstructure:"retry_backoff_seconds"`
	// SubscriptionsFile 静态订阅文件（YAML），为空则仅用数据库订阅
	SubscriptionsFile string `mapstructure:"subscriptions_file"`
	// ProxyURL 投递出口代理（http/https/socks5），为空直连
	ProxyURL string `mapstructure:"proxy_url"`
	// AllowPrivateHosts 放行指向私有地址的回调 URL。
	// 默认拦截，防止订阅被用来探测内网。
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts"`
}

type SweeperConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// CronSpec 五段 cron 表达式
	CronSpec string `mapstructure:"cron_spec"`
	// TombstoneRetentionDays 软删除文件保留天数，到期物理清除
	TombstoneRetentionDays int `mapstructure:"tombstone_retention_days"`
	// AuditRetentionDays 审计流水保留天数
	AuditRetentionDays int `mapstructure:"audit_retention_days"`
}

type WebSocketConfig struct {
	ReadLimitBytes      int64 `mapstructure:"read_limit_bytes"`
	WriteTimeoutSeconds int   `mapstructure:"write_timeout_seconds"`
	PingIntervalSeconds int   `mapstructure:"ping_interval_seconds"`
	SendBufferSize      int   `mapstructure:"send_buffer_size"`
}

// Address 监听地址。
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AdminEnabled 管理接口是否开放。
func (a AuthConfig) AdminEnabled() bool {
	return a.AdminToken != ""
}

func (i IdempotencyConfig) WaitTimeout() time.Duration {
	return time.Duration(i.WaitTimeoutMS) * time.Millisecond
}

func (i IdempotencyConfig) PollInterval() time.Duration {
	return time.Duration(i.PollIntervalMS) * time.Millisecond
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Add config paths in priority order
	if dataDir := os.Getenv("PADLOG_DATA_DIR"); dataDir != "" {
		viper.AddConfigPath(dataDir)
	}
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/padlog")

	// 环境变量支持
	viper.AutomaticEnv()
	viper.SetEnvPrefix("PADLOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config error: %w", err)
		}
		// 配置文件不存在时使用默认值
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config error: %w", err)
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	c.Server.Mode = strings.ToLower(strings.TrimSpace(c.Server.Mode))
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	c.Server.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicBaseURL), "/")
	c.CORS.AllowedOrigins = normalizeStringSlice(c.CORS.AllowedOrigins)
	c.Server.TrustedProxies = normalizeStringSlice(c.Server.TrustedProxies)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Log.ServiceName = strings.TrimSpace(c.Log.ServiceName)
	c.Log.Output.FilePath = strings.TrimSpace(c.Log.Output.FilePath)
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	c.Auth.KeySalt = strings.TrimSpace(c.Auth.KeySalt)
	c.Auth.AdminToken = strings.TrimSpace(c.Auth.AdminToken)
	c.Auth.AdminAllowedIPs = normalizeStringSlice(c.Auth.AdminAllowedIPs)
	c.Webhook.SubscriptionsFile = strings.TrimSpace(c.Webhook.SubscriptionsFile)
	c.Sweeper.CronSpec = strings.TrimSpace(c.Sweeper.CronSpec)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug/release/test, got %q", c.Server.Mode)
	}
	if c.Server.PublicBaseURL != "" {
		if _, err := url.ParseRequestURI(c.Server.PublicBaseURL); err != nil {
			return fmt.Errorf("server.public_base_url invalid: %w", err)
		}
	}
	switch c.Log.Format {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("log.format must be auto/console/json, got %q", c.Log.Format)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	// blake2b 带键哈希要求键长不超过 64 字节
	if len(c.Auth.KeySalt) < 16 || len(c.Auth.KeySalt) > 64 {
		return fmt.Errorf("auth.key_salt must be 16-64 characters")
	}
	if invalid := ip.ValidateIPPatterns(c.Auth.AdminAllowedIPs); len(invalid) > 0 {
		return fmt.Errorf("auth.admin_allowed_ips contains invalid entries: %s", strings.Join(invalid, ", "))
	}
	if c.Append.MaxSizeBytes <= 0 {
		return fmt.Errorf("append.max_size_bytes must be positive")
	}
	if c.Idempotency.PollIntervalMS <= 0 || c.Idempotency.WaitTimeoutMS < c.Idempotency.PollIntervalMS {
		return fmt.Errorf("idempotency wait/poll intervals invalid: wait=%dms poll=%dms",
			c.Idempotency.WaitTimeoutMS, c.Idempotency.PollIntervalMS)
	}
	if c.Webhook.Enabled && c.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("webhook.max_attempts must be >= 1")
	}
	if c.Sweeper.Enabled && c.Sweeper.TombstoneRetentionDays < 0 {
		return fmt.Errorf("sweeper.tombstone_retention_days must be >= 0")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8386)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.public_base_url", "http://localhost:8386")
	viper.SetDefault("server.read_header_timeout", 10)
	viper.SetDefault("server.idle_timeout", 75)
	viper.SetDefault("server.max_request_body_size", int64(2<<20)) // 2MB
	viper.SetDefault("server.h2c.enabled", false)
	viper.SetDefault("server.h2c.max_concurrent_streams", uint32(50))
	viper.SetDefault("server.h2c.idle_timeout", 75)
	viper.SetDefault("server.h2c.max_read_frame_size", 1<<20)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "auto")
	viper.SetDefault("log.service_name", "padlog")
	viper.SetDefault("log.caller", false)
	viper.SetDefault("log.output.to_stdout", true)
	viper.SetDefault("log.output.to_file", false)
	viper.SetDefault("log.rotation.max_size_mb", 100)
	viper.SetDefault("log.rotation.max_backups", 10)
	viper.SetDefault("log.rotation.max_age_days", 7)
	viper.SetDefault("log.rotation.compress", true)
	viper.SetDefault("log.rotation.local_time", true)

	viper.SetDefault("cors.allowed_origins", []string{})
	viper.SetDefault("cors.allow_credentials", false)
	viper.SetDefault("security.headers.enabled", true)

	viper.SetDefault("database.path", "data/padlog.db")
	viper.SetDefault("database.busy_timeout_ms", 5000)

	viper.SetDefault("auth.cache.l1_size", 4096)
	viper.SetDefault("auth.cache.l1_ttl_seconds", 60)
	viper.SetDefault("auth.cache.negative_ttl_seconds", 10)
	viper.SetDefault("auth.cache.jitter_percent", 10)
	viper.SetDefault("auth.cache.singleflight", true)

	viper.SetDefault("append.max_size_bytes", 65536)
	viper.SetDefault("append.content_preview_len", 128)

	viper.SetDefault("idempotency.wait_timeout_ms", 2000)
	viper.SetDefault("idempotency.poll_interval_ms", 10)
	viper.SetDefault("idempotency.retention_seconds", 86400)
	viper.SetDefault("idempotency.pending_timeout_seconds", 3600)
	viper.SetDefault("idempotency.cleanup_interval_seconds", 300)
	viper.SetDefault("idempotency.cleanup_batch_size", 500)

	viper.SetDefault("webhook.enabled", true)
	viper.SetDefault("webhook.timeout_seconds", 10)
	viper.SetDefault("webhook.max_attempts", 3)
	viper.SetDefault("webhook.retry_backoff_seconds", 30)

	viper.SetDefault("sweeper.enabled", true)
	viper.SetDefault("sweeper.cron_spec", "* * * * *")
	viper.SetDefault("sweeper.tombstone_retention_days", 7)
	viper.SetDefault("sweeper.audit_retention_days", 90)

	viper.SetDefault("websocket.read_limit_bytes", int64(4096))
	viper.SetDefault("websocket.write_timeout_seconds", 10)
	viper.SetDefault("websocket.ping_interval_seconds", 30)
	viper.SetDefault("websocket.send_buffer_size", 64)
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
