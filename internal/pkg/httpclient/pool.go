// Package httpclient 提供共享的出站 HTTP 客户端池。
// 相同配置复用同一实例，连接池跨投递复用，避免每次回调
// 重建 Transport 的握手开销。
package httpclient

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/imroc/req/v3"
)

// Options 共享客户端的构建参数。
type Options struct {
	// Timeout 单次请求总超时；零值取 30s
	Timeout time.Duration
	// ProxyURL 出口代理（http/https/socks5），为空直连
	ProxyURL string
	// UserAgent 为空时不覆盖默认 UA
	UserAgent string
}

var sharedClients sync.Map

// Get 返回该配置对应的共享客户端。首次调用构建并缓存，
// 并发首建时以先存入的为准。
func Get(opts Options) *req.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	key := buildClientKey(opts)
	if cached, ok := sharedClients.Load(key); ok {
		if client, ok := cached.(*req.Client); ok {
			return client
		}
	}

	client := buildClient(opts)
	actual, _ := sharedClients.LoadOrStore(key, client)
	if c, ok := actual.(*req.Client); ok {
		return c
	}
	return client
}

func buildClient(opts Options) *req.Client {
	client := req.C().SetTimeout(opts.Timeout)
	if proxyURL := strings.TrimSpace(opts.ProxyURL); proxyURL != "" {
		client.SetProxyURL(proxyURL)
	}
	if opts.UserAgent != "" {
		client.SetUserAgent(opts.UserAgent)
	}
	return client
}

func buildClientKey(opts Options) string {
	return fmt.Sprintf("%s|%s|%s",
		opts.Timeout.String(),
		strings.TrimSpace(opts.ProxyURL),
		opts.UserAgent,
	)
}
