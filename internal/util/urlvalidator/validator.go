// Package urlvalidator 校验对外投递目标 URL。
// 回调地址由租户自报，格式与目标地址都要把关。
package urlvalidator

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// blockedCIDRs 默认拦截的目标网段：环回、RFC1918、链路本地、
// CGNAT 与未指定地址。
var blockedCIDRs = mustParseCIDRs([]string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"::/128",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
})

// ValidateURLFormat 校验并归一化 URL：协议必须是 https（或在放行时
// 允许 http），端口合法，末尾斜杠剥除。返回归一化后的字符串。
func ValidateURLFormat(raw string, allowInsecureHTTP bool) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("url is empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "https":
	case "http":
		if !allowInsecureHTTP {
			return "", errors.New("only https urls are allowed")
		}
	default:
		return "", fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}
	if parsed.User != nil {
		return "", errors.New("url cannot contain userinfo")
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return "", errors.New("url missing host")
	}
	if port := parsed.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return "", fmt.Errorf("invalid url port %q", port)
		}
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed.String(), nil
}

// ValidateResolvedIP 检查主机解析后的地址是否允许作为投递目标。
// 字面量 IP 直接判定，域名解析出的每个地址都不得落在拦截网段。
func ValidateResolvedIP(host string) error {
	trimmed := strings.ToLower(strings.TrimSpace(host))
	if trimmed == "" {
		return errors.New("host is empty")
	}
	if trimmed == "localhost" {
		return errors.New("host resolves to a blocked address")
	}
	if ip := net.ParseIP(trimmed); ip != nil {
		if isBlockedIP(ip) {
			return errors.New("host resolves to a blocked address")
		}
		return nil
	}
	ips, err := net.LookupIP(trimmed)
	if err != nil {
		return fmt.Errorf("resolve host: %w", err)
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return errors.New("host resolves to a blocked address")
		}
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	for _, cidr := range blockedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func mustParseCIDRs(values []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(values))
	for _, v := range values {
		_, n, err := net.ParseCIDR(v)
		if err != nil {
			panic(fmt.Sprintf("urlvalidator: bad cidr %q: %v", v, err))
		}
		nets = append(nets, n)
	}
	return nets
}
