// Package ip 提供代理链后客户端地址的提取与名单匹配。
package ip

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetClientIP 提取客户端真实 IP。
// Header 优先级：
// 1. CF-Connecting-IP (Cloudflare)
// 2. X-Real-IP (Nginx)
// 3. X-Forwarded-For (取第一个公网 IP)
// 4. c.ClientIP()
func GetClientIP(c *gin.Context) string {
	if ip := c.GetHeader("CF-Connecting-IP"); ip != "" {
		return normalizeIP(ip)
	}

	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return normalizeIP(ip)
	}

	// XFF 可能带多跳，公网 IP 才是真实来源
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for _, hop := range hops {
			hop = strings.TrimSpace(hop)
			if hop != "" && !isPrivateIP(hop) {
				return normalizeIP(hop)
			}
		}
		// 全私有时取第一跳
		if len(hops) > 0 {
			return normalizeIP(strings.TrimSpace(hops[0]))
		}
	}

	return normalizeIP(c.ClientIP())
}

// normalizeIP 去除端口与空白（"192.168.1.1:8080" -> "192.168.1.1"）。
func normalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}

// privateNets 预编译私有段，isPrivateIP 不必每次解析
var privateNets []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid CIDR: " + cidr)
		}
		privateNets = append(privateNets, block)
	}
}

func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, block := range privateNets {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// matchesPattern 单条匹配，pattern 为单 IP 或 CIDR。
func matchesPattern(clientIP, pattern string) bool {
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}

	if strings.Contains(pattern, "/") {
		_, cidr, err := net.ParseCIDR(pattern)
		if err != nil {
			return false
		}
		return cidr.Contains(ip)
	}

	patternIP := net.ParseIP(pattern)
	if patternIP == nil {
		return false
	}
	return ip.Equal(patternIP)
}

func matchesAny(clientIP string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchesPattern(clientIP, pattern) {
			return true
		}
	}
	return false
}

// Allowed 检查 IP 是否在名单内。空名单放行所有来源；
// 名单非空时无法解析的来源一律拒绝。
func Allowed(clientIP string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	clientIP = normalizeIP(clientIP)
	if clientIP == "" {
		return false
	}
	return matchesAny(clientIP, allowlist)
}

func validateIPPattern(pattern string) bool {
	if strings.Contains(pattern, "/") {
		_, _, err := net.ParseCIDR(pattern)
		return err == nil
	}
	return net.ParseIP(pattern) != nil
}

// ValidateIPPatterns 校验名单条目格式，返回其中的非法条目。
func ValidateIPPatterns(patterns []string) []string {
	var invalid []string
	for _, p := range patterns {
		if !validateIPPattern(p) {
			invalid = append(invalid, p)
		}
	}
	return invalid
}
