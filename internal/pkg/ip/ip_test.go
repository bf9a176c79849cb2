//go:build unit

package ip

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func contextWithHeaders(remoteAddr string, headers map[string]string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c
}

func TestGetClientIPHeaderPriority(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{
			name: "CF 头最优先",
			headers: map[string]string{
				"CF-Connecting-IP": "203.0.113.7",
				"X-Real-IP":        "198.51.100.2",
				"X-Forwarded-For":  "192.0.2.9",
			},
			expected: "203.0.113.7",
		},
		{
			name: "无 CF 时取 X-Real-IP",
			headers: map[string]string{
				"X-Real-IP":       "198.51.100.2",
				"X-Forwarded-For": "192.0.2.9",
			},
			expected: "198.51.100.2",
		},
		{
			name: "XFF 跳过私有跳取首个公网 IP",
			headers: map[string]string{
				"X-Forwarded-For": "10.0.0.5, 203.0.113.7, 198.51.100.2",
			},
			expected: "203.0.113.7",
		},
		{
			name: "XFF 全私有时取第一跳",
			headers: map[string]string{
				"X-Forwarded-For": "10.0.0.5, 192.168.1.4",
			},
			expected: "10.0.0.5",
		},
		{
			name:     "无任何头时回落 RemoteAddr",
			headers:  nil,
			expected: "192.0.2.1",
		},
		{
			name: "头里带端口号会被剥掉",
			headers: map[string]string{
				"X-Real-IP": "203.0.113.7:31337",
			},
			expected: "203.0.113.7",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := contextWithHeaders("192.0.2.1:52344", tc.headers)
			require.Equal(t, tc.expected, GetClientIP(c))
		})
	}
}

func TestAllowed(t *testing.T) {
	allowlist := []string{"203.0.113.7", "10.1.0.0/16"}

	// 空名单全放行
	require.True(t, Allowed("8.8.8.8", nil))
	require.True(t, Allowed("", nil))

	require.True(t, Allowed("203.0.113.7", allowlist))
	require.True(t, Allowed("10.1.200.3", allowlist))
	// 端口在匹配前剥离
	require.True(t, Allowed("203.0.113.7:443", allowlist))

	require.False(t, Allowed("10.2.0.1", allowlist))
	require.False(t, Allowed("203.0.113.8", allowlist))
	require.False(t, Allowed("", allowlist))
	require.False(t, Allowed("not-an-ip", allowlist))
}

func TestValidateIPPatterns(t *testing.T) {
	require.Nil(t, ValidateIPPatterns(nil))
	require.Nil(t, ValidateIPPatterns([]string{"203.0.113.7", "10.0.0.0/8", "::1", "fc00::/7"}))

	invalid := ValidateIPPatterns([]string{"203.0.113.7", "300.1.1.1", "10.0.0.0/33", "office-lan"})
	require.Equal(t, []string{"300.1.1.1", "10.0.0.0/33", "office-lan"}, invalid)
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		name     string
		ip       string
		expected bool
	}{
		// 私有 IPv4
		{"10.x 私有地址", "10.0.0.1", true},
		{"10.x 私有地址段末", "10.255.255.255", true},
		{"172.16.x 私有地址", "172.16.0.1", true},
		{"172.31.x 私有地址", "172.31.255.255", true},
		{"192.168.x 私有地址", "192.168.1.1", true},
		{"127.0.0.1 本地回环", "127.0.0.1", true},
		{"127.x 回环段", "127.255.255.255", true},

		// 公网 IPv4
		{"8.8.8.8 公网 DNS", "8.8.8.8", false},
		{"1.1.1.1 公网", "1.1.1.1", false},
		{"172.15.255.255 非私有", "172.15.255.255", false},
		{"172.32.0.0 非私有", "172.32.0.0", false},
		{"11.0.0.1 公网", "11.0.0.1", false},

		// IPv6
		{"::1 IPv6 回环", "::1", true},
		{"fc00:: IPv6 私有", "fc00::1", true},
		{"fd00:: IPv6 私有", "fd00::1", true},
		{"2001:db8::1 IPv6 公网", "2001:db8::1", false},

		// 无效输入
		{"空字符串", "", false},
		{"非法字符串", "not-an-ip", false},
		{"不完整 IP", "192.168", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := isPrivateIP(tc.ip)
			require.Equal(t, tc.expected, got, "isPrivateIP(%q)", tc.ip)
		})
	}
}
