// Package pathutil 实现文件路径的归一化与作用域包含判断。
// 归一化规则：拒绝 ".."（含百分号编码变体）→ 单次百分号解码 →
// 压缩重复 "/" → 保证前导 "/" → 去除尾部 "/"（根路径除外）。
package pathutil

import (
	"errors"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"
)

var (
	// ErrMalformed 百分号转义非法或解码后不是合法 UTF-8。
	ErrMalformed = errors.New("pathutil: malformed path escape")
	// ErrTraversal 路径包含 ".."（原文或编码形式）。
	ErrTraversal = errors.New("pathutil: path traversal rejected")
)

// ContainsTraversal 判断原始路径串是否携带 ".."，包括 %2e%2e 等编码变体。
// 在路由之前对原始值调用，解码后 Normalize 还会再查一次。
func ContainsTraversal(raw string) bool {
	if strings.Contains(raw, "..") {
		return true
	}
	return strings.Contains(strings.ToLower(raw), "%2e%2e")
}

// Normalize 归一化请求路径。输入可以带或不带前导 "/"。
func Normalize(raw string) (string, error) {
	if ContainsTraversal(raw) {
		return "", ErrTraversal
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", ErrMalformed
	}
	if !utf8.ValidString(decoded) {
		return "", ErrMalformed
	}
	// 解码可能拼出新的 ".."（如 "%2e."）
	if strings.Contains(decoded, "..") {
		return "", ErrTraversal
	}

	var b strings.Builder
	b.Grow(len(decoded) + 1)
	b.WriteByte('/')
	prevSlash := true
	for _, r := range decoded {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}

	normalized := b.String()
	if len(normalized) > 1 {
		normalized = strings.TrimRight(normalized, "/")
		if normalized == "" {
			normalized = "/"
		}
	}
	return normalized, nil
}

// ContainsPath 递归包含：parent 为 "/" 时包含一切；否则 child 等于
// parent 或位于其子树内。两个入参都要求已归一化。
func ContainsPath(parent, child string) bool {
	if parent == "/" {
		return true
	}
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+"/")
}

// IsDirectChild 直接子级：child 的父目录恰好是 parent。
func IsDirectChild(parent, child string) bool {
	if child == "/" || child == parent {
		return false
	}
	return path.Dir(child) == parent
}
