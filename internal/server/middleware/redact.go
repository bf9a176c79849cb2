package middleware

import "strings"

// redactPath 把能力 URL 中的明文密钥段截短后再进日志，
// 完整密钥永不落盘。其余路径原样返回。
func redactPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/")
	if !ok {
		return path
	}
	segs := strings.SplitN(rest, "/", 3)
	switch segs[0] {
	case "a", "w", "r", "ws":
	default:
		return path
	}
	if len(segs) < 2 || segs[1] == "" {
		return path
	}
	key := segs[1]
	if len(key) > 8 {
		key = key[:8] + "…"
	}
	redacted := "/" + segs[0] + "/" + key
	if len(segs) == 3 {
		redacted += "/" + segs[2]
	}
	return redacted
}
