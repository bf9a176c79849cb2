package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/response"
	"github.com/padlog/padlog/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestReservedFilePath(t *testing.T) {
	reserved := []string{"/append", "/webhooks", "/webhooks/sub-1", "/webhooks/a/b"}
	for _, path := range reserved {
		require.True(t, reservedFilePath(path), path)
	}
	allowed := []string{"/", "/appendix.md", "/webhooks2.md", "/team/append", "/team/webhooks", "/append/notes.md"}
	for _, path := range allowed {
		require.False(t, reservedFilePath(path), path)
	}
}

func TestAppendBodyHasSingleFields(t *testing.T) {
	require.False(t, (&appendBody{}).hasSingleFields())
	// author 与 path 不算单条字段
	body := &appendBody{Path: "/x.md"}
	body.Author = "alice"
	require.False(t, body.hasSingleFields())

	muts := map[string]func(*appendBody){
		"type":    func(b *appendBody) { b.Type = domain.AppendTypeComment },
		"content": func(b *appendBody) { b.Content = "hi" },
		"ref":     func(b *appendBody) { b.Ref = "a1" },
		"labels":  func(b *appendBody) { b.Labels = []string{"x"} },
		"expires": func(b *appendBody) { b.ExpiresInSeconds = 60 },
		"value":   func(b *appendBody) { b.Value = "+1" },
	}
	for name, mut := range muts {
		b := &appendBody{}
		mut(b)
		require.True(t, b.hasSingleFields(), name)
	}
}

func TestReadBackURL(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.PublicBaseURL = "https://pad.example.com"
	got := readBackURL(cfg, "plk_abc", "/team/todo.md")
	require.Equal(t, "https://pad.example.com/r/plk_abc/team/todo.md", got)
}

func TestMetaInt64(t *testing.T) {
	md := map[string]any{
		"i64": int64(42),
		"i":   7,
		"f":   float64(1500),
		"s":   "nope",
	}
	for key, want := range map[string]int64{"i64": 42, "i": 7, "f": 1500} {
		got, ok := metaInt64(md, key)
		require.True(t, ok, key)
		require.Equal(t, want, got)
	}
	_, ok := metaInt64(md, "s")
	require.False(t, ok)
	_, ok = metaInt64(md, "missing")
	require.False(t, ok)
	_, ok = metaInt64(nil, "i")
	require.False(t, ok)
}

func TestAppendDataMergesPatch(t *testing.T) {
	createdAt := int64(1_700_000_000_000)
	res := &service.AppendResult{
		Append: &service.Append{
			AppendID:  "a7",
			Type:      domain.AppendTypeClaim,
			Author:    "bob",
			CreatedAt: createdAt,
		},
		Patch: map[string]any{"ref": "a1", "expiresAt": "2026-01-01T00:00:00.000Z"},
	}
	data := appendData(res)
	require.Equal(t, "a7", data["id"])
	require.Equal(t, domain.AppendTypeClaim, data["type"])
	require.Equal(t, "bob", data["author"])
	require.Equal(t, response.ISOTime(time.UnixMilli(createdAt)), data["ts"])
	require.Equal(t, "a1", data["ref"])
	require.Equal(t, "2026-01-01T00:00:00.000Z", data["expiresAt"])
}

func TestNewAppendView(t *testing.T) {
	a := &service.Append{
		AppendID:  "a3",
		Type:      domain.AppendTypeTask,
		Author:    "alice",
		Status:    domain.StatusOpen,
		Priority:  "high",
		Labels:    []string{"backend"},
		Content:   "Fix login",
		CreatedAt: 1_700_000_000_000,
	}
	v := newAppendView(a)
	require.Equal(t, "a3", v.ID)
	require.Equal(t, domain.StatusOpen, v.Status)
	require.Empty(t, v.ExpiresAt, "zero expiry stays blank")

	a.ExpiresAt = 1_700_000_060_000
	v = newAppendView(a)
	require.Equal(t, response.ISOTime(time.UnixMilli(a.ExpiresAt)), v.ExpiresAt)
}

func TestEventVisible(t *testing.T) {
	ev := func(path string) *service.Event { return &service.Event{Name: domain.EventAppend, Path: path} }

	wsKey := &service.CapabilityKey{ScopeType: domain.ScopeWorkspace, ScopePath: "/"}
	require.True(t, eventVisible(wsKey, ev("/anything.md")))
	require.True(t, eventVisible(wsKey, ev("")))

	fileKey := &service.CapabilityKey{ScopeType: domain.ScopeFile, ScopePath: "/team/todo.md"}
	require.True(t, eventVisible(fileKey, ev("/team/todo.md")))
	require.False(t, eventVisible(fileKey, ev("/team/other.md")))

	folderKey := &service.CapabilityKey{ScopeType: domain.ScopeFolder, ScopePath: "/team"}
	require.True(t, eventVisible(folderKey, ev("/team/todo.md")))
	require.True(t, eventVisible(folderKey, ev("/team/deep/x.md")))
	require.False(t, eventVisible(folderKey, ev("/teammates/x.md")))
	require.False(t, eventVisible(folderKey, ev("")))
}

func domainErrorRecorder(err error) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	writeDomainError(c, err)
	return w
}

func TestWriteDomainErrorRetryAfter(t *testing.T) {
	// 毫秒向上取整到秒
	for ms, want := range map[int64]string{1: "1", 999: "1", 1000: "1", 1500: "2", 2000: "2"} {
		w := domainErrorRecorder(service.ErrAlreadyClaimed.WithMetadata(map[string]any{
			"retryAfterMs": ms,
			"claimedBy":    "bob",
		}))
		require.Equal(t, http.StatusConflict, w.Code)
		require.Equal(t, want, w.Header().Get("Retry-After"))
		body := w.Body.String()
		require.Equal(t, "ALREADY_CLAIMED", gjson.Get(body, "error.code").String())
		require.Equal(t, "bob", gjson.Get(body, "error.details.claimedBy").String())
		require.False(t, gjson.Get(body, "ok").Bool())
	}

	w := domainErrorRecorder(service.ErrAlreadyClaimed)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Empty(t, w.Header().Get("Retry-After"), "no metadata, no header")
}

func TestWriteDomainErrorContentSizeLimit(t *testing.T) {
	w := domainErrorRecorder(service.ErrPayloadTooLarge.WithMetadata(map[string]any{"limit": 65536}))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	require.Equal(t, "65536", w.Header().Get("Content-Size-Limit"))
	require.Equal(t, "PAYLOAD_TOO_LARGE", gjson.Get(w.Body.String(), "error.code").String())
}

func TestWriteDomainErrorUnknownErrorIsInternal(t *testing.T) {
	w := domainErrorRecorder(errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "INTERNAL_ERROR", gjson.Get(w.Body.String(), "error.code").String())
}
