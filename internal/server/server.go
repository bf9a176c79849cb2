package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/handler"
	"github.com/padlog/padlog/internal/pkg/logger"
	"github.com/padlog/padlog/internal/pkg/response"
)

// NewGinEngine 构造引擎：运行模式、可信代理、panic 恢复统一在这里，
// 业务中间件与路由交给 SetupRouter。
func NewGinEngine(cfg *config.Config, handlers *handler.Handlers) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.FromContext(c.Request.Context()).Error("panic recovered",
			zap.Any("panic", recovered))
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
		c.Abort()
	}))
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.L().Warn("set trusted proxies failed", zap.Error(err))
	}

	return SetupRouter(r, handlers, cfg)
}

// NewHTTPServer 组装 http.Server。启用 h2c 时明文连接也能走 HTTP/2，
// WebSocket 升级仍从 HTTP/1.1 通道进来。
func NewHTTPServer(cfg *config.Config, engine *gin.Engine) *http.Server {
	var h http.Handler = engine
	if cfg.Server.H2C.Enabled {
		h2s := &http2.Server{
			MaxConcurrentStreams: cfg.Server.H2C.MaxConcurrentStreams,
			IdleTimeout:          time.Duration(cfg.Server.H2C.IdleTimeout) * time.Second,
			MaxReadFrameSize:     uint32(cfg.Server.H2C.MaxReadFrameSize),
		}
		h = h2c.NewHandler(engine, h2s)
	}

	return &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           h,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}
}

// ProviderSet is the Wire provider set for the HTTP server
var ProviderSet = wire.NewSet(NewGinEngine, NewHTTPServer)
