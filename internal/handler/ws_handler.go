package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/padlog/padlog/internal/config"
	"github.com/padlog/padlog/internal/domain"
	"github.com/padlog/padlog/internal/pkg/logger"
	"github.com/padlog/padlog/internal/pkg/pathutil"
	"github.com/padlog/padlog/internal/server/middleware"
	"github.com/padlog/padlog/internal/service"
)

// WSHandler 把事件总线桥接到 WebSocket 连接上。read 档起步；
// 文件/目录作用域密钥只收到自己子树内的事件。
type WSHandler struct {
	cfg      *config.Config
	authz    *service.AuthzService
	bus      *service.EventBus
	upgrader websocket.Upgrader
}

func NewWSHandler(cfg *config.Config, authz *service.AuthzService, bus *service.EventBus) *WSHandler {
	return &WSHandler{
		cfg:   cfg,
		authz: authz,
		bus:   bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 鉴权走 URL 里的能力密钥，浏览器同源策略不参与
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// eventFrame 推送帧，与 webhook 投递报文同构。
type eventFrame struct {
	Event       string         `json:"event"`
	WorkspaceID string         `json:"workspaceId"`
	FilePath    string         `json:"filePath"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

// eventVisible 作用域过滤：workspace 密钥全收，file/folder 密钥
// 只放行路径落在绑定作用域内的事件。
func eventVisible(key *service.CapabilityKey, ev *service.Event) bool {
	switch key.ScopeType {
	case domain.ScopeFile:
		return ev.Path == key.ScopePath
	case domain.ScopeFolder:
		return ev.Path != "" && pathutil.ContainsPath(key.ScopePath, ev.Path)
	default:
		return true
	}
}

// Stream GET /ws/:key。升级连接并订阅密钥所在工作区；
// 慢消费者的发送缓冲打满后丢帧并告警，不拖慢发布方。
func (h *WSHandler) Stream(c *gin.Context) {
	authz, err := h.authz.Evaluate(c.Request.Context(), &service.AuthzRequest{
		RawKey:       c.Param("key"),
		RequiredTier: domain.PermissionRead,
		NowMS:        middleware.RequestTime(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	key := authz.Key
	bindWorkspace(c, key.WorkspaceID)

	log := logger.FromContext(c.Request.Context()).With(zap.String("component", "ws"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时 gorilla 已经写好了 HTTP 错误响应
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sendBuf := h.cfg.WebSocket.SendBufferSize
	if sendBuf <= 0 {
		sendBuf = 64
	}
	send := make(chan []byte, sendBuf)
	done := make(chan struct{})

	unsubscribe := h.bus.SubscribeWorkspace(key.WorkspaceID, func(ev *service.Event) {
		if !eventVisible(key, ev) {
			return
		}
		frame, err := json.Marshal(eventFrame{
			Event:       ev.Name,
			WorkspaceID: ev.WorkspaceID,
			FilePath:    ev.Path,
			Data:        ev.Data,
			Timestamp:   ev.TS,
		})
		if err != nil {
			return
		}
		select {
		case send <- frame:
		default:
			log.Warn("dropping event for slow websocket consumer", zap.String("event", ev.Name))
		}
	})
	defer unsubscribe()

	go h.writePump(conn, send, done, log)
	h.readPump(conn)
	close(done)
}

// readPump 只消化控制帧：pong 刷新读超时，任何数据帧直接丢弃。
// 返回即表示连接终结。
func (h *WSHandler) readPump(conn *websocket.Conn) {
	defer conn.Close()

	pongWait := 2 * time.Duration(h.cfg.WebSocket.PingIntervalSeconds) * time.Second
	if pongWait <= 0 {
		pongWait = time.Minute
	}
	conn.SetReadLimit(h.cfg.WebSocket.ReadLimitBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump 事件写出 + 周期 ping。写失败关连接，让 readPump 一并退出。
func (h *WSHandler) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}, log *zap.Logger) {
	pingInterval := time.Duration(h.cfg.WebSocket.PingIntervalSeconds) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	writeTimeout := time.Duration(h.cfg.WebSocket.WriteTimeoutSeconds) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
