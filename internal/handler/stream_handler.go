package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"shopchat-go/internal/middleware"
	"shopchat-go/internal/service"
	"shopchat-go/internal/view"
	"shopchat-go/pkg/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	// 客户端消费太慢时断开连接，由客户端重连后重新拿快照
	streamBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// StreamFrame 是推送给客户端的一帧。
type StreamFrame struct {
	Type       string           `json:"type"`
	Transcript *view.Transcript `json:"transcript,omitempty"`
	Entry      *view.Entry      `json:"entry,omitempty"`
	Busy       bool             `json:"busy"`
}

// 帧类型
const (
	FrameSnapshot = "snapshot"
	FrameUpdate   = "update"
)

// StreamHandler 通过 WebSocket 推送对话变化：先发送一次完整快照，之后每次追加推送一帧。
type StreamHandler struct {
	chatService service.ChatService
}

// NewStreamHandler 创建一个新的 StreamHandler。
func NewStreamHandler(chatService service.ChatService) *StreamHandler {
	return &StreamHandler{chatService: chatService}
}

// Handle 处理一个传入的 WebSocket 连接。
func (h *StreamHandler) Handle(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	ctx := c.Request.Context()
	settings, err := h.chatService.Settings(ctx, claims.UserID)
	if err != nil {
		respond(c, http.StatusInternalServerError, "获取界面设置失败", nil)
		return
	}
	feedback, err := h.chatService.Feedback(ctx, claims.UserID)
	if err != nil {
		respond(c, http.StatusInternalServerError, "获取评价失败", nil)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	// 监听器只转发原始变化，渲染放到写循环里，每帧读取最新的设置和评价
	updates := make(chan service.Update, streamBuffer)
	overflow := make(chan struct{})
	var overflowed bool
	snap, cancel, err := h.chatService.Subscribe(ctx, claims.UserID, func(u service.Update) {
		if overflowed {
			return
		}
		select {
		case updates <- u:
		default:
			overflowed = true
			close(overflow)
		}
	})
	if err != nil {
		log.Error("订阅对话失败", err)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
		return
	}
	defer cancel()
	log.Infof("WebSocket 连接已建立，用户: %s", claims.UserID)

	t := view.NewTranscript(snap.Entries, snap.Busy, settings, feedback)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(StreamFrame{Type: FrameSnapshot, Transcript: &t, Busy: snap.Busy}); err != nil {
		return
	}

	// 读循环只用来处理 pong 和检测断开
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case u := <-updates:
			f, err := h.updateFrame(ctx, claims.UserID, u)
			if err != nil {
				log.Error("渲染推送帧失败", err)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				log.Warnf("WebSocket 写入失败: %v", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-overflow:
			log.Warnf("WebSocket 客户端消费过慢，断开连接: %s", claims.UserID)
			return
		case <-closed:
			log.Infof("WebSocket 连接已关闭，用户: %s", claims.UserID)
			return
		}
	}
}

// updateFrame 用当前的界面设置和评价渲染一次变化。
func (h *StreamHandler) updateFrame(ctx context.Context, userID string, u service.Update) (StreamFrame, error) {
	f := StreamFrame{Type: FrameUpdate, Busy: u.Busy}
	if u.Entry == nil {
		return f, nil
	}
	settings, err := h.chatService.Settings(ctx, userID)
	if err != nil {
		return f, err
	}
	feedback, err := h.chatService.Feedback(ctx, userID)
	if err != nil {
		return f, err
	}
	e := view.NewEntry(*u.Entry, settings.DemoMode, feedback[u.Entry.ID])
	f.Entry = &e
	return f, nil
}
