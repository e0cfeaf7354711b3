package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/news-agent/backend/internal/handler/session"
	"github.com/zhouzirui/news-agent/backend/internal/logger"
	"github.com/zhouzirui/news-agent/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/news-agent/backend/internal/service/chat"
)

const (
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// pongWait bounds the silence between inbound frames while no turn is running.
var pongWait = 60 * time.Second

// Handler WebSocket 聊天处理器：每条入站消息对应一次同步的 webhook 调用
type Handler struct {
	chatSvc  *chatservice.Service
	sessions *session.Manager
	upgrader websocket.Upgrader
	pongWait time.Duration
}

// New 创建WebSocket处理器
func New(chatSvc *chatservice.Service, sessions *session.Manager) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pongWait: pongWait,
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	current, err := h.sessions.Lookup(r)
	if err != nil || !current.Authenticated {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	log := logger.With("ws")
	log.Info("connection opened", "session_id", current.ID)

	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	writes := make(chan outgoingMessage, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, writes)
	}()
	defer func() {
		close(writes)
		<-writerDone
		log.Info("connection closed", "session_id", current.ID)
	}()

	writes <- outgoingMessage{
		Type:      "connected",
		SessionID: current.ID,
		Data:      map[string]any{"email": current.Email(), "messages": current.Messages},
		Timestamp: time.Now().UnixMilli(),
	}

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", "session_id", current.ID, "err", err)
			}
			return
		}

		reply := h.handleMessage(r.Context(), current.ID, &msg)
		// The turn has no upper bound and pongs are not read meanwhile.
		conn.SetReadDeadline(time.Now().Add(h.pongWait))
		select {
		case writes <- reply:
		case <-writerDone:
			return
		}
		if reply.Type == "closed" {
			return
		}
	}
}

// handleMessage runs one turn synchronously; the read loop does not pick up
// the next frame until it returns.
func (h *Handler) handleMessage(ctx context.Context, sessionID string, msg *inboundMessage) outgoingMessage {
	out := outgoingMessage{SessionID: sessionID, Timestamp: time.Now().UnixMilli()}

	if msg.Type != "message" {
		out.Type = "error"
		out.Data = map[string]string{"error": "unsupported message type: " + msg.Type}
		return out
	}

	var text TextMessage
	if err := json.Unmarshal(msg.Data, &text); err != nil {
		out.Type = "error"
		out.Data = map[string]string{"error": "invalid message payload"}
		return out
	}

	updated, err := h.chatSvc.SendMessage(ctx, sessionID, text.Text)
	switch {
	case err == nil:
		out.Type = "reply"
		reply := ""
		if n := len(updated.Messages); n > 0 && updated.Messages[n-1].Role == chat.RoleAssistant {
			reply = updated.Messages[n-1].Content
		}
		out.Data = map[string]any{"output": reply, "messages": len(updated.Messages)}
	case errors.Is(err, chat.ErrNotAuthenticated), errors.Is(err, chat.ErrSessionNotFound):
		out.Type = "closed"
		out.Data = map[string]string{"error": err.Error()}
	case errors.Is(err, chat.ErrEmptyMessage):
		out.Type = "error"
		out.Data = map[string]string{"error": err.Error()}
	default:
		out.Type = "error"
		out.Data = map[string]string{"error": "error communicating with the webhook: " + err.Error()}
	}
	return out
}

func (h *Handler) writeLoop(conn *websocket.Conn, writes <-chan outgoingMessage) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-writes:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				logger.Warn("websocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
