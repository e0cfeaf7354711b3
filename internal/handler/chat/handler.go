package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/news-agent/backend/internal/handler/session"
	"github.com/zhouzirui/news-agent/backend/internal/logger"
	"github.com/zhouzirui/news-agent/backend/internal/model/chat"
	chatService "github.com/zhouzirui/news-agent/backend/internal/service/chat"
	"github.com/zhouzirui/news-agent/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	sessions *session.Manager
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, sessions *session.Manager) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		sessions: sessions,
	}
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type messageResponse struct {
	Reply   string       `json:"reply,omitempty"`
	Error   string       `json:"error,omitempty"`
	Session chat.Session `json:"session"`
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.sessions.Middleware)
		r.Get("/session", h.handleGetSession)
		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/signup", h.handleSignup)
		r.Post("/messages", h.handleSendMessage)
	})
	r.Post("/auth/logout", h.handleLogout)
}

// handleGetSession 返回当前会话快照
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.IDFromContext(r.Context())
	current, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, current)
}

// handleLogin 登录
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID, _ := session.IDFromContext(r.Context())
	updated, err := h.chatSvc.Login(r.Context(), sessionID, payload.Email, payload.Password)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, chat.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, "login failed: "+err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, updated)
}

// handleSignup 注册，不会自动登录
func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.chatSvc.Signup(r.Context(), payload.Email, payload.Password); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "signup failed: "+err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{"message": chatService.SignupNotice})
}

// handleSendMessage 发送一轮对话
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ChatInput string `json:"chatInput"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID, _ := session.IDFromContext(r.Context())
	updated, err := h.chatSvc.SendMessage(r.Context(), sessionID, payload.ChatInput)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, messageResponse{Reply: lastReply(updated), Session: updated})
	case errors.Is(err, chat.ErrNotAuthenticated):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, chat.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	default:
		utils.RespondJSON(w, http.StatusBadGateway, messageResponse{
			Error:   "error communicating with the webhook: " + err.Error(),
			Session: updated,
		})
	}
}

// handleLogout 注销并清除 cookie
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if current, err := h.sessions.Lookup(r); err == nil {
		if err := h.chatSvc.EndSession(r.Context(), current.ID); err != nil && !errors.Is(err, chat.ErrSessionNotFound) {
			logger.Error("end session failed", "session_id", current.ID, "err", err)
		}
	}
	h.sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func lastReply(s chat.Session) string {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == chat.RoleAssistant {
		return s.Messages[n-1].Content
	}
	return ""
}
