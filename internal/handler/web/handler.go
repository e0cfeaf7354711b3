package web

import (
	"bytes"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/news-agent/backend/internal/handler/session"
	"github.com/zhouzirui/news-agent/backend/internal/logger"
	"github.com/zhouzirui/news-agent/backend/internal/model/chat"
	chatService "github.com/zhouzirui/news-agent/backend/internal/service/chat"
)

const (
	tabLogin  = "login"
	tabSignup = "signup"
)

// Handler 渲染登录页与聊天页的处理器
type Handler struct {
	chatSvc  *chatService.Service
	sessions *session.Manager
	authPage *template.Template
	chatPage *template.Template
}

type pageData struct {
	Tab     string
	Email   string
	Error   string
	Notice  string
	Session chat.Session
}

// New 创建页面处理器，templates 需包含 layout.html、auth.html 和 chat.html。
func New(chatSvc *chatService.Service, sessions *session.Manager, templates fs.FS) (*Handler, error) {
	authPage, err := template.ParseFS(templates, "layout.html", "auth.html")
	if err != nil {
		return nil, err
	}
	chatPage, err := template.ParseFS(templates, "layout.html", "chat.html")
	if err != nil {
		return nil, err
	}

	return &Handler{
		chatSvc:  chatSvc,
		sessions: sessions,
		authPage: authPage,
		chatPage: chatPage,
	}, nil
}

// RegisterRoutes 注册页面路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.sessions.Middleware)
		r.Get("/", h.handleIndex)
		r.Post("/login", h.handleLogin)
		r.Post("/signup", h.handleSignup)
		r.Post("/chat", h.handleChat)
	})
	r.Post("/logout", h.handleLogout)
}

// handleIndex 根据认证状态渲染登录页或聊天页
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	current, ok := h.currentSession(w, r)
	if !ok {
		return
	}

	if !current.Authenticated {
		h.render(w, http.StatusOK, h.authPage, pageData{Tab: pickTab(r.URL.Query().Get("tab"))})
		return
	}
	h.render(w, http.StatusOK, h.chatPage, pageData{Session: current})
}

// handleLogin 处理登录表单
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.IDFromContext(r.Context())
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	if _, err := h.chatSvc.Login(r.Context(), sessionID, email, password); err != nil {
		h.render(w, http.StatusOK, h.authPage, pageData{
			Tab:   tabLogin,
			Email: email,
			Error: "Login failed: " + err.Error(),
		})
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleSignup 处理注册表单，成功后不自动登录
func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	data := pageData{Tab: tabSignup}
	if err := h.chatSvc.Signup(r.Context(), email, password); err != nil {
		data.Email = email
		data.Error = "Signup failed: " + err.Error()
	} else {
		data.Notice = chatService.SignupNotice
	}
	h.render(w, http.StatusOK, h.authPage, data)
}

// handleChat 处理一次聊天输入，成功后重定向，刷新页面不会重复提交
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.IDFromContext(r.Context())

	updated, err := h.chatSvc.SendMessage(r.Context(), sessionID, r.PostFormValue("message"))
	if err == nil || errors.Is(err, chat.ErrEmptyMessage) ||
		errors.Is(err, chat.ErrNotAuthenticated) || errors.Is(err, chat.ErrSessionNotFound) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	h.render(w, http.StatusOK, h.chatPage, pageData{
		Session: updated,
		Error:   "Error communicating with the webhook: " + err.Error(),
	})
}

// handleLogout 清空会话并回到登录页
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if current, err := h.sessions.Lookup(r); err == nil {
		if err := h.chatSvc.EndSession(r.Context(), current.ID); err != nil && !errors.Is(err, chat.ErrSessionNotFound) {
			logger.Error("end session failed", "session_id", current.ID, "err", err)
		}
	}
	h.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) (chat.Session, bool) {
	sessionID, _ := session.IDFromContext(r.Context())
	current, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		logger.Error("load session failed", "session_id", sessionID, "err", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return chat.Session{}, false
	}
	return current, true
}

func (h *Handler) render(w http.ResponseWriter, status int, page *template.Template, data pageData) {
	var buf bytes.Buffer
	if err := page.ExecuteTemplate(&buf, "layout", data); err != nil {
		logger.Error("render page failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		logger.Warn("write page failed", "err", err)
	}
}

func pickTab(raw string) string {
	if strings.EqualFold(raw, tabSignup) {
		return tabSignup
	}
	return tabLogin
}
