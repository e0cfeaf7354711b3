package handler

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/news-agent/backend/internal/handler/chat"
	"github.com/zhouzirui/news-agent/backend/internal/handler/session"
	"github.com/zhouzirui/news-agent/backend/internal/handler/web"
	"github.com/zhouzirui/news-agent/backend/internal/handler/ws"
	"github.com/zhouzirui/news-agent/backend/internal/logger"
	chatService "github.com/zhouzirui/news-agent/backend/internal/service/chat"
	"github.com/zhouzirui/news-agent/backend/pkg/utils"
)

// Assets groups the embedded page templates and static files.
type Assets struct {
	Templates fs.FS
	Static    fs.FS
}

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, sessions *session.Manager, assets Assets) (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger)
	r.Use(middleware.Recoverer)

	pageHandler, err := web.New(chatSvc, sessions, assets.Templates)
	if err != nil {
		return nil, err
	}
	chatHandler := chat.New(chatSvc, sessions)
	wsHandler := ws.New(chatSvc, sessions)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": chatSvc.Len()})
	})
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(assets.Static))))

	// Server-rendered login and chat pages
	pageHandler.RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r, nil
}
