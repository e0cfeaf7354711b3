package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/news-agent/backend/internal/config"
	"github.com/zhouzirui/news-agent/backend/internal/handler/session"
	"github.com/zhouzirui/news-agent/backend/internal/model/chat"
	"github.com/zhouzirui/news-agent/backend/internal/service/auth"
	chatservice "github.com/zhouzirui/news-agent/backend/internal/service/chat"
)

type stubAuth struct{}

func (stubAuth) SignInWithPassword(_ context.Context, email, _ string) (*auth.Grant, error) {
	return &auth.Grant{AccessToken: "jwt", User: chat.User{ID: "u-1", Email: email}}, nil
}

func (stubAuth) SignUp(_ context.Context, email, _ string) (*chat.User, error) {
	return &chat.User{Email: email}, nil
}

// slowTurn is how long echoAgent takes to answer "slow".
const slowTurn = 700 * time.Millisecond

type echoAgent struct{}

func (echoAgent) Send(_ context.Context, _, userMessage, _ string) (string, error) {
	if userMessage == "slow" {
		time.Sleep(slowTurn)
	}
	if userMessage == "fail" {
		return "", &chat.CallFailure{Target: "webhook", Status: 500, Err: errors.New("500 Internal Server Error")}
	}
	return "echo: " + userMessage, nil
}

func setup(t *testing.T) (*httptest.Server, *chatservice.Service) {
	t.Helper()
	chatSvc := chatservice.NewService(stubAuth{}, echoAgent{})
	mgr := session.NewManager(config.SessionConfig{
		CookieName: "news_agent_session",
		HashKey:    []byte("0123456789abcdef0123456789abcdef"),
	}, chatSvc)

	r := chi.NewRouter()
	New(chatSvc, mgr).RegisterRoutes(r)
	r.With(mgr.Middleware).Post("/login", func(w http.ResponseWriter, r *http.Request) {
		id, _ := session.IDFromContext(r.Context())
		if _, err := chatSvc.Login(r.Context(), id, "ws@example.com", "pw"); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, chatSvc
}

func loginCookie(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := srv.Client().Post(srv.URL+"/login", "text/plain", nil)
	if err != nil {
		t.Fatalf("login err: %v", err)
	}
	defer resp.Body.Close()
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie")
	}
	return cookies[0].Name + "=" + cookies[0].Value
}

func dial(t *testing.T, srv *httptest.Server, cookie string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if cookie != "" {
		header.Set("Cookie", cookie)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": "message", "data": map[string]string{"text": text}}); err != nil {
		t.Fatalf("write err: %v", err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) outgoingMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var raw struct {
		Type      string          `json:"type"`
		SessionID string          `json:"sessionId"`
		Data      json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&raw); err != nil {
		t.Fatalf("read err: %v", err)
	}
	var data map[string]any
	_ = json.Unmarshal(raw.Data, &data)
	return outgoingMessage{Type: raw.Type, SessionID: raw.SessionID, Data: data}
}

func TestWebSocketRejectsAnonymous(t *testing.T) {
	srv, _ := setup(t)

	_, resp, err := dial(t, srv, "")
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestWebSocketTurns(t *testing.T) {
	srv, _ := setup(t)
	cookie := loginCookie(t, srv)

	conn, _, err := dial(t, srv, cookie)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer conn.Close()

	hello := readMessage(t, conn)
	if hello.Type != "connected" || hello.SessionID == "" {
		t.Fatalf("unexpected greeting: %+v", hello)
	}

	sendText(t, conn, "hello")
	reply := readMessage(t, conn)
	if reply.Type != "reply" {
		t.Fatalf("expected reply, got %+v", reply)
	}
	if got := reply.Data.(map[string]any)["output"]; got != "echo: hello" {
		t.Fatalf("unexpected output: %v", got)
	}
	if reply.SessionID != hello.SessionID {
		t.Fatal("session id changed between turns")
	}

	sendText(t, conn, "fail")
	failed := readMessage(t, conn)
	if failed.Type != "error" {
		t.Fatalf("expected error frame, got %+v", failed)
	}

	if err := conn.WriteJSON(map[string]any{"type": "audio"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if unsupported := readMessage(t, conn); unsupported.Type != "error" {
		t.Fatalf("expected error for unsupported type, got %+v", unsupported)
	}
}

func TestWebSocketSurvivesTurnLongerThanPongWait(t *testing.T) {
	saved := pongWait
	pongWait = 300 * time.Millisecond
	t.Cleanup(func() { pongWait = saved })

	srv, _ := setup(t)
	conn, _, err := dial(t, srv, loginCookie(t, srv))
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)

	sendText(t, conn, "slow")
	if reply := readMessage(t, conn); reply.Type != "reply" {
		t.Fatalf("expected reply to slow turn, got %+v", reply)
	}

	sendText(t, conn, "second")
	reply := readMessage(t, conn)
	if reply.Type != "reply" {
		t.Fatalf("expected reply after slow turn, got %+v", reply)
	}
	if got := reply.Data.(map[string]any)["output"]; got != "echo: second" {
		t.Fatalf("unexpected output: %v", got)
	}
}

func TestWebSocketClosesAfterLogout(t *testing.T) {
	srv, chatSvc := setup(t)
	conn, _, err := dial(t, srv, loginCookie(t, srv))
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer conn.Close()

	hello := readMessage(t, conn)
	if err := chatSvc.EndSession(context.Background(), hello.SessionID); err != nil {
		t.Fatalf("end session err: %v", err)
	}

	sendText(t, conn, "anyone there?")
	if closed := readMessage(t, conn); closed.Type != "closed" {
		t.Fatalf("expected closed frame, got %+v", closed)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}
