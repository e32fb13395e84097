package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/bus"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/rest"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/send"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/session"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/socket"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/status"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
	intsync "github.com/Jonathanmedhed/msn-frontend-sub000/internal/sync"
	"go.uber.org/zap"
)

// testRuntime assembles a runtime against the given REST and socket URLs.
func testRuntime(apiURL, socketURL string) *Runtime {
	b := bus.New()
	s := store.New(b)
	api := rest.New(apiURL, nil)
	conn := socket.New(socketURL, b, nil)

	return &Runtime{
		SessionName: "test",
		Store:       s,
		Bus:         b,
		Machine:     status.NewMachine(b),
		Pipeline:    send.NewPipeline(s, api, conn, b, nil),
		api:         api,
		conn:        conn,
		engine:      intsync.NewEngine(s, b, conn, nil),
		logger:      zap.NewNop(),
	}
}

// wsServer accepts one upgrade and swallows client intents.
func wsServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = ws.Close() }()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectBringsSessionOnline(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/u1/chats" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]store.Chat{
			{ID: "c1", Participants: []string{"u1", "u2"}},
		})
	}))
	defer apiSrv.Close()

	ws := wsServer(t)

	r := testRuntime(apiSrv.URL, wsURL(ws))
	r.cred = &session.Credential{UserID: "u1", Token: "tok"}
	defer r.disconnect()

	if err := r.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := r.Machine.Current(); got != status.Ready {
		t.Errorf("state = %s, want READY", got)
	}
	if !r.Store.HasChat("c1") {
		t.Error("chat list not loaded into store")
	}
	if got := r.CurrentUser(); got != "u1" {
		t.Errorf("current user = %q", got)
	}
}

func TestConnectRejectedCredentialResetsSession(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cred := &session.Credential{UserID: "u1", Token: "stale"}
	if err := session.SaveCredential("test", cred); err != nil {
		t.Fatal(err)
	}

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"token expired"}`, http.StatusUnauthorized)
	}))
	defer apiSrv.Close()

	r := testRuntime(apiSrv.URL, "ws://unused")
	r.cred = cred

	err := r.Connect(context.Background())
	if !rest.IsAuthError(err) {
		t.Fatalf("err = %v, want auth error", err)
	}

	if got := r.Machine.Current(); got != status.AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", got)
	}
	if _, err := session.LoadCredential("test"); !errors.Is(err, session.ErrNoCredential) {
		t.Errorf("credential not cleared, load err = %v", err)
	}
	if r.CurrentUser() != "" {
		t.Error("current user should be empty after session reset")
	}
}

func TestConnectTransportFailureLandsInDegraded(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]store.Chat{})
	}))
	defer apiSrv.Close()

	// Socket URL points nowhere; the dial must fail.
	r := testRuntime(apiSrv.URL, "ws://127.0.0.1:1/socket")
	r.cred = &session.Credential{UserID: "u1", Token: "tok"}

	if err := r.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if got := r.Machine.Current(); got != status.Degraded {
		t.Errorf("state = %s, want DEGRADED", got)
	}

	// Reconnect is an explicit action and allowed from Degraded.
	if err := r.Machine.Transition(status.Connecting); err != nil {
		t.Errorf("retry transition refused: %v", err)
	}
}

func TestOpenChatLoadsHistoryAndMarksRead(t *testing.T) {
	var statusCalls []string
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/chats/c1/messages":
			_ = json.NewEncoder(w).Encode([]store.Message{
				{ID: "m1", ChatID: "c1", Sender: "u2", Content: "hi", Status: store.StatusDelivered, CreatedAt: time.Now()},
				{ID: "m2", ChatID: "c1", Sender: "u1", Content: "hey", Status: store.StatusRead, CreatedAt: time.Now()},
			})
		case strings.HasSuffix(r.URL.Path, "/status") && r.Method == http.MethodPatch:
			statusCalls = append(statusCalls, r.URL.Path)
			_ = json.NewEncoder(w).Encode(store.Message{ID: "m1", Status: store.StatusRead})
		default:
			http.NotFound(w, r)
		}
	}))
	defer apiSrv.Close()

	r := testRuntime(apiSrv.URL, "ws://unused")
	r.cred = &session.Credential{UserID: "u1", Token: "tok"}
	r.Store.SetChats([]store.Chat{{ID: "c1", Participants: []string{"u1", "u2"}, UnreadCount: 1}})

	if err := r.OpenChat(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}

	msgs := r.Store.Messages("c1")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	m1, _ := r.Store.MessageByID("c1", "m1")
	if m1.Status != store.StatusRead {
		t.Errorf("inbound message status = %q, want read", m1.Status)
	}
	if len(statusCalls) != 1 || statusCalls[0] != "/messages/m1/status" {
		t.Errorf("status calls = %v, want exactly the inbound message", statusCalls)
	}
	c, _ := r.Store.ChatByID("c1")
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", c.UnreadCount)
	}
}
