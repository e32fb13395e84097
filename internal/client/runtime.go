// Package client composes the store, transports and pipeline into the
// running application and owns the session lifecycle around them.
package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/bus"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/cache"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/rest"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/send"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/session"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/socket"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/status"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
	intsync "github.com/Jonathanmedhed/msn-frontend-sub000/internal/sync"
)

// Runtime ties the session's moving parts together and drives connection
// state. The TUI and the CLI talk to the backend exclusively through it.
type Runtime struct {
	SessionName string

	Store    *store.Store
	Bus      *bus.Bus
	Machine  *status.Machine
	Pipeline *send.Pipeline

	api      *rest.Client
	conn     *socket.Conn
	engine   *intsync.Engine
	recorder *cache.Recorder
	logger   *zap.Logger

	cred *session.Credential
}

// CurrentUser returns the signed-in user id, or "" before login.
func (r *Runtime) CurrentUser() string {
	if r.cred == nil {
		return ""
	}
	return r.cred.UserID
}

// Login exchanges credentials for a token, persists it for the session and
// brings the connection up.
func (r *Runtime) Login(ctx context.Context, email, password string) error {
	result, err := r.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	cred := &session.Credential{
		UserID: result.User.ID,
		Email:  result.User.Email,
		Token:  result.Token,
	}
	if err := session.SaveCredential(r.SessionName, cred); err != nil {
		return err
	}
	r.cred = cred
	return r.Connect(ctx)
}

// Logout drops the stored credential and tears the connection down.
func (r *Runtime) Logout() error {
	r.disconnect()
	r.cred = nil
	if err := session.ClearCredential(r.SessionName); err != nil {
		return err
	}
	return r.Machine.Transition(status.AuthRequired)
}

// Connect brings the session online: installs the token, loads the chat
// list, opens the socket and starts the sync engine. A rejected credential
// resets the session to AuthRequired; any other failure lands in Degraded
// and waits for an explicit user retry.
func (r *Runtime) Connect(ctx context.Context) error {
	if r.cred == nil {
		return fmt.Errorf("not logged in")
	}
	if err := r.Machine.Transition(status.Connecting); err != nil {
		return err
	}

	r.api.SetToken(r.cred.Token)

	chats, err := r.api.FetchChats(ctx, r.cred.UserID)
	if err != nil {
		return r.connectFailed(err)
	}
	r.Store.SetChats(chats)

	if err := r.conn.Connect(ctx, r.cred.Token); err != nil {
		return r.connectFailed(err)
	}
	r.engine.Start(ctx, r.cred.UserID)

	if err := r.Machine.Transition(status.Ready); err != nil {
		return err
	}
	r.logger.Info("session online", zap.String("user", r.cred.UserID), zap.Int("chats", len(chats)))
	return nil
}

func (r *Runtime) connectFailed(err error) error {
	if rest.IsAuthError(err) {
		r.expireSession()
		return err
	}
	r.logger.Warn("connect failed", zap.Error(err))
	_ = r.Machine.Transition(status.Degraded)
	return err
}

// OpenChat loads the chat's message history into the store and marks
// inbound messages as read.
func (r *Runtime) OpenChat(ctx context.Context, chatID string) error {
	msgs, err := r.api.FetchMessages(ctx, chatID)
	if err != nil {
		if rest.IsAuthError(err) {
			r.expireSession()
		}
		return err
	}
	r.Store.SetMessages(chatID, msgs)

	viewer := r.CurrentUser()
	for _, m := range msgs {
		r.Pipeline.MarkRead(ctx, viewer, m)
	}
	zero := 0
	r.Store.UpdateChat(chatID, store.ChatPatch{UnreadCount: &zero})
	return nil
}

// expireSession handles a rejected credential: wipe it and fall back to the
// login screen. Never retried silently.
func (r *Runtime) expireSession() {
	r.logger.Info("credential rejected, session reset")
	r.disconnect()
	r.cred = nil
	if err := session.ClearCredential(r.SessionName); err != nil {
		r.logger.Warn("clearing credential failed", zap.Error(err))
	}
	_ = r.Machine.Transition(status.AuthRequired)
}

func (r *Runtime) disconnect() {
	r.engine.Stop()
	r.conn.Close()
}
