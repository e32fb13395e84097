// Package tui is the terminal front end. It renders the in-memory store and
// reacts to bus events; it never talks to the backend directly, everything
// goes through the client runtime.
package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/client"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/send"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/status"
	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	runtime   *client.Runtime
	statusBar *views.StatusBar
	chatList  *views.ChatList
	thread    *views.MessageThread
	composer  *views.Composer
	login     *views.Login
	recipient *tview.InputField

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	activeChatID    string
	activeRecipient string
}

// NewApp creates the TUI application.
func NewApp(r *client.Runtime) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		runtime:   r,
		statusBar: views.NewStatusBar(),
		chatList:  views.NewChatList(),
		thread:    views.NewMessageThread(),
		composer:  views.NewComposer(),
		login:     views.NewLogin(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(r.SessionName)
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		if id := a.chatList.SelectedChat(); id != "" {
			a.openChat(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		a.mu.Lock()
		chatID, recipient := a.activeChatID, a.activeRecipient
		a.mu.Unlock()

		go func() {
			err := a.runtime.Pipeline.SendText(a.ctx, a.runtime.CurrentUser(), recipient, chatID, text)
			var verr *send.ValidationError
			if errors.As(err, &verr) {
				a.app.QueueUpdateDraw(func() {
					a.statusBar.Flash(verr.Reason, 5*time.Second)
				})
			}
		}()
	})

	a.login.SetOnSubmit(func(email, password string) {
		a.login.ShowMessage("Signing in...")
		go func() {
			if err := a.runtime.Login(a.ctx, email, password); err != nil {
				a.app.QueueUpdateDraw(func() {
					a.login.ShowMessage("[red]" + tview.Escape(err.Error()) + "[-]")
				})
			}
		}()
	})

	a.recipient = tview.NewInputField().
		SetLabel(" To: ").
		SetFieldWidth(0)
	a.recipient.SetBorder(true).SetTitle(" New Conversation ")
	a.recipient.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		id := strings.TrimSpace(a.recipient.GetText())
		if id == "" {
			return
		}
		a.recipient.SetText("")
		a.startConversation(id)
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, false).
		AddItem(a.composer, 1, 0, true)

	composeFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(a.recipient, 3, 0, true).
		AddItem(nil, 0, 2, false)

	a.pages.AddPage("login", a.login.Layout(), true, true)
	a.pages.AddPage("chats", a.chatList, true, false)
	a.pages.AddPage("chat", chatFlex, true, false)
	a.pages.AddPage("compose", composeFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "chat", "compose":
				a.showChats()
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}
		if _, ok := focused.(*tview.Form); ok {
			return event
		}

		if event.Key() == tcell.KeyRune {
			switch {
			case currentPage == "chats" && event.Rune() == 'q':
				a.app.Stop()
				return nil
			case currentPage == "chats" && event.Rune() == 'n':
				a.pages.SwitchToPage("compose")
				a.app.SetFocus(a.recipient)
				return nil
			case currentPage == "chats" && event.Rune() == 'r':
				go func() { _ = a.runtime.Connect(a.ctx) }()
				return nil
			case currentPage == "chat" && event.Rune() == 'i':
				a.app.SetFocus(a.composer.InputField)
				return nil
			}
		}

		return event
	})
}

// openChat switches to an existing chat and loads its history.
func (a *App) openChat(chatID string) {
	a.mu.Lock()
	a.activeChatID = chatID
	a.activeRecipient = ""
	a.mu.Unlock()

	go func() {
		if err := a.runtime.OpenChat(a.ctx, chatID); err != nil {
			a.app.QueueUpdateDraw(func() {
				a.statusBar.Flash("Load failed: "+err.Error(), 5*time.Second)
			})
		}
	}()

	a.thread.SetChatName(a.chatTitle(chatID))
	a.thread.Update(a.runtime.Store.Messages(chatID))
	a.pages.SwitchToPage("chat")
	a.app.SetFocus(a.composer.InputField)
}

// startConversation opens a thread for a recipient that may not have a chat
// yet. The first send creates the chat.
func (a *App) startConversation(recipientID string) {
	if chat, ok := a.runtime.Store.DirectChatWith(a.runtime.CurrentUser(), recipientID); ok {
		a.openChat(chat.ID)
		return
	}

	a.mu.Lock()
	a.activeChatID = ""
	a.activeRecipient = recipientID
	a.mu.Unlock()

	a.thread.SetChatName(recipientID)
	a.thread.Update(nil)
	a.pages.SwitchToPage("chat")
	a.app.SetFocus(a.composer.InputField)
}

func (a *App) showChats() {
	a.mu.Lock()
	a.activeChatID = ""
	a.activeRecipient = ""
	a.mu.Unlock()

	a.chatList.Update(a.runtime.Store.Chats())
	a.pages.SwitchToPage("chats")
	a.app.SetFocus(a.chatList)
}

// threadKey resolves where the active conversation's messages live in the
// store: a real chat id, or the provisional key before the chat exists.
func (a *App) threadKey() string {
	a.mu.Lock()
	chatID, recipient := a.activeChatID, a.activeRecipient
	a.mu.Unlock()

	if chatID != "" {
		return chatID
	}
	if recipient == "" {
		return ""
	}
	if chat, ok := a.runtime.Store.DirectChatWith(a.runtime.CurrentUser(), recipient); ok {
		a.mu.Lock()
		a.activeChatID = chat.ID
		a.mu.Unlock()
		return chat.ID
	}
	return send.PendingChatKey(recipient)
}

func (a *App) chatTitle(chatID string) string {
	chat, ok := a.runtime.Store.ChatByID(chatID)
	if !ok {
		return chatID
	}
	var others []string
	for _, p := range chat.Participants {
		if p != a.runtime.CurrentUser() {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		return chatID
	}
	return strings.Join(others, ", ")
}

// Run starts the TUI and blocks until quit.
func (a *App) Run() error {
	a.applyState(a.runtime.Machine.Current())
	go a.watchBus()
	go a.clockLoop()
	return a.app.Run()
}

// watchBus redraws on store mutations and state changes. All store writes
// publish an event, so the UI never polls the backend.
func (a *App) watchBus() {
	storeSub := a.runtime.Bus.Subscribe("store.", 256)
	defer storeSub.Close()
	stateSub := a.runtime.Bus.Subscribe(status.EventStatusChanged, 16)
	defer stateSub.Close()

	for {
		select {
		case <-storeSub.Events():
			a.app.QueueUpdateDraw(a.redraw)
		case evt := <-stateSub.Events():
			change, ok := evt.Payload.(status.StatusChange)
			if !ok {
				continue
			}
			a.app.QueueUpdateDraw(func() {
				a.applyState(change.To)
			})
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) clockLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.statusBar.Refresh)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) redraw() {
	currentPage, _ := a.pages.GetFrontPage()
	switch currentPage {
	case "chats":
		a.chatList.Update(a.runtime.Store.Chats())
	case "chat":
		if key := a.threadKey(); key != "" {
			a.thread.Update(a.runtime.Store.Messages(key))
		}
	}
}

// applyState routes the UI to the page matching the session state.
func (a *App) applyState(s status.State) {
	a.statusBar.SetState(string(s))

	switch s {
	case status.AuthRequired:
		a.login.ShowMessage("")
		a.pages.SwitchToPage("login")
		a.app.SetFocus(a.login.Form)
	case status.Ready:
		viewer := a.runtime.CurrentUser()
		a.chatList.SetViewer(viewer)
		a.thread.SetViewer(viewer)
		currentPage, _ := a.pages.GetFrontPage()
		if currentPage == "login" {
			a.showChats()
		}
	case status.Degraded:
		a.statusBar.Flash("Connection lost. Press r to reconnect.", 10*time.Second)
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
