package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

// ChatList is the conversation list table.
type ChatList struct {
	*tview.Table
	chats      []store.Chat
	viewer     string
	selectedFn func() (int, int)
}

// NewChatList creates a new chat list table.
func NewChatList() *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Chats ")

	cl := &ChatList{Table: table}
	cl.selectedFn = table.GetSelection
	return cl
}

// SetViewer sets the signed-in user id so their own id is hidden from
// participant labels.
func (cl *ChatList) SetViewer(userID string) {
	cl.viewer = userID
}

// Update refreshes the chat list with new data.
func (cl *ChatList) Update(chats []store.Chat) {
	cl.chats = chats
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" With").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, chat := range chats {
		row := i + 1
		name := cl.chatLabel(chat)
		if chat.UnreadCount > 0 {
			name = fmt.Sprintf("* %s (%d)", name, chat.UnreadCount)
		}

		preview, ts := "", ""
		if chat.LastMessage != nil {
			preview = previewText(*chat.LastMessage)
			ts = formatTimestamp(chat.LastMessage.CreatedAt)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(row, 1, tview.NewTableCell(" "+preview).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+ts).SetMaxWidth(12))
	}
}

// SelectedChat returns the id of the currently selected chat.
func (cl *ChatList) SelectedChat() string {
	row, _ := cl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.chats) {
		return cl.chats[idx].ID
	}
	return ""
}

// chatLabel names a chat by its other participants.
func (cl *ChatList) chatLabel(chat store.Chat) string {
	var others []string
	for _, p := range chat.Participants {
		if p != cl.viewer {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		return chat.ID
	}
	return strings.Join(others, ", ")
}

func previewText(m store.Message) string {
	if m.Content != "" {
		return m.Content
	}
	if n := len(m.Attachments); n > 0 {
		return fmt.Sprintf("[%d attachment(s)]", n)
	}
	return ""
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
