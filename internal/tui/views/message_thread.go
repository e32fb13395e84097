package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/Jonathanmedhed/msn-frontend-sub000/internal/store"
)

// MessageThread displays one chat's ordered message list.
type MessageThread struct {
	*tview.TextView
	viewer string
}

// NewMessageThread creates a new message thread view.
func NewMessageThread() *MessageThread {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageThread{TextView: tv}
}

// SetViewer sets the signed-in user id used to label own messages.
func (mt *MessageThread) SetViewer(userID string) {
	mt.viewer = userID
}

// SetChatName updates the title with the chat name.
func (mt *MessageThread) SetChatName(name string) {
	mt.SetTitle(fmt.Sprintf(" %s ", name))
}

// Update refreshes the thread. Messages arrive in store order, which is
// already chronological.
func (mt *MessageThread) Update(msgs []store.Message) {
	mt.Clear()

	for _, m := range msgs {
		sender := m.Sender
		if sender == mt.viewer {
			sender = "You"
		}

		header := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-] %s\n", sender, formatTimestamp(m.CreatedAt), statusGlyph(m))
		_, _ = fmt.Fprint(mt, header)
		if m.Content != "" {
			_, _ = fmt.Fprintf(mt, "%s\n", tview.Escape(m.Content))
		}
		for _, att := range m.Attachments {
			_, _ = fmt.Fprintf(mt, "[::d]<%s: %s>[-:-:-]\n", att.Kind, att.Name)
		}
		if m.Status == store.StatusFailed && m.Error != "" {
			_, _ = fmt.Fprintf(mt, "[red]%s[-]\n", tview.Escape(m.Error))
		}
		_, _ = fmt.Fprint(mt, "\n")
	}

	mt.ScrollToEnd()
}

func statusGlyph(m store.Message) string {
	switch m.Status {
	case store.StatusPending:
		return "[::d]…[-:-:-]"
	case store.StatusSent:
		return "✓"
	case store.StatusDelivered:
		return "✓✓"
	case store.StatusRead:
		return "[blue]✓✓[-]"
	case store.StatusFailed:
		return "[red]![-]"
	}
	return ""
}
