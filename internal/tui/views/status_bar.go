package views

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays persistent session state plus transient flash messages.
type StatusBar struct {
	*tview.TextView
	session string
	state   string

	mu          sync.Mutex
	flash       string
	flashExpiry time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(state string) {
	sb.state = state
	sb.render()
}

// Flash shows a temporary message for the given duration.
func (sb *StatusBar) Flash(msg string, d time.Duration) {
	sb.mu.Lock()
	sb.flash = msg
	sb.flashExpiry = time.Now().Add(d)
	sb.mu.Unlock()
	sb.render()
}

// Refresh re-renders the bar; called on the clock tick so the time and
// flash expiry stay current.
func (sb *StatusBar) Refresh() {
	sb.render()
}

func (sb *StatusBar) currentFlash() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if time.Now().After(sb.flashExpiry) {
		return ""
	}
	return sb.flash
}

func (sb *StatusBar) render() {
	sb.Clear()

	clock := time.Now().Format("15:04")
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s", sb.session, sb.state, clock)
	if flash := sb.currentFlash(); flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", flash)
	}

	_, _ = fmt.Fprint(sb, line)
}
