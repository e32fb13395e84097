package views

import (
	"github.com/rivo/tview"
)

// Login is the email/password sign-in form.
type Login struct {
	*tview.Form
	onSubmit func(email, password string)
	message  *tview.TextView
	layout   *tview.Flex
}

// NewLogin creates the login form.
func NewLogin() *Login {
	l := &Login{
		Form:    tview.NewForm(),
		message: tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter),
	}

	l.Form.
		AddInputField("Email", "", 40, nil, nil).
		AddPasswordField("Password", "", 40, '*', nil).
		AddButton("Sign In", func() {
			if l.onSubmit == nil {
				return
			}
			email := l.Form.GetFormItemByLabel("Email").(*tview.InputField).GetText()
			password := l.Form.GetFormItemByLabel("Password").(*tview.InputField).GetText()
			l.onSubmit(email, password)
		})
	l.Form.SetBorder(true).SetTitle(" Sign In ")

	l.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(l.Form, 50, 0, true).
			AddItem(nil, 0, 1, false), 11, 0, true).
		AddItem(l.message, 1, 0, false).
		AddItem(nil, 0, 1, false)

	return l
}

// Layout returns the centered page primitive.
func (l *Login) Layout() tview.Primitive {
	return l.layout
}

// SetOnSubmit sets the callback invoked with the entered credentials.
func (l *Login) SetOnSubmit(fn func(email, password string)) {
	l.onSubmit = fn
}

// ShowMessage displays a status line under the form.
func (l *Login) ShowMessage(msg string) {
	l.message.Clear()
	_, _ = l.message.Write([]byte(msg))
}
