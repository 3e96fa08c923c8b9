package views

import (
	"fmt"

	"github.com/dlemos/chatdesk/internal/store"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// MessageThread displays one session's timeline and a composer.
type MessageThread struct {
	*tview.Flex
	messages  *tview.TextView
	composer  *tview.InputField
	sessionID string
	onSend    func(text string)
	onDraft   func(text string)
}

// NewMessageThread creates the thread view.
func NewMessageThread() *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetTitle(" Conversation ")

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetTitle(" Reply (i to focus) ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			mt.onSend(composer.GetText())
			composer.SetText("")
		}
	})
	composer.SetChangedFunc(func(text string) {
		if mt.onDraft != nil {
			mt.onDraft(text)
		}
	})

	return mt
}

// SetOnSend sets the callback fired when the agent submits the composer.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnDraft sets the callback fired as the agent types.
func (mt *MessageThread) SetOnDraft(fn func(text string)) {
	mt.onDraft = fn
}

// SetSession updates the session shown in the title.
func (mt *MessageThread) SetSession(id, customerName string) {
	mt.sessionID = id
	title := customerName
	if title == "" {
		title = id
	}
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(cleanForTerminal(title))))
}

// SessionID returns the session currently rendered.
func (mt *MessageThread) SessionID() string {
	return mt.sessionID
}

// SetDraft replaces the composer contents.
func (mt *MessageThread) SetDraft(text string) {
	mt.composer.SetText(text)
}

// ShowLoading clears the view while a thread load is in flight.
func (mt *MessageThread) ShowLoading() {
	mt.messages.Clear()
	_, _ = fmt.Fprint(mt.messages, "[::d]Loading conversation...[-:-:-]")
}

// ShowError renders a load failure in place of the timeline.
func (mt *MessageThread) ShowError(err error) {
	mt.messages.Clear()
	_, _ = fmt.Fprintf(mt.messages, "[red]Failed to load conversation: %s[-]", tview.Escape(err.Error()))
}

// Update renders the timeline oldest-first. Agent replies are marked,
// and in-flight or failed entries carry their delivery state.
func (mt *MessageThread) Update(msgs []store.Message, agentID string) {
	mt.messages.Clear()

	for _, m := range msgs {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		marker := ""
		if m.IsAdmin(agentID) {
			sender = "You"
			switch m.Status {
			case store.StatusSending:
				marker = " [yellow]~ sending[-]"
			case store.StatusFailed:
				marker = " [red]! failed[-]"
			}
		}

		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
			tview.Escape(cleanForTerminal(sender)),
			formatTimestamp(m.Timestamp),
			marker,
			tview.Escape(cleanForTerminal(m.Text)))
		_, _ = fmt.Fprint(mt.messages, line)
	}

	mt.messages.ScrollToEnd()
}

// Messages returns the text view for focus management.
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the input field for focus management.
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
