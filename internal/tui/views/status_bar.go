package views

import (
	"fmt"
	"time"

	"github.com/dlemos/chatdesk/internal/status"
	"github.com/rivo/tview"
)

// StatusBar displays the profile, push-link state, and flash messages.
type StatusBar struct {
	*tview.TextView
	profile string
	link    status.State
	flash   string
}

// NewStatusBar creates the status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetLink updates the push-link state display.
func (sb *StatusBar) SetLink(s status.State) {
	sb.link = s
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	link := string(sb.link)
	switch sb.link {
	case status.Live:
		link = "[green]" + link + "[-]"
	case status.Degraded, status.Error:
		link = "[red]" + link + "[-]"
	case status.Reconnecting:
		link = "[yellow]" + link + "[-]"
	}

	clock := time.Now().Format("15:04")
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s", sb.profile, link, clock)
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", tview.Escape(sb.flash))
	}

	_, _ = fmt.Fprint(sb, line)
}
