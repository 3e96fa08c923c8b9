package views

import (
	"fmt"
	"time"

	"github.com/dlemos/chatdesk/internal/chat"
	"github.com/rivo/tview"
)

// SessionList is the main session table, most recent activity first.
type SessionList struct {
	*tview.Table
	sessions   []chat.Session
	selectedFn func() (int, int)
}

// NewSessionList creates the session table.
func NewSessionList() *SessionList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")

	sl := &SessionList{Table: table}
	sl.selectedFn = table.GetSelection
	return sl
}

// Update refreshes the table with a new session snapshot.
func (sl *SessionList) Update(sessions []chat.Session) {
	sl.sessions = sessions
	sl.Clear()

	sl.SetCell(0, 0, tview.NewTableCell(" Customer").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	sl.SetCell(0, 1, tview.NewTableCell(" Status").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	sl.SetCell(0, 2, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	sl.SetCell(0, 3, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, s := range sessions {
		row := i + 1
		name := s.CustomerName
		if s.UnreadCount > 0 {
			name = fmt.Sprintf("* %s (%d)", name, s.UnreadCount)
		}

		sl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(cleanForTerminal(name))).SetMaxWidth(28).SetExpansion(1))
		sl.SetCell(row, 1, tview.NewTableCell(" "+statusBadge(s.Status)).SetMaxWidth(10))
		sl.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(cleanForTerminal(s.LastMessageText))).SetMaxWidth(40).SetExpansion(2))
		sl.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(s.LastMessageDate())).SetMaxWidth(12))
	}
}

// SelectedSession returns the id of the currently selected row.
func (sl *SessionList) SelectedSession() string {
	row, _ := sl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(sl.sessions) {
		return sl.sessions[idx].ID
	}
	return ""
}

func statusBadge(s chat.Status) string {
	switch s {
	case chat.StatusActive:
		return "[green]active[-]"
	case chat.StatusClosed:
		return "[gray]closed[-]"
	default:
		return "[yellow]waiting[-]"
	}
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
