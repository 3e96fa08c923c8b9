package views

import (
	"github.com/dlemos/chatdesk/internal/store"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// SearchView is the full-text search page: a query input on top and a
// result table below.
type SearchView struct {
	*tview.Flex
	input   *tview.InputField
	results *tview.Table
	hits    []store.SearchResult
	onQuery func(query string)
}

// NewSearchView creates the search page.
func NewSearchView() *SearchView {
	input := tview.NewInputField().
		SetLabel(" / ").
		SetFieldWidth(0)
	input.SetBorder(true)
	input.SetTitle(" Search Messages ")

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	results.SetBorder(true)
	results.SetTitle(" Results ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 3, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		input:   input,
		results: results,
	}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil {
			sv.onQuery(input.GetText())
		}
	})

	return sv
}

// SetOnQuery sets the callback fired on query submit.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// Update renders a result snapshot.
func (sv *SearchView) Update(hits []store.SearchResult) {
	sv.hits = hits
	sv.results.Clear()

	sv.results.SetCell(0, 0, tview.NewTableCell(" Chat").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	sv.results.SetCell(0, 1, tview.NewTableCell(" Match").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	sv.results.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, h := range hits {
		row := i + 1
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(h.Message.SessionID)).SetMaxWidth(24))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(cleanForTerminal(h.Snippet))).SetExpansion(2))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+formatTimestamp(h.Message.Timestamp)).SetMaxWidth(12))
	}
}

// SelectedSession returns the session id of the highlighted result.
func (sv *SearchView) SelectedSession() string {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.hits) {
		return sv.hits[idx].Message.SessionID
	}
	return ""
}

// Input returns the query field for focus management.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the result table for focus management.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
