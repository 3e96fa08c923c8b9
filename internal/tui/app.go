package tui

import (
	"context"
	"time"

	"github.com/dlemos/chatdesk/internal/tui/model"
	"github.com/dlemos/chatdesk/internal/tui/views"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// App is the agent console shell: a session list, a thread view with
// composer, and full-text search, over the shared view model.
type App struct {
	app         *tview.Application
	pages       *tview.Pages
	vm          *model.ViewModel
	statusBar   *views.StatusBar
	sessionList *views.SessionList
	thread      *views.MessageThread
	searchV     *views.SearchView
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewApp creates the console shell.
func NewApp(vm *model.ViewModel, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:         tview.NewApplication(),
		pages:       tview.NewPages(),
		vm:          vm,
		statusBar:   views.NewStatusBar(),
		sessionList: views.NewSessionList(),
		thread:      views.NewMessageThread(),
		searchV:     views.NewSearchView(),
		ctx:         ctx,
		cancel:      cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.sessionList.SetSelectedFunc(func(row, col int) {
		if id := a.sessionList.SelectedSession(); id != "" {
			a.openSession(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		a.vm.Send(text)
	})
	a.thread.SetOnDraft(func(text string) {
		a.vm.SetDraft(text)
	})

	a.searchV.SetOnQuery(func(query string) {
		go func() {
			hits, err := a.vm.SearchMessages(query)
			if err != nil {
				a.vm.Flash.Set("Search failed: "+err.Error(), 5*time.Second)
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.searchV.Update(hits)
				a.app.SetFocus(a.searchV.Results())
			})
		}()
	})

	a.searchV.Results().SetSelectedFunc(func(row, col int) {
		if id := a.searchV.SelectedSession(); id != "" {
			a.openSession(id)
		}
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage("sessions", a.sessionList, true, true)
	a.pages.AddPage("thread", a.thread, true, false)
	a.pages.AddPage("search", a.searchV, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "thread":
				a.vm.CloseSession()
				a.pages.SwitchToPage("sessions")
				a.app.SetFocus(a.sessionList)
				return nil
			case "search":
				a.pages.SwitchToPage("sessions")
				a.app.SetFocus(a.sessionList)
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'q':
				a.Stop()
				return nil
			case 's':
				a.pages.SwitchToPage("search")
				a.app.SetFocus(a.searchV.Input())
				return nil
			case 'i':
				if currentPage == "thread" {
					a.app.SetFocus(a.thread.Composer())
					return nil
				}
			}
		}

		return event
	})
}

func (a *App) openSession(id string) {
	a.vm.OpenSession(id)

	name := id
	for _, s := range a.vm.Sessions() {
		if s.ID == id {
			if s.CustomerName != "" {
				name = s.CustomerName
			}
			break
		}
	}
	a.thread.SetSession(id, name)
	a.thread.ShowLoading()
	a.pages.SwitchToPage("thread")
	a.app.SetFocus(a.thread.Composer())
}

// Run starts the console and blocks until quit.
func (a *App) Run() error {
	a.vm.Start(a.ctx)
	go a.refreshLoop()
	return a.app.Run()
}

// refreshLoop redraws whenever the view model signals, plus a slow
// tick for the clock and flash expiry.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.vm.RefreshCh():
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}

		a.app.QueueUpdateDraw(func() {
			a.sessionList.Update(a.vm.Sessions())
			a.statusBar.SetLink(a.vm.LinkState())
			a.statusBar.SetFlash(a.vm.Flash.Get())

			if currentPage, _ := a.pages.GetFrontPage(); currentPage == "thread" {
				if a.thread.SessionID() != a.vm.ActiveSessionID() {
					return
				}
				loading, err := a.vm.ThreadState()
				switch {
				case loading:
					a.thread.ShowLoading()
				case err != nil:
					a.thread.ShowError(err)
				default:
					a.thread.Update(a.vm.Messages(), a.vm.AgentID())
				}
				if draft := a.vm.Draft(); draft != "" && a.thread.Composer().GetText() == "" {
					a.thread.SetDraft(draft)
				}
			}
		})
	}
}

// Stop shuts the console down.
func (a *App) Stop() {
	a.cancel()
	a.vm.Stop()
	a.app.Stop()
}
