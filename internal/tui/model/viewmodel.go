package model

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dlemos/chatdesk/internal/bus"
	"github.com/dlemos/chatdesk/internal/chat"
	"github.com/dlemos/chatdesk/internal/outbox"
	"github.com/dlemos/chatdesk/internal/profile"
	"github.com/dlemos/chatdesk/internal/status"
	"github.com/dlemos/chatdesk/internal/store"
	"go.uber.org/zap"
)

// ViewModel caches the console's visible state and signals UI
// refreshes. Every open of a thread takes a new epoch token; a load
// result is applied only if its token is still the current one, so a
// slow fetch for a previously-viewed session can never land in the
// thread the agent is looking at now.
type ViewModel struct {
	mu sync.RWMutex

	db       *store.DB
	sender   *outbox.Sender
	bus      *bus.Bus
	identity profile.Identity
	machine  *status.Machine
	logger   *zap.Logger

	sessions []chat.Session
	messages []store.Message
	activeID string
	epoch    uint64
	loading  bool
	loadErr  error

	draft    string
	lastSent string

	Flash Flash

	refreshCh chan struct{}
	cancel    context.CancelFunc
}

// NewViewModel creates a view model over the local cache.
func NewViewModel(db *store.DB, sender *outbox.Sender, b *bus.Bus, identity profile.Identity, machine *status.Machine, logger *zap.Logger) *ViewModel {
	return &ViewModel{
		db:        db,
		sender:    sender,
		bus:       b,
		identity:  identity,
		machine:   machine,
		logger:    logger,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// Start subscribes to engine and outbox events so the cached views
// track the store.
func (vm *ViewModel) Start(ctx context.Context) {
	ctx, vm.cancel = context.WithCancel(ctx)

	timelineCh, unsubT := vm.bus.Subscribe("timeline.", 64)
	sessionCh, unsubS := vm.bus.Subscribe("session.", 64)
	sendCh, unsubM := vm.bus.Subscribe("message.", 64)
	linkCh, unsubL := vm.bus.Subscribe("link.", 16)

	go func() {
		defer unsubT()
		defer unsubS()
		defer unsubM()
		defer unsubL()
		for {
			select {
			case evt := <-timelineCh:
				if id, ok := evt.Payload.(string); ok {
					vm.onTimelineUpdated(id)
				}
			case <-sessionCh:
				vm.LoadSessions()
			case evt := <-sendCh:
				vm.onSendEvent(evt)
			case <-linkCh:
				vm.signalRefresh()
			case <-ctx.Done():
				return
			}
		}
	}()

	vm.LoadSessions()
}

// Stop stops the event loop.
func (vm *ViewModel) Stop() {
	if vm.cancel != nil {
		vm.cancel()
	}
}

// LoadSessions reloads the session list from the cache. The list comes
// back already sorted by most recent activity.
func (vm *ViewModel) LoadSessions() {
	sessions, err := vm.db.ListSessions(100, 0)
	if err != nil {
		vm.logger.Error("load sessions failed", zap.Error(err))
		return
	}
	// Display order is derived at read time, not trusted from storage.
	vm.mu.Lock()
	vm.sessions = chat.SortSessions(sessions)
	vm.mu.Unlock()
	vm.signalRefresh()
}

// OpenSession switches the thread view to the given session. The
// previous thread's pending load, if any, is invalidated by the new
// epoch. Unread is cleared locally; the server stays authoritative on
// the next snapshot.
func (vm *ViewModel) OpenSession(id string) {
	token := vm.begin(id)

	if err := vm.db.MarkSessionRead(id); err != nil {
		vm.logger.Warn("mark read failed", zap.Error(err), zap.String("session_id", id))
	}
	vm.LoadSessions()

	go vm.load(token, id)
}

// CloseSession leaves the thread view. Any in-flight load for it is
// invalidated.
func (vm *ViewModel) CloseSession() {
	vm.mu.Lock()
	vm.epoch++
	vm.activeID = ""
	vm.messages = nil
	vm.loading = false
	vm.loadErr = nil
	vm.draft = ""
	vm.mu.Unlock()
	vm.signalRefresh()
}

// begin claims a new epoch for the given session and resets the thread
// to loading state.
func (vm *ViewModel) begin(id string) uint64 {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.epoch++
	vm.activeID = id
	vm.messages = nil
	vm.loading = true
	vm.loadErr = nil
	vm.draft = ""
	return vm.epoch
}

func (vm *ViewModel) load(token uint64, id string) {
	msgs, err := vm.db.ListMessages(id, 500)
	if vm.apply(token, msgs, err) {
		vm.signalRefresh()
	}
}

// apply installs a load result if its token is still current. Returns
// false when the result is stale and was discarded.
func (vm *ViewModel) apply(token uint64, msgs []store.Message, err error) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if token != vm.epoch {
		return false
	}
	vm.loading = false
	vm.loadErr = err
	if err == nil {
		vm.messages = msgs
	}
	return true
}

// onTimelineUpdated reloads the thread when the updated session is the
// one on screen. Updates for other sessions only affect the list.
func (vm *ViewModel) onTimelineUpdated(id string) {
	vm.mu.RLock()
	active := vm.activeID
	token := vm.epoch
	vm.mu.RUnlock()

	if id != active {
		return
	}
	go vm.load(token, id)
}

func (vm *ViewModel) onSendEvent(evt bus.Event) {
	switch evt.Kind {
	case "message.send_ack":
		vm.Flash.Set("Reply delivered", 3*time.Second)
		vm.LoadSessions()
	case "message.send_failed":
		payload, ok := evt.Payload.(map[string]string)
		if !ok {
			return
		}
		vm.Flash.Set("Send failed: "+payload["error"], 5*time.Second)
		// Put the text back in the composer so the agent can retry
		// without retyping, unless they already started a new draft.
		vm.mu.Lock()
		if payload["session_id"] == vm.activeID && vm.draft == "" {
			vm.draft = vm.lastSent
		}
		vm.mu.Unlock()
	}
	vm.signalRefresh()
}

// Send queues the current input as a reply to the active session.
// Whitespace-only input is dropped without clearing anything.
func (vm *ViewModel) Send(text string) {
	vm.mu.RLock()
	active := vm.activeID
	vm.mu.RUnlock()

	if active == "" || strings.TrimSpace(text) == "" {
		return
	}

	if err := vm.sender.Enqueue(active, text); err != nil {
		vm.logger.Error("enqueue failed", zap.Error(err))
		vm.Flash.Set("Send failed: "+err.Error(), 5*time.Second)
		vm.signalRefresh()
		return
	}

	// Queued: the composer clears, but remember the text in case the
	// delivery fails later.
	vm.mu.Lock()
	vm.lastSent = text
	vm.draft = ""
	vm.mu.Unlock()
	vm.signalRefresh()
}

// SetDraft stores composer text not yet sent.
func (vm *ViewModel) SetDraft(text string) {
	vm.mu.Lock()
	vm.draft = text
	vm.mu.Unlock()
}

// Draft returns the composer text for the active session.
func (vm *ViewModel) Draft() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.draft
}

// Sessions returns a snapshot of the session list.
func (vm *ViewModel) Sessions() []chat.Session {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.sessions
}

// Messages returns a snapshot of the active thread.
func (vm *ViewModel) Messages() []store.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// ActiveSessionID returns the session on screen, or empty.
func (vm *ViewModel) ActiveSessionID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeID
}

// ThreadState reports the tri-state of the thread view: still loading,
// failed with an error, or loaded.
func (vm *ViewModel) ThreadState() (loading bool, err error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.loading, vm.loadErr
}

// AgentID returns the signed-in agent's identity for rendering.
func (vm *ViewModel) AgentID() string {
	return vm.identity.ID
}

// LinkState returns the push-channel state for the status bar.
func (vm *ViewModel) LinkState() status.State {
	return vm.machine.Current()
}

// SearchMessages queries the local full-text index.
func (vm *ViewModel) SearchMessages(query string) ([]store.SearchResult, error) {
	return vm.db.SearchMessages(query, "", 50)
}
