package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/dlemos/chatdesk/internal/bus"
	"github.com/dlemos/chatdesk/internal/chat"
	"github.com/dlemos/chatdesk/internal/store"
	"go.uber.org/zap"
)

// Fetcher is the server-side read surface the engine refetches from.
// *rest.Client satisfies it; tests substitute a mock.
type Fetcher interface {
	ListSessions(ctx context.Context, page, limit int) ([]chat.Session, error)
	ListMessages(ctx context.Context, sessionID string, page, limit int) ([]chat.Message, error)
}

// Engine reconciles the local cache against the server. A push event
// is only a hint that something changed: the engine always refetches
// the authoritative snapshot and replaces the cached copy, so replayed
// or reordered hints converge on the same state. Push payloads are
// never written into the cache directly.
type Engine struct {
	db       *store.DB
	fetcher  Fetcher
	bus      *bus.Bus
	logger   *zap.Logger
	pageSize int
	interval time.Duration
	cancel   context.CancelFunc
}

// NewEngine creates a reconciliation engine. interval is the periodic
// full-refresh cadence; zero disables the ticker.
func NewEngine(db *store.DB, fetcher Fetcher, b *bus.Bus, logger *zap.Logger, pageSize int, interval time.Duration) *Engine {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Engine{
		db:       db,
		fetcher:  fetcher,
		bus:      b,
		logger:   logger,
		pageSize: pageSize,
		interval: interval,
	}
}

// Start subscribes to push hints and begins the periodic refresh loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("push.", 256)

	go func() {
		defer unsub()

		var tick <-chan time.Time
		if e.interval > 0 {
			ticker := time.NewTicker(e.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		// Initial snapshot so the UI is not empty until the first push.
		if err := e.RefetchSessions(ctx); err != nil {
			e.logger.Warn("initial session fetch failed", zap.Error(err))
		}

		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-tick:
				if err := e.RefetchSessions(ctx); err != nil {
					e.logger.Warn("periodic session refresh failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case "push.message":
		sessionID, ok := evt.Payload.(string)
		if !ok || sessionID == "" {
			return
		}
		if err := e.RefetchTimeline(ctx, sessionID); err != nil {
			e.logger.Error("timeline refetch failed",
				zap.Error(err), zap.String("session_id", sessionID))
		}
		// A new message moves the session in the list too. If the
		// summary fetch fails, patch the cached row from the timeline
		// we just stored so the list stays roughly current.
		if err := e.RefetchSessions(ctx); err != nil {
			e.logger.Warn("session refresh after message failed", zap.Error(err))
			e.bumpFromTimeline(sessionID)
		}
	case "push.session":
		if err := e.RefetchSessions(ctx); err != nil {
			e.logger.Error("session refetch failed", zap.Error(err))
		}
	}
}

// bumpFromTimeline applies the newest cached message of a session to
// its summary row. Local approximation only; the next successful
// snapshot overwrites it.
func (e *Engine) bumpFromTimeline(sessionID string) {
	msgs, err := e.db.ListMessages(sessionID, 1000)
	if err != nil || len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if err := e.db.ApplyIncoming(sessionID, last.Text, last.Timestamp); err != nil {
		e.logger.Warn("local session bump failed", zap.Error(err))
	}
}

// RefetchSessions pulls the session summary snapshot and replaces the
// cached set. Idempotent: fetching the same snapshot twice leaves the
// cache unchanged.
func (e *Engine) RefetchSessions(ctx context.Context) error {
	sessions, err := e.fetcher.ListSessions(ctx, 1, e.pageSize)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if err := e.db.ReplaceSessions(sessions); err != nil {
		return fmt.Errorf("replace sessions: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "session.updated",
		Timestamp: time.Now(),
		Payload:   len(sessions),
	})
	return nil
}

// RefetchTimeline pulls the message snapshot for one session. The wire
// order is newest first; the cache stores it and serves it back in
// chronological order. Pending optimistic entries survive the swap.
func (e *Engine) RefetchTimeline(ctx context.Context, sessionID string) error {
	msgs, err := e.fetcher.ListMessages(ctx, sessionID, 1, e.pageSize)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	if err := e.db.ReplaceTimeline(sessionID, chat.Chronological(msgs)); err != nil {
		return fmt.Errorf("replace timeline: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "timeline.updated",
		Timestamp: time.Now(),
		Payload:   sessionID,
	})
	return nil
}
