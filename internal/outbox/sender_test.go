package outbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dlemos/chatdesk/internal/bus"
	"github.com/dlemos/chatdesk/internal/chat"
	"github.com/dlemos/chatdesk/internal/profile"
	"github.com/dlemos/chatdesk/internal/store"
	"go.uber.org/zap"
)

var agent = profile.Identity{ID: "agent-1", Name: "Dana"}

// mockSender records calls and returns configurable results.
type mockSender struct {
	mu    sync.Mutex
	calls []sendCall
	err   error
	delay time.Duration // artificial delay to observe intermediate states
}

type sendCall struct {
	SessionID string
	Text      string
}

func (m *mockSender) SendMessage(_ context.Context, sessionID, text string) (*chat.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sendCall{SessionID: sessionID, Text: text})
	delay, err := m.delay, m.err
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return &chat.Message{
		ID:        "srv-" + sessionID,
		SessionID: sessionID,
		SenderID:  agent.ID,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnqueueInsertsOptimisticEntry(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	s := NewSender(db, &mockSender{}, b, agent, zap.NewNop())

	ch, unsub := b.Subscribe("timeline.", 10)
	defer unsub()

	if err := s.Enqueue("s1", "hello there"); err != nil {
		t.Fatal(err)
	}

	// The entry must be visible immediately, before any send happens.
	msgs, err := db.ListMessages("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 optimistic entry", len(msgs))
	}
	if msgs[0].Status != store.StatusSending {
		t.Errorf("status = %q, want sending", msgs[0].Status)
	}
	if msgs[0].SenderID != agent.ID {
		t.Errorf("sender = %q, want the agent identity", msgs[0].SenderID)
	}

	select {
	case evt := <-ch:
		if evt.Payload.(string) != "s1" {
			t.Errorf("payload = %v, want s1", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for timeline.updated")
	}
}

func TestEnqueueEmptyInputIsNoOp(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	s := NewSender(db, &mockSender{}, b, agent, zap.NewNop())

	ch, unsub := b.Subscribe("timeline.", 10)
	defer unsub()

	for _, input := range []string{"", "   ", "\n\t "} {
		if err := s.Enqueue("s1", input); err != nil {
			t.Fatalf("Enqueue(%q) = %v, want nil", input, err)
		}
	}

	msgs, _ := db.ListMessages("s1", 10)
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0 for blank input", len(msgs))
	}
	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("got %d queued, want 0 for blank input", len(pending))
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %s for blank input", evt.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSenderDeliversAndResolves(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{}
	s := NewSender(db, mock, b, agent, zap.NewNop())

	ch, unsub := b.Subscribe("message.send_ack", 10)
	defer unsub()

	if err := db.ReplaceSessions([]chat.Session{{ID: "s1", CustomerID: "c1"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue("s1", "hello"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for send_ack")
	}

	if mock.callCount() != 1 {
		t.Fatalf("got %d send calls, want 1", mock.callCount())
	}

	// The optimistic row is gone; only the confirmed server copy remains.
	msgs, err := db.ListMessages("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 after resolution", len(msgs))
	}
	if msgs[0].ID != "srv-s1" || msgs[0].Status != store.StatusSynced {
		t.Errorf("resolved row = %+v, want confirmed srv-s1 synced", msgs[0])
	}

	// Ack also bumps the session preview.
	sess, _ := db.GetSession("s1")
	if sess.LastMessageText != "hello" {
		t.Errorf("preview = %q, want hello", sess.LastMessageText)
	}

	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 after send", len(pending))
	}
}

// Regression: while the send is in flight the optimistic entry must
// already be on the timeline in sending state.
func TestSenderOptimisticVisibleDuringSend(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{delay: 800 * time.Millisecond}
	s := NewSender(db, mock, b, agent, zap.NewNop())

	if err := s.Enqueue("s1", "slow one"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	// Wait until the drain pass picked the entry up.
	deadline := time.Now().Add(2 * time.Second)
	for mock.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sender never picked up the entry")
		}
		time.Sleep(10 * time.Millisecond)
	}

	msgs, err := db.ListMessages("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Status != store.StatusSending {
		t.Errorf("in-flight entry = %+v, want sending", msgs)
	}
}

func TestSenderMarksFailed(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{err: fmt.Errorf("network error")}
	s := NewSender(db, mock, b, agent, zap.NewNop())

	ch, unsub := b.Subscribe("message.send_failed", 10)
	defer unsub()

	if err := s.Enqueue("s1", "will fail"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	var failed bus.Event
	select {
	case failed = <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for send_failed")
	}
	payload := failed.Payload.(map[string]string)
	if payload["session_id"] != "s1" || payload["error"] == "" {
		t.Errorf("payload = %v, want session and error", payload)
	}

	// The entry stays visible in failed state, and is not retried.
	msgs, _ := db.ListMessages("s1", 10)
	if len(msgs) != 1 || msgs[0].Status != store.StatusFailed {
		t.Errorf("entry = %+v, want failed", msgs)
	}
	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("got %d pending, want 0 (no automatic retry)", len(pending))
	}
}

func TestRetryRequeuesFailedEntry(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	mock := &mockSender{err: fmt.Errorf("flaky")}
	s := NewSender(db, mock, b, agent, zap.NewNop())

	failedCh, unsub := b.Subscribe("message.send_failed", 10)
	defer unsub()

	if err := s.Enqueue("s1", "try again"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-failedCh:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for first failure")
	}

	msgs, _ := db.ListMessages("s1", 10)
	if len(msgs) != 1 {
		t.Fatal("missing failed entry")
	}
	clientMsgID := msgs[0].ID

	// The server recovers; a retry should go through.
	mock.mu.Lock()
	mock.err = nil
	mock.mu.Unlock()

	ackCh, unsubAck := b.Subscribe("message.send_ack", 10)
	defer unsubAck()

	if err := s.Retry("s1", clientMsgID); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ackCh:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for ack after retry")
	}

	msgs, _ = db.ListMessages("s1", 10)
	if len(msgs) != 1 || msgs[0].Status != store.StatusSynced {
		t.Errorf("entry after retry = %+v, want synced", msgs)
	}
}
