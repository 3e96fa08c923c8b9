package store

import (
	"path/filepath"
	"testing"

	"github.com/dlemos/chatdesk/internal/chat"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + fts)", result.Version)
	}
}

func TestReplaceSessionsSnapshot(t *testing.T) {
	db := testDB(t)

	first := []chat.Session{
		{ID: "s1", CustomerID: "c1", CustomerName: "John", Status: chat.StatusActive, LastMessageAt: 1000},
		{ID: "s2", CustomerID: "c2", CustomerName: "Sarah", Status: chat.StatusWaiting, LastMessageAt: 2000},
	}
	if err := db.ReplaceSessions(first); err != nil {
		t.Fatal(err)
	}

	// A later snapshot without s2 must fully replace the previous one.
	second := []chat.Session{
		{ID: "s1", CustomerID: "c1", CustomerName: "John", Status: chat.StatusClosed, LastMessageAt: 3000},
	}
	if err := db.ReplaceSessions(second); err != nil {
		t.Fatal(err)
	}

	sessions, err := db.ListSessions(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1 (snapshot replacement)", len(sessions))
	}
	if sessions[0].Status != chat.StatusClosed {
		t.Errorf("status = %s, want CLOSED from the latest snapshot", sessions[0].Status)
	}
}

func TestReplaceSessionsIdempotent(t *testing.T) {
	db := testDB(t)

	snapshot := []chat.Session{
		{ID: "s1", CustomerID: "c1", LastMessageAt: 1000},
	}
	if err := db.ReplaceSessions(snapshot); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceSessions(snapshot); err != nil {
		t.Fatal(err)
	}

	sessions, err := db.ListSessions(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Errorf("got %d sessions, want 1 (idempotent)", len(sessions))
	}
}

func TestListSessionsOrderedByResolvedDate(t *testing.T) {
	db := testDB(t)

	snapshot := []chat.Session{
		{ID: "old", CustomerID: "c1", LastMessageAt: 1000},
		{ID: "empty", CustomerID: "c2", UpdatedAt: 2500}, // no messages: resolves to updated_at
		{ID: "new", CustomerID: "c3", LastMessageAt: 3000},
	}
	if err := db.ReplaceSessions(snapshot); err != nil {
		t.Fatal(err)
	}

	sessions, err := db.ListSessions(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"new", "empty", "old"}
	for i, id := range want {
		if sessions[i].ID != id {
			t.Fatalf("position %d = %q, want %q", i, sessions[i].ID, id)
		}
	}
}

func TestSessionCustomerJoin(t *testing.T) {
	db := testDB(t)

	snapshot := []chat.Session{
		{ID: "s1", CustomerID: "c1", CustomerName: "John Doe", CustomerEmail: "john@example.com", AvatarURL: "https://cdn/a.png"},
	}
	if err := db.ReplaceSessions(snapshot); err != nil {
		t.Fatal(err)
	}

	s, err := db.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if s == nil {
		t.Fatal("session not found")
	}
	if s.CustomerName != "John Doe" || s.CustomerEmail != "john@example.com" {
		t.Errorf("customer fields not resolved: %+v", s)
	}
}

func TestGetSessionMissing(t *testing.T) {
	db := testDB(t)

	s, err := db.GetSession("nope")
	if err != nil {
		t.Fatal(err)
	}
	if s != nil {
		t.Errorf("got %+v, want nil for missing session", s)
	}
}

func TestMarkSessionRead(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceSessions([]chat.Session{{ID: "s1", CustomerID: "c1", UnreadCount: 4}}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkSessionRead("s1"); err != nil {
		t.Fatal(err)
	}

	s, err := db.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if s.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 after open", s.UnreadCount)
	}
}

func TestBumpPreviewOnlyMovesForward(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceSessions([]chat.Session{{ID: "s1", CustomerID: "c1", LastMessageText: "current", LastMessageAt: 5000}}); err != nil {
		t.Fatal(err)
	}

	// Stale patch must not regress the preview.
	if err := db.BumpPreview("s1", "stale", 4000); err != nil {
		t.Fatal(err)
	}
	s, _ := db.GetSession("s1")
	if s.LastMessageText != "current" || s.LastMessageAt != 5000 {
		t.Errorf("stale bump applied: %+v", s)
	}

	if err := db.BumpPreview("s1", "newer", 6000); err != nil {
		t.Fatal(err)
	}
	s, _ = db.GetSession("s1")
	if s.LastMessageText != "newer" || s.LastMessageAt != 6000 {
		t.Errorf("forward bump not applied: %+v", s)
	}
}

func TestApplyIncomingIncrementsUnread(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceSessions([]chat.Session{{ID: "s1", CustomerID: "c1", UnreadCount: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := db.ApplyIncoming("s1", "new message", 9000); err != nil {
		t.Fatal(err)
	}

	s, _ := db.GetSession("s1")
	if s.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2", s.UnreadCount)
	}
	if s.LastMessageText != "new message" {
		t.Errorf("preview = %q, want the incoming text", s.LastMessageText)
	}
}

func TestReplaceTimelinePreservesOptimisticRows(t *testing.T) {
	db := testDB(t)

	// Optimistic entry awaiting confirmation.
	if err := db.UpsertMessage(&Message{
		Message: chat.Message{ID: "local-1", SessionID: "s1", SenderID: "agent-1", Text: "sending..."},
		Status:  StatusSending,
	}); err != nil {
		t.Fatal(err)
	}

	snapshot := []chat.Message{
		{ID: "m1", SessionID: "s1", SenderID: "c1", Text: "hi", Timestamp: 1000},
		{ID: "m2", SessionID: "s1", SenderID: "agent-1", Text: "hello", Timestamp: 2000},
	}
	if err := db.ReplaceTimeline("s1", snapshot); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3 (snapshot + optimistic)", len(msgs))
	}

	found := false
	for _, m := range msgs {
		if m.ID == "local-1" && m.Status == StatusSending {
			found = true
		}
	}
	if !found {
		t.Error("optimistic entry was wiped by the refetch")
	}
}

func TestReplaceTimelineIdempotent(t *testing.T) {
	db := testDB(t)

	snapshot := []chat.Message{
		{ID: "m1", SessionID: "s1", Text: "one", Timestamp: 1000},
		{ID: "m2", SessionID: "s1", Text: "two", Timestamp: 2000},
	}
	if err := db.ReplaceTimeline("s1", snapshot); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceTimeline("s1", snapshot); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (idempotent)", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("order = %q, %q; want chronological m1, m2", msgs[0].ID, msgs[1].ID)
	}
}

func TestResolveOptimisticConfirmedWins(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{
		Message: chat.Message{ID: "local-1", SessionID: "s1", SenderID: "agent-1", Text: "Hello", Timestamp: 1000},
		Status:  StatusSending,
	}); err != nil {
		t.Fatal(err)
	}

	confirmed := chat.Message{ID: "srv-9", SessionID: "s1", SenderID: "agent-1", Text: "Hello", Timestamp: 1500}
	if err := db.ResolveOptimistic("s1", "local-1", confirmed); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (optimistic row replaced)", len(msgs))
	}
	if msgs[0].ID != "srv-9" || msgs[0].Status != StatusSynced || msgs[0].Timestamp != 1500 {
		t.Errorf("confirmed row wrong: %+v", msgs[0])
	}
}

// TestResolveOptimisticAfterRefetchRace covers the case where a refetch
// already brought in the server copy before the ack arrived. Resolution
// must still converge on a single synced row.
func TestResolveOptimisticAfterRefetchRace(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{
		Message: chat.Message{ID: "local-1", SessionID: "s1", SenderID: "agent-1", Text: "Hello", Timestamp: 1000},
		Status:  StatusSending,
	}); err != nil {
		t.Fatal(err)
	}

	// Refetch lands first with the server-assigned copy.
	if err := db.ReplaceTimeline("s1", []chat.Message{
		{ID: "srv-9", SessionID: "s1", SenderID: "agent-1", Text: "Hello", Timestamp: 1500},
	}); err != nil {
		t.Fatal(err)
	}

	if err := db.ResolveOptimistic("s1", "local-1", chat.Message{
		ID: "srv-9", SessionID: "s1", SenderID: "agent-1", Text: "Hello", Timestamp: 1500,
	}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (no duplicate after race)", len(msgs))
	}
}

func TestMarkMessageFailedKeepsRow(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{
		Message: chat.Message{ID: "local-1", SessionID: "s1", Text: "will fail", Timestamp: 1000},
		Status:  StatusSending,
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkMessageFailed("s1", "local-1"); err != nil {
		t.Fatal(err)
	}

	msgs, _ := db.ListMessages("s1", 10)
	if len(msgs) != 1 || msgs[0].Status != StatusFailed {
		t.Errorf("failed entry must stay visible, got %+v", msgs)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("c1", "s1", "hello"); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientMsgID != "c1" {
		t.Fatalf("pending = %+v, want one entry c1", pending)
	}

	if err := db.MarkOutboxSent("c1", "srv-1"); err != nil {
		t.Fatal(err)
	}
	pending, _ = db.PendingOutbox()
	if len(pending) != 0 {
		t.Errorf("got %d pending after sent, want 0", len(pending))
	}
}

func TestRequeueFailed(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("c1", "s1", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxFailed("c1", "network error"); err != nil {
		t.Fatal(err)
	}
	pending, _ := db.PendingOutbox()
	if len(pending) != 0 {
		t.Fatal("failed entry must not be pending")
	}

	if err := db.RequeueFailed("c1"); err != nil {
		t.Fatal(err)
	}
	pending, _ = db.PendingOutbox()
	if len(pending) != 1 {
		t.Errorf("got %d pending after requeue, want 1", len(pending))
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	if err := db.ReplaceTimeline("s1", []chat.Message{
		{ID: "m1", SessionID: "s1", Text: "my order is missing", Timestamp: 1000},
		{ID: "m2", SessionID: "s1", Text: "thanks for the help", Timestamp: 2000},
	}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchMessages("order", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Message.ID != "m1" {
		t.Errorf("result = %q, want m1", results[0].Message.ID)
	}
	if results[0].Snippet == "" {
		t.Error("snippet is empty")
	}

	// Scoped to another session: no hits.
	results, err = db.SearchMessages("order", "s2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for other session, want 0", len(results))
	}
}
