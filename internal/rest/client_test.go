package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dlemos/chatdesk/internal/chat"
)

func TestListSessionsNormalizesWireRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chats" {
			t.Errorf("path = %q, want /chats", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("limit = %q, want 50", got)
		}
		_, _ = w.Write([]byte(`{"data":[
			{"_id":"s1","participants":[{"_id":"c1","name":"John Doe","email":"john@example.com","avatar":"https://cdn/a.png"}],
			 "lastMessage":{"text":"I need help","updatedAt":"2024-01-15T10:30:00Z"},
			 "updatedAt":"2024-01-15T09:00:00Z","unreadCount":2,"status":"active"},
			{"_id":"s2","participants":[{"_id":"c2","email":"sarah@example.com"}],
			 "updatedAt":"2024-01-15T08:00:00Z","unreadCount":0,"status":"Waiting"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1")
	sessions, err := c.ListSessions(context.Background(), 1, 50)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}

	s1 := sessions[0]
	if s1.CustomerName != "John Doe" || s1.Status != chat.StatusActive || s1.UnreadCount != 2 {
		t.Errorf("s1 normalized wrong: %+v", s1)
	}
	if s1.LastMessageAt == 0 || s1.LastMessageDate() != s1.LastMessageAt {
		t.Errorf("s1 should resolve to last message time, got %d", s1.LastMessageDate())
	}

	// Partial record: name falls back to email local-part, avatar to
	// the placeholder, date resolution to the session updatedAt.
	s2 := sessions[1]
	if s2.CustomerName != "sarah" {
		t.Errorf("s2 name = %q, want email local-part 'sarah'", s2.CustomerName)
	}
	if s2.AvatarURL != chat.DefaultAvatarURL {
		t.Errorf("s2 avatar = %q, want placeholder", s2.AvatarURL)
	}
	if s2.Status != chat.StatusWaiting {
		t.Errorf("s2 status = %s, want WAITING", s2.Status)
	}
	if s2.LastMessageDate() != s2.UpdatedAt || s2.UpdatedAt == 0 {
		t.Errorf("s2 should resolve to updatedAt, got %d", s2.LastMessageDate())
	}
}

func TestListMessagesKeepsWireOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chats/s1/messages" {
			t.Errorf("path = %q, want /chats/s1/messages", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[
			{"_id":"m2","sender":{"_id":"agent-1","name":"Admin"},"text":"hello","createdAt":"2024-01-15T10:31:00Z"},
			{"_id":"m1","sender":{"_id":"c1","name":"John"},"text":"hi","createdAt":"2024-01-15T10:30:00Z"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	msgs, err := c.ListMessages(context.Background(), "s1", 1, 50)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// Newest-first wire order must be preserved; the chronological
	// transform is the caller's one-shot responsibility.
	if msgs[0].ID != "m2" || msgs[1].ID != "m1" {
		t.Errorf("wire order changed: %q, %q", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].SessionID != "s1" {
		t.Errorf("session id = %q, want s1", msgs[0].SessionID)
	}
}

func TestSendMessageMultipartRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart body: %v", err)
		}
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(r.FormValue("data")), &payload); err != nil {
			t.Fatalf("data part is not JSON: %v", err)
		}
		if payload.Text != "Hello" {
			t.Errorf("text = %q, want Hello", payload.Text)
		}
		_, _ = w.Write([]byte(`{"data":{"_id":"srv-9","sender":{"_id":"agent-1","name":"Admin"},"text":"Hello","createdAt":"2024-01-15T10:32:00Z"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	msg, err := c.SendMessage(context.Background(), "s1", "Hello")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if msg.ID != "srv-9" {
		t.Errorf("server id = %q, want srv-9", msg.ID)
	}
	if msg.Timestamp == 0 {
		t.Error("server timestamp missing")
	}
}

func TestErrorStatusSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream down"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	if _, err := c.ListSessions(context.Background(), 1, 10); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestMalformedTimestampBecomesZero(t *testing.T) {
	if got := parseWireTime("not-a-date"); got != 0 {
		t.Errorf("parseWireTime(garbage) = %d, want 0", got)
	}
	if got := parseWireTime(""); got != 0 {
		t.Errorf("parseWireTime(empty) = %d, want 0", got)
	}
}
