package store

import "github.com/dlemos/chatdesk/internal/chat"

// Message send/sync states for cached timeline entries.
const (
	// StatusSynced marks a message that came from (or was confirmed by)
	// the REST backend.
	StatusSynced = "synced"
	// StatusSending marks an optimistic local entry awaiting confirmation.
	StatusSending = "sending"
	// StatusFailed marks an optimistic entry whose send failed; it stays
	// visible so the agent can retry.
	StatusFailed = "failed"
)

// Message is a cached timeline entry: the domain message plus its local
// sync state.
type Message struct {
	chat.Message
	Status string
}

// OutboxEntry represents a pending outgoing message.
type OutboxEntry struct {
	ID           int64
	ClientMsgID  string
	SessionID    string
	Body         string
	Status       string // queued, sending, sent, failed
	ErrorMessage string
	ServerMsgID  string
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
