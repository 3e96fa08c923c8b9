package chat

// Status is the normalized state of a support session. Wire values are
// case-insensitive; internally exactly one of these three holds.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusWaiting Status = "WAITING"
	StatusClosed  Status = "CLOSED"
)

// Session is one customer support conversation as the agent sees it.
type Session struct {
	ID            string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	AvatarURL     string
	// LastMessageText is empty when the session has no messages yet.
	LastMessageText string
	// LastMessageAt is the last message timestamp in unix millis,
	// 0 when the session has no messages.
	LastMessageAt int64
	// UpdatedAt is the session's own last-updated timestamp.
	UpdatedAt   int64
	UnreadCount int
	Status      Status
}

// LastMessageDate resolves the timestamp used for sort ordering:
// the last message's timestamp when present, else the session's own
// updated-at.
func (s *Session) LastMessageDate() int64 {
	if s.LastMessageAt != 0 {
		return s.LastMessageAt
	}
	return s.UpdatedAt
}

// Message is one entry in a session's timeline.
type Message struct {
	ID         string
	SessionID  string
	SenderID   string
	SenderName string
	Text       string
	// Timestamp is the server-assigned creation time in unix millis;
	// the ordering key within a session.
	Timestamp int64
}

// IsAdmin reports whether the message was written by the given agent.
// This is derived, not stored: the same message can be viewed by
// different agents, so it is recomputed against the identity passed in.
func (m *Message) IsAdmin(agentID string) bool {
	return agentID != "" && m.SenderID == agentID
}
