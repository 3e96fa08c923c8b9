package rest

import (
	"time"

	"github.com/dlemos/chatdesk/internal/chat"
)

// Raw wire shapes for the /api/v1 backend. Records may be partial
// (missing participant, avatar, last message); normalization substitutes
// defaults instead of failing.

type wireEnvelope[T any] struct {
	Data    T         `json:"data"`
	Meta    *wireMeta `json:"meta,omitempty"`
	Message string    `json:"message,omitempty"`
}

type wireMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type wireParticipant struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

type wireLastMessage struct {
	Text      string `json:"text"`
	UpdatedAt string `json:"updatedAt"`
}

type wireSession struct {
	ID           string            `json:"_id"`
	Participants []wireParticipant `json:"participants"`
	LastMessage  *wireLastMessage  `json:"lastMessage"`
	UpdatedAt    string            `json:"updatedAt"`
	UnreadCount  int               `json:"unreadCount"`
	Status       string            `json:"status"`
}

type wireSender struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type wireMessage struct {
	ID        string     `json:"_id"`
	ChatID    string     `json:"chat"`
	Sender    wireSender `json:"sender"`
	Text      string     `json:"text"`
	CreatedAt string     `json:"createdAt"`
}

// toSession normalizes a wire session into the internal shape, applying
// the default fallbacks for missing participant fields.
func (w *wireSession) toSession() chat.Session {
	var p wireParticipant
	if len(w.Participants) > 0 {
		p = w.Participants[0]
	}

	s := chat.Session{
		ID:            w.ID,
		CustomerID:    p.ID,
		CustomerName:  chat.DisplayName(p.Name, p.Email, p.ID),
		CustomerEmail: p.Email,
		AvatarURL:     chat.AvatarOrDefault(p.Avatar),
		UpdatedAt:     parseWireTime(w.UpdatedAt),
		UnreadCount:   w.UnreadCount,
		Status:        chat.ParseStatus(w.Status),
	}
	if w.LastMessage != nil {
		s.LastMessageText = w.LastMessage.Text
		s.LastMessageAt = parseWireTime(w.LastMessage.UpdatedAt)
	}
	return s
}

func (w *wireMessage) toMessage(sessionID string) chat.Message {
	id := w.ChatID
	if id == "" {
		id = sessionID
	}
	return chat.Message{
		ID:         w.ID,
		SessionID:  id,
		SenderID:   w.Sender.ID,
		SenderName: w.Sender.Name,
		Text:       w.Text,
		Timestamp:  parseWireTime(w.CreatedAt),
	}
}

// parseWireTime converts an RFC3339 timestamp to unix millis; malformed
// or empty values become 0 so the date-resolution fallback can apply.
func parseWireTime(raw string) int64 {
	if raw == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
