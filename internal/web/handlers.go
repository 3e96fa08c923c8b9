package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dlemos/chatdesk/internal/outbox"
	"github.com/dlemos/chatdesk/internal/profile"
	"github.com/dlemos/chatdesk/internal/status"
	"github.com/dlemos/chatdesk/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type handlers struct {
	db       *store.DB
	sender   *outbox.Sender
	identity profile.Identity
	machine  *status.Machine
	logger   *zap.Logger
}

func newHandlers(db *store.DB, sender *outbox.Sender, identity profile.Identity, machine *status.Machine, logger *zap.Logger) *handlers {
	return &handlers{
		db:       db,
		sender:   sender,
		identity: identity,
		machine:  machine,
		logger:   logger,
	}
}

// chatView is the session summary shape served to the dashboard.
type chatView struct {
	ID              string `json:"id"`
	CustomerName    string `json:"customerName"`
	CustomerEmail   string `json:"customerEmail,omitempty"`
	AvatarURL       string `json:"avatarUrl"`
	LastMessageText string `json:"lastMessageText"`
	LastMessageDate int64  `json:"lastMessageDate"`
	UnreadCount     int    `json:"unreadCount"`
	Status          string `json:"status"`
}

type messageView struct {
	ID         string `json:"id"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	IsAdmin    bool   `json:"isAdmin"`
	Status     string `json:"status"`
}

func (h *handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"link":   string(h.machine.Current()),
		"agent":  h.identity.ID,
	})
}

func (h *handlers) ListChats(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	sessions, err := h.db.ListSessions(limit, offset)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}

	views := make([]chatView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, chatView{
			ID:              s.ID,
			CustomerName:    s.CustomerName,
			CustomerEmail:   s.CustomerEmail,
			AvatarURL:       s.AvatarURL,
			LastMessageText: s.LastMessageText,
			LastMessageDate: s.LastMessageDate(),
			UnreadCount:     s.UnreadCount,
			Status:          string(s.Status),
		})
	}
	c.JSON(http.StatusOK, gin.H{"chats": views, "count": len(views)})
}

func (h *handlers) GetChat(c *gin.Context) {
	s, err := h.db.GetSession(c.Param("id"))
	if err != nil {
		h.logger.Error("get session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get chat"})
		return
	}
	if s == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	c.JSON(http.StatusOK, chatView{
		ID:              s.ID,
		CustomerName:    s.CustomerName,
		CustomerEmail:   s.CustomerEmail,
		AvatarURL:       s.AvatarURL,
		LastMessageText: s.LastMessageText,
		LastMessageDate: s.LastMessageDate(),
		UnreadCount:     s.UnreadCount,
		Status:          string(s.Status),
	})
}

func (h *handlers) ListChatMessages(c *gin.Context) {
	limit := intQuery(c, "limit", 200)

	msgs, err := h.db.ListMessages(c.Param("id"), limit)
	if err != nil {
		h.logger.Error("list messages failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			ID:         m.ID,
			SenderName: m.SenderName,
			Text:       m.Text,
			Timestamp:  m.Timestamp,
			IsAdmin:    m.IsAdmin(h.identity.ID),
			Status:     m.Status,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": views, "count": len(views)})
}

type sendRequest struct {
	Text string `json:"text"`
}

func (h *handlers) SendChatMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		// Blank input queues nothing but is not an error.
		c.JSON(http.StatusOK, gin.H{"queued": false})
		return
	}
	if err := h.sender.Enqueue(c.Param("id"), req.Text); err != nil {
		h.logger.Error("enqueue reply failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue reply"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

func (h *handlers) MarkChatRead(c *gin.Context) {
	if err := h.db.MarkSessionRead(c.Param("id")); err != nil {
		h.logger.Error("mark read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handlers) SearchMessages(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	results, err := h.db.SearchMessages(query, c.Query("chat"), intQuery(c, "limit", 50))
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	type hit struct {
		messageView
		SessionID string `json:"chatId"`
		Snippet   string `json:"snippet"`
	}
	hits := make([]hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, hit{
			messageView: messageView{
				ID:         r.Message.ID,
				SenderName: r.Message.SenderName,
				Text:       r.Message.Text,
				Timestamp:  r.Message.Timestamp,
				IsAdmin:    r.Message.IsAdmin(h.identity.ID),
				Status:     r.Message.Status,
			},
			SessionID: r.Message.SessionID,
			Snippet:   r.Snippet,
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": hits, "count": len(hits)})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
