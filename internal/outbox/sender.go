package outbox

import (
	"context"
	"strings"
	"time"

	"github.com/dlemos/chatdesk/internal/bus"
	"github.com/dlemos/chatdesk/internal/chat"
	"github.com/dlemos/chatdesk/internal/profile"
	"github.com/dlemos/chatdesk/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageSender is the interface for delivering an agent reply to the
// chat server. The server assigns the canonical message on success.
type MessageSender interface {
	SendMessage(ctx context.Context, sessionID, text string) (*chat.Message, error)
}

// Sender drains the outbox and delivers queued replies. Each reply is
// shown optimistically as soon as it is enqueued; the server-confirmed
// copy replaces the optimistic one on ack, regardless of whether a
// refetch brought it in first.
type Sender struct {
	db       *store.DB
	sender   MessageSender
	bus      *bus.Bus
	identity profile.Identity
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewSender creates a new outbox sender acting as the given agent.
func NewSender(db *store.DB, sender MessageSender, b *bus.Bus, identity profile.Identity, logger *zap.Logger) *Sender {
	return &Sender{
		db:       db,
		sender:   sender,
		bus:      b,
		identity: identity,
		logger:   logger,
	}
}

// Enqueue queues a reply for delivery and inserts the optimistic
// timeline entry. Whitespace-only input is a no-op with no error, no
// queue entry, and no event.
func (s *Sender) Enqueue(sessionID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	clientMsgID := uuid.New().String()
	now := time.Now().UnixMilli()

	if err := s.db.UpsertMessage(&store.Message{
		Message: chat.Message{
			ID:         clientMsgID,
			SessionID:  sessionID,
			SenderID:   s.identity.ID,
			SenderName: s.identity.Name,
			Text:       text,
			Timestamp:  now,
		},
		Status: store.StatusSending,
	}); err != nil {
		return err
	}

	if err := s.db.QueueOutbox(clientMsgID, sessionID, text); err != nil {
		return err
	}

	s.bus.Publish(bus.Event{
		Kind:      "timeline.updated",
		Timestamp: time.Now(),
		Payload:   sessionID,
	})
	return nil
}

// Start begins polling the outbox for pending replies.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending",
				zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		confirmed, err := s.sender.SendMessage(ctx, entry.SessionID, entry.Body)
		if err != nil {
			s.logger.Error("send failed",
				zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			// The failed entry stays on the timeline so the agent can
			// see what did not go through. No automatic retry.
			_ = s.db.MarkMessageFailed(entry.SessionID, entry.ClientMsgID)
			s.bus.Publish(bus.Event{
				Kind:      "message.send_failed",
				Timestamp: time.Now(),
				Payload: map[string]string{
					"client_msg_id": entry.ClientMsgID,
					"session_id":    entry.SessionID,
					"error":         err.Error(),
				},
			})
			continue
		}

		if err := s.db.ResolveOptimistic(entry.SessionID, entry.ClientMsgID, *confirmed); err != nil {
			s.logger.Error("failed to resolve optimistic entry",
				zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		if err := s.db.MarkOutboxSent(entry.ClientMsgID, confirmed.ID); err != nil {
			s.logger.Error("failed to mark sent",
				zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		_ = s.db.BumpPreview(entry.SessionID, confirmed.Text, confirmed.Timestamp)

		s.logger.Info("reply delivered",
			zap.String("client_msg_id", entry.ClientMsgID),
			zap.String("server_msg_id", confirmed.ID))
		s.bus.Publish(bus.Event{
			Kind:      "message.send_ack",
			Timestamp: time.Now(),
			Payload: map[string]string{
				"client_msg_id": entry.ClientMsgID,
				"server_msg_id": confirmed.ID,
				"session_id":    entry.SessionID,
			},
		})
	}
}

// Retry puts a failed reply back in the queue. The timeline entry
// returns to sending state on the next drain pass.
func (s *Sender) Retry(sessionID, clientMsgID string) error {
	if err := s.db.RequeueFailed(clientMsgID); err != nil {
		return err
	}
	return s.db.MarkMessageSending(sessionID, clientMsgID)
}
