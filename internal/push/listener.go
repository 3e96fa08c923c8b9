package push

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dlemos/chatdesk/internal/bus"
	"github.com/dlemos/chatdesk/internal/status"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second

	maxBackoff = 30 * time.Second
)

// envelope is the wire frame pushed by the chat server:
// an event name plus an opaque JSON payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// messageData carries the fields of a newMessage push. Only the
// session reference is acted on: a push is a hint to refetch, the
// payload itself is never spliced into the timeline.
type messageData struct {
	SessionID string `json:"chatSessionId"`
	SenderID  string `json:"senderId"`
}

type sessionData struct {
	SessionID string `json:"_id"`
}

// Listener maintains the socket connection to the chat server, drives
// the link state machine, and publishes parsed push hints on the bus.
// It does NOT call the sync engine directly. The engine subscribes to
// the bus independently.
type Listener struct {
	url     string
	token   string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	dialer *websocket.Dialer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a push listener for the given socket URL.
func NewListener(url, token string, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Listener {
	return &Listener{
		url:     url,
		token:   token,
		bus:     b,
		machine: machine,
		logger:  logger,
		dialer:  websocket.DefaultDialer,
	}
}

// Start launches the connect/read loop in a goroutine. It returns
// immediately; connection state is reported through the state machine.
func (l *Listener) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	go func() {
		defer close(done)
		l.run(ctx)
	}()
}

// Stop terminates the listener and waits for the loop to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// run reconnects with capped exponential backoff until ctx is done.
// A connection that stayed up resets the backoff.
func (l *Listener) run(ctx context.Context) {
	backoff := time.Second

	for {
		_ = l.machine.Transition(status.Connecting)

		start := time.Now()
		err := l.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(start) > time.Minute {
			backoff = time.Second
		}

		l.logger.Warn("push connection lost, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff))
		_ = l.machine.Transition(status.Reconnecting)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
			// Repeated failures at max backoff mean the socket is
			// effectively down. Polling carries the session list.
			_ = l.machine.Transition(status.Degraded)
		}
	}
}

func (l *Listener) connectAndRead(ctx context.Context) error {
	header := http.Header{}
	if l.token != "" {
		header.Set("Authorization", "Bearer "+l.token)
	}

	conn, _, err := l.dialer.DialContext(ctx, l.url, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	l.logger.Info("push socket connected", zap.String("url", l.url))
	_ = l.machine.Transition(status.Live)

	// Close the socket when ctx is cancelled so ReadMessage unblocks.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-readDone:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	go l.pingLoop(ctx, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		l.handleFrame(raw)
	}
}

func (l *Listener) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (l *Listener) handleFrame(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		l.logger.Warn("malformed push frame", zap.Error(err))
		return
	}

	switch env.Event {
	case "newMessage":
		var data messageData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.SessionID == "" {
			l.logger.Warn("newMessage push without session id")
			return
		}
		l.bus.Publish(bus.Event{
			Kind:      "push.message",
			Timestamp: time.Now(),
			Payload:   data.SessionID,
		})
	case "newChatSession", "sessionUpdated":
		var data sessionData
		_ = json.Unmarshal(env.Data, &data)
		l.bus.Publish(bus.Event{
			Kind:      "push.session",
			Timestamp: time.Now(),
			Payload:   data.SessionID,
		})
	default:
		l.logger.Debug("ignoring push event", zap.String("event", env.Event))
	}
}
