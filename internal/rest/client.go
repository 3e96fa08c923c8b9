package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dlemos/chatdesk/internal/chat"
)

// Client talks to the support backend's /api/v1 surface with a bearer
// token. All calls honor the passed context; failures are wrapped errors
// local to the caller, never fatal to the rest of the console.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// New creates a REST client for the given base URL (e.g.
// "http://host:5003/api/v1") and bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// ListSessions fetches one page of chat session summaries.
func (c *Client) ListSessions(ctx context.Context, page, limit int) ([]chat.Session, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var env wireEnvelope[[]wireSession]
	if err := c.getJSON(ctx, "/chats?"+q.Encode(), &env); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]chat.Session, 0, len(env.Data))
	for _, w := range env.Data {
		sessions = append(sessions, w.toSession())
	}
	return sessions, nil
}

// ListMessages fetches one page of a session's messages. The backend
// returns newest-first; this is preserved here, and callers apply the
// chronological transform exactly once per fetch.
func (c *Client) ListMessages(ctx context.Context, sessionID string, page, limit int) ([]chat.Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var env wireEnvelope[[]wireMessage]
	path := "/chats/" + url.PathEscape(sessionID) + "/messages?" + q.Encode()
	if err := c.getJSON(ctx, path, &env); err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", sessionID, err)
	}

	msgs := make([]chat.Message, 0, len(env.Data))
	for _, w := range env.Data {
		msgs = append(msgs, w.toMessage(sessionID))
	}
	return msgs, nil
}

// SendMessage posts a new message to a session. The backend expects a
// multipart body with a JSON-encoded "data" part; it returns the created
// message including the server-assigned id and timestamp.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (*chat.Message, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormField("data")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(payload); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	path := "/chats/" + url.PathEscape(sessionID) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	var env wireEnvelope[wireMessage]
	if err := c.do(req, &env); err != nil {
		return nil, fmt.Errorf("send message to %s: %w", sessionID, err)
	}

	msg := env.Data.toMessage(sessionID)
	return &msg, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	return c.do(req, out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Bounded read: error bodies are small, don't trust the server.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
