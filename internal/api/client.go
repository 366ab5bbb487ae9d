package api

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventmatch/chat-client/internal/httpx"
	"github.com/eventmatch/chat-client/internal/models"
	"github.com/eventmatch/chat-client/internal/session"
)

const defaultTimeout = 15 * time.Second

// Client is the request/response surface of the chat backend: snapshot
// loads, sends and read marks. It holds no state of its own; callers own
// whatever they fetch.
type Client struct {
	http  *resty.Client
	creds session.Credentials
	log   *zap.Logger
}

func NewClient(baseURL string, creds session.Credentials, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:  resty.New().SetBaseURL(baseURL).SetTimeout(defaultTimeout),
		creds: creds,
		log:   log,
	}
}

// LoadAll fetches the authoritative conversation list, grouped by event,
// with last-message previews and unread counts as of the call time.
func (c *Client) LoadAll(ctx context.Context) ([]models.EventConversations, error) {
	var out []models.EventConversations
	if err := c.get(ctx, "/chat/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadOne fetches the full ordered message history plus counterpart identity
// for one conversation.
func (c *Client) LoadOne(ctx context.Context, matchID int) (*models.ConversationDetail, error) {
	var out models.ConversationDetail
	if err := c.get(ctx, fmt.Sprintf("/chat/conversations/%d", matchID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage posts a message and returns the server-assigned message. The
// caller appends it locally only on success.
func (c *Client) SendMessage(ctx context.Context, matchID int, content string) (*models.Message, error) {
	resp, err := c.request(ctx).
		SetBody(map[string]string{"content": content}).
		Post(fmt.Sprintf("/chat/conversations/%d/messages", matchID))
	if err != nil {
		return nil, err
	}
	var out models.Message
	if err := httpx.Decode(resp.StatusCode(), resp.Body(), &out); err != nil {
		c.log.Debug("send message failed", zap.Int("match_id", matchID), zap.Error(err))
		return nil, err
	}
	return &out, nil
}

// MarkConversationRead tells the server the thread has been read, so the
// counterpart eventually observes a read receipt.
func (c *Client) MarkConversationRead(ctx context.Context, matchID int) error {
	resp, err := c.request(ctx).
		Post(fmt.Sprintf("/chat/conversations/%d/read", matchID))
	if err != nil {
		return err
	}
	return httpx.Decode(resp.StatusCode(), resp.Body(), nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.request(ctx).Get(path)
	if err != nil {
		return err
	}
	if err := httpx.Decode(resp.StatusCode(), resp.Body(), out); err != nil {
		c.log.Debug("request failed", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.creds.Token()).
		SetHeader("X-Request-ID", uuid.NewString())
}
