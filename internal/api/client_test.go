package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eventmatch/chat-client/internal/httpx"
	"github.com/eventmatch/chat-client/internal/models"
	"github.com/eventmatch/chat-client/internal/session"
	"github.com/eventmatch/chat-client/internal/testutil"
)

func newTestClient(server *testutil.APIServer) *Client {
	creds := session.NewStatic("42", session.RoleUser)
	return NewClient(server.URL, creds, nil)
}

func TestLoadAll(t *testing.T) {
	server := testutil.NewAPIServer()
	defer server.Close()
	server.SetGroups([]models.EventConversations{
		testutil.Group(3, "Speed dating", testutil.Conv(7, 2), testutil.Conv(8, 0)),
		testutil.Group(4, "Wine tasting", testutil.Conv(9, 1)),
	})

	c := newTestClient(server)
	groups, err := c.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	require.Equal(t, 3, groups[0].Event.ID)
	require.Equal(t, "Speed dating", groups[0].Event.Name)
	require.Len(t, groups[0].Conversations, 2)
	require.Equal(t, 2, groups[0].Conversations[0].UnreadCount)
}

func TestLoadOne(t *testing.T) {
	server := testutil.NewAPIServer()
	defer server.Close()
	server.SetGroups([]models.EventConversations{
		testutil.Group(3, "Speed dating", testutil.Conv(7, 0)),
	})
	server.SetHistory(7, []models.Message{
		testutil.Msg(1, 42, "hello"),
		testutil.Msg(2, 70, "hi back"),
	})

	c := newTestClient(server)
	detail, err := c.LoadOne(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 7, detail.Conversation.MatchID)
	require.Len(t, detail.Messages, 2)
	require.Equal(t, "hello", detail.Messages[0].Content)
}

func TestLoadOneNotFound(t *testing.T) {
	server := testutil.NewAPIServer()
	defer server.Close()

	c := newTestClient(server)
	_, err := c.LoadOne(context.Background(), 404)
	require.Error(t, err)

	apiErr, ok := httpx.IsAPIError(err)
	require.True(t, ok)
	require.Equal(t, 404, apiErr.Status)
}

func TestSendMessage(t *testing.T) {
	server := testutil.NewAPIServer()
	defer server.Close()

	c := newTestClient(server)
	msg, err := c.SendMessage(context.Background(), 7, "hello")
	require.NoError(t, err)
	require.NotZero(t, msg.ID)
	require.Equal(t, 42, msg.SenderID)
	require.Equal(t, "hello", msg.Content)
}

func TestSendMessageFailure(t *testing.T) {
	server := testutil.NewAPIServer()
	defer server.Close()
	server.FailSends(true)

	c := newTestClient(server)
	_, err := c.SendMessage(context.Background(), 7, "hello")
	require.Error(t, err)

	apiErr, ok := httpx.IsAPIError(err)
	require.True(t, ok)
	require.Equal(t, "sending is not permitted", apiErr.Message)
}

func TestMarkConversationRead(t *testing.T) {
	server := testutil.NewAPIServer()
	defer server.Close()

	c := newTestClient(server)
	require.NoError(t, c.MarkConversationRead(context.Background(), 7))
	require.Equal(t, 1, server.ReadCalls(7))
}
