package server

import (
	"context"
	"testing"
	"time"

	"github.com/npezzotti/go-groupchat/internal/chat"
	"github.com/npezzotti/go-groupchat/internal/testutil"
	"github.com/npezzotti/go-groupchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func nextMessage(t *testing.T, c *Client) *ServerMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatal("expected a message to be queued for the client")
		return nil
	}
}

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")
		assert.NotNil(t, nextMessage(t, c))
	})

	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	cs, _, _ := newTestChatServer(t)
	c := newTestClient(t, cs)

	c.stopClient()
	assert.NotPanics(t, c.stopClient, "expected stopClient to be safe to call twice")

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
	assert.Error(t, c.ctx.Err())
}

func Test_cleanup(t *testing.T) {
	cs, members, _ := newTestChatServer(t)
	members.On("AuthorizeJoin", "CHAT_1", "100").Return(nil).Once()

	c := newTestClient(t, cs)
	cs.RegisterClient(c)
	require.NoError(t, cs.Join(context.Background(), c, "CHAT_1", "100"))

	c.cleanup()

	assert.Empty(t, cs.DeliverTargets("CHAT_1"))
	assert.NotContains(t, cs.clients, c)
	assert.Error(t, c.ctx.Err())
}

func Test_handleMessage_invalid(t *testing.T) {
	tcases := []struct {
		name       string
		raw        string
		expectedId int
	}{
		{"malformed json", `{"id":`, 0},
		{"no event", `{"id":7}`, 7},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cs, _, _ := newTestChatServer(t)
			c := newTestClient(t, cs)

			c.handleMessage([]byte(tc.raw))

			msg := nextMessage(t, c)
			require.NotNil(t, msg.Error)
			assert.Equal(t, "InvalidMessage", msg.Error.Code)
			assert.Equal(t, tc.expectedId, msg.Id)
		})
	}
}

func Test_handleMessage_join(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		cs, members, _ := newTestChatServer(t)
		defer members.AssertExpectations(t)
		members.On("AuthorizeJoin", "CHAT_1", "100").Return(nil).Once()
		c := newTestClient(t, cs)

		c.handleMessage([]byte(`{"id":1,"joinChatRoom":{"chatId":"CHAT_1","userId":"100"}}`))

		msg := nextMessage(t, c)
		require.NotNil(t, msg.JoinChatRoom)
		assert.Equal(t, 1, msg.Id)
		assert.True(t, msg.JoinChatRoom.Success)
		assert.True(t, msg.JoinChatRoom.Joined)
		assert.Equal(t, []*Client{c}, cs.DeliverTargets("CHAT_1"))
	})

	t.Run("failure", func(t *testing.T) {
		cs, members, _ := newTestChatServer(t)
		members.On("AuthorizeJoin", "CHAT_X", "100").Return(chat.ErrUnknownChat).Once()
		c := newTestClient(t, cs)

		c.handleMessage([]byte(`{"id":2,"joinChatRoom":{"chatId":"CHAT_X","userId":"100"}}`))

		msg := nextMessage(t, c)
		require.NotNil(t, msg.JoinChatRoom)
		assert.False(t, msg.JoinChatRoom.Success)
		assert.Equal(t, "chat not found", msg.JoinChatRoom.Error)
		assert.Equal(t, "UnknownChat", msg.JoinChatRoom.Code)
	})

	t.Run("no reply after leave", func(t *testing.T) {
		cs, members, _ := newTestChatServer(t)
		members.On("AuthorizeJoin", "CHAT_1", "100").Return(nil).Once()
		c := newTestClient(t, cs)
		cs.Leave(c)

		c.handleMessage([]byte(`{"id":4,"joinChatRoom":{"chatId":"CHAT_1","userId":"100"}}`))

		assert.Empty(t, c.send, "expected no join reply for a closed connection")
		assert.Empty(t, cs.DeliverTargets("CHAT_1"))
	})

	t.Run("token user mismatch", func(t *testing.T) {
		cs, members, _ := newTestChatServer(t)
		c := NewClient(nil, cs, testutil.TestLogger(t), "200")

		c.handleMessage([]byte(`{"id":3,"joinChatRoom":{"chatId":"CHAT_1","userId":"100"}}`))

		msg := nextMessage(t, c)
		assert.Equal(t, "Forbidden", msg.JoinChatRoom.Code)
		members.AssertNotCalled(t, "AuthorizeJoin", mock.Anything, mock.Anything)
	})
}

func Test_handleMessage_send(t *testing.T) {
	accepted := types.Message{
		MessageId: "MSG_1",
		ChatId:    "CHAT_1",
		SenderId:  "100",
		Type:      types.MessageTypeText,
		Text:      "hi",
		Message:   "hi",
		Timestamp: time.Now().UTC(),
	}

	t.Run("sender gets ack and broadcast", func(t *testing.T) {
		cs, members, pipeline := newTestChatServer(t)
		members.On("AuthorizeJoin", mock.Anything, mock.Anything).Return(nil)
		pipeline.On("Submit", chat.SendRequest{ChatId: "CHAT_1", SenderId: "100", Message: "hi", Type: "text"}).
			Return(accepted, nil).Once()

		sender := newTestClient(t, cs)
		peer := newTestClient(t, cs)
		require.NoError(t, cs.Join(context.Background(), sender, "CHAT_1", "100"))
		require.NoError(t, cs.Join(context.Background(), peer, "CHAT_1", "200"))

		sender.handleMessage([]byte(`{"id":5,"sendMessage":{"chatId":"CHAT_1","senderId":"100","message":"hi","type":"text"}}`))

		ack := nextMessage(t, sender)
		require.NotNil(t, ack.SendMessage)
		assert.Equal(t, 5, ack.Id)
		assert.True(t, ack.SendMessage.Success)
		assert.Equal(t, "MSG_1", ack.SendMessage.MessageId)

		echo := nextMessage(t, sender)
		require.NotNil(t, echo.ReceiveMessage)
		assert.Equal(t, accepted, *echo.ReceiveMessage)

		received := nextMessage(t, peer)
		require.NotNil(t, received.ReceiveMessage)
		assert.Equal(t, "MSG_1", received.ReceiveMessage.MessageId)
	})

	t.Run("rejected message is not broadcast", func(t *testing.T) {
		cs, members, pipeline := newTestChatServer(t)
		members.On("AuthorizeJoin", mock.Anything, mock.Anything).Return(nil)
		pipeline.On("Submit", mock.Anything).Return(types.Message{}, chat.ErrFileUrlRequired).Once()

		sender := newTestClient(t, cs)
		peer := newTestClient(t, cs)
		require.NoError(t, cs.Join(context.Background(), sender, "CHAT_1", "100"))
		require.NoError(t, cs.Join(context.Background(), peer, "CHAT_1", "200"))

		sender.handleMessage([]byte(`{"id":6,"sendMessage":{"chatId":"CHAT_1","senderId":"100","type":"image"}}`))

		ack := nextMessage(t, sender)
		require.NotNil(t, ack.SendMessage)
		assert.False(t, ack.SendMessage.Success)
		assert.Equal(t, "FileUrlRequired", ack.SendMessage.Code)
		assert.Len(t, sender.send, 0)
		assert.Len(t, peer.send, 0)
	})

	t.Run("token user mismatch", func(t *testing.T) {
		cs, _, pipeline := newTestChatServer(t)
		c := NewClient(nil, cs, testutil.TestLogger(t), "200")

		c.handleMessage([]byte(`{"id":7,"sendMessage":{"chatId":"CHAT_1","senderId":"100","message":"hi"}}`))

		ack := nextMessage(t, c)
		assert.Equal(t, "Forbidden", ack.SendMessage.Code)
		pipeline.AssertNotCalled(t, "Submit", mock.Anything)
	})

	t.Run("rate limited", func(t *testing.T) {
		cs, _, pipeline := newTestChatServer(t)
		cs.SetSendRate(0.001, 1)
		pipeline.On("Submit", mock.Anything).Return(accepted, nil).Once()
		c := newTestClient(t, cs)

		c.handleMessage([]byte(`{"id":8,"sendMessage":{"chatId":"CHAT_1","senderId":"100","message":"hi"}}`))
		assert.True(t, nextMessage(t, c).SendMessage.Success)

		c.handleMessage([]byte(`{"id":9,"sendMessage":{"chatId":"CHAT_1","senderId":"100","message":"again"}}`))
		ack := nextMessage(t, c)
		assert.False(t, ack.SendMessage.Success)
		assert.Equal(t, "RateLimited", ack.SendMessage.Code)
		pipeline.AssertNumberOfCalls(t, "Submit", 1)
	})
}
