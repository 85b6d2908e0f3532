package server

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/npezzotti/go-groupchat/internal/chat"
	"github.com/npezzotti/go-groupchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_serializeMessage(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := SendOK(3, types.Message{
		MessageId: "MSG_1",
		ChatId:    "CHAT_1",
		SenderId:  "100",
		Type:      types.MessageTypeText,
		Timestamp: ts,
		Text:      "hi",
		Message:   "hi",
	})

	bytes, err := serializeMessage(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(bytes, &decoded))
	assert.EqualValues(t, 3, decoded["id"])

	send, ok := decoded["sendMessage"].(map[string]any)
	require.True(t, ok, "expected sendMessage object")
	assert.Equal(t, true, send["success"])
	assert.Equal(t, "MSG_1", send["messageId"], "expected message fields to be inlined")
	assert.Equal(t, "hi", send["message"])
	assert.Equal(t, "text", send["type"])
	assert.NotContains(t, send, "error")
}

func TestJoinFailed(t *testing.T) {
	tcases := []struct {
		name          string
		err           error
		expectedError string
		expectedCode  string
	}{
		{
			name:          "validation error",
			err:           chat.ErrNotAMember,
			expectedError: "user is not a member of this chat",
			expectedCode:  "NotAMember",
		},
		{
			name:          "store error hides cause",
			err:           &chat.Error{Kind: chat.KindStoreUnavailable, Msg: "store unavailable", Err: fmt.Errorf("dial tcp: refused")},
			expectedError: "store unavailable",
			expectedCode:  "StoreUnavailable",
		},
		{
			name:          "unclassified error",
			err:           fmt.Errorf("boom"),
			expectedError: "internal server error",
			expectedCode:  "Internal",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msg := JoinFailed(1, tc.err)
			require.NotNil(t, msg.JoinChatRoom)
			assert.False(t, msg.JoinChatRoom.Success)
			assert.Equal(t, tc.expectedError, msg.JoinChatRoom.Error)
			assert.Equal(t, tc.expectedCode, msg.JoinChatRoom.Code)
		})
	}
}

func TestErrInvalidMessage(t *testing.T) {
	assert.Equal(t, 0, ErrInvalidMessage(-1).Id)
	assert.Equal(t, 4, ErrInvalidMessage(4).Id)
}
