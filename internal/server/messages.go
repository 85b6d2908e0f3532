package server

import (
	"errors"
	"time"

	"github.com/npezzotti/go-groupchat/internal/chat"
	"github.com/npezzotti/go-groupchat/internal/types"
)

const (
	codeInvalidMessage = "InvalidMessage"
	codeInternal       = "Internal"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is an event received from a connection. Exactly one of the
// event fields is set.
type ClientMessage struct {
	BaseMessage
	JoinChatRoom *JoinChatRoom     `json:"joinChatRoom,omitempty"`
	SendMessage  *chat.SendRequest `json:"sendMessage,omitempty"`
	client       *Client
}

type JoinChatRoom struct {
	ChatId string `json:"chatId"`
	UserId string `json:"userId"`
}

// ServerMessage is an event written to a connection.
type ServerMessage struct {
	BaseMessage
	JoinChatRoom   *JoinResult    `json:"joinChatRoom,omitempty"`
	SendMessage    *SendResult    `json:"sendMessage,omitempty"`
	ReceiveMessage *types.Message `json:"receiveMessage,omitempty"`
	Error          *ErrorResult   `json:"error,omitempty"`
}

type JoinResult struct {
	Success bool   `json:"success"`
	Joined  bool   `json:"joined,omitempty"`
	ChatId  string `json:"chatId,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// SendResult mirrors the canonical message on success.
type SendResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	*types.Message
}

type ErrorResult struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func JoinOK(id int, chatId string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: chat.Now(),
		},
		JoinChatRoom: &JoinResult{
			Success: true,
			Joined:  true,
			ChatId:  chatId,
		},
	}
}

func JoinFailed(id int, err error) *ServerMessage {
	msg, code := errorText(err)
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: chat.Now(),
		},
		JoinChatRoom: &JoinResult{
			Error: msg,
			Code:  code,
		},
	}
}

func SendOK(id int, m types.Message) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: chat.Now(),
		},
		SendMessage: &SendResult{
			Success: true,
			Message: &m,
		},
	}
}

func SendFailed(id int, err error) *ServerMessage {
	msg, code := errorText(err)
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: chat.Now(),
		},
		SendMessage: &SendResult{
			Error: msg,
			Code:  code,
		},
	}
}

func Receive(m types.Message) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: chat.Now(),
		},
		ReceiveMessage: &m,
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: chat.Now(),
		},
		Error: &ErrorResult{
			Error: "invalid message format",
			Code:  codeInvalidMessage,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

// errorText renders err for a client. Store failures never expose their
// cause.
func errorText(err error) (string, string) {
	var e *chat.Error
	if !errors.As(err, &e) {
		return "internal server error", codeInternal
	}

	if e.Kind == chat.KindStoreUnavailable {
		return chat.ErrStoreUnavailable.Msg, string(e.Kind)
	}

	return e.Msg, string(e.Kind)
}
