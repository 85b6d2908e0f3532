package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetUser(ctx context.Context, userId string) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetUsers(ctx context.Context, userIds []string) ([]User, error) {
	args := m.Called(userIds)
	if users, ok := args.Get(0).([]User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) CreateChat(ctx context.Context, params CreateChatParams) (Chat, error) {
	args := m.Called(params)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockChatRepository) GetChat(ctx context.Context, chatId string) (Chat, error) {
	args := m.Called(chatId)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockChatRepository) ListChatsForMember(ctx context.Context, userId string) ([]Chat, error) {
	args := m.Called(userId)
	if chats, ok := args.Get(0).([]Chat); ok {
		return chats, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) IsMember(ctx context.Context, chatId, userId string) (bool, error) {
	args := m.Called(chatId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(ctx context.Context, msg Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockChatRepository) GetLastMessage(ctx context.Context, chatId string) (Message, error) {
	args := m.Called(chatId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessages(ctx context.Context, chatId string, limit, offset int) ([]Message, error) {
	args := m.Called(chatId, limit, offset)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) CountMessages(ctx context.Context, chatId string) (int, error) {
	args := m.Called(chatId)
	return args.Int(0), args.Error(1)
}
