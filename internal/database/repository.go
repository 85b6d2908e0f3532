package database

import "context"

// ChatRepository is the durable store consumed by the chat services.
// Lookups of a single record return sql.ErrNoRows when nothing matches.
type ChatRepository interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUser(ctx context.Context, userId string) (User, error)
	GetUsers(ctx context.Context, userIds []string) ([]User, error)
	CreateChat(ctx context.Context, params CreateChatParams) (Chat, error)
	GetChat(ctx context.Context, chatId string) (Chat, error)
	ListChatsForMember(ctx context.Context, userId string) ([]Chat, error)
	IsMember(ctx context.Context, chatId, userId string) (bool, error)
	// CreateMessage stores msg and bumps its chat's updated time as one
	// write. On error neither change is applied.
	CreateMessage(ctx context.Context, msg Message) error
	GetLastMessage(ctx context.Context, chatId string) (Message, error)
	// GetMessages returns up to limit messages of a chat, newest first,
	// skipping the offset most recent ones.
	GetMessages(ctx context.Context, chatId string, limit, offset int) ([]Message, error)
	CountMessages(ctx context.Context, chatId string) (int, error)
}
