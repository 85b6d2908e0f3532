package database

import "time"

type User struct {
	UserId     string
	Username   string
	Email      string
	ProfilePic string
	CreatedAt  time.Time
}

type Chat struct {
	ChatId    string
	CreatedBy string
	Members   []string
	IsGroup   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	MessageId string
	ChatId    string
	SenderId  string
	Type      string
	Text      string
	FileUrl   string
	FileName  string
	FileSize  int64
	MimeType  string
	Timestamp time.Time
}

type CreateUserParams struct {
	UserId     string
	Username   string
	Email      string
	ProfilePic string
}

type CreateChatParams struct {
	ChatId    string
	CreatedBy string
	Members   []string
}
