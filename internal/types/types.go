package types

import (
	"time"
)

type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
	MessageTypeLocation MessageType = "location"
)

// MessageTypes lists every recognized message kind.
var MessageTypes = []MessageType{
	MessageTypeText,
	MessageTypeImage,
	MessageTypeVideo,
	MessageTypeLocation,
	MessageTypeDocument,
	MessageTypeAudio,
}

func (t MessageType) Valid() bool {
	for _, mt := range MessageTypes {
		if t == mt {
			return true
		}
	}
	return false
}

// IsFile reports whether messages of this kind reference an uploaded file.
func (t MessageType) IsFile() bool {
	switch t {
	case MessageTypeImage, MessageTypeVideo, MessageTypeDocument, MessageTypeAudio:
		return true
	}
	return false
}

type User struct {
	UserId     string `json:"userId"`
	Username   string `json:"username"`
	ProfilePic string `json:"profilePic"`
}

type Chat struct {
	ChatId    string    `json:"chatId"`
	CreatedBy string    `json:"createdBy,omitempty"`
	IsGroup   bool      `json:"isGroup"`
	Members   []User    `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Message is the canonical wire form of a chat message. Core fields are
// always present; text and file fields depend on Type.
type Message struct {
	MessageId string      `json:"messageId"`
	ChatId    string      `json:"chatId"`
	SenderId  string      `json:"senderId"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Text      string      `json:"text,omitempty"`
	Message   string      `json:"message,omitempty"`
	FileUrl   string      `json:"file_url,omitempty"`
	FileName  string      `json:"file_name,omitempty"`
	FileSize  int64       `json:"file_size,omitempty"`
	MimeType  string      `json:"mime_type,omitempty"`
}

// ChatPreview is one row of a user's conversation list.
type ChatPreview struct {
	UserId      string    `json:"user_id"`
	Username    string    `json:"username"`
	ProfilePic  string    `json:"profile_pic"`
	ChatId      string    `json:"chat_id"`
	Time        time.Time `json:"time"`
	LastMessage string    `json:"last_message"`
}

type History struct {
	Success  bool      `json:"success"`
	ChatId   string    `json:"chatId"`
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
	Total    int       `json:"total"`
}

type UploadedFile struct {
	Success  bool   `json:"success"`
	Url      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}
