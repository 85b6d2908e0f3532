package chat

import (
	"github.com/go-playground/validator/v10"
	"github.com/npezzotti/go-groupchat/internal/database"
	"github.com/npezzotti/go-groupchat/internal/types"
)

var validate = validator.New()

// SendRequest is an inbound send event as received from a client.
type SendRequest struct {
	ChatId   string `json:"chatId" validate:"required"`
	SenderId string `json:"senderId" validate:"required"`
	Message  string `json:"message,omitempty"`
	Type     string `json:"type,omitempty"`
	FileUrl  string `json:"file_url,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Payload is the kind-specific body of a message. It is one of
// TextPayload, FilePayload or LocationPayload.
type Payload interface {
	Type() types.MessageType
	apply(m *database.Message)
}

type TextPayload struct {
	Text string
}

func (TextPayload) Type() types.MessageType { return types.MessageTypeText }

func (p TextPayload) apply(m *database.Message) {
	m.Text = p.Text
}

// FilePayload carries a reference to an uploaded file for the image, video,
// audio and document kinds.
type FilePayload struct {
	Kind     types.MessageType
	Url      string
	Name     string
	Size     int64
	MimeType string
	Caption  string
}

func (p FilePayload) Type() types.MessageType { return p.Kind }

func (p FilePayload) apply(m *database.Message) {
	m.FileUrl = p.Url
	m.FileName = p.Name
	m.FileSize = p.Size
	m.MimeType = p.MimeType
	m.Text = p.Caption
}

// LocationPayload has no body.
type LocationPayload struct{}

func (LocationPayload) Type() types.MessageType { return types.MessageTypeLocation }

func (LocationPayload) apply(*database.Message) {}

// ParsePayload checks the shape of req and returns its typed payload. It
// does not touch the store.
func ParsePayload(req SendRequest) (Payload, error) {
	if err := validate.Struct(req); err != nil {
		return nil, newError(KindMissingField, "chatId and senderId are required")
	}

	kind := types.MessageTypeText
	if req.Type != "" {
		kind = types.MessageType(req.Type)
		if !kind.Valid() {
			return nil, ErrInvalidType
		}
	}

	switch {
	case kind == types.MessageTypeText:
		if req.Message == "" {
			return nil, ErrTextRequired
		}
		return TextPayload{Text: req.Message}, nil
	case kind.IsFile():
		if req.FileUrl == "" {
			return nil, ErrFileUrlRequired
		}
		return FilePayload{
			Kind:     kind,
			Url:      req.FileUrl,
			Name:     req.FileName,
			Size:     req.FileSize,
			MimeType: req.MimeType,
			Caption:  req.Message,
		}, nil
	default:
		return LocationPayload{}, nil
	}
}

// CanonicalMessage converts a stored message to its wire form.
func CanonicalMessage(m database.Message) types.Message {
	msg := types.Message{
		MessageId: m.MessageId,
		ChatId:    m.ChatId,
		SenderId:  m.SenderId,
		Type:      types.MessageType(m.Type),
		Timestamp: m.Timestamp,
	}

	switch {
	case msg.Type == types.MessageTypeText:
		msg.Text = m.Text
		msg.Message = m.Text
	case msg.Type.IsFile():
		msg.FileUrl = m.FileUrl
		msg.FileName = m.FileName
		msg.FileSize = m.FileSize
		msg.MimeType = m.MimeType
		if m.Text != "" {
			msg.Text = m.Text
			msg.Message = m.Text
		}
	}

	return msg
}
