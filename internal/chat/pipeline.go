package chat

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-groupchat/internal/database"
	"github.com/npezzotti/go-groupchat/internal/types"
)

// Pipeline turns send requests into persisted, canonical messages.
type Pipeline struct {
	log          *log.Logger
	db           database.ChatRepository
	timeout      time.Duration
	now          func() time.Time
	newMessageId func() string
}

func NewPipeline(logger *log.Logger, db database.ChatRepository, storeTimeout time.Duration) *Pipeline {
	return &Pipeline{
		log:          logger,
		db:           db,
		timeout:      storeTimeout,
		now:          Now,
		newMessageId: newMessageId,
	}
}

func newMessageId() string {
	return "MSG_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Submit validates req, stores the message, bumps the chat's updated time
// and returns the canonical message. Nothing is written unless every check
// passes.
//
// An unknown chat is reported as NotAMember, not UnknownChat.
func (p *Pipeline) Submit(ctx context.Context, req SendRequest) (types.Message, error) {
	payload, err := ParsePayload(req)
	if err != nil {
		return types.Message{}, err
	}

	ctx, cancel := storeContext(ctx, p.timeout)
	defer cancel()

	if _, err := p.db.GetUser(ctx, req.SenderId); err != nil {
		return types.Message{}, lookupError(err, newError(KindUnknownUser, "sender not found"))
	}

	isMember, err := p.db.IsMember(ctx, req.ChatId, req.SenderId)
	if err != nil {
		return types.Message{}, storeUnavailable(err)
	}
	if !isMember {
		return types.Message{}, newError(KindNotAMember, "sender is not a member of this chat")
	}

	msg := database.Message{
		MessageId: p.newMessageId(),
		ChatId:    req.ChatId,
		SenderId:  req.SenderId,
		Type:      string(payload.Type()),
		Timestamp: p.now(),
	}
	payload.apply(&msg)

	if err := p.db.CreateMessage(ctx, msg); err != nil {
		p.log.Printf("store message in chat %q: %v", msg.ChatId, err)
		return types.Message{}, storeUnavailable(err)
	}

	return CanonicalMessage(msg), nil
}
