package chat

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"slices"
	"time"

	"github.com/npezzotti/go-groupchat/internal/database"
	"github.com/npezzotti/go-groupchat/internal/types"
	"github.com/samber/lo"
	"github.com/teris-io/shortid"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

type CreateChatRequest struct {
	CreatedBy string   `json:"createdBy" validate:"required"`
	Members   []string `json:"members" validate:"required,min=1"`
}

// ChatService creates chats and serves read-only chat queries.
type ChatService struct {
	log             *log.Logger
	db              database.ChatRepository
	timeout         time.Duration
	generateShortId func() (string, error)
}

func NewChatService(logger *log.Logger, db database.ChatRepository, storeTimeout time.Duration) *ChatService {
	return &ChatService{
		log:             logger,
		db:              db,
		timeout:         storeTimeout,
		generateShortId: shortid.Generate,
	}
}

// CreateChat creates a chat between req.CreatedBy and req.Members. The
// creator is always a member and duplicate member ids are collapsed.
func (s *ChatService) CreateChat(ctx context.Context, req CreateChatRequest) (database.Chat, error) {
	if err := validate.Struct(req); err != nil {
		return database.Chat{}, newError(KindMissingField, "createdBy and a non-empty members array are required")
	}

	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.GetUser(ctx, req.CreatedBy); err != nil {
		return database.Chat{}, lookupError(err, newError(KindUnknownUser, "creator user not found"))
	}

	requested := lo.Uniq(req.Members)
	found, err := s.db.GetUsers(ctx, requested)
	if err != nil {
		return database.Chat{}, storeUnavailable(err)
	}

	foundIds := lo.Map(found, func(u database.User, _ int) string { return u.UserId })
	if invalid := lo.Without(requested, foundIds...); len(invalid) > 0 {
		return database.Chat{}, &InvalidUsersError{UserIds: invalid}
	}

	members := requested
	if !slices.Contains(members, req.CreatedBy) {
		members = append(members, req.CreatedBy)
	}

	sid, err := s.generateShortId()
	if err != nil {
		return database.Chat{}, err
	}

	chat, err := s.db.CreateChat(ctx, database.CreateChatParams{
		ChatId:    "CHAT_" + sid,
		CreatedBy: req.CreatedBy,
		Members:   members,
	})
	if err != nil {
		return database.Chat{}, storeUnavailable(err)
	}

	s.log.Printf("created chat %q with %d members", chat.ChatId, len(chat.Members))
	return chat, nil
}

// History returns a page of a chat's messages in chronological order. The
// page is counted back from the newest message: offset skips the most recent
// messages and limit bounds the page size.
func (s *ChatService) History(ctx context.Context, chatId string, limit, offset int) (types.History, error) {
	if chatId == "" {
		return types.History{}, newError(KindMissingField, "chatId is required")
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)
	offset = max(offset, 0)

	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.GetChat(ctx, chatId); err != nil {
		return types.History{}, lookupError(err, ErrUnknownChat)
	}

	stored, err := s.db.GetMessages(ctx, chatId, limit, offset)
	if err != nil {
		return types.History{}, storeUnavailable(err)
	}

	total, err := s.db.CountMessages(ctx, chatId)
	if err != nil {
		return types.History{}, storeUnavailable(err)
	}

	messages := make([]types.Message, len(stored))
	for i, m := range stored {
		messages[len(stored)-1-i] = CanonicalMessage(m)
	}

	return types.History{
		Success:  true,
		ChatId:   chatId,
		Messages: messages,
		Count:    len(messages),
		Total:    total,
	}, nil
}

// Details returns a chat with its members resolved to users.
func (s *ChatService) Details(ctx context.Context, chatId string) (types.Chat, error) {
	if chatId == "" {
		return types.Chat{}, newError(KindMissingField, "chatId is required")
	}

	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	c, err := s.db.GetChat(ctx, chatId)
	if err != nil {
		return types.Chat{}, lookupError(err, ErrUnknownChat)
	}

	users, err := s.db.GetUsers(ctx, c.Members)
	if err != nil {
		return types.Chat{}, storeUnavailable(err)
	}
	usersById := lo.KeyBy(users, func(u database.User) string { return u.UserId })

	members := make([]types.User, len(c.Members))
	for i, id := range c.Members {
		u, ok := usersById[id]
		if !ok {
			members[i] = types.User{UserId: id, Username: "Unknown", ProfilePic: placeholderAvatar(placeholderName)}
			continue
		}

		members[i] = types.User{UserId: id, Username: u.Username, ProfilePic: u.ProfilePic}
		if members[i].ProfilePic == "" {
			members[i].ProfilePic = placeholderAvatar(u.Username)
		}
	}

	return types.Chat{
		ChatId:    c.ChatId,
		CreatedBy: c.CreatedBy,
		IsGroup:   c.IsGroup,
		Members:   members,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}, nil
}

// AuthorizeJoin checks that userId may join the room of chatId: both must
// resolve in the store and userId must be one of the chat's members.
func (s *ChatService) AuthorizeJoin(ctx context.Context, chatId, userId string) error {
	if chatId == "" || userId == "" {
		return newError(KindMissingField, "chatId and userId are required")
	}

	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.GetUser(ctx, userId); err != nil {
		return lookupError(err, ErrUnknownUser)
	}

	c, err := s.db.GetChat(ctx, chatId)
	if err != nil {
		return lookupError(err, ErrUnknownChat)
	}

	if !slices.Contains(c.Members, userId) {
		return ErrNotAMember
	}

	return nil
}

// UserExists reports whether userId resolves to a provisioned user.
func (s *ChatService) UserExists(ctx context.Context, userId string) (bool, error) {
	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	_, err := s.db.GetUser(ctx, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeUnavailable(err)
	}

	return true, nil
}
