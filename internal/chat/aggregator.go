package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"slices"
	"time"

	"github.com/npezzotti/go-groupchat/internal/database"
	"github.com/npezzotti/go-groupchat/internal/types"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	noMessagesPreview = "No messages yet"
	unknownUsername   = "Unknown User"
	placeholderName   = "User"
	avatarURLFormat   = "https://ui-avatars.com/api/?name=%s&background=random"

	// lastMessageFetchLimit caps concurrent last-message lookups per request.
	lastMessageFetchLimit = 8
)

var previewLabels = map[types.MessageType]string{
	types.MessageTypeImage:    "📷 Image",
	types.MessageTypeVideo:    "🎥 Video",
	types.MessageTypeDocument: "📄 Document",
	types.MessageTypeAudio:    "🎵 Audio",
	types.MessageTypeLocation: "📍 Location",
}

// Aggregator builds a user's conversation list: one preview row per other
// user reachable through a shared chat, most recent activity first.
type Aggregator struct {
	log     *log.Logger
	db      database.ChatRepository
	timeout time.Duration
}

func NewAggregator(logger *log.Logger, db database.ChatRepository, storeTimeout time.Duration) *Aggregator {
	return &Aggregator{
		log:     logger,
		db:      db,
		timeout: storeTimeout,
	}
}

// List returns the conversation partners of userId. A user with no chats
// gets an empty list.
func (a *Aggregator) List(ctx context.Context, userId string) ([]types.ChatPreview, error) {
	ctx, cancel := storeContext(ctx, a.timeout)
	defer cancel()

	chats, err := a.db.ListChatsForMember(ctx, userId)
	if err != nil {
		return nil, storeUnavailable(err)
	}

	if len(chats) == 0 {
		return []types.ChatPreview{}, nil
	}

	lastMessages, err := a.lastMessages(ctx, chats)
	if err != nil {
		return nil, err
	}

	partnerIds := lo.Uniq(lo.FlatMap(chats, func(c database.Chat, _ int) []string {
		return lo.Without(c.Members, userId)
	}))

	partners, err := a.db.GetUsers(ctx, partnerIds)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	usersById := lo.KeyBy(partners, func(u database.User) string {
		return u.UserId
	})

	rows := make([]types.ChatPreview, 0, len(partnerIds))
	latest := make(map[string]int, len(partnerIds))
	for i, c := range chats {
		activity := c.UpdatedAt
		if last := lastMessages[i]; last != nil {
			activity = last.Timestamp
		}
		preview := PreviewText(lastMessages[i])

		for _, otherId := range lo.Without(c.Members, userId) {
			row := previewRow(otherId, usersById, c.ChatId, activity, preview)

			// keep a single row per partner, anchored to the most recent chat
			if j, ok := latest[otherId]; ok {
				if row.Time.After(rows[j].Time) {
					rows[j] = row
				}
				continue
			}

			latest[otherId] = len(rows)
			rows = append(rows, row)
		}
	}

	slices.SortStableFunc(rows, func(x, y types.ChatPreview) int {
		return y.Time.Compare(x.Time)
	})

	return rows, nil
}

// lastMessages fetches the newest message of every chat, concurrently. The
// result is indexed like chats; chats without messages get nil.
func (a *Aggregator) lastMessages(ctx context.Context, chats []database.Chat) ([]*database.Message, error) {
	results := make([]*database.Message, len(chats))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lastMessageFetchLimit)
	for i, c := range chats {
		g.Go(func() error {
			msg, err := a.db.GetLastMessage(gctx, c.ChatId)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil
				}
				return storeUnavailable(fmt.Errorf("last message of %q: %w", c.ChatId, err))
			}
			results[i] = &msg
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func previewRow(otherId string, users map[string]database.User, chatId string, activity time.Time, preview string) types.ChatPreview {
	row := types.ChatPreview{
		UserId:      otherId,
		Username:    unknownUsername,
		ProfilePic:  placeholderAvatar(placeholderName),
		ChatId:      chatId,
		Time:        activity,
		LastMessage: preview,
	}

	if u, ok := users[otherId]; ok {
		row.Username = u.Username
		row.ProfilePic = u.ProfilePic
		if row.ProfilePic == "" {
			row.ProfilePic = placeholderAvatar(u.Username)
		}
	}

	return row
}

func placeholderAvatar(username string) string {
	return fmt.Sprintf(avatarURLFormat, url.QueryEscape(username))
}

// PreviewText summarizes msg for a conversation list row.
func PreviewText(msg *database.Message) string {
	if msg == nil {
		return noMessagesPreview
	}

	t := types.MessageType(msg.Type)
	if t == types.MessageTypeText {
		return msg.Text
	}

	return previewLabels[t]
}
