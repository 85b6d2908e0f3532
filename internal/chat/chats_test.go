package chat

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-groupchat/internal/database"
	"github.com/npezzotti/go-groupchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestChatService(t *testing.T, db database.ChatRepository) *ChatService {
	s := NewChatService(testutil.TestLogger(t), db, time.Second)
	s.generateShortId = func() (string, error) { return "abc123", nil }
	return s
}

func TestChatService_CreateChat(t *testing.T) {
	t.Run("creator is added to members", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		db.On("GetUser", "100").Return(database.User{UserId: "100"}, nil).Once()
		db.On("GetUsers", []string{"200", "300"}).Return([]database.User{{UserId: "200"}, {UserId: "300"}}, nil).Once()
		db.On("CreateChat", database.CreateChatParams{
			ChatId:    "CHAT_abc123",
			CreatedBy: "100",
			Members:   []string{"200", "300", "100"},
		}).Return(database.Chat{ChatId: "CHAT_abc123", CreatedBy: "100", Members: []string{"200", "300", "100"}, IsGroup: true}, nil).Once()

		chat, err := newTestChatService(t, db).CreateChat(context.Background(), CreateChatRequest{
			CreatedBy: "100",
			Members:   []string{"200", "300", "200"},
		})
		require.NoError(t, err)
		assert.Equal(t, "CHAT_abc123", chat.ChatId)
		assert.True(t, chat.IsGroup)
	})

	t.Run("creator already listed", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		db.On("GetUser", "100").Return(database.User{UserId: "100"}, nil).Once()
		db.On("GetUsers", []string{"100", "200"}).Return([]database.User{{UserId: "100"}, {UserId: "200"}}, nil).Once()
		db.On("CreateChat", mock.MatchedBy(func(p database.CreateChatParams) bool {
			return len(p.Members) == 2
		})).Return(database.Chat{ChatId: "CHAT_abc123"}, nil).Once()

		_, err := newTestChatService(t, db).CreateChat(context.Background(), CreateChatRequest{
			CreatedBy: "100",
			Members:   []string{"100", "200"},
		})
		assert.NoError(t, err)
	})

	t.Run("unknown members", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)

		db.On("GetUser", "100").Return(database.User{UserId: "100"}, nil).Once()
		db.On("GetUsers", []string{"200", "999"}).Return([]database.User{{UserId: "200"}}, nil).Once()

		_, err := newTestChatService(t, db).CreateChat(context.Background(), CreateChatRequest{
			CreatedBy: "100",
			Members:   []string{"200", "999"},
		})

		var invalid *InvalidUsersError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, []string{"999"}, invalid.UserIds)
		db.AssertNotCalled(t, "CreateChat", mock.Anything)
	})

	t.Run("unknown creator", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetUser", "100").Return(database.User{}, sql.ErrNoRows).Once()

		_, err := newTestChatService(t, db).CreateChat(context.Background(), CreateChatRequest{
			CreatedBy: "100",
			Members:   []string{"200"},
		})
		assert.ErrorIs(t, err, ErrUnknownUser)
	})

	t.Run("empty members", func(t *testing.T) {
		db := &database.MockChatRepository{}

		_, err := newTestChatService(t, db).CreateChat(context.Background(), CreateChatRequest{CreatedBy: "100"})
		assert.ErrorIs(t, err, ErrMissingField)
		db.AssertNotCalled(t, "GetUser", mock.Anything)
	})

	t.Run("short id failure", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetUser", "100").Return(database.User{UserId: "100"}, nil).Once()
		db.On("GetUsers", []string{"200"}).Return([]database.User{{UserId: "200"}}, nil).Once()

		s := newTestChatService(t, db)
		s.generateShortId = func() (string, error) { return "", errors.New("entropy") }

		_, err := s.CreateChat(context.Background(), CreateChatRequest{CreatedBy: "100", Members: []string{"200"}})
		assert.Error(t, err)
	})
}

func TestChatService_History(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tcases := []struct {
		name           string
		limit, offset  int
		expectedLimit  int
		expectedOffset int
	}{
		{"defaults", 0, 0, DefaultHistoryLimit, 0},
		{"negative values", -5, -3, DefaultHistoryLimit, 0},
		{"capped limit", 1000, 10, MaxHistoryLimit, 10},
		{"explicit", 20, 40, 20, 40},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)

			db.On("GetChat", "CHAT_1").Return(database.Chat{ChatId: "CHAT_1"}, nil).Once()
			db.On("GetMessages", "CHAT_1", tc.expectedLimit, tc.expectedOffset).Return([]database.Message{
				{MessageId: "m2", ChatId: "CHAT_1", Type: "text", Text: "second", Timestamp: t0.Add(time.Minute)},
				{MessageId: "m1", ChatId: "CHAT_1", Type: "text", Text: "first", Timestamp: t0},
			}, nil).Once()
			db.On("CountMessages", "CHAT_1").Return(7, nil).Once()

			h, err := newTestChatService(t, db).History(context.Background(), "CHAT_1", tc.limit, tc.offset)
			require.NoError(t, err)
			assert.True(t, h.Success)
			assert.Equal(t, 2, h.Count)
			assert.Equal(t, 7, h.Total)
			require.Len(t, h.Messages, 2)
			assert.Equal(t, "m1", h.Messages[0].MessageId, "expected chronological order")
			assert.Equal(t, "m2", h.Messages[1].MessageId)
		})
	}

	t.Run("unknown chat", func(t *testing.T) {
		db := &database.MockChatRepository{}
		defer db.AssertExpectations(t)
		db.On("GetChat", "nope").Return(database.Chat{}, sql.ErrNoRows).Once()

		_, err := newTestChatService(t, db).History(context.Background(), "nope", 0, 0)
		assert.ErrorIs(t, err, ErrUnknownChat)
	})

	t.Run("missing chat id", func(t *testing.T) {
		_, err := newTestChatService(t, &database.MockChatRepository{}).History(context.Background(), "", 0, 0)
		assert.ErrorIs(t, err, ErrMissingField)
	})
}

func TestChatService_Details(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	db.On("GetChat", "CHAT_1").Return(database.Chat{ChatId: "CHAT_1", CreatedBy: "100", Members: []string{"100", "200"}}, nil).Once()
	db.On("GetUsers", []string{"100", "200"}).Return([]database.User{
		{UserId: "100", Username: "Alice Johnson"},
		{UserId: "200", Username: "Bob Smith", ProfilePic: "http://pics/bob.png"},
	}, nil).Once()

	c, err := newTestChatService(t, db).Details(context.Background(), "CHAT_1")
	require.NoError(t, err)
	require.Len(t, c.Members, 2)
	assert.Equal(t, "Alice Johnson", c.Members[0].Username)
	assert.Equal(t, "https://ui-avatars.com/api/?name=Alice+Johnson&background=random", c.Members[0].ProfilePic)
	assert.Equal(t, "http://pics/bob.png", c.Members[1].ProfilePic)
}

func TestChatService_UserExists(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)
	db.On("GetUser", "100").Return(database.User{UserId: "100"}, nil).Once()
	db.On("GetUser", "999").Return(database.User{}, sql.ErrNoRows).Once()
	db.On("GetUser", "500").Return(database.User{}, assert.AnError).Once()

	s := newTestChatService(t, db)

	ok, err := s.UserExists(context.Background(), "100")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UserExists(context.Background(), "999")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = s.UserExists(context.Background(), "500")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestChatService_AuthorizeJoin(t *testing.T) {
	member := database.Chat{ChatId: "CHAT_1", Members: []string{"100", "200"}}

	tcases := []struct {
		name     string
		chatId   string
		userId   string
		setup    func(db *database.MockChatRepository)
		expected error
	}{
		{
			name:     "missing user id",
			chatId:   "CHAT_1",
			setup:    func(db *database.MockChatRepository) {},
			expected: ErrMissingField,
		},
		{
			name:   "unknown user",
			chatId: "CHAT_1",
			userId: "999",
			setup: func(db *database.MockChatRepository) {
				db.On("GetUser", "999").Return(database.User{}, sql.ErrNoRows).Once()
			},
			expected: ErrUnknownUser,
		},
		{
			name:   "unknown chat",
			chatId: "CHAT_X",
			userId: "100",
			setup: func(db *database.MockChatRepository) {
				db.On("GetUser", "100").Return(database.User{UserId: "100"}, nil).Once()
				db.On("GetChat", "CHAT_X").Return(database.Chat{}, sql.ErrNoRows).Once()
			},
			expected: ErrUnknownChat,
		},
		{
			name:   "not a member",
			chatId: "CHAT_1",
			userId: "300",
			setup: func(db *database.MockChatRepository) {
				db.On("GetUser", "300").Return(database.User{UserId: "300"}, nil).Once()
				db.On("GetChat", "CHAT_1").Return(member, nil).Once()
			},
			expected: ErrNotAMember,
		},
		{
			name:   "store unavailable",
			chatId: "CHAT_1",
			userId: "100",
			setup: func(db *database.MockChatRepository) {
				db.On("GetUser", "100").Return(database.User{}, context.DeadlineExceeded).Once()
			},
			expected: ErrStoreUnavailable,
		},
		{
			name:   "member",
			chatId: "CHAT_1",
			userId: "200",
			setup: func(db *database.MockChatRepository) {
				db.On("GetUser", "200").Return(database.User{UserId: "200"}, nil).Once()
				db.On("GetChat", "CHAT_1").Return(member, nil).Once()
			},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			db := &database.MockChatRepository{}
			defer db.AssertExpectations(t)
			tc.setup(db)

			err := newTestChatService(t, db).AuthorizeJoin(context.Background(), tc.chatId, tc.userId)
			if tc.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}
