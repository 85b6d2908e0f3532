package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	userColumns    = "user_id, username, email, profile_pic, created_at"
	chatColumns    = "c.chat_id, c.created_by, c.is_group, c.created_at, c.updated_at"
	messageColumns = "message_id, chat_id, sender_id, type, text, file_url, file_name, file_size, mime_type, sent_at"
)

type scanner interface {
	Scan(dest ...any) error
}

func (db *SQLChatRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *SQLChatRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	u := User{
		UserId:     params.UserId,
		Username:   params.Username,
		Email:      params.Email,
		ProfilePic: params.ProfilePic,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5)",
		u.UserId,
		u.Username,
		u.Email,
		u.ProfilePic,
		u.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}

	return u, nil
}

func scanUser(row scanner) (User, error) {
	var u User
	err := row.Scan(
		&u.UserId,
		&u.Username,
		&u.Email,
		&u.ProfilePic,
		&u.CreatedAt,
	)
	u.CreatedAt = u.CreatedAt.UTC()

	return u, err
}

func (db *SQLChatRepository) GetUser(ctx context.Context, userId string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE user_id = $1 LIMIT 1",
		userId,
	)

	return scanUser(row)
}

// GetUsers returns the users that exist among userIds. Unknown ids are
// silently skipped.
func (db *SQLChatRepository) GetUsers(ctx context.Context, userIds []string) ([]User, error) {
	users := make([]User, 0, len(userIds))
	if len(userIds) == 0 {
		return users, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE user_id IN ("+placeholders(1, len(userIds))+")",
		anySlice(userIds)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *SQLChatRepository) CreateChat(ctx context.Context, params CreateChatParams) (Chat, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	chat := Chat{
		ChatId:    params.ChatId,
		CreatedBy: params.CreatedBy,
		Members:   params.Members,
		IsGroup:   len(params.Members) > 2,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO chats (chat_id, created_by, is_group, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5)",
		chat.ChatId,
		chat.CreatedBy,
		chat.IsGroup,
		chat.CreatedAt,
		chat.UpdatedAt,
	)
	if err != nil {
		return Chat{}, err
	}

	for i, member := range chat.Members {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO chat_members (chat_id, user_id, position) VALUES ($1, $2, $3)",
			chat.ChatId,
			member,
			i,
		)
		if err != nil {
			return Chat{}, fmt.Errorf("add member %q: %w", member, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return Chat{}, err
	}

	return chat, nil
}

func scanChat(row scanner) (Chat, error) {
	var c Chat
	err := row.Scan(
		&c.ChatId,
		&c.CreatedBy,
		&c.IsGroup,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()

	return c, err
}

func (db *SQLChatRepository) GetChat(ctx context.Context, chatId string) (Chat, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+chatColumns+" FROM chats c WHERE c.chat_id = $1 LIMIT 1",
		chatId,
	)

	chat, err := scanChat(row)
	if err != nil {
		return Chat{}, err
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT user_id FROM chat_members WHERE chat_id = $1 ORDER BY position",
		chatId,
	)
	if err != nil {
		return Chat{}, fmt.Errorf("fetch members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return Chat{}, fmt.Errorf("scan member: %w", err)
		}
		chat.Members = append(chat.Members, member)
	}

	return chat, rows.Err()
}

// ListChatsForMember returns every chat userId belongs to, most recently
// updated first, with members populated.
func (db *SQLChatRepository) ListChatsForMember(ctx context.Context, userId string) ([]Chat, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+chatColumns+" FROM chats c "+
			"JOIN chat_members m ON m.chat_id = c.chat_id "+
			"WHERE m.user_id = $1 ORDER BY c.updated_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := make([]Chat, 0)
	index := make(map[string]int)
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		index[c.ChatId] = len(chats)
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(chats) == 0 {
		return chats, nil
	}

	memberRows, err := db.conn.QueryContext(ctx,
		"SELECT chat_id, user_id FROM chat_members "+
			"WHERE chat_id IN (SELECT chat_id FROM chat_members WHERE user_id = $1) "+
			"ORDER BY chat_id, position",
		userId,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var chatId, member string
		if err := memberRows.Scan(&chatId, &member); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		if i, ok := index[chatId]; ok {
			chats[i].Members = append(chats[i].Members, member)
		}
	}

	return chats, memberRows.Err()
}

func (db *SQLChatRepository) IsMember(ctx context.Context, chatId, userId string) (bool, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2 LIMIT 1",
		chatId,
		userId,
	)

	var found int
	if err := row.Scan(&found); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// CreateMessage stores msg and moves its chat's updated_at forward to the
// message timestamp in one transaction. An older timestamp leaves the chat
// untouched so updated_at never decreases.
func (db *SQLChatRepository) CreateMessage(ctx context.Context, msg Message) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO messages ("+messageColumns+") "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		msg.MessageId,
		msg.ChatId,
		msg.SenderId,
		msg.Type,
		msg.Text,
		msg.FileUrl,
		msg.FileName,
		msg.FileSize,
		msg.MimeType,
		msg.Timestamp.UTC(),
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE chats SET updated_at = $1 WHERE chat_id = $2 AND updated_at < $1",
		msg.Timestamp.UTC(),
		msg.ChatId,
	)
	if err != nil {
		return fmt.Errorf("update chat timestamp: %w", err)
	}

	return tx.Commit()
}

func scanMessage(row scanner) (Message, error) {
	var m Message
	err := row.Scan(
		&m.MessageId,
		&m.ChatId,
		&m.SenderId,
		&m.Type,
		&m.Text,
		&m.FileUrl,
		&m.FileName,
		&m.FileSize,
		&m.MimeType,
		&m.Timestamp,
	)
	m.Timestamp = m.Timestamp.UTC()

	return m, err
}

func (db *SQLChatRepository) GetLastMessage(ctx context.Context, chatId string) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE chat_id = $1 "+
			"ORDER BY sent_at DESC, message_id DESC LIMIT 1",
		chatId,
	)

	return scanMessage(row)
}

func (db *SQLChatRepository) GetMessages(ctx context.Context, chatId string, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE chat_id = $1 "+
			"ORDER BY sent_at DESC, message_id DESC LIMIT $2 OFFSET $3",
		chatId,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *SQLChatRepository) CountMessages(ctx context.Context, chatId string) (int, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE chat_id = $1",
		chatId,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}

// placeholders renders n positional parameters starting at $start.
func placeholders(start, n int) string {
	params := make([]string, n)
	for i := range params {
		params[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(params, ", ")
}

func anySlice(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
