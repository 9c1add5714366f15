package store

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/ncostello/go-messenger/internal/types"
)

type PgRepository struct {
	conn       *sql.DB
	appendLock sync.Mutex
}

func NewPgRepository(dsn string) (*PgRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	repo := &PgRepository{conn: db}
	if err := repo.init(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func (db *PgRepository) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			blocked BOOLEAN NOT NULL DEFAULT FALSE,
			messages_visibility TEXT NOT NULL DEFAULT 'public',
			allow_private BOOLEAN NOT NULL DEFAULT TRUE,
			profile_locked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS friends (
			id SERIAL PRIMARY KEY,
			account_id INTEGER NOT NULL REFERENCES users(id),
			friend_id INTEGER NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(account_id, friend_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			from_user INTEGER,
			to_user INTEGER,
			text TEXT NOT NULL DEFAULT '',
			media_type TEXT,
			media_url TEXT,
			ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_public ON messages(id) WHERE to_user IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_messages_to_user ON messages(to_user, id)`,
		`CREATE INDEX IF NOT EXISTS idx_friends_friend ON friends(friend_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (db *PgRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

const pgAccountCols = "id, username, password_hash, avatar, blocked, messages_visibility, allow_private, profile_locked, created_at, updated_at"

func (db *PgRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO users (username, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING "+pgAccountCols,
		params.Username,
		params.PasswordHash,
		now,
		now,
	)
	return scanAccount(row)
}

func (db *PgRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT "+pgAccountCols+" FROM users WHERE id = $1 LIMIT 1",
		accountId,
	)
	return scanAccount(row)
}

func (db *PgRepository) GetAccountByUsername(username string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT "+pgAccountCols+" FROM users WHERE username = $1 LIMIT 1",
		username,
	)
	return scanAccount(row)
}

func (db *PgRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	row := db.conn.QueryRow(
		"UPDATE users SET avatar = $2, messages_visibility = $3, allow_private = $4, profile_locked = $5, updated_at = $6 "+
			"WHERE id = $1 RETURNING "+pgAccountCols,
		params.UserId,
		params.Avatar,
		params.MessagesVisibility,
		params.AllowPrivate,
		params.ProfileLocked,
		time.Now().UTC(),
	)
	return scanAccount(row)
}

func (db *PgRepository) SetBlocked(accountId int, blocked bool) error {
	_, err := db.conn.Exec(
		"UPDATE users SET blocked = $2, updated_at = $3 WHERE id = $1",
		accountId,
		blocked,
		time.Now().UTC(),
	)
	return err
}

func (db *PgRepository) AddFriend(accountId, friendId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO friends (account_id, friend_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (account_id, friend_id) DO NOTHING",
		accountId,
		friendId,
		time.Now().UTC(),
	)
	return err
}

func (db *PgRepository) RemoveFriend(accountId, friendId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM friends WHERE (account_id = $1 AND friend_id = $2) OR (account_id = $2 AND friend_id = $1)",
		accountId,
		friendId,
	)
	return err
}

func (db *PgRepository) IsFriend(userA, userB int) bool {
	row := db.conn.QueryRow(
		"SELECT id FROM friends WHERE (account_id = $1 AND friend_id = $2) OR (account_id = $2 AND friend_id = $1) LIMIT 1",
		userA,
		userB,
	)

	var id int
	return row.Scan(&id) == nil
}

func (db *PgRepository) ListFriends(accountId int) ([]Account, error) {
	rows, err := db.conn.Query(
		"SELECT u.id, u.username, u.avatar FROM users u "+
			"JOIN friends f ON (f.friend_id = u.id AND f.account_id = $1) OR (f.account_id = u.id AND f.friend_id = $1) "+
			"ORDER BY u.username",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends = make([]Account, 0)
	for rows.Next() {
		var a Account
		if err = rows.Scan(&a.Id, &a.Username, &a.Avatar); err != nil {
			return nil, err
		}

		friends = append(friends, a)
	}
	return friends, rows.Err()
}

func (db *PgRepository) appendMessage(from, to *int, text string, media *types.Media) (Message, error) {
	mediaType, mediaUrl := mediaColumns(media)

	db.appendLock.Lock()
	defer db.appendLock.Unlock()

	ts := time.Now().UnixMilli()
	row := db.conn.QueryRow(
		"INSERT INTO messages (from_user, to_user, text, media_type, media_url, ts) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		from,
		to,
		text,
		mediaType,
		mediaUrl,
		ts,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return Message{}, err
	}

	return Message{
		Id:        id,
		FromUser:  from,
		ToUser:    to,
		Text:      text,
		MediaType: mediaType,
		MediaUrl:  mediaUrl,
		Timestamp: ts,
	}, nil
}

func (db *PgRepository) AppendPublic(from *int, text string, media *types.Media) (Message, error) {
	return db.appendMessage(from, nil, text, media)
}

func (db *PgRepository) AppendPrivate(from *int, to int, text string, media *types.Media) (Message, error) {
	return db.appendMessage(from, &to, text, media)
}

func (db *PgRepository) RecentPublic(limit int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, from_user, to_user, text, media_type, media_url, ts FROM messages "+
			"WHERE to_user IS NULL ORDER BY id DESC LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, err
	}

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	reverseMessages(messages)
	return messages, nil
}

func (db *PgRepository) Conversation(userA, userB int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, from_user, to_user, text, media_type, media_url, ts FROM messages "+
			"WHERE (from_user = $1 AND to_user = $2) OR (from_user = $2 AND to_user = $1) ORDER BY id",
		userA,
		userB,
	)
	if err != nil {
		return nil, err
	}

	return collectMessages(rows)
}
