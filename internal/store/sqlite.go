package store

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/ncostello/go-messenger/internal/types"
)

type SqliteRepository struct {
	conn *sql.DB
	// appendLock serializes message appends so that assigned ids and
	// timestamps share a single total order.
	appendLock sync.Mutex
}

func NewSqliteRepository(path string) (*SqliteRepository, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db := &SqliteRepository{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *SqliteRepository) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			blocked INTEGER NOT NULL DEFAULT 0,
			messages_visibility TEXT NOT NULL DEFAULT 'public',
			allow_private INTEGER NOT NULL DEFAULT 1,
			profile_locked INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS friends (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL REFERENCES users(id),
			friend_id INTEGER NOT NULL REFERENCES users(id),
			created_at TIMESTAMP NOT NULL,
			UNIQUE(account_id, friend_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_user INTEGER,
			to_user INTEGER,
			text TEXT NOT NULL DEFAULT '',
			media_type TEXT,
			media_url TEXT,
			ts INTEGER NOT NULL
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

func (db *SqliteRepository) Ping() error {
	return db.conn.Ping()
}

func (db *SqliteRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

const sqliteAccountCols = "id, username, password_hash, avatar, blocked, messages_visibility, allow_private, profile_locked, created_at, updated_at"

func scanAccount(row *sql.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.PasswordHash,
		&a.Avatar,
		&a.Blocked,
		&a.MessagesVisibility,
		&a.AllowPrivate,
		&a.ProfileLocked,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func (db *SqliteRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	now := time.Now().UTC()
	res, err := db.conn.Exec(
		"INSERT INTO users (username, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?)",
		params.Username,
		params.PasswordHash,
		now,
		now,
	)
	if err != nil {
		return Account{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Account{}, err
	}

	return db.GetAccountById(int(id))
}

func (db *SqliteRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT "+sqliteAccountCols+" FROM users WHERE id = ? LIMIT 1",
		accountId,
	)
	return scanAccount(row)
}

func (db *SqliteRepository) GetAccountByUsername(username string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT "+sqliteAccountCols+" FROM users WHERE username = ? LIMIT 1",
		username,
	)
	return scanAccount(row)
}

func (db *SqliteRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	_, err := db.conn.Exec(
		"UPDATE users SET avatar = ?, messages_visibility = ?, allow_private = ?, profile_locked = ?, updated_at = ? WHERE id = ?",
		params.Avatar,
		params.MessagesVisibility,
		params.AllowPrivate,
		params.ProfileLocked,
		time.Now().UTC(),
		params.UserId,
	)
	if err != nil {
		return Account{}, err
	}

	return db.GetAccountById(params.UserId)
}

func (db *SqliteRepository) SetBlocked(accountId int, blocked bool) error {
	_, err := db.conn.Exec(
		"UPDATE users SET blocked = ?, updated_at = ? WHERE id = ?",
		blocked,
		time.Now().UTC(),
		accountId,
	)
	return err
}

func (db *SqliteRepository) AddFriend(accountId, friendId int) error {
	_, err := db.conn.Exec(
		"INSERT OR IGNORE INTO friends (account_id, friend_id, created_at) VALUES (?, ?, ?)",
		accountId,
		friendId,
		time.Now().UTC(),
	)
	return err
}

func (db *SqliteRepository) RemoveFriend(accountId, friendId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM friends WHERE (account_id = ? AND friend_id = ?) OR (account_id = ? AND friend_id = ?)",
		accountId,
		friendId,
		friendId,
		accountId,
	)
	return err
}

// IsFriend reports whether a link exists between the two users in either
// direction.
func (db *SqliteRepository) IsFriend(userA, userB int) bool {
	row := db.conn.QueryRow(
		"SELECT id FROM friends WHERE (account_id = ? AND friend_id = ?) OR (account_id = ? AND friend_id = ?) LIMIT 1",
		userA,
		userB,
		userB,
		userA,
	)

	var id int
	return row.Scan(&id) == nil
}

func (db *SqliteRepository) ListFriends(accountId int) ([]Account, error) {
	rows, err := db.conn.Query(
		"SELECT u.id, u.username, u.avatar FROM users u "+
			"JOIN friends f ON (f.friend_id = u.id AND f.account_id = ?) OR (f.account_id = u.id AND f.friend_id = ?) "+
			"ORDER BY u.username",
		accountId,
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

func (db *SqliteRepository) appendMessage(from, to *int, text string, media *types.Media) (Message, error) {
	mediaType, mediaUrl := mediaColumns(media)

	db.appendLock.Lock()
	defer db.appendLock.Unlock()

	ts := time.Now().UnixMilli()
	res, err := db.conn.Exec(
		"INSERT INTO messages (from_user, to_user, text, media_type, media_url, ts) VALUES (?, ?, ?, ?, ?, ?)",
		from,
		to,
		text,
		mediaType,
		mediaUrl,
		ts,
	)
	if err != nil {
		return Message{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
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

func (db *SqliteRepository) AppendPublic(from *int, text string, media *types.Media) (Message, error) {
	return db.appendMessage(from, nil, text, media)
}

func (db *SqliteRepository) AppendPrivate(from *int, to int, text string, media *types.Media) (Message, error) {
	return db.appendMessage(from, &to, text, media)
}

func (db *SqliteRepository) RecentPublic(limit int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, from_user, to_user, text, media_type, media_url, ts FROM messages "+
			"WHERE to_user IS NULL ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}

	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	// query is newest-first for the limit, history is served oldest-first
	reverseMessages(messages)
	return messages, nil
}

func (db *SqliteRepository) Conversation(userA, userB int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, from_user, to_user, text, media_type, media_url, ts FROM messages "+
			"WHERE (from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?) ORDER BY id",
		userA,
		userB,
		userB,
		userA,
	)
	if err != nil {
		return nil, err
	}

	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	var messages = make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.FromUser, &m.ToUser, &m.Text, &m.MediaType, &m.MediaUrl, &m.Timestamp); err != nil {
			return nil, err
		}

		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func reverseMessages(messages []Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
