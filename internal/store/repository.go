package store

import (
	"fmt"

	"github.com/ncostello/go-messenger/internal/types"
)

type Repository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByUsername(username string) (Account, error)
	UpdateAccount(params UpdateAccountParams) (Account, error)
	SetBlocked(accountId int, blocked bool) error
	AddFriend(accountId, friendId int) error
	RemoveFriend(accountId, friendId int) error
	IsFriend(userA, userB int) bool
	ListFriends(accountId int) ([]Account, error)
	AppendPublic(from *int, text string, media *types.Media) (Message, error)
	AppendPrivate(from *int, to int, text string, media *types.Media) (Message, error)
	RecentPublic(limit int) ([]Message, error)
	Conversation(userA, userB int) ([]Message, error)
	Close() error
}

// Open creates the repository for the configured driver.
func Open(driver, dsn string) (Repository, error) {
	switch driver {
	case "sqlite3":
		return NewSqliteRepository(dsn)
	case "postgres":
		return NewPgRepository(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func mediaColumns(media *types.Media) (mediaType, mediaUrl *string) {
	if media != nil {
		mediaType = &media.Kind
		mediaUrl = &media.Url
	}
	return mediaType, mediaUrl
}
