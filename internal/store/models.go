package store

import "time"

type Account struct {
	Id                 int
	Username           string
	PasswordHash       string
	Avatar             string
	Blocked            bool
	MessagesVisibility string
	AllowPrivate       bool
	ProfileLocked      bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Message is a persisted message row. FromUser is NULL for guest senders,
// ToUser is NULL for public messages.
type Message struct {
	Id        int64
	FromUser  *int
	ToUser    *int
	Text      string
	MediaType *string
	MediaUrl  *string
	Timestamp int64
}

type CreateAccountParams struct {
	Username     string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId             int
	Avatar             string
	MessagesVisibility string
	AllowPrivate       bool
	ProfileLocked      bool
}
