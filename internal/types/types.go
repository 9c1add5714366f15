package types

import (
	"time"
)

// Visibility controls who may send a user private messages.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityFriends Visibility = "friends"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFriends, VisibilityPrivate:
		return true
	}
	return false
}

type User struct {
	Id                 int        `json:"id"`
	Username           string     `json:"username"`
	Avatar             string     `json:"avatar,omitempty"`
	Blocked            bool       `json:"-"`
	MessagesVisibility Visibility `json:"messages_visibility,omitempty"`
	AllowPrivate       bool       `json:"allow_private,omitempty"`
	ProfileLocked      bool       `json:"profile_locked,omitempty"`
	Password           string     `json:"-"`
	CreatedAt          time.Time  `json:"created_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at,omitempty"`
}

const (
	MediaKindImage = "image"
	MediaKindAudio = "audio"
)

type Media struct {
	Kind string `json:"kind"`
	Url  string `json:"url"`
}

func (m *Media) Valid() bool {
	return m != nil && m.Url != "" &&
		(m.Kind == MediaKindImage || m.Kind == MediaKindAudio)
}

// Message is the wire form of a persisted message. FromUser is nil for
// guest senders, ToUser is nil for public messages. Timestamp is unix
// milliseconds assigned when the message was appended to the store.
type Message struct {
	Id        int64  `json:"id"`
	FromUser  *int   `json:"from_user"`
	FromName  string `json:"from_name,omitempty"`
	ToUser    *int   `json:"to_user,omitempty"`
	Text      string `json:"text"`
	Media     *Media `json:"media,omitempty"`
	Timestamp int64  `json:"ts"`
}
