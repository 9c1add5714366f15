// Package policy decides whether a sender may deliver a private message
// to a recipient. Public broadcasts are not policy-gated.
package policy

import (
	"github.com/ncostello/go-messenger/internal/types"
)

type DenyReason string

const (
	DenySenderBlocked     DenyReason = "sender_blocked"
	DenyRecipientBlocked  DenyReason = "recipient_blocked"
	DenyVisibilityFriends DenyReason = "visibility_friends"
	DenyVisibilityPrivate DenyReason = "visibility_private"
)

type Decision struct {
	Allow  bool
	Reason DenyReason
}

var Allowed = Decision{Allow: true}

func Denied(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// FriendshipChecker reports whether a friend link exists between two
// users, in either direction.
type FriendshipChecker interface {
	IsFriend(userA, userB int) bool
}

type Engine struct {
	friends FriendshipChecker
}

func NewEngine(friends FriendshipChecker) *Engine {
	return &Engine{friends: friends}
}

// CanDeliver gates a private message from sender to recipient. A nil
// sender is a guest: never blocked, never friended.
func (e *Engine) CanDeliver(sender *types.User, recipient types.User) Decision {
	if sender != nil && sender.Blocked {
		return Denied(DenySenderBlocked)
	}

	if recipient.Blocked {
		return Denied(DenyRecipientBlocked)
	}

	switch recipient.MessagesVisibility {
	case types.VisibilityPrivate:
		return Denied(DenyVisibilityPrivate)
	case types.VisibilityFriends:
		if sender == nil || !e.friends.IsFriend(sender.Id, recipient.Id) {
			return Denied(DenyVisibilityFriends)
		}
	}

	return Allowed
}
