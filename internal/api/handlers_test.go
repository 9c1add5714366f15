package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ncostello/go-messenger/internal/store"
	"github.com/ncostello/go-messenger/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func authedRequest(method, target string, body []byte, userId int) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(WithUserId(req.Context(), userId))
}

func TestAccount(t *testing.T) {
	t.Run("get returns the account", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		s := newTestApp(t, db)

		db.On("GetAccountById", 1).
			Return(store.Account{Id: 1, Username: "alice", Avatar: "a.png", MessagesVisibility: "friends"}, nil).Once()

		rr := httptest.NewRecorder()
		s.account(rr, authedRequest(http.MethodGet, "/api/account", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)

		var u types.User
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
		assert.Equal(t, "alice", u.Username)
		assert.Equal(t, types.VisibilityFriends, u.MessagesVisibility)
	})

	t.Run("put updates settings", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		s := newTestApp(t, db)

		db.On("UpdateAccount", store.UpdateAccountParams{
			UserId:             1,
			Avatar:             "b.png",
			MessagesVisibility: "private",
			AllowPrivate:       true,
			ProfileLocked:      true,
		}).Return(store.Account{Id: 1, Username: "alice", Avatar: "b.png", MessagesVisibility: "private", AllowPrivate: true, ProfileLocked: true}, nil).Once()

		body, _ := json.Marshal(UpdateAccountRequest{
			Avatar:             "b.png",
			MessagesVisibility: types.VisibilityPrivate,
			AllowPrivate:       true,
			ProfileLocked:      true,
		})

		rr := httptest.NewRecorder()
		s.account(rr, authedRequest(http.MethodPut, "/api/account", body, 1))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("put rejects an unknown visibility", func(t *testing.T) {
		db := &store.MockRepository{}
		s := newTestApp(t, db)

		body := []byte(`{"messages_visibility":"everyone"}`)
		rr := httptest.NewRecorder()
		s.account(rr, authedRequest(http.MethodPut, "/api/account", body, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		db.AssertNotCalled(t, "UpdateAccount", mock.Anything)
	})

	t.Run("method not allowed", func(t *testing.T) {
		db := &store.MockRepository{}
		s := newTestApp(t, db)

		rr := httptest.NewRecorder()
		s.account(rr, authedRequest(http.MethodDelete, "/api/account", nil, 1))

		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestListFriends(t *testing.T) {
	db := &store.MockRepository{}
	defer db.AssertExpectations(t)
	s := newTestApp(t, db)

	db.On("ListFriends", 1).Return([]store.Account{
		{Id: 2, Username: "bob", PasswordHash: "secret-hash"},
		{Id: 3, Username: "carol"},
	}, nil).Once()

	rr := httptest.NewRecorder()
	s.listFriends(rr, authedRequest(http.MethodGet, "/api/friends", nil, 1))

	assert.Equal(t, http.StatusOK, rr.Code)

	var friends []types.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &friends))
	require.Len(t, friends, 2)
	assert.Equal(t, "bob", friends[0].Username)
	assert.NotContains(t, rr.Body.String(), "secret-hash", "expected no credential material in the response")
}

func TestAddFriend(t *testing.T) {
	t.Run("creates the link", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		s := newTestApp(t, db)

		db.On("GetAccountByUsername", "bob").Return(store.Account{Id: 2, Username: "bob"}, nil).Once()
		db.On("AddFriend", 1, 2).Return(nil).Once()

		body, _ := json.Marshal(FriendRequest{Username: "bob"})
		rr := httptest.NewRecorder()
		s.addFriend(rr, authedRequest(http.MethodPost, "/api/friends", body, 1))

		assert.Equal(t, http.StatusCreated, rr.Code)
	})

	t.Run("unknown username", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		s := newTestApp(t, db)

		db.On("GetAccountByUsername", "ghost").Return(store.Account{}, sql.ErrNoRows).Once()

		body, _ := json.Marshal(FriendRequest{Username: "ghost"})
		rr := httptest.NewRecorder()
		s.addFriend(rr, authedRequest(http.MethodPost, "/api/friends", body, 1))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("cannot befriend yourself", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		s := newTestApp(t, db)

		db.On("GetAccountByUsername", "alice").Return(store.Account{Id: 1, Username: "alice"}, nil).Once()

		body, _ := json.Marshal(FriendRequest{Username: "alice"})
		rr := httptest.NewRecorder()
		s.addFriend(rr, authedRequest(http.MethodPost, "/api/friends", body, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		db.AssertNotCalled(t, "AddFriend", mock.Anything, mock.Anything)
	})
}

func TestRemoveFriend(t *testing.T) {
	t.Run("removes the link", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		s := newTestApp(t, db)

		db.On("GetAccountByUsername", "bob").Return(store.Account{Id: 2, Username: "bob"}, nil).Once()
		db.On("RemoveFriend", 1, 2).Return(nil).Once()

		rr := httptest.NewRecorder()
		s.removeFriend(rr, authedRequest(http.MethodDelete, "/api/friends?username=bob", nil, 1))

		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("missing username", func(t *testing.T) {
		db := &store.MockRepository{}
		s := newTestApp(t, db)

		rr := httptest.NewRecorder()
		s.removeFriend(rr, authedRequest(http.MethodDelete, "/api/friends", nil, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestPublicMessages(t *testing.T) {
	fromId := 2
	stored := []store.Message{
		{Id: 1, FromUser: &fromId, Text: "first", Timestamp: 100},
		{Id: 2, Text: "from a guest", Timestamp: 200},
	}

	t.Run("default limit", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		s := newTestApp(t, db)

		db.On("RecentPublic", publicHistoryLimit).Return(stored, nil).Once()

		rr := httptest.NewRecorder()
		s.publicMessages(rr, httptest.NewRequest(http.MethodGet, "/api/messages/public", nil))

		assert.Equal(t, http.StatusOK, rr.Code)

		var messages []types.Message
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &messages))
		require.Len(t, messages, 2)
		assert.Equal(t, int64(1), messages[0].Id)
		assert.Nil(t, messages[1].FromUser, "expected guest messages to carry no sender id")
	})

	t.Run("custom limit is capped", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		s := newTestApp(t, db)

		db.On("RecentPublic", publicHistoryLimit).Return(stored, nil).Once()

		rr := httptest.NewRecorder()
		s.publicMessages(rr, httptest.NewRequest(http.MethodGet, "/api/messages/public?limit=10000", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("small limit passes through", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		s := newTestApp(t, db)

		db.On("RecentPublic", 5).Return([]store.Message{}, nil).Once()

		rr := httptest.NewRecorder()
		s.publicMessages(rr, httptest.NewRequest(http.MethodGet, "/api/messages/public?limit=5", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("invalid limit", func(t *testing.T) {
		db := &store.MockRepository{}
		s := newTestApp(t, db)

		rr := httptest.NewRecorder()
		s.publicMessages(rr, httptest.NewRequest(http.MethodGet, "/api/messages/public?limit=-1", nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		db.AssertNotCalled(t, "RecentPublic", mock.Anything)
	})
}

func TestConversation(t *testing.T) {
	t.Run("returns both directions", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		s := newTestApp(t, db)

		me, other := 1, 2
		db.On("GetAccountByUsername", "bob").Return(store.Account{Id: 2, Username: "bob"}, nil).Once()
		db.On("Conversation", 1, 2).Return([]store.Message{
			{Id: 1, FromUser: &me, ToUser: &other, Text: "hi bob"},
			{Id: 2, FromUser: &other, ToUser: &me, Text: "hi alice"},
		}, nil).Once()

		rr := httptest.NewRecorder()
		s.conversation(rr, authedRequest(http.MethodGet, "/api/messages/conversation?username=bob", nil, 1))

		assert.Equal(t, http.StatusOK, rr.Code)

		var messages []types.Message
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &messages))
		require.Len(t, messages, 2)
	})

	t.Run("unknown counterpart", func(t *testing.T) {
		db := &store.MockRepository{}
		defer db.AssertExpectations(t)
		s := newTestApp(t, db)

		db.On("GetAccountByUsername", "ghost").Return(store.Account{}, sql.ErrNoRows).Once()

		rr := httptest.NewRecorder()
		s.conversation(rr, authedRequest(http.MethodGet, "/api/messages/conversation?username=ghost", nil, 1))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		db.AssertNotCalled(t, "Conversation", mock.Anything, mock.Anything)
	})

	t.Run("missing username", func(t *testing.T) {
		db := &store.MockRepository{}
		s := newTestApp(t, db)

		rr := httptest.NewRecorder()
		s.conversation(rr, authedRequest(http.MethodGet, "/api/messages/conversation", nil, 1))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestServeWsRejectsBadToken(t *testing.T) {
	db := &store.MockRepository{}
	s := newTestApp(t, db)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "garbage"})

	rr := httptest.NewRecorder()
	s.serveWs(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected a bad session cookie to be rejected before upgrade")
}
