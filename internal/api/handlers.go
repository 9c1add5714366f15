package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/ncostello/go-messenger/internal/server"
	"github.com/ncostello/go-messenger/internal/store"
	"github.com/ncostello/go-messenger/internal/types"
)

// publicHistoryLimit caps the public history query.
const publicHistoryLimit = 200

type UpdateAccountRequest struct {
	Avatar             string           `json:"avatar"`
	MessagesVisibility types.Visibility `json:"messages_visibility"`
	AllowPrivate       bool             `json:"allow_private"`
	ProfileLocked      bool             `json:"profile_locked"`
}

type FriendRequest struct {
	Username string `json:"username"`
}

func (s *MessengerApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func userResponse(acct store.Account) types.User {
	return types.User{
		Id:                 acct.Id,
		Username:           acct.Username,
		Avatar:             acct.Avatar,
		MessagesVisibility: types.Visibility(acct.MessagesVisibility),
		AllowPrivate:       acct.AllowPrivate,
		ProfileLocked:      acct.ProfileLocked,
		CreatedAt:          acct.CreatedAt,
		UpdatedAt:          acct.UpdatedAt,
	}
}

func messageResponse(m store.Message) types.Message {
	var media *types.Media
	if m.MediaType != nil && m.MediaUrl != nil {
		media = &types.Media{Kind: *m.MediaType, Url: *m.MediaUrl}
	}

	return types.Message{
		Id:        m.Id,
		FromUser:  m.FromUser,
		ToUser:    m.ToUser,
		Text:      m.Text,
		Media:     media,
		Timestamp: m.Timestamp,
	}
}

func (s *MessengerApp) account(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userId, ok := UserId(r.Context())
		if !ok {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		acct, err := s.db.GetAccountById(userId)
		if err != nil {
			var errResp *ApiError
			if errors.Is(err, sql.ErrNoRows) {
				errResp = NewNotFoundError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, userResponse(acct))
	case http.MethodPut:
		userId, ok := UserId(r.Context())
		if !ok {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		var req UpdateAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if !req.MessagesVisibility.Valid() {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		acct, err := s.db.UpdateAccount(store.UpdateAccountParams{
			UserId:             userId,
			Avatar:             req.Avatar,
			MessagesVisibility: string(req.MessagesVisibility),
			AllowPrivate:       req.AllowPrivate,
			ProfileLocked:      req.ProfileLocked,
		})
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, userResponse(acct))
	default:
		errResp := NewMethodNotAllowedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	}
}

func (s *MessengerApp) listFriends(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	accts, err := s.db.ListFriends(userId)
	if err != nil {
		s.log.Println("list friends:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	friends := make([]types.User, len(accts))
	for i, acct := range accts {
		friends[i] = types.User{
			Id:       acct.Id,
			Username: acct.Username,
			Avatar:   acct.Avatar,
		}
	}

	s.writeJson(w, http.StatusOK, friends)
}

func (s *MessengerApp) addFriend(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req FriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	target, err := s.db.GetAccountByUsername(req.Username)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if target.Id == userId {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.AddFriend(userId, target.Id); err != nil {
		s.log.Println("add friend:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.User{
		Id:       target.Id,
		Username: target.Username,
		Avatar:   target.Avatar,
	})
}

func (s *MessengerApp) removeFriend(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	username := r.URL.Query().Get("username")
	if username == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	target, err := s.db.GetAccountByUsername(username)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.RemoveFriend(userId, target.Id); err != nil {
		s.log.Println("remove friend:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *MessengerApp) publicMessages(w http.ResponseWriter, r *http.Request) {
	limit := publicHistoryLimit

	limitStr := r.URL.Query().Get("limit")
	if limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		limit = min(parsed, publicHistoryLimit)
	}

	stored, err := s.db.RecentPublic(limit)
	if err != nil {
		s.log.Println("recent public:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, len(stored))
	for i, m := range stored {
		messages[i] = messageResponse(m)
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *MessengerApp) conversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	username := r.URL.Query().Get("username")
	if username == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// the requester is always one of the two participants
	other, err := s.db.GetAccountByUsername(username)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	stored, err := s.db.Conversation(userId, other.Id)
	if err != nil {
		s.log.Println("conversation:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, len(stored))
	for i, m := range stored {
		messages[i] = messageResponse(m)
	}

	s.writeJson(w, http.StatusOK, messages)
}

// serveWs upgrades the connection and registers it with the chat server.
// The session cookie is optional: without one the connection joins as a
// guest with a transient display name.
func (s *MessengerApp) serveWs(w http.ResponseWriter, r *http.Request) {
	var user *types.User
	if tokenCookie, err := r.Cookie(tokenCookieKey); err == nil {
		userId, err := VerifySessionToken(s.signingKey, tokenCookie.Value)
		if err != nil {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		acct, err := s.db.GetAccountById(userId)
		if err != nil {
			var errResp *ApiError
			if errors.Is(err, sql.ErrNoRows) {
				errResp = NewUnauthorizedError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		u := userResponse(acct)
		u.Blocked = acct.Blocked
		user = &u
	}

	connId, err := s.generateConnId()
	if err != nil {
		s.log.Println("generateConnId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	guestName := "Guest" + strconv.Itoa(1000+rand.IntN(9000))
	client := server.NewClient(connId, user, guestName, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
