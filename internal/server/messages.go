package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ncostello/go-messenger/internal/policy"
	"github.com/ncostello/go-messenger/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is an inbound intent. Exactly one of the variant fields
// is set; the routing core switches on the variant.
type ClientMessage struct {
	BaseMessage
	Publish    *Publish    `json:"publish,omitempty"`
	Private    *Private    `json:"private,omitempty"`
	Identify   *Identify   `json:"identify,omitempty"`
	Typing     *Typing     `json:"typing,omitempty"`
	CallSignal *CallSignal `json:"call_signal,omitempty"`
	client     *Client
}

type Publish struct {
	Text  string       `json:"text"`
	Media *types.Media `json:"media,omitempty"`
}

type Private struct {
	To    string       `json:"to"`
	Text  string       `json:"text"`
	Media *types.Media `json:"media,omitempty"`
}

type Identify struct {
	Token string `json:"token"`
}

// Typing is an ephemeral indicator. An empty To broadcasts to everyone.
type Typing struct {
	To       string `json:"to,omitempty"`
	IsTyping bool   `json:"is_typing"`
}

// CallSignal is a stateless pass-through for call setup payloads.
type CallSignal struct {
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	SkipClient   *Client        `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Online     *OnlineUpdate     `json:"online,omitempty"`
	Typing     *TypingUpdate     `json:"typing,omitempty"`
	CallSignal *CallSignalUpdate `json:"call_signal,omitempty"`
	History    *History          `json:"history,omitempty"`
}

// OnlineUpdate carries the full online roster. Count is raw live
// connections, Users is distinct identified users.
type OnlineUpdate struct {
	Count int          `json:"count"`
	Users []types.User `json:"users"`
}

type TypingUpdate struct {
	FromUser *int   `json:"from_user"`
	FromName string `json:"from_name"`
	IsTyping bool   `json:"is_typing"`
}

type CallSignalUpdate struct {
	FromUser *int            `json:"from_user"`
	FromName string          `json:"from_name"`
	Payload  json.RawMessage `json:"payload"`
}

type History struct {
	Messages []types.Message `json:"messages"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrRecipientNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "recipient not found",
		},
	}
}

// ErrPolicyDenied reports a delivery denial back to the sender only.
func ErrPolicyDenied(id int, reason policy.DenyReason) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        string(reason),
		},
	}
}

func ErrUnauthorized(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusUnauthorized,
			Error:        "unauthorized",
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
