package server

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/ncostello/go-messenger/internal/policy"
	"github.com/ncostello/go-messenger/internal/stats"
	"github.com/ncostello/go-messenger/internal/store"
	"github.com/ncostello/go-messenger/internal/types"
)

// publicBacklogLimit is the number of recent public messages replayed to
// every new connection.
const publicBacklogLimit = 200

const (
	metricConnections     = "NumConnections"
	metricPublicMessages  = "NumPublicMessages"
	metricPrivateMessages = "NumPrivateMessages"
	metricDeniedMessages  = "NumDeniedMessages"
)

// TokenVerifier validates a session token and returns the user id it was
// issued for.
type TokenVerifier func(token string) (int, error)

type stopReq struct {
	done chan struct{}
}

type ChatServer struct {
	log            *log.Logger
	db             store.Repository
	policy         *policy.Engine
	registry       *Registry
	stats          stats.StatsProvider
	verifyToken    TokenVerifier
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	messageChan    chan *ClientMessage
	stop           chan stopReq
}

func NewChatServer(logger *log.Logger, db store.Repository, su stats.StatsProvider, verifier TokenVerifier) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		policy:         policy.NewEngine(db),
		stats:          su,
		verifyToken:    verifier,
		RegisterChan:   make(chan *Client, 256),
		deRegisterChan: make(chan *Client, 256),
		messageChan:    make(chan *ClientMessage, 256),
		stop:           make(chan stopReq),
	}
	cs.registry = NewRegistry(cs.broadcastPresence)

	su.RegisterMetric(metricConnections)
	su.RegisterMetric(metricPublicMessages)
	su.RegisterMetric(metricPrivateMessages)
	su.RegisterMetric(metricDeniedMessages)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.RegisterChan:
			cs.log.Printf("adding connection %q from %q", client.id, client.DisplayName())
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection %q from %q", client.id, client.DisplayName())
			cs.registry.Deregister(client.id)
			cs.stats.Decr(metricConnections)
		case msg := <-cs.messageChan:
			cs.routeMessage(msg)
		case req := <-cs.stop:
			cs.log.Println("stopping all connections")
			for _, c := range cs.registry.AllClients() {
				c.stopClient()
			}
			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.RegisterChan <- c
}

func (cs *ChatServer) addClient(c *Client) {
	cs.registry.Register(c)
	if u := c.User(); u != nil {
		cs.registry.Bind(c, u.Id)
	}
	cs.stats.Incr(metricConnections)

	cs.sendBacklog(c)
}

// sendBacklog replays the recent public history to a new connection.
func (cs *ChatServer) sendBacklog(c *Client) {
	stored, err := cs.db.RecentPublic(publicBacklogLimit)
	if err != nil {
		cs.log.Println("recent public:", err)
		return
	}

	messages := make([]types.Message, len(stored))
	for i, m := range stored {
		messages[i] = wireMessage(m, "")
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			History: &History{Messages: messages},
		},
	})
}

// broadcastPresence pushes the online roster and connection count to
// every live connection. It runs after each registry change.
func (cs *ChatServer) broadcastPresence() {
	users := make([]types.User, 0)
	for _, id := range cs.registry.OnlineUsers() {
		conns := cs.registry.ConnectionsFor(id)
		if len(conns) == 0 {
			continue
		}
		if u := conns[0].User(); u != nil {
			users = append(users, types.User{
				Id:       u.Id,
				Username: u.Username,
				Avatar:   u.Avatar,
			})
		}
	}

	cs.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Notification: &Notification{
			Online: &OnlineUpdate{
				Count: cs.registry.TotalConnections(),
				Users: users,
			},
		},
	})
}

func (cs *ChatServer) broadcast(msg *ServerMessage) {
	for _, c := range cs.registry.AllClients() {
		if c == msg.SkipClient {
			continue
		}

		c.queueMessage(msg)
	}
}

// routeMessage dispatches an inbound intent on its variant. Intents are
// processed one at a time on the run goroutine, so the order messages
// are appended to the store is the order every connection sees them in.
func (cs *ChatServer) routeMessage(msg *ClientMessage) {
	switch {
	case msg.Publish != nil:
		cs.handlePublish(msg)
	case msg.Private != nil:
		cs.handlePrivate(msg)
	case msg.Identify != nil:
		cs.handleIdentify(msg)
	case msg.Typing != nil:
		cs.handleTyping(msg)
	case msg.CallSignal != nil:
		cs.handleCallSignal(msg)
	default:
		msg.client.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (cs *ChatServer) handlePublish(msg *ClientMessage) {
	c := msg.client
	p := msg.Publish

	if !validPayload(p.Text, p.Media) {
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	m, err := cs.db.AppendPublic(c.UserRef(), p.Text, p.Media)
	if err != nil {
		cs.log.Println("append public:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id))
	cs.stats.Incr(metricPublicMessages)

	wire := wireMessage(m, c.DisplayName())
	cs.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: msg.Timestamp,
		},
		Message: &wire,
	})
}

func (cs *ChatServer) handlePrivate(msg *ClientMessage) {
	c := msg.client
	p := msg.Private

	if !validPayload(p.Text, p.Media) {
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	recipient, ok := cs.resolveRecipient(msg, p.To)
	if !ok {
		return
	}

	decision := cs.policy.CanDeliver(c.User(), recipient)
	if !decision.Allow {
		// denials go to the sender only, nothing is persisted
		cs.stats.Incr(metricDeniedMessages)
		c.queueMessage(ErrPolicyDenied(msg.Id, decision.Reason))
		return
	}

	m, err := cs.db.AppendPrivate(c.UserRef(), recipient.Id, p.Text, p.Media)
	if err != nil {
		cs.log.Println("append private:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	cs.stats.Incr(metricPrivateMessages)

	wire := wireMessage(m, c.DisplayName())
	sm := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: msg.Timestamp,
		},
		Message: &wire,
	}

	for _, target := range cs.registry.ConnectionsFor(recipient.Id) {
		if target == c {
			continue
		}
		target.queueMessage(sm)
	}

	// the sender is not a member of the recipient set, but always sees
	// its own sent message
	c.queueMessage(sm)
}

func (cs *ChatServer) handleIdentify(msg *ClientMessage) {
	c := msg.client

	userId, err := cs.verifyToken(msg.Identify.Token)
	if err != nil {
		cs.log.Println("identify:", err)
		c.queueMessage(ErrUnauthorized(msg.Id))
		return
	}

	acct, err := cs.db.GetAccountById(userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrUnauthorized(msg.Id))
		} else {
			cs.log.Println("get account:", err)
			c.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	u := accountUser(acct)
	c.setUser(u)
	cs.registry.Bind(c, u.Id)

	c.queueMessage(NoErrOK(msg.Id, u))
}

func (cs *ChatServer) handleTyping(msg *ClientMessage) {
	c := msg.client
	t := msg.Typing

	sm := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: msg.Timestamp,
		},
		Notification: &Notification{
			Typing: &TypingUpdate{
				FromUser: c.UserRef(),
				FromName: c.DisplayName(),
				IsTyping: t.IsTyping,
			},
		},
		SkipClient: c,
	}

	if t.To == "" {
		cs.broadcast(sm)
		return
	}

	recipient, ok := cs.resolveRecipient(msg, t.To)
	if !ok {
		return
	}

	for _, target := range cs.registry.ConnectionsFor(recipient.Id) {
		target.queueMessage(sm)
	}
}

func (cs *ChatServer) handleCallSignal(msg *ClientMessage) {
	c := msg.client
	sig := msg.CallSignal

	recipient, ok := cs.resolveRecipient(msg, sig.To)
	if !ok {
		return
	}

	sm := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: msg.Timestamp,
		},
		Notification: &Notification{
			CallSignal: &CallSignalUpdate{
				FromUser: c.UserRef(),
				FromName: c.DisplayName(),
				Payload:  sig.Payload,
			},
		},
	}

	for _, target := range cs.registry.ConnectionsFor(recipient.Id) {
		target.queueMessage(sm)
	}
}

// resolveRecipient looks the recipient up by username in the account
// store. Live guest connections are not valid private targets. Failures
// are reported to the sender; the second return is false when the
// caller should stop.
func (cs *ChatServer) resolveRecipient(msg *ClientMessage, username string) (types.User, bool) {
	acct, err := cs.db.GetAccountByUsername(username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			msg.client.queueMessage(ErrRecipientNotFound(msg.Id))
		} else {
			cs.log.Println("get account by username:", err)
			msg.client.queueMessage(ErrInternalError(msg.Id))
		}
		return types.User{}, false
	}

	return accountUser(acct), true
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// a message needs text or valid media
func validPayload(text string, media *types.Media) bool {
	if media != nil {
		return media.Valid()
	}
	return text != ""
}

func accountUser(acct store.Account) types.User {
	return types.User{
		Id:                 acct.Id,
		Username:           acct.Username,
		Avatar:             acct.Avatar,
		Blocked:            acct.Blocked,
		MessagesVisibility: types.Visibility(acct.MessagesVisibility),
		AllowPrivate:       acct.AllowPrivate,
		ProfileLocked:      acct.ProfileLocked,
		CreatedAt:          acct.CreatedAt,
		UpdatedAt:          acct.UpdatedAt,
	}
}

func wireMessage(m store.Message, fromName string) types.Message {
	var media *types.Media
	if m.MediaType != nil && m.MediaUrl != nil {
		media = &types.Media{Kind: *m.MediaType, Url: *m.MediaUrl}
	}

	return types.Message{
		Id:        m.Id,
		FromUser:  m.FromUser,
		FromName:  fromName,
		ToUser:    m.ToUser,
		Text:      m.Text,
		Media:     media,
		Timestamp: m.Timestamp,
	}
}
