package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"socialhub/internal/log"
	"socialhub/internal/metrics"
	"socialhub/pkg/models"
)

// Server → client events.
const (
	EventReceiveMessage = "receiveMessage"
	EventMessageSent    = "messageSent"
	EventMessagesRead   = "messagesRead"
	EventUserOnline     = "userOnline"
	EventUserOffline    = "userOffline"
	EventAck            = "ack"
	EventError          = "error"
)

// Presence persists the online flag of a user.
type Presence interface {
	SetOnline(ctx context.Context, id string, online bool) (*models.User, error)
}

type PresenceEvent struct {
	UserID   string     `json:"userId"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type ReadEvent struct {
	ReaderID string `json:"readerId"`
	Count    int    `json:"count"`
}

type joinRequest struct {
	client *Client
	done   chan struct{}
}

// Hub is the connection registry: every open connection, and for each user
// the connection that joined last. Joins and disconnects are serialized by
// Run.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Client]struct{}
	users map[string]*Client

	register   chan joinRequest
	unregister chan *Client
	done       chan struct{}

	presence Presence
	logger   zerolog.Logger
}

func NewHub(presence Presence) *Hub {
	return &Hub{
		conns:      make(map[*Client]struct{}),
		users:      make(map[string]*Client),
		register:   make(chan joinRequest),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		presence:   presence,
		logger:     log.WithComponent("hub"),
	}
}

// Run handles joins and disconnects until ctx is cancelled, then
// closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-h.register:
			h.join(req.client)
			close(req.done)
		case c := <-h.unregister:
			h.leave(c)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	h.mu.Lock()
	for c := range h.conns {
		delete(h.conns, c)
		close(c.send)
		metrics.WSConnections.Dec()
	}
	h.users = make(map[string]*Client)
	h.mu.Unlock()
	metrics.OnlineUsers.Set(0)
}

// attach tracks a freshly upgraded connection.
func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	metrics.WSConnections.Inc()
}

// Join registers c for its user and returns once the registration is
// visible to senders.
func (h *Hub) Join(c *Client) bool {
	req := joinRequest{client: c, done: make(chan struct{})}
	select {
	case h.register <- req:
	case <-h.done:
		return false
	}
	<-req.done
	return true
}

// Leave unregisters c after its connection closed.
func (h *Hub) Leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) join(c *Client) {
	h.mu.Lock()
	prev := h.users[c.userID]
	h.users[c.userID] = c
	online := len(h.users)
	h.mu.Unlock()
	metrics.OnlineUsers.Set(float64(online))

	if prev != nil && prev != c {
		h.logger.Debug().Str("user_id", c.userID).Msg("registration replaced by a newer connection")
	}
	h.setOnline(c.userID, true)
	h.fanout(encode(EventUserOnline, "", PresenceEvent{UserID: c.userID}))
	h.logger.Info().Str("user_id", c.userID).Msg("user joined")
}

func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	h.closeLocked(c)
	registered := h.users[c.userID] == c
	if registered {
		delete(h.users, c.userID)
	}
	online := len(h.users)
	h.mu.Unlock()

	if !registered {
		return
	}
	metrics.OnlineUsers.Set(float64(online))
	u := h.setOnline(c.userID, false)
	ev := PresenceEvent{UserID: c.userID}
	if u != nil {
		ev.LastSeen = &u.LastSeen
	}
	h.fanout(encode(EventUserOffline, "", ev))
	h.logger.Info().Str("user_id", c.userID).Msg("user left")
}

// closeLocked stops delivery to c. Callers hold h.mu.
func (h *Hub) closeLocked(c *Client) {
	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	close(c.send)
	metrics.WSConnections.Dec()
}

func (h *Hub) setOnline(userID string, online bool) *models.User {
	if h.presence == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	u, err := h.presence.SetOnline(ctx, userID, online)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Bool("online", online).Msg("failed to update presence")
		return nil
	}
	return u
}

// fanout queues data on every open connection. Clients whose buffer is full
// are dropped.
func (h *Hub) fanout(data []byte) {
	if data == nil {
		return
	}
	var slow []*Client
	h.mu.RLock()
	for c := range h.conns {
		if !c.queue(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	h.drop(slow...)
}

// SendToUser delivers an event to the user's registered connection and
// reports whether the user was online.
func (h *Hub) SendToUser(userID, event string, data any) bool {
	msg := encode(event, "", data)
	if msg == nil {
		return false
	}
	h.mu.RLock()
	c, ok := h.users[userID]
	if ok {
		_, ok = h.conns[c]
	}
	delivered := ok && c.queue(msg)
	h.mu.RUnlock()

	if ok && !delivered {
		h.drop(c)
	}
	return delivered
}

func (h *Hub) drop(clients ...*Client) {
	if len(clients) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range clients {
		h.logger.Warn().Str("user_id", c.userID).Msg("send buffer full, dropping connection")
		h.closeLocked(c)
	}
	h.mu.Unlock()
}

// Online reports whether userID has a registered connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.users[userID]
	return ok
}

// OnlineUsers lists the registered user ids.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	return ids
}

// MessageCreated pushes a persisted message to the receiver and confirms it
// to the sender.
func (h *Hub) MessageCreated(ctx context.Context, m models.MessageView) {
	if h.SendToUser(m.ReceiverID, EventReceiveMessage, m) {
		metrics.MessagesDelivered.Inc()
	}
	h.SendToUser(m.SenderID, EventMessageSent, m)
}

// MessagesRead tells the counterpart that readerID read count messages.
func (h *Hub) MessagesRead(ctx context.Context, readerID, counterpartID string, count int) {
	h.SendToUser(counterpartID, EventMessagesRead, ReadEvent{ReaderID: readerID, Count: count})
}

type outFrame struct {
	Event string `json:"event"`
	Ack   string `json:"ack,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func encode(event, ack string, data any) []byte {
	b, err := json.Marshal(outFrame{Event: event, Ack: ack, Data: data})
	if err != nil {
		log.Logger.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return nil
	}
	return b
}
