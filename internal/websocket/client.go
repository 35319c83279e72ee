package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"socialhub/internal/common"
	"socialhub/internal/messages"
	"socialhub/internal/metrics"
	"socialhub/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 256
	eventTimeout   = 10 * time.Second
)

// Client → server events.
const (
	EventJoin        = "join"
	EventSendMessage = "sendMessage"
	EventMarkRead    = "markRead"
)

// Messenger is the message write path used by socket events.
type Messenger interface {
	Send(ctx context.Context, in messages.SendInput) (*models.MessageView, error)
	MarkRead(ctx context.Context, me, other string) (int, error)
}

// Frame is one client → server event.
type Frame struct {
	Event string          `json:"event"`
	Ack   string          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AckResult answers a frame that carried an ack id.
type AckResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type joinPayload struct {
	UserID string `json:"userId"`
}

type sendPayload struct {
	ReceiverID string             `json:"receiverId"`
	Content    string             `json:"content"`
	Type       models.MessageType `json:"type"`
}

type markReadPayload struct {
	UserID string `json:"userId"`
}

// Client is one WebSocket connection of an authenticated user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	msgs   Messenger
	logger zerolog.Logger

	// read goroutine only
	joined bool
}

// queue hands data to the write pump without blocking. Callers hold the hub
// lock so send is not closed underneath them.
func (c *Client) queue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.logger.Debug().Err(err).Msg("malformed frame")
			c.reply(EventError, "", AckResult{Message: "malformed frame"})
			continue
		}
		metrics.WSEventsTotal.WithLabelValues(f.Event).Inc()
		c.handle(f)
	}
}

func (c *Client) handle(f Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var res AckResult
	switch f.Event {
	case EventJoin:
		res = c.onJoin(f.Data)
	case EventSendMessage:
		res = c.onSendMessage(ctx, f.Data)
	case EventMarkRead:
		res = c.onMarkRead(ctx, f.Data)
	default:
		res = AckResult{Message: "unknown event " + f.Event}
	}

	if f.Ack != "" {
		c.reply(EventAck, f.Ack, res)
	} else if !res.Success {
		c.logger.Debug().Str("event", f.Event).Str("reason", res.Message).Msg("event failed without ack")
	}
}

func (c *Client) onJoin(data json.RawMessage) AckResult {
	var p joinPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return AckResult{Message: "invalid join payload"}
		}
	}
	if p.UserID != "" && p.UserID != c.userID {
		return AckResult{Message: "cannot join as another user"}
	}
	if !c.hub.Join(c) {
		return AckResult{Message: "server is shutting down"}
	}
	c.joined = true
	return AckResult{Success: true, Data: joinPayload{UserID: c.userID}}
}

func (c *Client) onSendMessage(ctx context.Context, data json.RawMessage) AckResult {
	if !c.joined {
		return AckResult{Message: "join first"}
	}
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return AckResult{Message: "invalid message payload"}
	}
	m, err := c.msgs.Send(ctx, messages.SendInput{
		SenderID:   c.userID,
		ReceiverID: p.ReceiverID,
		Content:    p.Content,
		Type:       p.Type,
		Transport:  messages.TransportWebSocket,
	})
	if err != nil {
		return c.failure("send message", err)
	}
	return AckResult{Success: true, Data: m}
}

func (c *Client) onMarkRead(ctx context.Context, data json.RawMessage) AckResult {
	if !c.joined {
		return AckResult{Message: "join first"}
	}
	var p markReadPayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" {
		return AckResult{Message: "userId is required"}
	}
	n, err := c.msgs.MarkRead(ctx, c.userID, p.UserID)
	if err != nil {
		return c.failure("mark read", err)
	}
	return AckResult{Success: true, Data: ReadEvent{ReaderID: c.userID, Count: n}}
}

// failure turns a service error into an ack. Classified errors are shown to
// the client; anything else is logged and reported generically.
func (c *Client) failure(op string, err error) AckResult {
	var verr *common.ValidationError
	switch {
	case errors.As(err, &verr):
		return AckResult{Message: verr.Error()}
	case errors.Is(err, common.ErrorNotFound):
		return AckResult{Message: "user not found"}
	case errors.Is(err, common.ErrorNotFriends),
		errors.Is(err, common.ErrorSelfTarget),
		errors.Is(err, common.ErrorForbidden):
		return AckResult{Message: err.Error()}
	default:
		c.logger.Error().Err(err).Str("op", op).Msg("socket event failed")
		return AckResult{Message: "failed to " + op}
	}
}

// reply queues a frame for this connection only.
func (c *Client) reply(event, ack string, res AckResult) {
	data := encode(event, ack, res)
	if data == nil {
		return
	}
	c.hub.mu.RLock()
	_, open := c.hub.conns[c]
	ok := open && c.queue(data)
	c.hub.mu.RUnlock()
	if open && !ok {
		c.hub.drop(c)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
