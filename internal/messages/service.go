// Package messages is the direct-messaging core: the single write path for
// new messages, conversation aggregation and read tracking. Realtime
// delivery is a notification of what Send persisted, never a second write.
package messages

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"socialhub/internal/common"
	"socialhub/internal/metrics"
	"socialhub/pkg/database"
	"socialhub/pkg/models"
)

const (
	maxContent = 5000

	defaultLimit = 100
	maxLimit     = 500
)

// Transport labels where a message came from.
const (
	TransportREST      = "rest"
	TransportWebSocket = "ws"
	TransportGRPC      = "grpc"
)

type UserDirectory interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Summaries(ctx context.Context, ids ...string) (map[string]models.UserSummary, error)
}

type FriendChecker interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// Notifier pushes persisted changes to connected clients. Delivery is best
// effort.
type Notifier interface {
	MessageCreated(ctx context.Context, m models.MessageView)
	MessagesRead(ctx context.Context, readerID, counterpartID string, count int)
}

type MediaReleaser interface {
	Release(ctx context.Context, items ...models.Media)
}

type Service struct {
	messages database.Collection
	users    UserDirectory
	friends  FriendChecker
	notifier Notifier
	media    MediaReleaser
	now      func() time.Time
}

func NewService(store database.Store, users UserDirectory, friends FriendChecker, notifier Notifier, media MediaReleaser) *Service {
	return &Service{
		messages: store.Collection(database.Messages),
		users:    users,
		friends:  friends,
		notifier: notifier,
		media:    media,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type SendInput struct {
	SenderID   string
	ReceiverID string
	Content    string
	Type       models.MessageType
	Attachment *models.Media
	Transport  string
}

func (in *SendInput) validate() error {
	in.Content = strings.TrimSpace(in.Content)
	if in.Type == "" {
		in.Type = models.MessageText
		if in.Attachment != nil {
			in.Type = models.MessageType(in.Attachment.Kind)
		}
	}
	var v common.Validator
	v.Check(in.ReceiverID != "", "receiverId", "receiver is required")
	v.Check(in.Content != "" || in.Attachment != nil, "content", "content is required")
	v.Check(utf8.RuneCountInString(in.Content) <= maxContent, "content",
		fmt.Sprintf("must be at most %d characters", maxContent))
	v.Check(in.Type.Valid(), "type", "must be one of text, image, video, file")
	return v.Err()
}

// Send is the only way a message is created. It persists the message and
// then notifies both participants.
func (s *Service) Send(ctx context.Context, in SendInput) (*models.MessageView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.SenderID == in.ReceiverID {
		return nil, common.ErrorSelfTarget
	}
	if _, err := s.users.Get(ctx, in.ReceiverID); err != nil {
		return nil, err
	}
	ok, err := s.friends.AreFriends(ctx, in.SenderID, in.ReceiverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrorNotFriends
	}

	m := &models.Message{
		ID:         common.NewID(),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Content:    in.Content,
		Type:       in.Type,
		Attachment: in.Attachment,
		CreatedAt:  s.now(),
	}
	if err := s.messages.Put(ctx, m.ID, m); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	transport := in.Transport
	if transport == "" {
		transport = TransportREST
	}
	metrics.MessagesSent.WithLabelValues(transport).Inc()

	views, err := s.views(ctx, m)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.MessageCreated(ctx, views[0])
	}
	return &views[0], nil
}

// Conversations returns one summary per counterpart, most recent first.
func (s *Service) Conversations(ctx context.Context, me string) ([]models.ConversationSummary, error) {
	msgs, err := database.List(ctx, s.messages, func(m *models.Message) bool {
		return m.Involves(me)
	})
	if err != nil {
		return nil, err
	}
	rows := Summarize(me, msgs)

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.User.ID)
	}
	sums, err := s.users.Summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].User = sums[rows[i].User.ID]
	}
	return rows, nil
}

// Summarize groups me's messages by counterpart. Each row holds the latest
// message by (createdAt, id) and the number of unread messages addressed to
// me. Row users carry only the id.
func Summarize(me string, msgs []*models.Message) []models.ConversationSummary {
	type group struct {
		last   *models.Message
		unread int
	}
	groups := map[string]*group{}
	for _, m := range msgs {
		if !m.Involves(me) || m.SenderID == m.ReceiverID {
			continue
		}
		other := m.Counterpart(me)
		g, ok := groups[other]
		if !ok {
			g = &group{}
			groups[other] = g
		}
		if g.last == nil || g.last.Before(m) {
			g.last = m
		}
		if m.ReceiverID == me && !m.Read {
			g.unread++
		}
	}

	rows := make([]models.ConversationSummary, 0, len(groups))
	for other, g := range groups {
		rows = append(rows, models.ConversationSummary{
			User:        models.UserSummary{ID: other},
			LastMessage: *g.last,
			UnreadCount: g.unread,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[j].LastMessage.Before(&rows[i].LastMessage)
	})
	return rows
}

// ConversationQuery selects part of a conversation.
type ConversationQuery struct {
	// After is a message id; only newer messages are returned. Ids are
	// time ordered, so a deleted message still works as a cursor.
	After string
	Limit int
	// MarkRead marks the counterpart's unread messages as read.
	MarkRead bool
}

// Conversation returns the messages between me and other, oldest first.
// Without a cursor the latest Limit messages are returned; with one, the
// first Limit messages after it.
func (s *Service) Conversation(ctx context.Context, me, other string, q ConversationQuery) ([]models.MessageView, error) {
	if me == other {
		return nil, common.ErrorSelfTarget
	}
	if _, err := s.users.Get(ctx, other); err != nil {
		return nil, err
	}
	msgs, err := s.between(ctx, me, other)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	if q.After != "" {
		idx := -1
		for i, m := range msgs {
			if m.ID == q.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			msgs = msgs[idx+1:]
		} else {
			after, err := uuid.Parse(q.After)
			if err != nil || after.Version() != 7 {
				return nil, common.Invalid("after", "unknown message id")
			}
			msgs = newerThan(msgs, after.String())
		}
		if len(msgs) > limit {
			msgs = msgs[:limit]
		}
	} else if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	if q.MarkRead {
		read, err := s.MarkRead(ctx, me, other)
		if err != nil {
			return nil, err
		}
		if read > 0 {
			now := s.now()
			for _, m := range msgs {
				if m.ReceiverID == me && !m.Read {
					m.Read = true
					m.ReadAt = &now
				}
			}
		}
	}
	return s.views(ctx, msgs...)
}

// newerThan keeps the messages whose id sorts after the given one.
func newerThan(msgs []*models.Message, id string) []*models.Message {
	var out []*models.Message
	for _, m := range msgs {
		if m.ID > id {
			out = append(out, m)
		}
	}
	return out
}

// between loads every message of the pair ordered oldest first.
func (s *Service) between(ctx context.Context, a, b string) ([]*models.Message, error) {
	msgs, err := database.List(ctx, s.messages, func(m *models.Message) bool {
		return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
	return msgs, nil
}

// MarkRead marks every unread message from other to me as read and returns
// how many changed. The transition is one-way.
func (s *Service) MarkRead(ctx context.Context, me, other string) (int, error) {
	unread, err := database.List(ctx, s.messages, func(m *models.Message) bool {
		return m.SenderID == other && m.ReceiverID == me && !m.Read
	})
	if err != nil {
		return 0, err
	}
	now := s.now()
	count := 0
	for _, u := range unread {
		changed := false
		_, err := database.Mutate(ctx, s.messages, u.ID, func(m *models.Message) (*models.Message, error) {
			changed = false
			if m == nil || m.Read {
				return m, nil
			}
			m.Read = true
			m.ReadAt = &now
			changed = true
			return m, nil
		})
		if err != nil {
			return count, fmt.Errorf("mark message %s read: %w", u.ID, err)
		}
		if changed {
			count++
		}
	}
	if count > 0 && s.notifier != nil {
		s.notifier.MessagesRead(ctx, me, other, count)
	}
	return count, nil
}

// Delete removes a message. Only its sender may delete it; other users get
// common.ErrorNotFound so the message's existence is not revealed.
func (s *Service) Delete(ctx context.Context, me, id string) error {
	var attachment *models.Media
	_, err := database.Mutate(ctx, s.messages, id, func(m *models.Message) (*models.Message, error) {
		if m == nil || !m.Involves(me) {
			return nil, common.ErrorNotFound
		}
		if m.SenderID != me {
			return nil, common.ErrorForbidden
		}
		attachment = m.Attachment
		return nil, nil
	})
	if err != nil {
		return err
	}
	if attachment != nil && s.media != nil {
		s.media.Release(ctx, *attachment)
	}
	return nil
}

// UnreadCount is the number of unread messages addressed to me.
func (s *Service) UnreadCount(ctx context.Context, me string) (int, error) {
	unread, err := database.List(ctx, s.messages, func(m *models.Message) bool {
		return m.ReceiverID == me && !m.Read
	})
	if err != nil {
		return 0, err
	}
	return len(unread), nil
}

func (s *Service) views(ctx context.Context, msgs ...*models.Message) ([]models.MessageView, error) {
	ids := make([]string, 0, 2*len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.SenderID, m.ReceiverID)
	}
	sums, err := s.users.Summaries(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("load message users: %w", err)
	}
	out := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, models.MessageView{
			Message:  *m,
			Sender:   sums[m.SenderID],
			Receiver: sums[m.ReceiverID],
		})
	}
	return out, nil
}
