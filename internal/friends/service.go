// Package friends implements the friend-request state machine. Each
// unordered pair of users has at most one Relationship document:
//
//	none -> pending(A->B) -> friends
//	pending -> none   (declined by B or cancelled by A)
//	friends -> none   (unfriend)
//
// Every transition is one atomic read-modify-write of that document, so the
// pair can never be both pending and friends.
package friends

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"socialhub/internal/common"
	"socialhub/pkg/database"
	"socialhub/pkg/models"
)

// Relation of another user as seen from the caller.
const (
	RelationSelf     = "self"
	RelationNone     = "none"
	RelationFriends  = "friends"
	RelationOutgoing = "outgoing"
	RelationIncoming = "incoming"
)

// UserDirectory resolves user ids.
type UserDirectory interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Summaries(ctx context.Context, ids ...string) (map[string]models.UserSummary, error)
}

type Service struct {
	rels  database.Collection
	users UserDirectory
	now   func() time.Time
}

func NewService(store database.Store, users UserDirectory) *Service {
	return &Service{
		rels:  store.Collection(database.Relationships),
		users: users,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// PairID is the document id of the unordered pair (a, b).
func PairID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// SendRequest moves the pair from none to pending(from->to).
func (s *Service) SendRequest(ctx context.Context, from, to string) (*models.Relationship, error) {
	if from == to {
		return nil, common.ErrorSelfTarget
	}
	if _, err := s.users.Get(ctx, to); err != nil {
		return nil, err
	}
	now := s.now()
	return database.Mutate(ctx, s.rels, PairID(from, to), func(cur *models.Relationship) (*models.Relationship, error) {
		if cur != nil {
			if cur.Status == models.RelationshipAccepted {
				return nil, common.ErrorAlreadyFriends
			}
			return nil, common.ErrorRequestPending
		}
		a, b := from, to
		if b < a {
			a, b = b, a
		}
		return &models.Relationship{
			ID:          PairID(from, to),
			UserA:       a,
			UserB:       b,
			RequesterID: from,
			Status:      models.RelationshipPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	})
}

// Accept turns the pending request from requester to me into a friendship.
func (s *Service) Accept(ctx context.Context, me, requester string) (*models.Relationship, error) {
	if me == requester {
		return nil, common.ErrorSelfTarget
	}
	now := s.now()
	return database.Mutate(ctx, s.rels, PairID(me, requester), func(cur *models.Relationship) (*models.Relationship, error) {
		if !isPendingFrom(cur, requester) {
			return nil, common.ErrorNotFound
		}
		cur.Status = models.RelationshipAccepted
		cur.UpdatedAt = now
		return cur, nil
	})
}

// Decline drops the pending request from requester to me.
func (s *Service) Decline(ctx context.Context, me, requester string) error {
	return s.drop(ctx, me, requester, func(cur *models.Relationship) bool {
		return isPendingFrom(cur, requester)
	})
}

// Cancel withdraws my pending request to target.
func (s *Service) Cancel(ctx context.Context, me, target string) error {
	return s.drop(ctx, me, target, func(cur *models.Relationship) bool {
		return isPendingFrom(cur, me)
	})
}

// Unfriend ends an accepted friendship from either side.
func (s *Service) Unfriend(ctx context.Context, me, other string) error {
	return s.drop(ctx, me, other, func(cur *models.Relationship) bool {
		return cur != nil && cur.Status == models.RelationshipAccepted
	})
}

func (s *Service) drop(ctx context.Context, me, other string, allowed func(*models.Relationship) bool) error {
	if me == other {
		return common.ErrorSelfTarget
	}
	_, err := database.Mutate(ctx, s.rels, PairID(me, other), func(cur *models.Relationship) (*models.Relationship, error) {
		if !allowed(cur) {
			return nil, common.ErrorNotFound
		}
		return nil, nil
	})
	return err
}

func isPendingFrom(r *models.Relationship, requester string) bool {
	return r != nil && r.Status == models.RelationshipPending && r.RequesterID == requester
}

// Relation describes other from me's point of view.
func (s *Service) Relation(ctx context.Context, me, other string) (string, error) {
	if me == other {
		return RelationSelf, nil
	}
	r, err := database.Get[models.Relationship](ctx, s.rels, PairID(me, other))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return RelationNone, nil
		}
		return "", err
	}
	switch {
	case r.Status == models.RelationshipAccepted:
		return RelationFriends, nil
	case r.RequesterID == me:
		return RelationOutgoing, nil
	default:
		return RelationIncoming, nil
	}
}

func (s *Service) AreFriends(ctx context.Context, a, b string) (bool, error) {
	if a == b {
		return false, nil
	}
	rel, err := s.Relation(ctx, a, b)
	if err != nil {
		return false, err
	}
	return rel == RelationFriends, nil
}

func (s *Service) relationships(ctx context.Context, me string) ([]*models.Relationship, error) {
	return database.List(ctx, s.rels, func(r *models.Relationship) bool {
		return r.Involves(me)
	})
}

// FriendIDs lists the ids of me's accepted friends.
func (s *Service) FriendIDs(ctx context.Context, me string) ([]string, error) {
	rels, err := s.relationships(ctx, me)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range rels {
		if r.Status == models.RelationshipAccepted {
			ids = append(ids, r.Other(me))
		}
	}
	return ids, nil
}

// Overview returns friends plus incoming and outgoing pending requests,
// requests newest first.
func (s *Service) Overview(ctx context.Context, me string) (*models.FriendsOverview, error) {
	rels, err := s.relationships(ctx, me)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rels))
	for _, r := range rels {
		ids = append(ids, r.Other(me))
	}
	sums, err := s.users.Summaries(ctx, ids...)
	if err != nil {
		return nil, err
	}

	ov := &models.FriendsOverview{
		Friends:  []models.UserSummary{},
		Incoming: []models.FriendRequest{},
		Outgoing: []models.FriendRequest{},
	}
	for _, r := range rels {
		other := sums[r.Other(me)]
		switch {
		case r.Status == models.RelationshipAccepted:
			ov.Friends = append(ov.Friends, other)
		case r.RequesterID == me:
			ov.Outgoing = append(ov.Outgoing, models.FriendRequest{User: other, CreatedAt: r.CreatedAt})
		default:
			ov.Incoming = append(ov.Incoming, models.FriendRequest{User: other, CreatedAt: r.CreatedAt})
		}
	}
	sort.Slice(ov.Friends, func(i, j int) bool {
		return strings.ToLower(ov.Friends[i].DisplayName) < strings.ToLower(ov.Friends[j].DisplayName)
	})
	newest := func(reqs []models.FriendRequest) {
		sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].CreatedAt.After(reqs[j].CreatedAt) })
	}
	newest(ov.Incoming)
	newest(ov.Outgoing)
	return ov, nil
}
