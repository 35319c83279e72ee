// Package posts implements the post feed: creation with media, visibility
// filtering, likes and comments.
package posts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"socialhub/internal/common"
	"socialhub/internal/metrics"
	"socialhub/pkg/database"
	"socialhub/pkg/models"
)

const (
	maxContent = 5000
	maxComment = 1000

	defaultLimit = 20
	maxLimit     = 100
)

type UserDirectory interface {
	Summaries(ctx context.Context, ids ...string) (map[string]models.UserSummary, error)
}

type FriendGraph interface {
	FriendIDs(ctx context.Context, me string) ([]string, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// MediaReleaser deletes stored media objects, best effort.
type MediaReleaser interface {
	Release(ctx context.Context, items ...models.Media)
}

type Service struct {
	posts   database.Collection
	users   UserDirectory
	friends FriendGraph
	media   MediaReleaser
	now     func() time.Time
}

func NewService(store database.Store, users UserDirectory, friends FriendGraph, media MediaReleaser) *Service {
	return &Service{
		posts:   store.Collection(database.Posts),
		users:   users,
		friends: friends,
		media:   media,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type CreateInput struct {
	AuthorID   string
	Content    string
	Visibility models.Visibility
	Media      []models.Media
}

// Validate checks the input before any media is uploaded.
func (in *CreateInput) Validate(mediaCount int) error {
	in.Content = strings.TrimSpace(in.Content)
	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}
	var v common.Validator
	v.Check(in.Content != "" || mediaCount > 0, "content", "content or media is required")
	v.Check(utf8.RuneCountInString(in.Content) <= maxContent, "content",
		fmt.Sprintf("must be at most %d characters", maxContent))
	v.Check(in.Visibility.Valid(), "visibility", "must be one of public, friends, private")
	return v.Err()
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.PostView, error) {
	if err := in.Validate(len(in.Media)); err != nil {
		return nil, err
	}
	now := s.now()
	p := &models.Post{
		ID:         common.NewID(),
		AuthorID:   in.AuthorID,
		Content:    in.Content,
		Media:      in.Media,
		Visibility: in.Visibility,
		Likes:      []models.Like{},
		Comments:   []models.Comment{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if p.Media == nil {
		p.Media = []models.Media{}
	}
	if err := s.posts.Put(ctx, p.ID, p); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	metrics.PostsCreated.Inc()
	return s.view(ctx, in.AuthorID, p)
}

// Feed lists every post visible to viewer, newest first.
func (s *Service) Feed(ctx context.Context, viewer string, limit, offset int) ([]models.PostView, error) {
	return s.list(ctx, viewer, "", limit, offset)
}

// ByUser is Feed restricted to one author.
func (s *Service) ByUser(ctx context.Context, viewer, authorID string, limit, offset int) ([]models.PostView, error) {
	return s.list(ctx, viewer, authorID, limit, offset)
}

func (s *Service) list(ctx context.Context, viewer, authorID string, limit, offset int) ([]models.PostView, error) {
	friendIDs, err := s.friends.FriendIDs(ctx, viewer)
	if err != nil {
		return nil, err
	}
	friends := make(map[string]bool, len(friendIDs))
	for _, id := range friendIDs {
		friends[id] = true
	}

	found, err := database.List(ctx, s.posts, func(p *models.Post) bool {
		if authorID != "" && p.AuthorID != authorID {
			return false
		}
		return visible(p, viewer, friends[p.AuthorID])
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	found = page(found, limit, offset)
	return s.views(ctx, viewer, found...)
}

func page(posts []*models.Post, limit, offset int) []*models.Post {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(posts) {
		return nil
	}
	end := offset + limit
	if end > len(posts) {
		end = len(posts)
	}
	return posts[offset:end]
}

// visible: owners see everything, friends see public and friends-only,
// everyone else sees public.
func visible(p *models.Post, viewer string, isFriend bool) bool {
	switch {
	case p.AuthorID == viewer:
		return true
	case p.Visibility == models.VisibilityPublic:
		return true
	case p.Visibility == models.VisibilityFriends:
		return isFriend
	default:
		return false
	}
}

// load returns the post if viewer may see it, common.ErrorNotFound otherwise.
func (s *Service) load(ctx context.Context, viewer, id string) (*models.Post, error) {
	p, err := database.Get[models.Post](ctx, s.posts, id)
	if err != nil {
		return nil, err
	}
	isFriend := false
	if p.Visibility == models.VisibilityFriends && p.AuthorID != viewer {
		if isFriend, err = s.friends.AreFriends(ctx, viewer, p.AuthorID); err != nil {
			return nil, err
		}
	}
	if !visible(p, viewer, isFriend) {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, viewer, id string) (*models.PostView, error) {
	p, err := s.load(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, viewer, p)
}

// Delete removes the post if viewer wrote it and then releases its media.
// Posts the viewer cannot see are reported as not found.
func (s *Service) Delete(ctx context.Context, viewer, id string) error {
	if _, err := s.load(ctx, viewer, id); err != nil {
		return err
	}
	var released []models.Media
	_, err := database.Mutate(ctx, s.posts, id, func(p *models.Post) (*models.Post, error) {
		if p == nil {
			return nil, common.ErrorNotFound
		}
		if p.AuthorID != viewer {
			return nil, common.ErrorForbidden
		}
		released = p.Media
		return nil, nil
	})
	if err != nil {
		return err
	}
	if len(released) > 0 && s.media != nil {
		s.media.Release(ctx, released...)
	}
	return nil
}

// ToggleLike removes viewer's like when present and adds it otherwise, in one
// atomic update of the post.
func (s *Service) ToggleLike(ctx context.Context, viewer, id string) (*models.PostView, error) {
	if _, err := s.load(ctx, viewer, id); err != nil {
		return nil, err
	}
	now := s.now()
	p, err := database.Mutate(ctx, s.posts, id, func(p *models.Post) (*models.Post, error) {
		if p == nil {
			return nil, common.ErrorNotFound
		}
		likes := make([]models.Like, 0, len(p.Likes)+1)
		removed := false
		for _, l := range p.Likes {
			if l.UserID == viewer {
				removed = true
				continue
			}
			likes = append(likes, l)
		}
		if !removed {
			likes = append(likes, models.Like{UserID: viewer, CreatedAt: now})
		}
		p.Likes = likes
		p.UpdatedAt = now
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, viewer, p)
}

func (s *Service) AddComment(ctx context.Context, viewer, id, text string) (*models.PostView, error) {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n == 0 || n > maxComment {
		return nil, common.Invalid("text", fmt.Sprintf("must be 1-%d characters", maxComment))
	}
	if _, err := s.load(ctx, viewer, id); err != nil {
		return nil, err
	}
	now := s.now()
	c := models.Comment{ID: common.NewID(), UserID: viewer, Text: text, CreatedAt: now}
	p, err := database.Mutate(ctx, s.posts, id, func(p *models.Post) (*models.Post, error) {
		if p == nil {
			return nil, common.ErrorNotFound
		}
		p.Comments = append(p.Comments, c)
		p.UpdatedAt = now
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, viewer, p)
}

func (s *Service) view(ctx context.Context, viewer string, p *models.Post) (*models.PostView, error) {
	views, err := s.views(ctx, viewer, p)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// views populates user summaries for authors, likers and commenters with a
// single directory lookup.
func (s *Service) views(ctx context.Context, viewer string, posts ...*models.Post) ([]models.PostView, error) {
	var ids []string
	for _, p := range posts {
		ids = append(ids, p.AuthorID)
		for _, l := range p.Likes {
			ids = append(ids, l.UserID)
		}
		for _, c := range p.Comments {
			ids = append(ids, c.UserID)
		}
	}
	sums, err := s.users.Summaries(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("load post users: %w", err)
	}

	out := make([]models.PostView, 0, len(posts))
	for _, p := range posts {
		v := models.PostView{
			ID:           p.ID,
			Author:       sums[p.AuthorID],
			Content:      p.Content,
			Media:        p.Media,
			Visibility:   p.Visibility,
			Likes:        make([]models.LikeView, 0, len(p.Likes)),
			LikeCount:    len(p.Likes),
			LikedByMe:    p.LikedBy(viewer),
			Comments:     make([]models.CommentView, 0, len(p.Comments)),
			CommentCount: len(p.Comments),
			CreatedAt:    p.CreatedAt,
		}
		if v.Media == nil {
			v.Media = []models.Media{}
		}
		for _, l := range p.Likes {
			v.Likes = append(v.Likes, models.LikeView{User: sums[l.UserID], CreatedAt: l.CreatedAt})
		}
		for _, c := range p.Comments {
			v.Comments = append(v.Comments, models.CommentView{ID: c.ID, User: sums[c.UserID], Text: c.Text, CreatedAt: c.CreatedAt})
		}
		out = append(out, v)
	}
	return out, nil
}
