// Package seed loads demo users, friendships, posts and messages from a JSON
// file through the regular services.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"socialhub/internal/common"
	"socialhub/internal/log"
	"socialhub/internal/messages"
	"socialhub/internal/posts"
	"socialhub/internal/users"
	"socialhub/pkg/models"
)

type User struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
}

// Friendship is a request from From to To, accepted unless Pending is set.
type Friendship struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Pending bool   `json:"pending"`
}

type Post struct {
	Author     string `json:"author"`
	Content    string `json:"content"`
	Visibility string `json:"visibility"`
}

type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Content string `json:"content"`
}

// Data is the seed file layout. Friendships, posts and messages refer to
// users by username.
type Data struct {
	Users       []User       `json:"users"`
	Friendships []Friendship `json:"friendships"`
	Posts       []Post       `json:"posts"`
	Messages    []Message    `json:"messages"`
}

func Load(path string) (*Data, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &d, nil
}

type UserService interface {
	Register(ctx context.Context, in users.RegisterInput) (*models.User, error)
	Login(ctx context.Context, username, password string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, in users.ProfileUpdate) (*models.User, error)
}

type FriendService interface {
	SendRequest(ctx context.Context, from, to string) (*models.Relationship, error)
	Accept(ctx context.Context, me, requester string) (*models.Relationship, error)
}

type PostService interface {
	Create(ctx context.Context, in posts.CreateInput) (*models.PostView, error)
}

type MessageService interface {
	Send(ctx context.Context, in messages.SendInput) (*models.MessageView, error)
}

type Seeder struct {
	Users    UserService
	Friends  FriendService
	Posts    PostService
	Messages MessageService
}

// Result counts what Apply created.
type Result struct {
	Users       int
	Friendships int
	Posts       int
	Messages    int
}

// Apply creates everything in d. Users that already exist are reused when
// their password matches, and friendships that already exist are skipped,
// so users and friendships can be seeded twice. Posts and messages are
// always created.
func (s *Seeder) Apply(ctx context.Context, d *Data) (Result, error) {
	logger := log.WithComponent("seed")
	var res Result
	ids := make(map[string]string, len(d.Users))

	for _, u := range d.Users {
		created, err := s.Users.Register(ctx, users.RegisterInput{
			Username:    u.Username,
			DisplayName: u.DisplayName,
			Password:    u.Password,
		})
		switch {
		case errors.Is(err, common.ErrorAlreadyExists):
			existing, lerr := s.Users.Login(ctx, u.Username, u.Password)
			if lerr != nil {
				return res, fmt.Errorf("user %s exists with a different password: %w", u.Username, lerr)
			}
			ids[u.Username] = existing.ID
			logger.Debug().Str("username", u.Username).Msg("user already exists")
			continue
		case err != nil:
			return res, fmt.Errorf("register %s: %w", u.Username, err)
		}
		ids[u.Username] = created.ID
		res.Users++

		if u.Bio != "" || u.Location != "" {
			bio, location := u.Bio, u.Location
			if _, err := s.Users.UpdateProfile(ctx, created.ID, users.ProfileUpdate{Bio: &bio, Location: &location}); err != nil {
				return res, fmt.Errorf("profile of %s: %w", u.Username, err)
			}
		}
	}

	lookup := func(what, username string) (string, error) {
		id, ok := ids[username]
		if !ok {
			return "", fmt.Errorf("%s refers to unknown user %q", what, username)
		}
		return id, nil
	}

	for _, f := range d.Friendships {
		from, err := lookup("friendship", f.From)
		if err != nil {
			return res, err
		}
		to, err := lookup("friendship", f.To)
		if err != nil {
			return res, err
		}
		_, err = s.Friends.SendRequest(ctx, from, to)
		if errors.Is(err, common.ErrorAlreadyFriends) || errors.Is(err, common.ErrorRequestPending) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("friend request %s -> %s: %w", f.From, f.To, err)
		}
		if !f.Pending {
			if _, err := s.Friends.Accept(ctx, to, from); err != nil {
				return res, fmt.Errorf("accept %s -> %s: %w", f.From, f.To, err)
			}
		}
		res.Friendships++
	}

	for _, p := range d.Posts {
		author, err := lookup("post", p.Author)
		if err != nil {
			return res, err
		}
		if _, err := s.Posts.Create(ctx, posts.CreateInput{
			AuthorID:   author,
			Content:    p.Content,
			Visibility: models.Visibility(p.Visibility),
		}); err != nil {
			return res, fmt.Errorf("post by %s: %w", p.Author, err)
		}
		res.Posts++
	}

	for _, m := range d.Messages {
		from, err := lookup("message", m.From)
		if err != nil {
			return res, err
		}
		to, err := lookup("message", m.To)
		if err != nil {
			return res, err
		}
		if _, err := s.Messages.Send(ctx, messages.SendInput{
			SenderID:   from,
			ReceiverID: to,
			Content:    m.Content,
		}); err != nil {
			return res, fmt.Errorf("message %s -> %s: %w", m.From, m.To, err)
		}
		res.Messages++
	}

	logger.Info().
		Int("users", res.Users).
		Int("friendships", res.Friendships).
		Int("posts", res.Posts).
		Int("messages", res.Messages).
		Msg("seed applied")
	return res, nil
}
