// Package users owns accounts: registration, credentials, profiles, search
// and presence flags.
package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"socialhub/internal/common"
	"socialhub/pkg/database"
	"socialhub/pkg/models"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,30}$`)

const (
	minPassword = 6
	// bcrypt ignores everything past 72 bytes
	maxPassword    = 72
	maxDisplayName = 50
	maxBio         = 300
	maxLocation    = 100

	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

// usernames collection: lower-cased username → owner. Claiming it first
// keeps usernames unique across every backend.
type usernameClaim struct {
	UserID string `json:"userId"`
}

type Service struct {
	users     database.Collection
	usernames database.Collection
	hashCost  int
	now       func() time.Time
}

type Option func(*Service)

// WithHashCost sets the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func NewService(store database.Store, opts ...Option) *Service {
	s := &Service{
		users:     store.Collection(database.Users),
		usernames: store.Collection(database.Usernames),
		hashCost:  bcrypt.DefaultCost,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Username    string
	DisplayName string
	Password    string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.DisplayName == "" {
		in.DisplayName = in.Username
	}

	var v common.Validator
	v.Check(usernamePattern.MatchString(in.Username), "username",
		"must be 3-30 characters of letters, digits, '_' or '.'")
	v.Check(utf8.RuneCountInString(in.DisplayName) <= maxDisplayName, "displayName",
		fmt.Sprintf("must be at most %d characters", maxDisplayName))
	v.Check(len(in.Password) >= minPassword && len(in.Password) <= maxPassword, "password",
		fmt.Sprintf("must be %d-%d characters", minPassword, maxPassword))
	if err := v.Err(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	u := &models.User{
		ID:           common.NewID(),
		Username:     in.Username,
		DisplayName:  in.DisplayName,
		PasswordHash: string(hash),
		LastSeen:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	key := usernameKey(in.Username)
	_, err = database.Mutate(ctx, s.usernames, key, func(cur *usernameClaim) (*usernameClaim, error) {
		if cur != nil {
			return nil, common.ErrorAlreadyExists
		}
		return &usernameClaim{UserID: u.ID}, nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, fmt.Errorf("username %q: %w", in.Username, err)
		}
		return nil, fmt.Errorf("claim username: %w", err)
	}

	if err := s.users.Put(ctx, u.ID, u); err != nil {
		_ = s.usernames.Delete(ctx, key)
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login checks the credentials. Unknown users and wrong passwords both
// return common.ErrorInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	claim, err := database.Get[usernameClaim](ctx, s.usernames, usernameKey(strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorInvalidCredentials
		}
		return nil, err
	}
	u, err := s.Get(ctx, claim.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, common.ErrorInvalidCredentials
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, common.ErrorNotFound
	}
	return database.Get[models.User](ctx, s.users, id)
}

// Summaries loads display data for ids in one pass over the collection.
// Unknown ids get a bare summary with only the id set.
func (s *Service) Summaries(ctx context.Context, ids ...string) (map[string]models.UserSummary, error) {
	out := make(map[string]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	found, err := database.List(ctx, s.users, func(u *models.User) bool { return want[u.ID] })
	if err != nil {
		return nil, err
	}
	for _, u := range found {
		out[u.ID] = u.Summary()
	}
	for id := range want {
		if _, ok := out[id]; !ok {
			out[id] = models.UserSummary{ID: id}
		}
	}
	return out, nil
}

// ProfileUpdate holds the optional fields of a profile edit; nil leaves the
// field unchanged.
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	Location    *string
}

func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (*models.User, error) {
	var v common.Validator
	if in.DisplayName != nil {
		trimmed := strings.TrimSpace(*in.DisplayName)
		in.DisplayName = &trimmed
		n := utf8.RuneCountInString(trimmed)
		v.Check(n >= 1 && n <= maxDisplayName, "displayName",
			fmt.Sprintf("must be 1-%d characters", maxDisplayName))
	}
	if in.Bio != nil {
		v.Check(utf8.RuneCountInString(*in.Bio) <= maxBio, "bio",
			fmt.Sprintf("must be at most %d characters", maxBio))
	}
	if in.Location != nil {
		v.Check(utf8.RuneCountInString(*in.Location) <= maxLocation, "location",
			fmt.Sprintf("must be at most %d characters", maxLocation))
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	return database.Mutate(ctx, s.users, id, func(u *models.User) (*models.User, error) {
		if u == nil {
			return nil, common.ErrorNotFound
		}
		if in.DisplayName != nil {
			u.DisplayName = *in.DisplayName
		}
		if in.Bio != nil {
			u.Bio = *in.Bio
		}
		if in.Location != nil {
			u.Location = *in.Location
		}
		u.UpdatedAt = now
		return u, nil
	})
}

// SetAvatar stores the new avatar reference and returns the one it replaced
// so the caller can release it.
func (s *Service) SetAvatar(ctx context.Context, id string, avatar models.Media) (*models.User, *models.Media, error) {
	var old *models.Media
	now := s.now()
	u, err := database.Mutate(ctx, s.users, id, func(u *models.User) (*models.User, error) {
		if u == nil {
			return nil, common.ErrorNotFound
		}
		old = u.Avatar
		a := avatar
		u.Avatar = &a
		u.UpdatedAt = now
		return u, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return u, old, nil
}

// Search matches q case-insensitively against username and display name,
// skipping the caller.
func (s *Service) Search(ctx context.Context, callerID, q string, limit int) ([]models.UserSummary, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil, common.Invalid("q", "search query is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	found, err := database.List(ctx, s.users, func(u *models.User) bool {
		if u.ID == callerID {
			return false
		}
		return strings.Contains(strings.ToLower(u.Username), q) ||
			strings.Contains(strings.ToLower(u.DisplayName), q)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool {
		return strings.ToLower(found[i].Username) < strings.ToLower(found[j].Username)
	})
	if len(found) > limit {
		found = found[:limit]
	}
	out := make([]models.UserSummary, 0, len(found))
	for _, u := range found {
		out = append(out, u.Summary())
	}
	return out, nil
}

// SetOnline flips the presence flag and stamps LastSeen.
func (s *Service) SetOnline(ctx context.Context, id string, online bool) (*models.User, error) {
	now := s.now()
	return database.Mutate(ctx, s.users, id, func(u *models.User) (*models.User, error) {
		if u == nil {
			return nil, common.ErrorNotFound
		}
		u.Online = online
		u.LastSeen = now
		return u, nil
	})
}

func usernameKey(username string) string {
	return strings.ToLower(username)
}
