package users

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"socialhub/internal/common"
	"socialhub/pkg/database"
	"socialhub/pkg/database/databasetest"
	"socialhub/pkg/models"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(databasetest.New(t), WithHashCost(bcrypt.MinCost))
}

func register(t *testing.T, s *Service, username string) *models.User {
	t.Helper()
	u, err := s.Register(context.Background(), RegisterInput{Username: username, Password: "secret1"})
	require.NoError(t, err)
	return u
}

func TestRegisterAndLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	u, err := s.Register(ctx, RegisterInput{Username: "Alice", DisplayName: " Alice A ", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Alice A", u.DisplayName)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	got, err := s.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Login(ctx, "alice", "wrong-pass")
	assert.ErrorIs(t, err, common.ErrorInvalidCredentials)

	_, err = s.Login(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, common.ErrorInvalidCredentials)
}

func TestRegister_DefaultsDisplayName(t *testing.T) {
	s := newService(t)
	u := register(t, s, "bob")
	assert.Equal(t, "bob", u.DisplayName)
}

func TestRegister_DuplicateUsernameIsCaseInsensitive(t *testing.T) {
	s := newService(t)
	register(t, s, "carol")

	_, err := s.Register(context.Background(), RegisterInput{Username: "CAROL", Password: "secret1"})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	s := newService(t)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Register(context.Background(), RegisterInput{Username: "dave", Password: "secret1"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, common.ErrorAlreadyExists)
	}
	assert.Equal(t, 1, ok)
}

func TestRegister_Validation(t *testing.T) {
	s := newService(t)
	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{name: "short username", in: RegisterInput{Username: "ab", Password: "secret1"}, field: "username"},
		{name: "bad chars", in: RegisterInput{Username: "a b c", Password: "secret1"}, field: "username"},
		{name: "short password", in: RegisterInput{Username: "erin", Password: "123"}, field: "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(context.Background(), tt.in)
			require.ErrorIs(t, err, common.ErrorValidation)

			var verr *common.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u := register(t, s, "frank")

	bio := "hello"
	name := "Frank F"
	got, err := s.UpdateProfile(ctx, u.ID, ProfileUpdate{DisplayName: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "Frank F", got.DisplayName)
	assert.Equal(t, "hello", got.Bio)
	assert.Empty(t, got.Location)

	empty := "  "
	_, err = s.UpdateProfile(ctx, u.ID, ProfileUpdate{DisplayName: &empty})
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.UpdateProfile(ctx, "missing", ProfileUpdate{Bio: &bio})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSetAvatarReturnsPrevious(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u := register(t, s, "gina")

	_, old, err := s.SetAvatar(ctx, u.ID, models.Media{Key: "a1", URL: "/media/a1"})
	require.NoError(t, err)
	assert.Nil(t, old)

	got, old, err := s.SetAvatar(ctx, u.ID, models.Media{Key: "a2", URL: "/media/a2"})
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.Equal(t, "a1", old.Key)
	assert.Equal(t, "/media/a2", got.Summary().AvatarURL)
}

func TestSearch(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	me := register(t, s, "harry")
	register(t, s, "harriet")
	register(t, s, "ian")
	name := "Harper"
	other := register(t, s, "zed")
	_, err := s.UpdateProfile(ctx, other.ID, ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)

	got, err := s.Search(ctx, me.ID, "HAR", 0)
	require.NoError(t, err)
	var names []string
	for _, u := range got {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"harriet", "zed"}, names)

	got, err = s.Search(ctx, me.ID, "har", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = s.Search(ctx, me.ID, " ", 0)
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestSummariesAndPresence(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	u := register(t, s, "judy")

	_, err := s.SetOnline(ctx, u.ID, true)
	require.NoError(t, err)

	sums, err := s.Summaries(ctx, u.ID, "ghost", u.ID)
	require.NoError(t, err)
	assert.Len(t, sums, 2)
	assert.True(t, sums[u.ID].Online)
	assert.Equal(t, "judy", sums[u.ID].Username)
	assert.Equal(t, models.UserSummary{ID: "ghost"}, sums["ghost"])

	off, err := s.SetOnline(ctx, u.ID, false)
	require.NoError(t, err)
	assert.False(t, off.Online)
	assert.False(t, off.LastSeen.IsZero())
}

type countingStore struct {
	database.Store
	gets, scans atomic.Int64
}

func (s *countingStore) Collection(name string) database.Collection {
	return &countingCollection{Collection: s.Store.Collection(name), store: s}
}

type countingCollection struct {
	database.Collection
	store *countingStore
}

func (c *countingCollection) Get(ctx context.Context, id string, dst any) error {
	c.store.gets.Add(1)
	return c.Collection.Get(ctx, id, dst)
}

func (c *countingCollection) ForEach(ctx context.Context, fn func(id string, decode database.Decoder) error) error {
	c.store.scans.Add(1)
	return c.Collection.ForEach(ctx, fn)
}

func TestSummaries_SinglePass(t *testing.T) {
	store := &countingStore{Store: databasetest.New(t)}
	s := NewService(store, WithHashCost(bcrypt.MinCost))
	ctx := context.Background()
	a := register(t, s, "kim")
	b := register(t, s, "lee")
	register(t, s, "max")

	gets, scans := store.gets.Load(), store.scans.Load()
	sums, err := s.Summaries(ctx, a.ID, b.ID, "ghost", a.ID)
	require.NoError(t, err)
	assert.Equal(t, gets, store.gets.Load())
	assert.Equal(t, scans+1, store.scans.Load())

	require.Len(t, sums, 3)
	assert.Equal(t, "kim", sums[a.ID].Username)
	assert.Equal(t, "lee", sums[b.ID].Username)
	assert.Equal(t, models.UserSummary{ID: "ghost"}, sums["ghost"])

	empty, err := s.Summaries(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, scans+1, store.scans.Load())
}
