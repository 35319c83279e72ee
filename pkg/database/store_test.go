package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialhub/internal/common"
)

type counter struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	stores := map[string]Store{}

	sqliteStore, err := OpenSQLite(filepath.Join(dir, "socialhub.db"))
	require.NoError(t, err)
	stores[DriverSQLite] = sqliteStore

	boltStore, err := OpenBolt(filepath.Join(dir, "bolt", "socialhub.bolt"))
	require.NoError(t, err)
	stores[DriverBolt] = boltStore

	if uri := os.Getenv("MONGO_TEST_URI"); uri != "" {
		mongoStore, err := OpenMongo(ctx, uri, "socialhub_test_"+filepath.Base(dir))
		require.NoError(t, err)
		t.Cleanup(func() { _ = mongoStore.db.Drop(context.Background()) })
		stores[DriverMongo] = mongoStore
	}

	for name, s := range stores {
		require.NoError(t, s.Migrate(ctx), name)
		s := s
		t.Cleanup(func() { _ = s.Close() })
	}
	return stores
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			var c counter
			err := s.Collection("counters").Get(context.Background(), "nope", &c)
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			coll := s.Collection("counters")
			require.NoError(t, coll.Put(ctx, "a", &counter{ID: "a", Value: 1}))
			require.NoError(t, coll.Put(ctx, "a", &counter{ID: "a", Value: 2}))

			got, err := Get[counter](ctx, coll, "a")
			require.NoError(t, err)
			assert.Equal(t, 2, got.Value)

			require.NoError(t, coll.Delete(ctx, "a"))
			require.NoError(t, coll.Delete(ctx, "a"))
			_, err = Get[counter](ctx, coll, "a")
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})
	}
}

func TestStore_ListOrderedByID(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			coll := s.Collection("counters")
			for _, id := range []string{"c", "a", "b"} {
				require.NoError(t, coll.Put(ctx, id, &counter{ID: id}))
			}
			// other collections stay separate
			require.NoError(t, s.Collection("other").Put(ctx, "z", &counter{ID: "z"}))

			all, err := List[counter](ctx, coll, nil)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "a", all[0].ID)
			assert.Equal(t, "b", all[1].ID)
			assert.Equal(t, "c", all[2].ID)

			some, err := List(ctx, coll, func(c *counter) bool { return c.ID != "b" })
			require.NoError(t, err)
			assert.Len(t, some, 2)
		})
	}
}

func TestStore_MutateLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			coll := s.Collection("counters")

			created, err := Mutate(ctx, coll, "x", func(cur *counter) (*counter, error) {
				require.Nil(t, cur)
				return &counter{ID: "x", Value: 1}, nil
			})
			require.NoError(t, err)
			assert.Equal(t, 1, created.Value)

			updated, err := Mutate(ctx, coll, "x", func(cur *counter) (*counter, error) {
				require.NotNil(t, cur)
				cur.Value++
				return cur, nil
			})
			require.NoError(t, err)
			assert.Equal(t, 2, updated.Value)

			boom := errors.New("boom")
			_, err = Mutate(ctx, coll, "x", func(cur *counter) (*counter, error) {
				return nil, boom
			})
			assert.ErrorIs(t, err, boom)

			got, err := Get[counter](ctx, coll, "x")
			require.NoError(t, err)
			assert.Equal(t, 2, got.Value, "failed mutation must not change the document")

			deleted, err := Mutate(ctx, coll, "x", func(cur *counter) (*counter, error) {
				return nil, nil
			})
			require.NoError(t, err)
			assert.Nil(t, deleted)
			_, err = Get[counter](ctx, coll, "x")
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})
	}
}

func TestStore_MutateConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	const workers = 8
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			coll := s.Collection("counters")

			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := Mutate(ctx, coll, "n", func(cur *counter) (*counter, error) {
						if cur == nil {
							cur = &counter{ID: "n"}
						}
						cur.Value++
						return cur, nil
					})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			got, err := Get[counter](ctx, coll, "n")
			require.NoError(t, err)
			assert.Equal(t, workers, got.Value)
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "cassandra"})
	assert.Error(t, err)
}
