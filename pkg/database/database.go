// Package database is the document store behind every service: named
// collections of documents keyed by string id. Four drivers share the
// Collection contract: SQLite (default), bbolt, PostgreSQL and MongoDB.
package database

import (
	"context"
	"errors"
	"fmt"

	"socialhub/internal/common"
)

// Collection names.
const (
	Users         = "users"
	Usernames     = "usernames"
	Relationships = "relationships"
	Posts         = "posts"
	Messages      = "messages"
)

// Decoder fills dst with the current document.
type Decoder func(dst any) error

// UpdateFunc receives the current document (found=false when absent) and
// returns its replacement. A nil replacement deletes the document. Returning
// an error aborts the update and leaves the document untouched.
type UpdateFunc func(decode Decoder, found bool) (any, error)

// Collection is a set of documents keyed by id.
type Collection interface {
	// Get decodes the document into dst or returns common.ErrorNotFound.
	Get(ctx context.Context, id string, dst any) error
	// Put inserts or replaces the document.
	Put(ctx context.Context, id string, doc any) error
	// Delete removes the document; deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	// ForEach visits every document ordered by id.
	ForEach(ctx context.Context, fn func(id string, decode Decoder) error) error
	// Update performs an atomic read-modify-write of one document. It returns
	// common.ErrorConflict when a concurrent writer won the race.
	Update(ctx context.Context, id string, fn UpdateFunc) error
}

type Store interface {
	Collection(name string) Collection
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Options configures Open.
type Options struct {
	Driver string
	// URL is a file path for sqlite and bolt, a DSN for postgres and a
	// connection URI for mongo.
	URL string
	// MongoDatabase names the database used by the mongo driver.
	MongoDatabase string
}

func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return OpenSQLite(opts.URL)
	case DriverBolt:
		return OpenBolt(opts.URL)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.URL)
	case DriverMongo:
		return OpenMongo(ctx, opts.URL, opts.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}

const maxUpdateAttempts = 10

// Get loads one document.
func Get[T any](ctx context.Context, c Collection, id string) (*T, error) {
	v := new(T)
	if err := c.Get(ctx, id, v); err != nil {
		return nil, err
	}
	return v, nil
}

// List decodes every document of the collection accepted by keep. A nil keep
// accepts everything.
func List[T any](ctx context.Context, c Collection, keep func(*T) bool) ([]*T, error) {
	var out []*T
	err := c.ForEach(ctx, func(id string, decode Decoder) error {
		v := new(T)
		if err := decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", id, err)
		}
		if keep == nil || keep(v) {
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// Mutate runs fn as an atomic read-modify-write of document id and retries it
// when a concurrent writer wins. fn gets nil when the document does not exist
// and may run more than once, so it must not have side effects. The returned
// value is what was stored (nil when the document was deleted).
func Mutate[T any](ctx context.Context, c Collection, id string, fn func(cur *T) (*T, error)) (*T, error) {
	var stored *T
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := c.Update(ctx, id, func(decode Decoder, found bool) (any, error) {
			var cur *T
			if found {
				cur = new(T)
				if err := decode(cur); err != nil {
					return nil, fmt.Errorf("decode %s: %w", id, err)
				}
			}
			next, err := fn(cur)
			if err != nil {
				return nil, err
			}
			stored = next
			if next == nil {
				return nil, nil
			}
			return next, nil
		})
		if errors.Is(err, common.ErrorConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return stored, nil
	}
	return nil, common.ErrorConflict
}
