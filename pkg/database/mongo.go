package database

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"socialhub/internal/common"
)

// envelope wraps every stored document with a revision counter used for
// optimistic concurrency in Update.
type envelope struct {
	ID  string   `bson:"_id"`
	Rev int64    `bson:"rev"`
	Doc bson.Raw `bson:"doc"`
}

type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if database == "" {
		database = "socialhub"
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Collection(name string) Collection {
	return &mongoCollection{c: s.db.Collection(name)}
}

// Migrate is a no-op: collections are created on first write and only the
// _id index is needed.
func (s *MongoStore) Migrate(ctx context.Context) error {
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

type mongoCollection struct {
	c *mongo.Collection
}

func (c *mongoCollection) Get(ctx context.Context, id string, dst any) error {
	var env envelope
	if err := c.c.FindOne(ctx, bson.M{"_id": id}).Decode(&env); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return bson.Unmarshal(env.Doc, dst)
}

func (c *mongoCollection) Put(ctx context.Context, id string, doc any) error {
	_, err := c.c.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"doc": doc}, "$inc": bson.M{"rev": 1}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (c *mongoCollection) Delete(ctx context.Context, id string) error {
	if _, err := c.c.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (c *mongoCollection) ForEach(ctx context.Context, fn func(id string, decode Decoder) error) error {
	cur, err := c.c.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	var envs []envelope
	if err := cur.All(ctx, &envs); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, env := range envs {
		raw := env.Doc
		if err := fn(env.ID, func(dst any) error { return bson.Unmarshal(raw, dst) }); err != nil {
			return err
		}
	}
	return nil
}

// Update compares the revision it read with the stored one and reports
// common.ErrorConflict when another writer got there first.
func (c *mongoCollection) Update(ctx context.Context, id string, fn UpdateFunc) error {
	var env envelope
	found := true
	if err := c.c.FindOne(ctx, bson.M{"_id": id}).Decode(&env); err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("db error: %w", err)
		}
		found = false
	}

	next, err := fn(func(dst any) error { return bson.Unmarshal(env.Doc, dst) }, found)
	if err != nil {
		return err
	}

	switch {
	case next == nil && !found:
		return nil
	case next == nil:
		res, err := c.c.DeleteOne(ctx, bson.M{"_id": id, "rev": env.Rev})
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if res.DeletedCount == 0 {
			return common.ErrorConflict
		}
		return nil
	case !found:
		_, err := c.c.InsertOne(ctx, bson.M{"_id": id, "rev": int64(1), "doc": next})
		if mongo.IsDuplicateKeyError(err) {
			return common.ErrorConflict
		}
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	default:
		res, err := c.c.UpdateOne(ctx,
			bson.M{"_id": id, "rev": env.Rev},
			bson.M{"$set": bson.M{"doc": next, "rev": env.Rev + 1}})
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if res.MatchedCount == 0 {
			return common.ErrorConflict
		}
		return nil
	}
}
