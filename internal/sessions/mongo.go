package sessions

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type cacheEntry struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

// MongoCache implements Cache over a single collection. Expired documents
// are reaped by a TTL index; reads also compare expiresAt because the TTL
// monitor only runs about once a minute.
type MongoCache struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoCache(col *mongo.Collection) *MongoCache {
	return &MongoCache{col: col, now: time.Now}
}

// EnsureIndexes creates the TTL index on expiresAt.
func (m *MongoCache) EnsureIndexes(ctx context.Context) error {
	_, err := m.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

func (m *MongoCache) put(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := cacheEntry{Key: key, Value: value, ExpiresAt: m.now().UTC().Add(ttl)}
	_, err := m.col.ReplaceOne(ctx, bson.M{"_id": key}, entry, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoCache) get(ctx context.Context, key string) (*cacheEntry, error) {
	var e cacheEntry
	err := m.col.FindOne(ctx, bson.M{"_id": key, "expiresAt": bson.M{"$gt": m.now().UTC()}}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (m *MongoCache) StoreRefresh(ctx context.Context, userID, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return m.put(ctx, refreshKey(userID), token, ttl)
}

func (m *MongoCache) FetchRefresh(ctx context.Context, userID string) (string, error) {
	e, err := m.get(ctx, refreshKey(userID))
	if err != nil || e == nil {
		return "", err
	}
	return e.Value, nil
}

func (m *MongoCache) DropRefresh(ctx context.Context, userID string) error {
	_, err := m.col.DeleteOne(ctx, bson.M{"_id": refreshKey(userID)})
	return err
}

func (m *MongoCache) RevokeAccess(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return m.put(ctx, blacklistKey(token), "true", ttl)
}

func (m *MongoCache) IsRevoked(ctx context.Context, token string) (bool, error) {
	e, err := m.get(ctx, blacklistKey(token))
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

func (m *MongoCache) Ping(ctx context.Context) error {
	return m.col.Database().Client().Ping(ctx, nil)
}
