package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

var mongoNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newMongoCache(mt *mtest.T) *MongoCache {
	c := NewMongoCache(mt.Coll)
	c.now = func() time.Time { return mongoNow }
	return c
}

func TestMongoCache_StoreRefresh(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upserts with expiry", func(mt *mtest.T) {
		cache := newMongoCache(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(1)}))

		require.NoError(mt, cache.StoreRefresh(context.Background(), "u1", "r1", time.Hour))

		cmd := mt.GetStartedEvent().Command
		assert.Equal(mt, "refresh_token:u1", cmd.Lookup("updates", "0", "q", "_id").StringValue())
		assert.True(mt, cmd.Lookup("updates", "0", "upsert").Boolean())
		assert.Equal(mt, "r1", cmd.Lookup("updates", "0", "u", "value").StringValue())
		assert.True(mt, mongoNow.Add(time.Hour).Equal(cmd.Lookup("updates", "0", "u", "expiresAt").Time()))
	})

	mt.Run("non-positive ttl never reaches the server", func(mt *mtest.T) {
		cache := newMongoCache(mt)
		assert.ErrorIs(mt, cache.StoreRefresh(context.Background(), "u1", "r1", 0), ErrInvalidTTL)
		assert.Empty(mt, mt.GetAllStartedEvents())
	})
}

func TestMongoCache_FetchRefresh(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("current token", func(mt *mtest.T) {
		cache := newMongoCache(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "auth.sessions", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "refresh_token:u1"},
			{Key: "value", Value: "r1"},
			{Key: "expiresAt", Value: mongoNow.Add(time.Hour)},
		}))

		got, err := cache.FetchRefresh(context.Background(), "u1")
		require.NoError(mt, err)
		assert.Equal(mt, "r1", got)

		// documents the TTL monitor has not reaped yet are filtered out
		cmd := mt.GetStartedEvent().Command
		assert.True(mt, mongoNow.Equal(cmd.Lookup("filter", "expiresAt", "$gt").Time()))
	})

	mt.Run("missing token is empty", func(mt *mtest.T) {
		cache := newMongoCache(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "auth.sessions", mtest.FirstBatch))

		got, err := cache.FetchRefresh(context.Background(), "u1")
		require.NoError(mt, err)
		assert.Empty(mt, got)
	})

	mt.Run("server error is returned", func(mt *mtest.T) {
		cache := newMongoCache(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Name: "BadValue", Message: "bad"}))

		_, err := cache.FetchRefresh(context.Background(), "u1")
		assert.Error(mt, err)
	})
}

func TestMongoCache_Blacklist(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("revoked token is found", func(mt *mtest.T) {
		cache := newMongoCache(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "auth.sessions", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "blacklist:access-1"},
			{Key: "value", Value: "true"},
			{Key: "expiresAt", Value: mongoNow.Add(time.Minute)},
		}))

		ok, err := cache.IsRevoked(context.Background(), "access-1")
		require.NoError(mt, err)
		assert.True(mt, ok)
	})

	mt.Run("unknown token is not revoked", func(mt *mtest.T) {
		cache := newMongoCache(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "auth.sessions", mtest.FirstBatch))

		ok, err := cache.IsRevoked(context.Background(), "access-1")
		require.NoError(mt, err)
		assert.False(mt, ok)
	})

	mt.Run("expired access token is not stored", func(mt *mtest.T) {
		cache := newMongoCache(mt)
		require.NoError(mt, cache.RevokeAccess(context.Background(), "access-1", -time.Second))
		assert.Empty(mt, mt.GetAllStartedEvents())
	})

	mt.Run("drop refresh deletes by key", func(mt *mtest.T) {
		cache := newMongoCache(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(0)}))

		require.NoError(mt, cache.DropRefresh(context.Background(), "u1"))
		cmd := mt.GetStartedEvent().Command
		assert.Equal(mt, "refresh_token:u1", cmd.Lookup("deletes", "0", "q", "_id").StringValue())
	})
}
