package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	mongoAppName        = "auth-service"
	defaultMongoTimeout = 10 * time.Second
)

func mongoClientOptions(uri string, timeout time.Duration) *options.ClientOptions {
	return options.Client().
		ApplyURI(uri).
		SetAppName(mongoAppName).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)
}

// ConnectMongo connects to uri and checks the primary answers within
// timeout. The caller owns the returned client and must Disconnect it.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}
	opts := mongoClientOptions(uri, timeout)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("mongo options: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}
