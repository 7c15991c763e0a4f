// internal/common/database/mongo.go
package database

import (
	"context"
	"fmt"
	"time"

	"eservices-portal/internal/common/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoClient wraps the MongoDB client and database handle
type MongoClient struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongo creates a new MongoDB client
func NewMongo(ctx context.Context, cfg config.MongoConfig) (*MongoClient, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	cl, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongo: %w", err)
	}

	return &MongoClient{
		Client:   cl,
		Database: cl.Database(cfg.Database),
	}, nil
}

// Ping tests the MongoDB connection
func (c *MongoClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping failed: %w", err)
	}
	return nil
}

// Close disconnects the MongoDB client
func (c *MongoClient) Close(ctx context.Context) error {
	if c.Client != nil {
		return c.Client.Disconnect(ctx)
	}
	return nil
}

// Collection returns a handle to the named collection
func (c *MongoClient) Collection(name string) *mongo.Collection {
	return c.Database.Collection(name)
}
