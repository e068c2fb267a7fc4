// Package mongodb owns the document store connection and collection
// accessors shared by the memory stores and HTTP handlers.
package mongodb

import (
	"context"
	"fmt"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	CollAgents        = "agents"
	CollConversations = "conversations"
	CollMemories      = "memories"

	connectTimeout = 10 * time.Second
)

// Client wraps the driver client with the application database handle.
type Client struct {
	client *mongodriver.Client
	db     *mongodriver.Database
	logger *zap.Logger
}

// Connect establishes the connection and verifies it with a ping.
func Connect(ctx context.Context, uri, database string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	logger.Info("MongoDB connected",
		zap.String("database", database),
	)

	return &Client{
		client: client,
		db:     client.Database(database),
		logger: logger,
	}, nil
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from the server.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Database returns the application database handle.
func (c *Client) Database() *mongodriver.Database {
	return c.db
}

// Agents returns the agents collection.
func (c *Client) Agents() *mongodriver.Collection {
	return c.db.Collection(CollAgents)
}

// Conversations returns the conversations collection.
func (c *Client) Conversations() *mongodriver.Collection {
	return c.db.Collection(CollConversations)
}

// Memories returns the memories collection.
func (c *Client) Memories() *mongodriver.Collection {
	return c.db.Collection(CollMemories)
}
