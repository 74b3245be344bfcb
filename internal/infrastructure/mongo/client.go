package mongo

import (
	"context"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/fastygo/relational/internal/config"
)

// NewClient connects to MongoDB and verifies the primary is reachable.
func NewClient(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*mongodriver.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	client, err := mongodriver.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("connected to mongo", zap.String("db", cfg.Database))
	return client, nil
}

// Close disconnects the client and logs the result.
func Close(ctx context.Context, client *mongodriver.Client, logger *zap.Logger) {
	if client == nil {
		return
	}
	if err := client.Disconnect(ctx); err != nil && logger != nil {
		logger.Warn("mongo disconnect failed", zap.Error(err))
		return
	}
	if logger != nil {
		logger.Info("mongo client closed")
	}
}
