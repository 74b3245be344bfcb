package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goRedis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/relational/internal/config"
)

// ClientName identifies cascade journal connections in CLIENT LIST.
const ClientName = "relational-cascade-journal"

// NewClient connects to the Redis instance holding the cascade journal and
// verifies it answers PING.
func NewClient(cfg config.RedisConfig, logger *zap.Logger) (*goRedis.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefix != "" && !strings.HasSuffix(cfg.Prefix, ":") {
		return nil, fmt.Errorf("redis: key prefix %q must end with ':'", cfg.Prefix)
	}

	opts, err := goRedis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.ClientName = ClientName

	client := goRedis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("connected to redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB), zap.String("prefix", cfg.Prefix))
	return client, nil
}
