package redis

import (
	"context"
	"fmt"

	redisclient "github.com/go-redis/redis/v8"
	"github.com/sta1300/notifier-backend/internal/config"
	"github.com/sta1300/notifier-backend/internal/logging"
)

//Connect Connects to Redis database db and checks the connection.
func Connect(ctx context.Context, conf config.RedisConfig, db int) (*redisclient.Client, error) {
	logger := logging.FromContext(ctx).Named("redis.Connect")

	logger.Debugf("Connecting to Redis at %v, db %v", conf.Addr, db)

	client := redisclient.NewClient(&redisclient.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Connection to Redis failed: %w", err)
	}

	logger.Debugf("Connected to Redis at %v", conf.Addr)

	return client, nil
}
