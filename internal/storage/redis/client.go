package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/open-apime/fleet/internal/config"
)

type Client struct {
	rdb *redis.Client
	log *zap.Logger
}

func New(cfg config.RedisConfig, log *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: falha ao conectar: %w", err)
	}

	log.Info("redis: conectado com sucesso", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, log: log}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) RDB() *redis.Client {
	return c.rdb
}

// SeenSet marca chaves como vistas por um TTL usando SETNX. Serve de
// deduplicação compartilhada entre réplicas.
type SeenSet struct {
	client *Client
	prefix string
	ttl    time.Duration
}

func NewSeenSet(client *Client, prefix string, ttl time.Duration) *SeenSet {
	return &SeenSet{client: client, prefix: prefix, ttl: ttl}
}

// Seen devolve true se a chave já tinha sido marcada dentro do TTL.
func (s *SeenSet) Seen(ctx context.Context, key string) (bool, error) {
	fresh, err := s.client.rdb.SetNX(ctx, s.prefix+key, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("seen set: %w", err)
	}
	return !fresh, nil
}
