package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zoldnode/internal/score"
	"zoldnode/internal/wallet"
)

const redisKeyPrefix = "zold:wallet:"

// Redis is a replica cache holding the latest pushed text of each wallet.
// It takes part in reconciliation like any other remote, with a fixed score.
type Redis struct {
	client *redis.Client
	addr   string
	score  score.Score
	ttl    time.Duration
}

// NewRedis connects lazily; ttl 0 keeps entries forever.
func NewRedis(addr, password string, db int, s score.Score, ttl time.Duration) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: rdb, addr: addr, score: s, ttl: ttl}
}

func redisKey(id uint64) string {
	return fmt.Sprintf("%s%016x", redisKeyPrefix, id)
}

func (r *Redis) Name() string {
	return "redis://" + r.addr
}

func (r *Redis) Score() score.Score {
	return r.score
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Push(ctx context.Context, w wallet.Wallet) error {
	text, err := wallet.Marshal(w)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKey(w.ID), text, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis push %016x: %w", w.ID, err)
	}
	return nil
}

func (r *Redis) Pull(ctx context.Context, id uint64) (wallet.Wallet, error) {
	text, err := r.client.Get(ctx, redisKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return wallet.Wallet{}, fmt.Errorf("%w: %016x on %s", ErrNotFound, id, r.Name())
	}
	if err != nil {
		return wallet.Wallet{}, fmt.Errorf("redis pull %016x: %w", id, err)
	}
	w, err := wallet.Unmarshal(text)
	if err != nil {
		return wallet.Wallet{}, fmt.Errorf("redis pull %016x: %w", id, err)
	}
	return w, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
