package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyActiveRaces = "races:active"

// Cache guarda no Redis a lista de corridas abertas para apostas.
type Cache struct{ R *redis.Client }

func New(r *redis.Client) *Cache { return &Cache{R: r} }

func (c *Cache) GetActiveRaces(ctx context.Context, dst any) (bool, error) {
	b, err := c.R.Get(ctx, keyActiveRaces).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *Cache) SetActiveRaces(ctx context.Context, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, keyActiveRaces, b, ttl).Err()
}

// InvalidateActiveRaces apaga a lista quando uma corrida é criada ou larga.
func (c *Cache) InvalidateActiveRaces(ctx context.Context) error {
	return c.R.Del(ctx, keyActiveRaces).Err()
}
