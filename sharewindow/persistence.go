package sharewindow

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/kaspa-pool/stratum-core/config"
	"github.com/kaspa-pool/stratum-core/types"
)

// RedisBacklog is an optional durability layer for the Share Window,
// grounded on the teacher's storage.DB redis-pipeline style: every pushed
// Contribution is also appended to a redis list, so undrained shares
// outlive a pool restart in redis. Nothing in this package reads the list
// back: after a restart the in-memory window starts empty. The in-memory
// FIFO remains authoritative; this is a backlog, not the source of truth.
type RedisBacklog struct {
	client *redis.Client
	key    string
}

func NewRedisBacklog(opts *config.RedisOptions, key string) *RedisBacklog {
	return &RedisBacklog{
		client: redis.NewClient(opts.ToRedisOptions()),
		key:    key,
	}
}

// Append pushes one Contribution onto the backlog list. Failures are
// returned to the caller, which logs and continues per §7's "background
// tasks log and continue on recoverable errors" policy — persistence
// failure must never block share crediting.
func (b *RedisBacklog) Append(ctx context.Context, c types.Contribution) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return b.client.RPush(ctx, b.key, raw).Err()
}

// TrimDrained removes the oldest n entries from the backlog, called after
// the in-memory window has drained the same prefix.
func (b *RedisBacklog) TrimDrained(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	return b.client.LTrim(ctx, b.key, n, -1).Err()
}

func (b *RedisBacklog) Close() error {
	return b.client.Close()
}
