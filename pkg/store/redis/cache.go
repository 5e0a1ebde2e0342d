package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/osmon/pkg/engine"
)

// ViewKey holds the JSON of the latest applied View.
const ViewKey = KeyPrefix + "view:latest"

// ViewCache stores the latest View in Redis so a restarted daemon, or a
// second one pointed at the same backend, can serve it before its first poll.
type ViewCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewViewCache creates a cache. A ttl of zero keeps the View until it is
// overwritten.
func NewViewCache(client redis.UniversalClient, ttl time.Duration) *ViewCache {
	return &ViewCache{client: client, ttl: ttl}
}

func (c *ViewCache) Save(ctx context.Context, v engine.View) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal view: %w", err)
	}
	if err := c.client.Set(ctx, ViewKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save view: %w", err)
	}
	return nil
}

// Load returns the cached View, or false when there is none.
func (c *ViewCache) Load(ctx context.Context) (engine.View, bool, error) {
	data, err := c.client.Get(ctx, ViewKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return engine.View{}, false, nil
		}
		return engine.View{}, false, fmt.Errorf("failed to load view: %w", err)
	}
	var v engine.View
	if err := json.Unmarshal(data, &v); err != nil {
		return engine.View{}, false, fmt.Errorf("failed to decode cached view: %w", err)
	}
	return v, true, nil
}

var _ engine.ViewCache = (*ViewCache)(nil)
