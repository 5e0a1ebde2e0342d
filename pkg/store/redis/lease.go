// Package redis shares daemon state through Redis: the maintenance lease
// and the latest View.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/osmon/pkg/store"
)

// KeyPrefix namespaces every key osmon writes.
const KeyPrefix = "osmon:"

// acquireScript takes the lease when it is free or already ours.
var acquireScript = redis.NewScript(`
	local cur = redis.call("GET", KEYS[1])
	if cur == false or cur == ARGV[1] then
		redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
		return 1
	end
	return 0
`)

var renewScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// LeaseStore keeps leases as plain keys with a PX expiry.
type LeaseStore struct {
	client redis.UniversalClient
}

func NewLeaseStore(client redis.UniversalClient) *LeaseStore {
	return &LeaseStore{client: client}
}

func leaseKey(name string) string {
	return KeyPrefix + "lease:" + name
}

func (s *LeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	n, err := acquireScript.Run(ctx, s.client, []string{leaseKey(name)}, holderID, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return n == 1, nil
}

func (s *LeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	n, err := renewScript.Run(ctx, s.client, []string{leaseKey(name)}, holderID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to renew lease %s: %w", name, err)
	}
	if n != 1 {
		return store.ErrLeaseLost
	}
	return nil
}

// Release is a no-op when the lease is held by someone else or already gone.
func (s *LeaseStore) Release(ctx context.Context, name, holderID string) error {
	if err := releaseScript.Run(ctx, s.client, []string{leaseKey(name)}, holderID).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

func (s *LeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	key := leaseKey(name)
	holder, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lease %s: %w", name, err)
	}
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get lease ttl %s: %w", name, err)
	}
	return &store.Lease{
		Name:      name,
		HolderID:  holder,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

var _ store.LeaseStore = (*LeaseStore)(nil)
