package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/core/port"
	"github.com/arklim/srm-service/internal/repository"
)

const defaultAuthorizationPrefix = "srm:authz"

// AuthorizationCache stores authorization payload snapshots as JSON documents next
// to a per-user version counter kept under <prefix>_version:<user>.
type AuthorizationCache struct {
	client *red.Client
	prefix string
}

type authorizationEntry struct {
	Version int64                        `json:"version"`
	Payload domain.AuthorizationSnapshot `json:"payload"`
}

var _ port.AuthorizationCache = (*AuthorizationCache)(nil)

// NewAuthorizationCache constructs a payload cache under keyPrefix.
func NewAuthorizationCache(client *red.Client, keyPrefix string) *AuthorizationCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultAuthorizationPrefix
	}
	return &AuthorizationCache{client: client, prefix: prefix}
}

// Version returns the user's current authorization version, zero when never bumped.
func (c *AuthorizationCache) Version(ctx context.Context, userID string) (int64, error) {
	key := c.versionKey(userID)
	if key == "" {
		return 0, fmt.Errorf("user id is required")
	}
	return readVersion(ctx, c.client, key)
}

// Get returns the cached payload and the version it was built at, or
// repository.ErrNotFound on a miss.
func (c *AuthorizationCache) Get(ctx context.Context, userID string) (domain.AuthorizationPayload, int64, error) {
	key := c.key(userID)
	if key == "" {
		return domain.AuthorizationPayload{}, 0, fmt.Errorf("user id is required")
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return domain.AuthorizationPayload{}, 0, repository.ErrNotFound
		}
		return domain.AuthorizationPayload{}, 0, fmt.Errorf("redis get authorization payload: %w", err)
	}

	var entry authorizationEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.AuthorizationPayload{}, 0, fmt.Errorf("decode authorization payload: %w", err)
	}
	return domain.PayloadFromSnapshot(entry.Payload), entry.Version, nil
}

// Set stores the payload for ttl, stamped with version. The write is skipped with
// repository.ErrConflict when the user's version no longer equals version.
func (c *AuthorizationCache) Set(ctx context.Context, payload domain.AuthorizationPayload, version int64, ttl time.Duration) error {
	key := c.key(payload.UserID())
	if key == "" {
		return fmt.Errorf("user id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	raw, err := json.Marshal(authorizationEntry{Version: version, Payload: payload.Snapshot()})
	if err != nil {
		return fmt.Errorf("encode authorization payload: %w", err)
	}

	versionKey := c.versionKey(payload.UserID())
	err = c.client.Watch(ctx, func(tx *red.Tx) error {
		current, err := readVersion(ctx, tx, versionKey)
		if err != nil {
			return err
		}
		if current != version {
			return repository.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe red.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		return err
	}, versionKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrConflict), errors.Is(err, red.TxFailedErr):
		return repository.ErrConflict
	default:
		return fmt.Errorf("redis set authorization payload: %w", err)
	}
}

// Invalidate bumps the version of every user and drops their cached payloads.
func (c *AuthorizationCache) Invalidate(ctx context.Context, userIDs ...string) error {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if c.key(id) != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	_, err := c.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, c.versionKey(id))
			pipe.Del(ctx, c.key(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate authorization payloads: %w", err)
	}
	return nil
}

func (c *AuthorizationCache) key(userID string) string {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.prefix, trimmed)
}

func (c *AuthorizationCache) versionKey(userID string) string {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s_version:%s", c.prefix, trimmed)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *red.StringCmd
}

func readVersion(ctx context.Context, cmd stringGetter, key string) (int64, error) {
	version, err := cmd.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get authorization version: %w", err)
	}
	return version, nil
}
