package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/srm-service/internal/core/port"
)

const (
	defaultRateLimitPrefix = "srm:ratelimit"
	maxAdmitAttempts       = 3
)

// RateLimitStore keeps sliding-window request timestamps in Redis sorted sets.
type RateLimitStore struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)

// NewRateLimitStore constructs a store. Keys expire after ttl of inactivity.
func NewRateLimitStore(client *red.Client, keyPrefix string, ttl time.Duration) *RateLimitStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}
	return &RateLimitStore{client: client, prefix: prefix, ttl: ttl}
}

// Admit counts the requests of key inside the window ending at now and records now when fewer
// than limit are present. The read runs under WATCH and the trim and record run in MULTI, so a
// concurrent writer forces a retry instead of a double admission.
func (s *RateLimitStore) Admit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (port.RateWindow, error) {
	if window <= 0 || limit <= 0 {
		return port.RateWindow{}, errors.New("rate limit window and limit must be positive")
	}

	fullKey := s.key(key)
	lower := strconv.FormatInt(now.Add(-window).UnixNano(), 10)
	nanos := now.UnixNano()

	var result port.RateWindow
	admit := func(tx *red.Tx) error {
		count, err := tx.ZCount(ctx, fullKey, lower, "+inf").Result()
		if err != nil {
			return fmt.Errorf("count attempts: %w", err)
		}
		oldest, err := oldestAttempt(ctx, tx, fullKey, lower)
		if err != nil {
			return err
		}

		result = port.RateWindow{Count: int(count), Oldest: oldest}
		if int(count) < limit {
			result.Admitted = true
			result.Count++
			if oldest.IsZero() {
				result.Oldest = time.Unix(0, nanos)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe red.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, fullKey, "-inf", "("+lower)
			if result.Admitted {
				pipe.ZAdd(ctx, fullKey, red.Z{Score: float64(nanos), Member: nanos})
			}
			if s.ttl > 0 {
				pipe.Expire(ctx, fullKey, s.ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxAdmitAttempts; attempt++ {
		err := s.client.Watch(ctx, admit, fullKey)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, red.TxFailedErr) {
			return port.RateWindow{}, fmt.Errorf("redis admit rate limit: %w", err)
		}
	}
	return port.RateWindow{}, fmt.Errorf("redis admit rate limit: %w", red.TxFailedErr)
}

func oldestAttempt(ctx context.Context, tx *red.Tx, key, lower string) (time.Time, error) {
	values, err := tx.ZRangeByScore(ctx, key, &red.ZRangeBy{Min: lower, Max: "+inf", Count: 1}).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("oldest attempt: %w", err)
	}
	if len(values) == 0 {
		return time.Time{}, nil
	}
	nanos, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse rate limit timestamp: %w", err)
	}
	return time.Unix(0, nanos), nil
}

func (s *RateLimitStore) key(identifier string) string {
	return fmt.Sprintf("%s:%s", s.prefix, identifier)
}
