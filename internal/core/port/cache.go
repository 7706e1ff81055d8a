package port

import (
	"context"
	"time"

	"github.com/arklim/srm-service/internal/core/domain"
)

// AuthorizationCache stores built authorization payloads between requests.
//
// Every user has an authorization version that Invalidate bumps. Entries are
// stamped with the version they were built at: Set returns repository.ErrConflict
// when the version moved since the build started, and Get returns the stamp so
// callers can reject entries older than the current version. Get returns
// repository.ErrNotFound on a miss.
type AuthorizationCache interface {
	Version(ctx context.Context, userID string) (int64, error)
	Get(ctx context.Context, userID string) (domain.AuthorizationPayload, int64, error)
	Set(ctx context.Context, payload domain.AuthorizationPayload, version int64, ttl time.Duration) error
	Invalidate(ctx context.Context, userIDs ...string) error
}
