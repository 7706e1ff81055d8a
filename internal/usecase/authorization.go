package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/core/port"
	"github.com/arklim/srm-service/internal/repository"
)

const defaultAuthorizationCacheTTL = 5 * time.Minute

// AuthorizationService builds the authorization payload issued with a session.
type AuthorizationService struct {
	catalog     port.PermissionCatalog
	memberships port.MembershipRepository
	users       port.UserRepository
	cache       port.AuthorizationCache
	cacheTTL    time.Duration
	logger      *zap.Logger
	builds      singleflight.Group
}

// NewAuthorizationService constructs an AuthorizationService.
func NewAuthorizationService(catalog port.PermissionCatalog, memberships port.MembershipRepository, users port.UserRepository, logger *zap.Logger) *AuthorizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationService{
		catalog:     catalog,
		memberships: memberships,
		users:       users,
		cacheTTL:    defaultAuthorizationCacheTTL,
		logger:      logger,
	}
}

// WithCache enables payload caching for BuildForUserID.
func (s *AuthorizationService) WithCache(cache port.AuthorizationCache, ttl time.Duration) *AuthorizationService {
	s.cache = cache
	if ttl > 0 {
		s.cacheTTL = ttl
	}
	return s
}

// BuildAuthorizationPayload composes functions, functional permissions and active
// purchasing-group memberships for an authenticated user.
func (s *AuthorizationService) BuildAuthorizationPayload(ctx context.Context, user domain.User) (domain.AuthorizationPayload, error) {
	ctx, span := tracer().Start(ctx, "AuthorizationService.BuildAuthorizationPayload")
	defer span.End()

	userID := strings.TrimSpace(user.ID)
	if userID == "" {
		return domain.AuthorizationPayload{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	span.SetAttributes(attribute.String("user.id", userID))

	functionalPermissions := lo.FlatMap(user.Functions, func(function string, _ int) []string {
		return s.catalog.FunctionPermissions(function)
	})
	rolePermissions := s.catalog.RolePermissions(user.Role)

	groups, err := s.memberships.ListActiveByBuyer(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return domain.AuthorizationPayload{}, fmt.Errorf("%w: list purchasing group memberships: %w", ErrDependencyUnavailable, err)
	}

	return domain.NewAuthorizationPayload(user, rolePermissions, functionalPermissions, groups), nil
}

// BuildForUserID loads the user and returns its authorization payload, consulting the cache first.
// Concurrent builds for the same user and authorization version share one storage round-trip.
func (s *AuthorizationService) BuildForUserID(ctx context.Context, userID string) (domain.AuthorizationPayload, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.AuthorizationPayload{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	version, cacheable := s.version(ctx, userID)
	if cacheable {
		if payload, ok := s.cached(ctx, userID, version); ok {
			return payload, nil
		}
	}

	key := fmt.Sprintf("%s@%d", userID, version)
	result, err, _ := s.builds.Do(key, func() (any, error) {
		buildCtx := context.WithoutCancel(ctx)

		user, err := s.users.GetByID(buildCtx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
			}
			return nil, fmt.Errorf("%w: lookup user: %w", ErrDependencyUnavailable, err)
		}

		payload, err := s.BuildAuthorizationPayload(buildCtx, *user)
		if err != nil {
			return nil, err
		}

		if cacheable {
			s.store(buildCtx, payload, version)
		}
		return payload, nil
	})
	if err != nil {
		return domain.AuthorizationPayload{}, err
	}

	return result.(domain.AuthorizationPayload), nil
}

// InvalidateAuthorization bumps the users' authorization versions so cached payloads
// and builds already in flight are no longer served.
func (s *AuthorizationService) InvalidateAuthorization(ctx context.Context, userIDs ...string) error {
	if s.cache == nil {
		return nil
	}

	ids := lo.Uniq(lo.Compact(lo.Map(userIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})))
	if len(ids) == 0 {
		return nil
	}

	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		return fmt.Errorf("invalidate authorization cache: %w", err)
	}
	return nil
}

// version reads the user's authorization version before anything is loaded. A
// failed read disables caching for this build.
func (s *AuthorizationService) version(ctx context.Context, userID string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	version, err := s.cache.Version(ctx, userID)
	if err != nil {
		s.logger.Warn("authorization version read failed", zap.String("user_id", userID), zap.Error(err))
		return 0, false
	}
	return version, true
}

func (s *AuthorizationService) cached(ctx context.Context, userID string, version int64) (domain.AuthorizationPayload, bool) {
	payload, stamped, err := s.cache.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("authorization cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
		return domain.AuthorizationPayload{}, false
	}

	if stamped != version || payload.SchemaVersion() != domain.AuthorizationSchemaVersion || payload.UserID() != userID {
		return domain.AuthorizationPayload{}, false
	}

	return payload, true
}

func (s *AuthorizationService) store(ctx context.Context, payload domain.AuthorizationPayload, version int64) {
	err := s.cache.Set(ctx, payload, version, s.cacheTTL)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrConflict):
		s.logger.Debug("authorization changed during build, payload not cached", zap.String("user_id", payload.UserID()))
	default:
		s.logger.Warn("authorization cache write failed", zap.String("user_id", payload.UserID()), zap.Error(err))
	}
}
