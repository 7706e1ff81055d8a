package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/repository"
)

type catalogMock struct {
	functions map[string][]string
	roles     map[string][]string
}

func (c catalogMock) FunctionPermissions(functionID string) []string {
	return c.functions[strings.ToLower(functionID)]
}

func (c catalogMock) RolePermissions(role string) []string {
	return c.roles[strings.ToLower(role)]
}

type membershipsMock struct {
	byBuyer map[string][]domain.GroupMembership
	err     error
}

func (m membershipsMock) ListActiveByBuyer(_ context.Context, buyerID string) ([]domain.GroupMembership, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byBuyer[buyerID], nil
}

type gatedMembershipsMock struct {
	mu      sync.Mutex
	groups  []domain.GroupMembership
	entered chan struct{}
	release chan struct{}
}

func newGatedMemberships(groups ...domain.GroupMembership) *gatedMembershipsMock {
	return &gatedMembershipsMock{
		groups:  groups,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

// ListActiveByBuyer reads the current memberships, then parks until release is closed.
func (m *gatedMembershipsMock) ListActiveByBuyer(ctx context.Context, _ string) ([]domain.GroupMembership, error) {
	m.mu.Lock()
	groups := append([]domain.GroupMembership(nil), m.groups...)
	m.mu.Unlock()

	select {
	case m.entered <- struct{}{}:
	default:
	}
	<-m.release

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

func (m *gatedMembershipsMock) setGroups(groups ...domain.GroupMembership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = groups
}

type cachedEntry struct {
	payload domain.AuthorizationPayload
	version int64
}

type authCacheMock struct {
	mu          sync.Mutex
	items       map[string]cachedEntry
	versions    map[string]int64
	getErr      error
	setErr      error
	versionErr  error
	lastTTL     time.Duration
	sets        int
	invalidated []string
}

func (c *authCacheMock) Version(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versionErr != nil {
		return 0, c.versionErr
	}
	return c.versions[userID], nil
}

func (c *authCacheMock) Get(_ context.Context, userID string) (domain.AuthorizationPayload, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return domain.AuthorizationPayload{}, 0, c.getErr
	}
	entry, ok := c.items[userID]
	if !ok {
		return domain.AuthorizationPayload{}, 0, repository.ErrNotFound
	}
	return entry.payload, entry.version, nil
}

func (c *authCacheMock) Set(_ context.Context, payload domain.AuthorizationPayload, version int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.lastTTL = ttl
	if c.setErr != nil {
		return c.setErr
	}
	if c.versions[payload.UserID()] != version {
		return repository.ErrConflict
	}
	if c.items == nil {
		c.items = make(map[string]cachedEntry)
	}
	c.items[payload.UserID()] = cachedEntry{payload: payload, version: version}
	return nil
}

func (c *authCacheMock) Invalidate(_ context.Context, userIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions == nil {
		c.versions = make(map[string]int64)
	}
	for _, id := range userIDs {
		c.versions[id]++
		delete(c.items, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

func (c *authCacheMock) has(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[userID]
	return ok
}

func fixtureCatalog() catalogMock {
	return catalogMock{
		functions: map[string][]string{
			"f1": {"p1", "p2"},
			"f2": {"p2", "p3"},
		},
		roles: map[string][]string{
			"admin": {domain.PermissionAdminSupplierTags},
		},
	}
}

func TestAuthorizationService_ScenarioFunctionsAndLeadership(t *testing.T) {
	memberships := membershipsMock{byBuyer: map[string][]domain.GroupMembership{
		"u1": {{ID: 4, Code: "PG-4", Name: "Packaging", MemberRole: domain.MemberRoleLead}},
	}}
	svc := NewAuthorizationService(fixtureCatalog(), memberships, nil, zaptest.NewLogger(t))

	payload, err := svc.BuildAuthorizationPayload(context.Background(), domain.User{ID: "u1", Functions: []string{"F1", "F2"}})
	if err != nil {
		t.Fatalf("BuildAuthorizationPayload returned error: %v", err)
	}

	if got := payload.FunctionalPermissions(); !reflect.DeepEqual(got, []string{"p1", "p2", "p3"}) {
		t.Fatalf("functional permissions = %v, want [p1 p2 p3]", got)
	}
	if !payload.IsPurchasingGroupLeader() {
		t.Fatalf("expected leader flag to be set")
	}
	if got := payload.Functions(); !reflect.DeepEqual(got, []string{"F1", "F2"}) {
		t.Fatalf("functions = %v, want verbatim input", got)
	}
}

func TestAuthorizationService_NoMembershipsIsValid(t *testing.T) {
	svc := NewAuthorizationService(fixtureCatalog(), membershipsMock{}, nil, zaptest.NewLogger(t))

	payload, err := svc.BuildAuthorizationPayload(context.Background(), domain.User{ID: "u2", Functions: []string{"f1"}})
	if err != nil {
		t.Fatalf("BuildAuthorizationPayload returned error: %v", err)
	}
	groups := payload.PurchasingGroups()
	if groups == nil || len(groups) != 0 {
		t.Fatalf("expected empty non-nil groups, got %#v", groups)
	}
	if payload.IsPurchasingGroupLeader() {
		t.Fatalf("leader flag must be false without memberships")
	}
}

func TestAuthorizationService_LeaderOnlyFromLeadRole(t *testing.T) {
	memberships := membershipsMock{byBuyer: map[string][]domain.GroupMembership{
		"member": {{ID: 2, MemberRole: domain.MemberRoleMember}, {ID: 1, MemberRole: "viewer"}},
		"lead":   {{ID: 3, MemberRole: domain.MemberRoleMember}, {ID: 1, MemberRole: "LEAD"}},
	}}
	svc := NewAuthorizationService(fixtureCatalog(), memberships, nil, zaptest.NewLogger(t))

	member, err := svc.BuildAuthorizationPayload(context.Background(), domain.User{ID: "member"})
	if err != nil {
		t.Fatalf("BuildAuthorizationPayload returned error: %v", err)
	}
	if member.IsPurchasingGroupLeader() {
		t.Fatalf("member without lead role reported as leader")
	}
	if groups := member.PurchasingGroups(); groups[0].ID != 1 || groups[1].ID != 2 {
		t.Fatalf("groups not ordered by id: %+v", groups)
	}

	lead, err := svc.BuildAuthorizationPayload(context.Background(), domain.User{ID: "lead"})
	if err != nil {
		t.Fatalf("BuildAuthorizationPayload returned error: %v", err)
	}
	if !lead.IsPurchasingGroupLeader() {
		t.Fatalf("lead role should set leader flag")
	}
}

func TestAuthorizationService_MembershipFailureIsDependencyUnavailable(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewAuthorizationService(fixtureCatalog(), membershipsMock{err: boom}, nil, zaptest.NewLogger(t))

	_, err := svc.BuildAuthorizationPayload(context.Background(), domain.User{ID: "u1", Functions: []string{"f1"}})
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}

func TestAuthorizationService_RequiresUserID(t *testing.T) {
	svc := NewAuthorizationService(fixtureCatalog(), membershipsMock{}, nil, zaptest.NewLogger(t))
	if _, err := svc.BuildAuthorizationPayload(context.Background(), domain.User{ID: " "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAuthorizationService_RolePermissionsAreEffective(t *testing.T) {
	svc := NewAuthorizationService(fixtureCatalog(), membershipsMock{}, nil, zaptest.NewLogger(t))

	payload, err := svc.BuildAuthorizationPayload(context.Background(), domain.User{ID: "a1", Role: "Admin", Functions: []string{"f1"}})
	if err != nil {
		t.Fatalf("BuildAuthorizationPayload returned error: %v", err)
	}
	if !payload.HasPermission(domain.PermissionAdminSupplierTags) {
		t.Fatalf("expected role permission in effective set: %v", payload.Permissions())
	}
	for _, permission := range payload.FunctionalPermissions() {
		if permission == domain.PermissionAdminSupplierTags {
			t.Fatalf("role permission leaked into functional permissions")
		}
	}
}

func TestAuthorizationService_BuildForUserIDUsesCache(t *testing.T) {
	store := newRelationStoreMock()
	store.users["u1"] = domain.User{ID: "u1", Name: "Uma", Functions: []string{"f1"}}
	users := &usersMock{store: store}
	cache := &authCacheMock{}
	svc := NewAuthorizationService(fixtureCatalog(), membershipsMock{}, users, zaptest.NewLogger(t)).
		WithCache(cache, time.Minute)

	first, err := svc.BuildForUserID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BuildForUserID returned error: %v", err)
	}
	second, err := svc.BuildForUserID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BuildForUserID returned error: %v", err)
	}

	if users.callCount() != 1 {
		t.Fatalf("expected one user lookup, got %d", users.callCount())
	}
	if cache.lastTTL != time.Minute {
		t.Fatalf("cache ttl = %v, want 1m", cache.lastTTL)
	}
	if !reflect.DeepEqual(first.Snapshot(), second.Snapshot()) {
		t.Fatalf("cached payload differs from built payload")
	}

	if err := svc.InvalidateAuthorization(context.Background(), " u1 ", "u1", ""); err != nil {
		t.Fatalf("InvalidateAuthorization returned error: %v", err)
	}
	if !reflect.DeepEqual(cache.invalidated, []string{"u1"}) {
		t.Fatalf("invalidated users = %v, want [u1]", cache.invalidated)
	}
	if _, err := svc.BuildForUserID(context.Background(), "u1"); err != nil {
		t.Fatalf("BuildForUserID returned error: %v", err)
	}
	if users.callCount() != 2 {
		t.Fatalf("expected rebuild after invalidation, got %d lookups", users.callCount())
	}
}

func TestAuthorizationService_CacheFailuresAreNotFatal(t *testing.T) {
	store := newRelationStoreMock()
	store.users["u1"] = domain.User{ID: "u1"}
	cache := &authCacheMock{getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	svc := NewAuthorizationService(fixtureCatalog(), membershipsMock{}, &usersMock{store: store}, zaptest.NewLogger(t)).
		WithCache(cache, 0)

	payload, err := svc.BuildForUserID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BuildForUserID returned error: %v", err)
	}
	if payload.UserID() != "u1" {
		t.Fatalf("unexpected payload user %q", payload.UserID())
	}
	if cache.lastTTL != defaultAuthorizationCacheTTL {
		t.Fatalf("expected default ttl, got %v", cache.lastTTL)
	}
}

func TestAuthorizationService_BuildForUserIDErrors(t *testing.T) {
	store := newRelationStoreMock()
	svc := NewAuthorizationService(fixtureCatalog(), membershipsMock{}, &usersMock{store: store}, zaptest.NewLogger(t))

	if _, err := svc.BuildForUserID(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	failing := NewAuthorizationService(fixtureCatalog(), membershipsMock{}, &usersMock{store: store, err: errors.New("timeout")}, zaptest.NewLogger(t))
	if _, err := failing.BuildForUserID(context.Background(), "u1"); !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
}

func TestAuthorizationService_ConcurrentBuildsShareLookup(t *testing.T) {
	store := newRelationStoreMock()
	store.users["u1"] = domain.User{ID: "u1"}
	users := &usersMock{store: store, delay: 50 * time.Millisecond}
	svc := NewAuthorizationService(fixtureCatalog(), membershipsMock{}, users, zaptest.NewLogger(t))

	const callers = 5
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := svc.BuildForUserID(context.Background(), "u1"); err != nil {
				t.Errorf("BuildForUserID returned error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := users.callCount(); got >= callers {
		t.Fatalf("expected concurrent builds to share lookups, got %d lookups", got)
	}
}

func TestAuthorizationService_VersionReadFailureSkipsCache(t *testing.T) {
	store := newRelationStoreMock()
	store.users["u1"] = domain.User{ID: "u1"}
	cache := &authCacheMock{versionErr: errors.New("redis down")}
	svc := NewAuthorizationService(fixtureCatalog(), membershipsMock{}, &usersMock{store: store}, zaptest.NewLogger(t)).
		WithCache(cache, time.Minute)

	if _, err := svc.BuildForUserID(context.Background(), "u1"); err != nil {
		t.Fatalf("BuildForUserID returned error: %v", err)
	}
	if cache.sets != 0 {
		t.Fatalf("payload cached without a known version: %d sets", cache.sets)
	}
}

func TestAuthorizationService_StaleVersionEntryIsRebuilt(t *testing.T) {
	store := newRelationStoreMock()
	store.users["u1"] = domain.User{ID: "u1"}
	users := &usersMock{store: store}
	cache := &authCacheMock{
		items: map[string]cachedEntry{
			"u1": {payload: domain.NewAuthorizationPayload(domain.User{ID: "u1"}, nil, nil, []domain.GroupMembership{{ID: 1, MemberRole: domain.MemberRoleLead}}), version: 1},
		},
		versions: map[string]int64{"u1": 2},
	}
	svc := NewAuthorizationService(fixtureCatalog(), membershipsMock{}, users, zaptest.NewLogger(t)).
		WithCache(cache, time.Minute)

	payload, err := svc.BuildForUserID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("BuildForUserID returned error: %v", err)
	}
	if payload.IsPurchasingGroupLeader() {
		t.Fatalf("entry stamped with an old version was served")
	}
	if users.callCount() != 1 {
		t.Fatalf("expected a rebuild, got %d lookups", users.callCount())
	}
}

func TestAuthorizationService_InvalidationDuringBuildIsNotCached(t *testing.T) {
	store := newRelationStoreMock()
	store.users["u1"] = domain.User{ID: "u1"}
	memberships := newGatedMemberships(domain.GroupMembership{ID: 1, Code: "G", Name: "G", MemberRole: domain.MemberRoleLead})
	cache := &authCacheMock{}
	svc := NewAuthorizationService(fixtureCatalog(), memberships, &usersMock{store: store}, zaptest.NewLogger(t)).
		WithCache(cache, time.Minute)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.BuildForUserID(ctx, "u1")
		done <- err
	}()

	<-memberships.entered
	memberships.setGroups()
	if err := svc.InvalidateAuthorization(ctx, "u1"); err != nil {
		t.Fatalf("InvalidateAuthorization returned error: %v", err)
	}
	close(memberships.release)
	if err := <-done; err != nil {
		t.Fatalf("BuildForUserID returned error: %v", err)
	}

	if cache.has("u1") {
		t.Fatalf("payload read before the invalidation was cached")
	}

	payload, err := svc.BuildForUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("BuildForUserID returned error: %v", err)
	}
	if payload.IsPurchasingGroupLeader() || len(payload.PurchasingGroups()) != 0 {
		t.Fatalf("revoked lead still served: leader=%v groups=%v", payload.IsPurchasingGroupLeader(), payload.PurchasingGroups())
	}
	if !cache.has("u1") {
		t.Fatalf("expected the fresh payload to be cached")
	}
}

func TestAuthorizationService_SharedBuildSurvivesCallerCancellation(t *testing.T) {
	store := newRelationStoreMock()
	store.users["u1"] = domain.User{ID: "u1"}
	memberships := newGatedMemberships()
	svc := NewAuthorizationService(fixtureCatalog(), memberships, &usersMock{store: store}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.BuildForUserID(ctx, "u1")
		done <- err
	}()

	<-memberships.entered
	cancel()
	close(memberships.release)

	if err := <-done; err != nil {
		t.Fatalf("shared build failed after the leading caller was cancelled: %v", err)
	}
}
