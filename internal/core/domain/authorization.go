package domain

import (
	"sort"
	"strings"
)

// AuthorizationSchemaVersion identifies the shape of AuthorizationPayload snapshots.
const AuthorizationSchemaVersion = "v1"

// AuthorizationPayload is the immutable session authorization artifact for a user.
// Every accessor returns a copy, so callers cannot mutate a payload once built.
type AuthorizationPayload struct {
	schemaVersion         string
	userID                string
	name                  string
	role                  string
	functions             []string
	permissions           []string
	functionalPermissions []string
	purchasingGroups      []GroupMembership
	isLeader              bool
}

// AuthorizationSnapshot is the exported, serialisable form of a payload.
type AuthorizationSnapshot struct {
	SchemaVersion           string            `json:"schemaVersion"`
	ID                      string            `json:"id"`
	Name                    string            `json:"name"`
	Role                    string            `json:"role"`
	Functions               []string          `json:"functions"`
	Permissions             []string          `json:"permissions"`
	FunctionalPermissions   []string          `json:"functionalPermissions"`
	PurchasingGroups        []GroupMembership `json:"purchasingGroups"`
	IsPurchasingGroupLeader bool              `json:"isPurchasingGroupLeader"`
}

// NewAuthorizationPayload composes a payload. Permission sets are deduplicated and sorted,
// groups are ordered by id and the leader flag is derived from the groups.
// The effective permission set is the role permissions plus the functional permissions.
func NewAuthorizationPayload(user User, rolePermissions, functionalPermissions []string, groups []GroupMembership) AuthorizationPayload {
	payload := AuthorizationPayload{
		schemaVersion:         AuthorizationSchemaVersion,
		userID:                user.ID,
		name:                  user.Name,
		role:                  user.Role,
		functions:             append(make([]string, 0, len(user.Functions)), user.Functions...),
		permissions:           normalizePermissions(append(append([]string{}, rolePermissions...), functionalPermissions...)),
		functionalPermissions: normalizePermissions(functionalPermissions),
		purchasingGroups:      append(make([]GroupMembership, 0, len(groups)), groups...),
	}

	sort.SliceStable(payload.purchasingGroups, func(i, j int) bool {
		return payload.purchasingGroups[i].ID < payload.purchasingGroups[j].ID
	})

	for _, group := range payload.purchasingGroups {
		if group.IsLead() {
			payload.isLeader = true
			break
		}
	}

	return payload
}

// PayloadFromSnapshot rebuilds a payload from a cached snapshot, re-deriving the invariants.
func PayloadFromSnapshot(snapshot AuthorizationSnapshot) AuthorizationPayload {
	payload := NewAuthorizationPayload(User{
		ID:        snapshot.ID,
		Name:      snapshot.Name,
		Role:      snapshot.Role,
		Functions: snapshot.Functions,
	}, snapshot.Permissions, snapshot.FunctionalPermissions, snapshot.PurchasingGroups)
	if snapshot.SchemaVersion != "" {
		payload.schemaVersion = snapshot.SchemaVersion
	}
	return payload
}

func normalizePermissions(permissions []string) []string {
	seen := make(map[string]struct{}, len(permissions))
	result := make([]string, 0, len(permissions))
	for _, permission := range permissions {
		trimmed := strings.TrimSpace(permission)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, trimmed)
	}
	sort.Strings(result)
	return result
}

// SchemaVersion returns the payload schema version.
func (p AuthorizationPayload) SchemaVersion() string { return p.schemaVersion }

// UserID returns the id of the user the payload was built for.
func (p AuthorizationPayload) UserID() string { return p.userID }

// Name returns the display name of the user.
func (p AuthorizationPayload) Name() string { return p.name }

// Role returns the user's base role.
func (p AuthorizationPayload) Role() string { return p.role }

// Functions returns the functions the payload was built from.
func (p AuthorizationPayload) Functions() []string {
	return append(make([]string, 0, len(p.functions)), p.functions...)
}

// Permissions returns the sorted effective permission set.
func (p AuthorizationPayload) Permissions() []string {
	return append(make([]string, 0, len(p.permissions)), p.permissions...)
}

// FunctionalPermissions returns the sorted permission set granted by functions.
func (p AuthorizationPayload) FunctionalPermissions() []string {
	return append(make([]string, 0, len(p.functionalPermissions)), p.functionalPermissions...)
}

// PurchasingGroups returns the active memberships ordered by group id.
func (p AuthorizationPayload) PurchasingGroups() []GroupMembership {
	return append(make([]GroupMembership, 0, len(p.purchasingGroups)), p.purchasingGroups...)
}

// IsPurchasingGroupLeader reports whether any active membership carries the lead role.
func (p AuthorizationPayload) IsPurchasingGroupLeader() bool { return p.isLeader }

// HasPermission reports whether the effective permission set grants permission, ignoring case.
func (p AuthorizationPayload) HasPermission(permission string) bool {
	for _, granted := range p.permissions {
		if strings.EqualFold(granted, permission) {
			return true
		}
	}
	return false
}

// Snapshot exports the payload for transport or caching.
func (p AuthorizationPayload) Snapshot() AuthorizationSnapshot {
	return AuthorizationSnapshot{
		SchemaVersion:           p.schemaVersion,
		ID:                      p.userID,
		Name:                    p.name,
		Role:                    p.role,
		Functions:               p.Functions(),
		Permissions:             p.Permissions(),
		FunctionalPermissions:   p.FunctionalPermissions(),
		PurchasingGroups:        p.PurchasingGroups(),
		IsPurchasingGroupLeader: p.isLeader,
	}
}
