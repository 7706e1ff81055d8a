package catalog

import (
	"sort"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/core/port"
)

// DefaultFunctionPermissions is the built-in function to permission mapping.
var DefaultFunctionPermissions = map[string][]string{
	"procurement": {
		"supplier.view",
		"supplier.edit",
		"supplier.create",
		"supplier.profile.view",
		"supplier.profile.edit",
		"rfq.create",
		"rfq.send",
		"rfq.view",
		"rfq.manage",
		"supplier.documents.view",
		"supplier.contracts.view",
		"supplier.upgrade.init",
		"supplier.segment.manage",
	},
	"finance": {
		"supplier.view",
		"supplier.profile.view",
		"invoice.view",
		"invoice.upload",
		"invoice.audit",
		"invoice.approve",
		"supplier.payment_terms.view",
		"supplier.payment_terms.edit",
		"supplier.bank_account.view",
		"finance.reconciliation.view",
		"finance.reconciliation.manage",
	},
	"quality": {
		"supplier.view",
		"supplier.profile.view",
		"supplier.documents.view",
		"supplier.documents.audit",
		"supplier.documents.approve",
		"supplier.documents.reject",
		"supplier.qualifications.review",
		"supplier.rating.create",
		"supplier.rating.view",
		"supplier.rating.edit",
	},
	"general": {
		"supplier.view",
		"supplier.profile.view",
	},
}

// DefaultRolePermissions is the built-in base role to permission mapping.
var DefaultRolePermissions = map[string][]string{
	"purchaser": {
		"purchaser.segment.manage",
		"rfq.create",
		"rfq.view",
	},
	"procurement_manager": {
		"purchaser.segment.manage",
		domain.PermissionAdminPurchasingGroupsManage,
		domain.PermissionAdminSupplierTags,
		"rfq.view",
		"rfq.view_all",
	},
	"admin": {
		domain.PermissionAdminSupplierTags,
		domain.PermissionAdminBuyerAssignmentsManage,
		domain.PermissionAdminPurchasingGroupsManage,
		"admin.role.manage",
		"admin.system.config",
		"rfq.view",
		"rfq.view_all",
	},
}

// StaticCatalog is an immutable in-memory PermissionCatalog.
type StaticCatalog struct {
	functions map[string][]string
	roles     map[string][]string
}

// New builds a catalog from the defaults merged with the supplied extra entries.
// Extra entries extend, never replace, the permissions of an existing key.
func New(extraFunctions, extraRoles map[string][]string) *StaticCatalog {
	return &StaticCatalog{
		functions: merge(DefaultFunctionPermissions, extraFunctions),
		roles:     merge(DefaultRolePermissions, extraRoles),
	}
}

// NewFromMaps builds a catalog from exactly the supplied mappings.
func NewFromMaps(functions, roles map[string][]string) *StaticCatalog {
	return &StaticCatalog{
		functions: merge(nil, functions),
		roles:     merge(nil, roles),
	}
}

// FunctionPermissions returns the permissions granted by a function.
func (c *StaticCatalog) FunctionPermissions(functionID string) []string {
	return copyOf(c.functions[domain.CanonicalKey(functionID)])
}

// RolePermissions returns the permissions granted by a base role.
func (c *StaticCatalog) RolePermissions(role string) []string {
	return copyOf(c.roles[domain.CanonicalKey(role)])
}

// Functions lists the function identifiers known to the catalog.
func (c *StaticCatalog) Functions() []string {
	keys := make([]string, 0, len(c.functions))
	for key := range c.functions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func merge(base, extra map[string][]string) map[string][]string {
	result := make(map[string][]string, len(base)+len(extra))
	for _, src := range []map[string][]string{base, extra} {
		for key, permissions := range src {
			canonical := domain.CanonicalKey(key)
			if canonical == "" {
				continue
			}
			result[canonical] = appendUnique(result[canonical], permissions)
		}
	}
	return result
}

func appendUnique(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst)+len(src))
	for _, existing := range dst {
		seen[existing] = struct{}{}
	}
	for _, permission := range src {
		if permission == "" {
			continue
		}
		if _, ok := seen[permission]; ok {
			continue
		}
		seen[permission] = struct{}{}
		dst = append(dst, permission)
	}
	return dst
}

func copyOf(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append(make([]string, 0, len(values)), values...)
}

var _ port.PermissionCatalog = (*StaticCatalog)(nil)
