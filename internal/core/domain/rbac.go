package domain

import "strings"

// Permissions checked by the HTTP layer.
const (
	PermissionAdminSupplierTags           = "admin.tags.manage"
	PermissionAdminBuyerAssignmentsManage = "admin.buyer_assignments.manage"
	PermissionAdminPurchasingGroupsManage = "admin.purchasing_groups.manage"
)

// CanonicalKey normalises a function or role identifier for catalog lookups.
func CanonicalKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
