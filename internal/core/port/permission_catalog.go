package port

// PermissionCatalog maps functions and base roles to the permissions they grant.
// Implementations are read-only and safe for concurrent use. Unknown keys map to nothing.
type PermissionCatalog interface {
	FunctionPermissions(functionID string) []string
	RolePermissions(role string) []string
}
