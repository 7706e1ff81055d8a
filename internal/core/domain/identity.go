package domain

import "strings"

// Buyer roles recognised by the buyer assignment flows.
const (
	UserRolePurchaser          = "purchaser"
	UserRoleProcurementManager = "procurement_manager"
)

// User mirrors the identity record supplied by the identity subsystem.
type User struct {
	ID        string
	Name      string
	Role      string
	Email     *string
	Functions []string
}

// IsBuyer reports whether the user can receive supplier assignments.
func (u User) IsBuyer() bool {
	role := strings.ToLower(strings.TrimSpace(u.Role))
	return role == UserRolePurchaser || role == UserRoleProcurementManager
}
