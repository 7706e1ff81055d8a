package domain

import "strings"

// Membership roles inside a purchasing group.
const (
	MemberRoleLead   = "lead"
	MemberRoleMember = "member"
)

// GroupMembership is the projection of an active membership carried in the authorization payload.
type GroupMembership struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	MemberRole string `json:"memberRole"`
}

// IsLead reports whether the membership carries the lead role.
func (m GroupMembership) IsLead() bool {
	return strings.EqualFold(strings.TrimSpace(m.MemberRole), MemberRoleLead)
}
