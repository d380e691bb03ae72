package auth

import "strings"

// RolePrefix is the canonical prefix carried by every stored role name.
const RolePrefix = "ROLE_"

// NormalizeRole returns the canonical prefixed form of a role name.
// Comparison against the prefix is case-insensitive so "role_pm" and "PM"
// both normalize to "ROLE_PM".
func NormalizeRole(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToUpper(role), RolePrefix) {
		role = role[len(RolePrefix):]
	}
	return RolePrefix + strings.ToUpper(role)
}

// StripRole removes the canonical prefix for display purposes.
func StripRole(role string) string {
	if strings.HasPrefix(strings.ToUpper(role), RolePrefix) {
		return role[len(RolePrefix):]
	}
	return role
}

// SameRole reports whether two role names refer to the same role regardless
// of prefix or casing.
func SameRole(a, b string) bool {
	return NormalizeRole(a) == NormalizeRole(b)
}

// OrderRoles returns the distinct normalized roles with the active role
// first. The active role is included even when absent from the input set.
func OrderRoles(active string, roles []string) []string {
	ordered := make([]string, 0, len(roles)+1)
	seen := make(map[string]struct{}, len(roles)+1)
	if active = NormalizeRole(active); active != "" {
		ordered = append(ordered, active)
		seen[active] = struct{}{}
	}
	for _, role := range roles {
		role = NormalizeRole(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		ordered = append(ordered, role)
	}
	return ordered
}
