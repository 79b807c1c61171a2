package domain

import "slices"

// Principal identifies who performs a governed operation.
// It is always passed explicitly; the engines never read it from ambient state.
type Principal struct {
	ID          string
	Permissions []string
}

// HasPermission reports whether the principal holds perm.
func (p Principal) HasPermission(perm string) bool {
	return slices.Contains(p.Permissions, perm)
}

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool {
	return p.ID == ""
}
