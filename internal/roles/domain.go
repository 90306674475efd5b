// Package roles defines the role tags a profile can hold.
package roles

import (
	"fmt"
	"slices"
)

// Role is a role tag assigned to an identity.
type Role string

const (
	Principal Role = "principal"
	EA        Role = "ea"
	GM        Role = "gm"
	Manager   Role = "manager"
	Sales     Role = "sales"
)

// All lists every known role in display precedence order.
var All = []Role{Principal, EA, GM, Manager, Sales}

// Parse validates a raw role tag.
func Parse(s string) (Role, error) {
	r := Role(s)
	if !slices.Contains(All, r) {
		return "", fmt.Errorf("roles: unknown role %q", s)
	}
	return r, nil
}

// Set is an immutable collection of role tags.
type Set struct {
	m map[Role]struct{}
}

// NewSet builds a set from tags; duplicates collapse.
func NewSet(tags ...Role) Set {
	m := make(map[Role]struct{}, len(tags))
	for _, t := range tags {
		m[t] = struct{}{}
	}
	return Set{m: m}
}

// Has reports whether r is in the set.
func (s Set) Has(r Role) bool {
	_, ok := s.m[r]
	return ok
}

// Len returns the number of distinct tags.
func (s Set) Len() int { return len(s.m) }

// Slice returns the tags in display precedence order.
func (s Set) Slice() []Role {
	out := make([]Role, 0, len(s.m))
	for _, r := range All {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	// Unknown tags loaded from storage still round-trip.
	var extra []Role
	for r := range s.m {
		if !slices.Contains(All, r) {
			extra = append(extra, r)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}
