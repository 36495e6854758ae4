package rbac

import (
	"sort"
	"time"
)

// Role represents a named permission grouping.
type Role struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Permission represents an atomic capability.
type Permission struct {
	ID   int64
	Name string
}

// PermissionSet is the deduplicated set of permission names held by a user.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from names, collapsing duplicates.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// HasAll reports whether every name is in the set.
func (s PermissionSet) HasAll(names ...string) bool {
	for _, name := range names {
		if !s.Has(name) {
			return false
		}
	}
	return true
}

// Names returns the members in lexical order.
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Action describes one entry the presentation layer may offer. Permission is
// the name that gates it; an empty Permission requires nothing.
type Action struct {
	Key        string
	Label      string
	Permission string
}

// Catalog is an ordered list of gated actions.
type Catalog []Action

// EndSession is always offered, whatever the principal holds.
var EndSession = Action{Key: "logout", Label: "Logout"}
