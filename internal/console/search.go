package console

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/mdm-console/mdm-console/internal/rbac"
)

var folder = cases.Fold()

func fold(s string) string {
	return folder.String(s)
}

func matches(query string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(fold(f), query) {
			return true
		}
	}
	return false
}

// FilterRoles returns roles whose name or priority contains q, ignoring case.
// An empty query returns every role.
func (b *Board) FilterRoles(q string) []rbac.Role {
	roles := b.Roles()
	q = fold(strings.TrimSpace(q))
	if q == "" {
		return roles
	}
	out := roles[:0]
	for _, r := range roles {
		priority := ""
		if r.Priority != nil {
			priority = strconv.FormatInt(*r.Priority, 10)
		}
		if matches(q, r.Name, priority) {
			out = append(out, r)
		}
	}
	return out
}

// FilterPermissions returns catalog entries whose name or description contains
// q, ignoring case. An empty query returns the whole catalog.
func (b *Board) FilterPermissions(q string) []rbac.Permission {
	catalog := b.Catalog()
	q = fold(strings.TrimSpace(q))
	if q == "" {
		return catalog
	}
	out := catalog[:0]
	for _, p := range catalog {
		if matches(q, p.Name, p.Description) {
			out = append(out, p)
		}
	}
	return out
}
