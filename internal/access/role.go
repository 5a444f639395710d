// Package access models the caller roles of a workspace as a closed set of
// variants and answers what each one may do to tasks.
package access

import (
	"strings"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
)

// Role is one of Owner, Admin, Member or Viewer. The unexported method keeps
// the set closed to this package.
type Role interface {
	Name() string
	role()
}

// Owner owns the workspace.
type Owner struct{}

// Admin administers the workspace.
type Admin struct{}

// Member works on tasks.
type Member struct{}

// Viewer can only read.
type Viewer struct{}

func (Owner) Name() string  { return "owner" }
func (Admin) Name() string  { return "admin" }
func (Member) Name() string { return "member" }
func (Viewer) Name() string { return "viewer" }

func (Owner) role()  {}
func (Admin) role()  {}
func (Member) role() {}
func (Viewer) role() {}

// Default is the role assumed when none is configured.
var Default Role = Member{}

// Roles returns every variant, most privileged first.
func Roles() []Role {
	return []Role{Owner{}, Admin{}, Member{}, Viewer{}}
}

// Parse maps a role name to its variant. An empty name yields Default.
func Parse(name string) (Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Default, nil
	}
	for _, r := range Roles() {
		if r.Name() == name {
			return r, nil
		}
	}
	return nil, clierr.Newf(clierr.InvalidRole, "invalid role %q", name).
		WithDetails(map[string]any{"role": name, "allowed": []string{"owner", "admin", "member", "viewer"}})
}

// CanReorder reports whether r may change task positions or statuses.
func CanReorder(r Role) bool {
	switch r.(type) {
	case Owner, Admin, Member:
		return true
	case Viewer:
		return false
	}
	return false
}

// CanEdit reports whether r may change task content.
func CanEdit(r Role) bool {
	return CanReorder(r)
}

// CanCreate reports whether r may add tasks.
func CanCreate(r Role) bool {
	switch r.(type) {
	case Owner, Admin, Member:
		return true
	case Viewer:
		return false
	}
	return false
}

// CanDelete reports whether r may delete tasks.
func CanDelete(r Role) bool {
	switch r.(type) {
	case Owner, Admin:
		return true
	case Member, Viewer:
		return false
	}
	return false
}

// Denied returns the PERMISSION_DENIED error for an action.
func Denied(r Role, action string) *clierr.Error {
	name := "unknown"
	if r != nil {
		name = r.Name()
	}
	return clierr.Newf(clierr.PermissionDenied, "role %q may not %s tasks", name, action).
		WithDetails(map[string]any{"role": name, "action": action})
}
