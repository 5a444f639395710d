package access

import (
	"errors"
	"testing"

	"github.com/twiced-technology-gmbh/taskorder/internal/clierr"
)

func TestParse(t *testing.T) {
	for _, r := range Roles() {
		got, err := Parse(" " + r.Name() + " ")
		if err != nil {
			t.Fatalf("parse %s: %v", r.Name(), err)
		}
		if got != r {
			t.Fatalf("expected %T, got %T", r, got)
		}
	}

	if got, err := Parse(""); err != nil || got != Default {
		t.Fatalf("expected default role, got %v %v", got, err)
	}

	_, err := Parse("superuser")
	var cliErr *clierr.Error
	if !errors.As(err, &cliErr) || cliErr.Code != clierr.InvalidRole {
		t.Fatalf("expected INVALID_ROLE, got %v", err)
	}
}

func TestCapabilities(t *testing.T) {
	cases := []struct {
		role                            Role
		reorder, edit, create, canDelete bool
	}{
		{Owner{}, true, true, true, true},
		{Admin{}, true, true, true, true},
		{Member{}, true, true, true, false},
		{Viewer{}, false, false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.role.Name(), func(t *testing.T) {
			if CanReorder(tc.role) != tc.reorder {
				t.Fatalf("CanReorder mismatch")
			}
			if CanEdit(tc.role) != tc.edit {
				t.Fatalf("CanEdit mismatch")
			}
			if CanCreate(tc.role) != tc.create {
				t.Fatalf("CanCreate mismatch")
			}
			if CanDelete(tc.role) != tc.canDelete {
				t.Fatalf("CanDelete mismatch")
			}
		})
	}
}

func TestNilRoleHasNoCapabilities(t *testing.T) {
	if CanReorder(nil) || CanDelete(nil) || CanCreate(nil) {
		t.Fatalf("nil role must not be granted anything")
	}
	if Denied(nil, "move").Code != clierr.PermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED")
	}
}
