package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOPAAuthorizer_HealthCheck(t *testing.T) {
	ctx := context.Background()
	a, err := NewOPAAuthorizer(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAAuthorizer: %v", err)
	}
	if err := a.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAAuthorizer_DefaultPolicy(t *testing.T) {
	ctx := context.Background()
	a, err := NewOPAAuthorizer(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAAuthorizer: %v", err)
	}
	testCases := []struct {
		name string
		req  Request
		want bool
	}{
		{"active admin revokes", Request{SubjectID: "a1", SubjectRole: "admin", SubjectStatus: 1, Action: ActionRevokePrincipal, ResourceID: "p1"}, true},
		{"user revokes", Request{SubjectID: "u1", SubjectRole: "user", SubjectStatus: 1, Action: ActionRevokePrincipal, ResourceID: "p1"}, false},
		{"disabled admin", Request{SubjectID: "a1", SubjectRole: "admin", SubjectStatus: 2, Action: ActionRevokePrincipal, ResourceID: "p1"}, false},
		{"active admin reads audit", Request{SubjectID: "a1", SubjectRole: "admin", SubjectStatus: 1, Action: ActionReadAudit, ResourceID: "p1"}, true},
		{"user reads audit", Request{SubjectID: "u1", SubjectRole: "user", SubjectStatus: 1, Action: ActionReadAudit, ResourceID: "p1"}, false},
		{"admin other action", Request{SubjectID: "a1", SubjectRole: "admin", SubjectStatus: 1, Action: "principal.delete", ResourceID: "p1"}, false},
		{"empty request", Request{}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := a.Allow(ctx, tc.req)
			if err != nil {
				t.Fatalf("Allow: %v", err)
			}
			if got != tc.want {
				t.Errorf("Allow = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOPAAuthorizer_CustomPolicyFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "admin.rego")
	custom := `package keyrotation.admin

default allow := false

allow if {
	input.action == "principal.revoke"
	input.subject.id == input.resource.id
}
`
	if err := os.WriteFile(path, []byte(custom), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	module, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("LoadPolicyFile: %v", err)
	}
	a, err := NewOPAAuthorizer(ctx, module)
	if err != nil {
		t.Fatalf("NewOPAAuthorizer: %v", err)
	}

	self, err := a.Allow(ctx, Request{SubjectID: "u1", SubjectRole: "user", Action: ActionRevokePrincipal, ResourceID: "u1"})
	if err != nil || !self {
		t.Errorf("self revoke = %v, %v; want true", self, err)
	}
	other, err := a.Allow(ctx, Request{SubjectID: "u1", SubjectRole: "admin", SubjectStatus: 1, Action: ActionRevokePrincipal, ResourceID: "u2"})
	if err != nil || other {
		t.Errorf("other revoke = %v, %v; want false", other, err)
	}
}

func TestOPAAuthorizer_InvalidPolicy(t *testing.T) {
	if _, err := NewOPAAuthorizer(context.Background(), "package broken\nallow if {"); err == nil {
		t.Fatal("invalid rego should fail to compile")
	}
}

func TestLoadPolicyFile(t *testing.T) {
	module, err := LoadPolicyFile("")
	if err != nil || module != "" {
		t.Errorf("LoadPolicyFile(\"\") = %q, %v", module, err)
	}
	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.rego")); err == nil {
		t.Error("missing file should fail")
	}
}
