package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const (
	policyQuery      = "data.keyrotation.admin.allow"
	policyModuleName = "admin.rego"
)

// Default Rego policy: active admins may revoke any principal and read its audit trail.
const defaultRegoPolicy = `package keyrotation.admin

default allow := false

admin_actions := {"principal.revoke", "audit.read"}

allow if {
	input.subject.role == "admin"
	input.subject.status == 1
	input.action in admin_actions
}
`

// OPAAuthorizer evaluates admin authorization using an in-process OPA Rego module.
// The query is prepared once; Allow is safe for concurrent use.
type OPAAuthorizer struct {
	module   string
	prepared rego.PreparedEvalQuery
}

// NewOPAAuthorizer compiles module, or the built-in policy when module is empty.
// A custom module must define data.keyrotation.admin.allow.
func NewOPAAuthorizer(ctx context.Context, module string) (*OPAAuthorizer, error) {
	if module == "" {
		module = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{policyModuleName: module})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	prepared, err := rego.New(
		rego.Query(policyQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAAuthorizer{module: module, prepared: prepared}, nil
}

// LoadPolicyFile reads a Rego module from path. An empty path returns "" (use the built-in policy).
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}
	return string(b), nil
}

// Allow evaluates the policy for req. Undefined or non-boolean results deny.
func (a *OPAAuthorizer) Allow(ctx context.Context, req Request) (bool, error) {
	rs, err := a.prepared.Eval(ctx, rego.EvalInput(buildInput(req)))
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}

// HealthCheck evaluates the loaded policy against a minimal input. Returns nil on success.
func (a *OPAAuthorizer) HealthCheck(ctx context.Context) error {
	rs, err := a.prepared.Eval(ctx, rego.EvalInput(buildInput(Request{Action: "healthcheck"})))
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

func buildInput(req Request) map[string]interface{} {
	return map[string]interface{}{
		"subject": map[string]interface{}{
			"id":     req.SubjectID,
			"role":   req.SubjectRole,
			"status": req.SubjectStatus,
		},
		"action": req.Action,
		"resource": map[string]interface{}{
			"id": req.ResourceID,
		},
	}
}
