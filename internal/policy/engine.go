// Package policy evaluates the rego admission policy applied to join requests.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// JoinInput is the document the policy sees as `input`.
type JoinInput struct {
	Username string `json:"username"`
	Online   int    `json:"online"`
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.join_policy.decision"),
		rego.Module("join_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy from path, or the default policy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// EvaluateJoin returns the decision and reason for a join request.
// The policy may return a plain string or an object {decision, reason}.
func (e *Engine) EvaluateJoin(ctx context.Context, input JoinInput) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return val, "", nil
	case map[string]interface{}:
		decision, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		if decision == "" {
			return DecisionDeny, "policy returned no decision", nil
		}
		return decision, reason, nil
	default:
		return DecisionDeny, "unexpected return type", nil
	}
}

// DefaultPolicy rejects blank and oversized usernames.
const DefaultPolicy = `
package join_policy

import rego.v1

decision := {"decision": "deny", "reason": "username is required"} if {
	trim_space(input.username) == ""
} else := {"decision": "deny", "reason": "username is too long"} if {
	count(input.username) > 64
} else := {"decision": "allow", "reason": ""}
`
