package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		want     string
	}{
		{"plain", "alice", DecisionAllow},
		{"empty", "", DecisionDeny},
		{"blank", "   ", DecisionDeny},
		{"max length", strings.Repeat("a", 64), DecisionAllow},
		{"too long", strings.Repeat("a", 65), DecisionDeny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, _, err := engine.EvaluateJoin(ctx, JoinInput{Username: tt.username})
			require.NoError(t, err)
			assert.Equal(t, tt.want, decision)
		})
	}
}

func TestPolicyFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "join.rego")
	content := `
package join_policy

import rego.v1

decision := "deny" if {
	input.online >= 2
} else := "allow"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	engine, err := NewEngineFromFile(ctx, path)
	require.NoError(t, err)

	decision, _, err := engine.EvaluateJoin(ctx, JoinInput{Username: "alice", Online: 1})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)

	decision, _, err = engine.EvaluateJoin(ctx, JoinInput{Username: "alice", Online: 2})
	require.NoError(t, err)
	assert.Equal(t, DecisionDeny, decision)
}

func TestNewEngineRejectsInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package join_policy\n\ndecision := {")
	require.Error(t, err)

	_, err = NewEngineFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	require.Error(t, err)
}
