package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuleSet(t *testing.T) {
	rs := DefaultRuleSet()

	assert.Equal(t, ActionBlock, rs.Lookup("Runtime.enable").Action)

	r := rs.Lookup("Runtime.evaluate")
	assert.Equal(t, ActionRewrite, r.Action)
	assert.Equal(t, "expression", r.ScriptParam)

	r = rs.Lookup("Page.addScriptToEvaluateOnNewDocument")
	assert.Equal(t, ActionRewrite, r.Action)
	assert.Equal(t, "source", r.ScriptParam)

	assert.Equal(t, ActionPass, rs.Lookup("Network.enable").Action, "unknown methods pass through")
	assert.False(t, rs.EventSuppressed("Page.loadEventFired"))
}

func TestRuleSetExactMatchWins(t *testing.T) {
	rs := DefaultRuleSet()
	rs.SetMethod("Runtime.enable", Rule{Action: ActionPass})
	assert.Equal(t, ActionPass, rs.Lookup("Runtime.enable").Action)

	// Similar but non-identical names do not match.
	assert.Equal(t, ActionPass, rs.Lookup("Runtime.enableX").Action)
	assert.Equal(t, ActionPass, rs.Lookup("runtime.enable").Action)
}

func TestRuleSetFromConfig(t *testing.T) {
	t.Run("layers over defaults", func(t *testing.T) {
		rs, err := RuleSetFromConfig(map[string]string{
			"Runtime.enable":   "pass",
			"Network.enable":   "BLOCK",
			"Runtime.evaluate": "rewrite",
		}, []string{"Target.targetCreated"})
		require.NoError(t, err)

		assert.Equal(t, ActionPass, rs.Lookup("Runtime.enable").Action, "config overrides the default block")
		assert.Equal(t, ActionBlock, rs.Lookup("Network.enable").Action, "actions are case-insensitive")
		assert.Equal(t, "expression", rs.Lookup("Runtime.evaluate").ScriptParam)
		assert.Equal(t, ActionRewrite, rs.Lookup("Page.addScriptToEvaluateOnNewDocument").Action, "untouched defaults survive")
		assert.True(t, rs.EventSuppressed("Target.targetCreated"))
	})

	t.Run("rewrite picks the right script param", func(t *testing.T) {
		rs, err := RuleSetFromConfig(map[string]string{
			"Page.addScriptToEvaluateOnNewDocument": "rewrite",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "source", rs.Lookup("Page.addScriptToEvaluateOnNewDocument").ScriptParam)
	})

	t.Run("unknown action rejected", func(t *testing.T) {
		_, err := RuleSetFromConfig(map[string]string{"Runtime.enable": "drop"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown rule action")
	})
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "pass", ActionPass.String())
	assert.Equal(t, "block", ActionBlock.String())
	assert.Equal(t, "rewrite", ActionRewrite.String())
	assert.Equal(t, "action(9)", Action(9).String())
}
