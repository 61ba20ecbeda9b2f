package proxy

import (
	"fmt"
	"strings"
)

// Action is what the proxy does with a client call for a given method.
type Action int

const (
	// ActionPass forwards the call upstream unmodified.
	ActionPass Action = iota
	// ActionBlock answers the call locally with an empty success
	// result and never forwards it.
	ActionBlock
	// ActionRewrite prepends the assembled override script to the
	// call's script-source parameter before forwarding.
	ActionRewrite
)

func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionBlock:
		return "block"
	case ActionRewrite:
		return "rewrite"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Rule pairs an action with the params field it operates on.
type Rule struct {
	Action Action
	// ScriptParam names the params field holding script source for
	// ActionRewrite rules: "expression" for Runtime.evaluate,
	// "source" for Page.addScriptToEvaluateOnNewDocument.
	ScriptParam string
}

// RuleSet is the static rewrite configuration for a proxy. It is built
// once at startup and read-only afterwards; lookup is an exact-name map
// hit with a catch-all pass-through default.
type RuleSet struct {
	methods         map[string]Rule
	suppressedEvent map[string]struct{}
}

// NewRuleSet returns an empty rule set whose default is pass-through.
func NewRuleSet() *RuleSet {
	return &RuleSet{
		methods:         make(map[string]Rule),
		suppressedEvent: make(map[string]struct{}),
	}
}

// DefaultRuleSet is the stealth configuration: script evaluation calls
// get the override script prepended, and Runtime.enable is answered
// locally so the page never observes the side effects instrumented
// runtimes leave behind.
func DefaultRuleSet() *RuleSet {
	rs := NewRuleSet()
	rs.SetMethod("Runtime.enable", Rule{Action: ActionBlock})
	rs.SetMethod("Runtime.evaluate", Rule{Action: ActionRewrite, ScriptParam: "expression"})
	rs.SetMethod("Page.addScriptToEvaluateOnNewDocument", Rule{Action: ActionRewrite, ScriptParam: "source"})
	return rs
}

// SetMethod installs or replaces the rule for an exact method name.
func (rs *RuleSet) SetMethod(method string, rule Rule) {
	rs.methods[method] = rule
}

// SuppressEvent hides the named event from the client.
func (rs *RuleSet) SuppressEvent(name string) {
	rs.suppressedEvent[name] = struct{}{}
}

// Lookup resolves the rule for a method. An exact match wins; anything
// else falls through to pass.
func (rs *RuleSet) Lookup(method string) Rule {
	if r, ok := rs.methods[method]; ok {
		return r
	}
	return Rule{Action: ActionPass}
}

// EventSuppressed reports whether an inbound event must not reach the client.
func (rs *RuleSet) EventSuppressed(name string) bool {
	_, ok := rs.suppressedEvent[name]
	return ok
}

// RuleSetFromConfig builds a rule set from the flat method -> action
// table in the configuration file, starting from the stealth defaults.
func RuleSetFromConfig(methods map[string]string, suppressEvents []string) (*RuleSet, error) {
	rs := DefaultRuleSet()
	for method, action := range methods {
		switch strings.ToLower(action) {
		case "pass":
			rs.SetMethod(method, Rule{Action: ActionPass})
		case "block":
			rs.SetMethod(method, Rule{Action: ActionBlock})
		case "rewrite":
			rs.SetMethod(method, Rule{Action: ActionRewrite, ScriptParam: scriptParamFor(method)})
		default:
			return nil, fmt.Errorf("proxy: unknown rule action %q for method %q", action, method)
		}
	}
	for _, ev := range suppressEvents {
		rs.SuppressEvent(ev)
	}
	return rs, nil
}

func scriptParamFor(method string) string {
	if method == "Page.addScriptToEvaluateOnNewDocument" {
		return "source"
	}
	return "expression"
}
