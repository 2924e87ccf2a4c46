package permissions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind distinguishes grant rules from negation rules. A negation forces the
// touched cells to false regardless of the rule's Granted field, so the
// evaluation order stays unambiguous even for hand-edited rule lists.
type Kind string

const (
	// KindGrant writes the rule's Granted value.
	KindGrant Kind = "grant"
	// KindNegate writes false.
	KindNegate Kind = "negate"
)

// Rule is one entry of an ordered permission list. Module and Action may each
// be a catalog name or the wildcard. Rules are applied left to right and the
// last rule touching a cell wins.
type Rule struct {
	Module  string `json:"module"`
	Action  string `json:"action"`
	Kind    Kind   `json:"kind"`
	Granted bool   `json:"granted"`
}

// Grant builds a grant rule.
func Grant(module, action string, granted bool) Rule {
	return Rule{Module: module, Action: action, Kind: KindGrant, Granted: granted}
}

// Negate builds a negation rule.
func Negate(module, action string) Rule {
	return Rule{Module: module, Action: action, Kind: KindNegate}
}

// ParseRule reads the compact string syntax used by seeds and admin imports:
// "module:action" grants, a leading "!" negates, "=false" revokes, and "*"
// wildcards either side.
func ParseRule(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rule{}, fmt.Errorf("permissions: empty rule")
	}
	negate := strings.HasPrefix(s, "!")
	if negate {
		s = s[1:]
	}
	granted := true
	if idx := strings.IndexByte(s, '='); idx >= 0 {
		switch s[idx+1:] {
		case "true":
			granted = true
		case "false":
			granted = false
		default:
			return Rule{}, fmt.Errorf("permissions: invalid rule value %q", s[idx+1:])
		}
		s = s[:idx]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Rule{}, fmt.Errorf("permissions: invalid rule %q", s)
	}
	module, action := parts[0], parts[1]
	if module != Wildcard && !KnownModule(module) {
		return Rule{}, fmt.Errorf("permissions: unknown module %q", module)
	}
	if action != Wildcard && !KnownAction(action) {
		return Rule{}, fmt.Errorf("permissions: unknown action %q", action)
	}
	if negate {
		return Negate(module, action), nil
	}
	return Grant(module, action, granted), nil
}

// ParseRules parses a list of compact rule strings, preserving order.
func ParseRules(specs []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, s := range specs {
		rule, err := ParseRule(s)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// String renders the compact form of a rule.
func (r Rule) String() string {
	if r.Kind == KindNegate {
		return "!" + r.Module + ":" + r.Action
	}
	if !r.Granted {
		return r.Module + ":" + r.Action + "=false"
	}
	return r.Module + ":" + r.Action
}

// DecodeRules unmarshals the jsonb representation stored with a role.
func DecodeRules(data []byte) ([]Rule, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("permissions: decode rules: %w", err)
	}
	for i, r := range rules {
		if r.Kind == "" {
			rules[i].Kind = KindGrant
		}
	}
	return rules, nil
}

// EncodeRules marshals rules for jsonb storage.
func EncodeRules(rules []Rule) ([]byte, error) {
	if rules == nil {
		rules = []Rule{}
	}
	return json.Marshal(rules)
}
