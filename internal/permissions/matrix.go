package permissions

import "sort"

// Matrix is the admin-facing module × action grant table. An absent cell is
// a denial; wildcard rules are expanded against the catalog before they are
// written, so a resolved matrix never carries wildcard syntax.
type Matrix map[string]map[string]bool

// GrantSet is the runtime representation handed to sessions: already
// expanded "module:action" tokens, membership only, no wildcard logic.
type GrantSet map[string]struct{}

// NewGrantSet builds a set from flat tokens.
func NewGrantSet(tokens ...string) GrantSet {
	set := make(GrantSet, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	return set
}

// Has tests membership for the literal module:action token.
func (g GrantSet) Has(module, action string) bool {
	_, ok := g[Token(module, action)]
	return ok
}

// Tokens returns the sorted token list, for persistence and display.
func (g GrantSet) Tokens() []string {
	out := make([]string, 0, len(g))
	for t := range g {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Union merges two sets into a new one.
func (g GrantSet) Union(other GrantSet) GrantSet {
	out := make(GrantSet, len(g)+len(other))
	for t := range g {
		out[t] = struct{}{}
	}
	for t := range other {
		out[t] = struct{}{}
	}
	return out
}

// Resolve folds an ordered rule list into a matrix. Wildcards expand against
// the catalog; later rules overwrite earlier ones cell by cell, which is what
// lets an admin append a narrow override after a broad wildcard. Total and
// deterministic: an empty list yields an empty (all-deny) matrix.
func Resolve(rules []Rule) Matrix {
	matrix := make(Matrix)
	for _, rule := range rules {
		value := rule.Granted
		if rule.Kind == KindNegate {
			value = false
		}
		for _, module := range expandModules(rule.Module) {
			row := matrix[module]
			if row == nil {
				row = make(map[string]bool, len(knownActions))
				matrix[module] = row
			}
			for _, action := range expandActions(rule.Action) {
				row[action] = value
			}
		}
	}
	return matrix
}

func expandModules(module string) []string {
	if module == Wildcard {
		return knownModules
	}
	return []string{module}
}

func expandActions(action string) []string {
	if action == Wildcard {
		return knownActions
	}
	return []string{action}
}

// Merge overlays per-identity overrides on a role matrix, cell by cell.
// Actions absent from an override module keep the role's value; overrides
// compose with the role, they never replace it wholesale.
func Merge(base, overrides Matrix) Matrix {
	merged := Clone(base)
	for module, row := range overrides {
		target := merged[module]
		if target == nil {
			target = make(map[string]bool, len(row))
			merged[module] = target
		}
		for action, granted := range row {
			target[action] = granted
		}
	}
	return merged
}

// Clone deep-copies a matrix.
func Clone(m Matrix) Matrix {
	out := make(Matrix, len(m))
	for module, row := range m {
		copied := make(map[string]bool, len(row))
		for action, granted := range row {
			copied[action] = granted
		}
		out[module] = copied
	}
	return out
}

// DependencyViolations returns the modules where a non-view action is
// granted while view is not. The resolver never enforces this on its own;
// admin surfaces run it before saving and must reject invalid matrices.
func DependencyViolations(m Matrix) []string {
	var violations []string
	for _, module := range knownModules {
		row := m[module]
		if row == nil || row[ActionView] {
			continue
		}
		for action, granted := range row {
			if action != ActionView && granted {
				violations = append(violations, module)
				break
			}
		}
	}
	return violations
}

// ValidDependencies reports whether the matrix satisfies the view
// dependency rule for every module.
func ValidDependencies(m Matrix) bool {
	return len(DependencyViolations(m)) == 0
}

// IsAdmin reports whether every known cell is granted, used to flag
// effectively unrestricted roles in admin listings.
func IsAdmin(m Matrix) bool {
	for _, module := range knownModules {
		row := m[module]
		if row == nil {
			return false
		}
		for _, action := range knownActions {
			if !row[action] {
				return false
			}
		}
	}
	return true
}

// Flatten crosses the boundary from the admin representation to the runtime
// one: a token per cell that is true, wildcards long gone.
func Flatten(m Matrix) GrantSet {
	set := make(GrantSet)
	for module, row := range m {
		for action, granted := range row {
			if granted {
				set[Token(module, action)] = struct{}{}
			}
		}
	}
	return set
}
