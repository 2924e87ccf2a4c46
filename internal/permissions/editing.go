package permissions

// Module-scoped helpers for the matrix editor. Each returns a fresh matrix;
// the input is never mutated so an edit can be discarded without rollback.

// ApplyReadOnly forces view on and every mutating action off for the module.
// An existing export grant survives: export is treated as read-adjacent.
func ApplyReadOnly(m Matrix, module string) Matrix {
	out := Clone(m)
	row := out[module]
	if row == nil {
		row = make(map[string]bool, len(knownActions))
		out[module] = row
	}
	row[ActionView] = true
	for _, action := range mutatingActions {
		row[action] = false
	}
	return out
}

// GrantAll turns on every known action for the module.
func GrantAll(m Matrix, module string) Matrix {
	out := Clone(m)
	row := make(map[string]bool, len(knownActions))
	for _, action := range knownActions {
		row[action] = true
	}
	out[module] = row
	return out
}

// ResetModule restores the module's row to the role matrix baseline,
// discarding any pending edits for that module only.
func ResetModule(m, roleMatrix Matrix, module string) Matrix {
	out := Clone(m)
	base := roleMatrix[module]
	if base == nil {
		delete(out, module)
		return out
	}
	row := make(map[string]bool, len(base))
	for action, granted := range base {
		row[action] = granted
	}
	out[module] = row
	return out
}
