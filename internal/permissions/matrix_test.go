package permissions

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDeterministic(t *testing.T) {
	rules := []Rule{
		Grant(Wildcard, Wildcard, true),
		Negate(ModuleEmployees, ActionDelete),
		Grant(ModuleBilling, ActionExport, false),
	}
	first := Resolve(rules)
	second := Resolve(rules)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolve not deterministic")
	}
}

func TestResolveLastRuleWins(t *testing.T) {
	rules := []Rule{
		Grant(ModuleClients, Wildcard, true),
		Grant(ModuleClients, ActionDelete, false),
	}
	matrix := Resolve(rules)
	require.True(t, matrix[ModuleClients][ActionView])
	require.False(t, matrix[ModuleClients][ActionDelete])

	// Reversed order: the wildcard overwrites the narrow rule.
	matrix = Resolve([]Rule{
		Grant(ModuleClients, ActionDelete, false),
		Grant(ModuleClients, Wildcard, true),
	})
	require.True(t, matrix[ModuleClients][ActionDelete])
}

func TestResolveFullWildcardWithNegation(t *testing.T) {
	rules := []Rule{
		Grant(Wildcard, Wildcard, true),
		Negate(ModuleEmployees, ActionDelete),
	}
	matrix := Resolve(rules)
	for _, module := range Modules() {
		for _, action := range Actions() {
			want := !(module == ModuleEmployees && action == ActionDelete)
			if matrix[module][action] != want {
				t.Fatalf("cell %s:%s = %v, want %v", module, action, matrix[module][action], want)
			}
		}
	}

	flat := Flatten(matrix)
	require.False(t, flat.Has(ModuleEmployees, ActionDelete))
	require.True(t, flat.Has(ModuleEmployees, ActionView))
	require.Len(t, flat, len(Modules())*len(Actions())-1)
}

func TestResolveEmptyDeniesEverything(t *testing.T) {
	matrix := Resolve(nil)
	require.Empty(t, matrix)
	require.Empty(t, Flatten(matrix))
}

func TestMergeEmptyOverrideIsIdentity(t *testing.T) {
	base := Resolve([]Rule{
		Grant(ModuleExpenses, ActionView, true),
		Grant(ModuleExpenses, ActionExport, false),
	})
	merged := Merge(base, Matrix{})
	require.True(t, reflect.DeepEqual(base, merged))
}

func TestMergeIsCellLevel(t *testing.T) {
	base := Resolve([]Rule{
		Grant(ModuleExpenses, ActionView, true),
		Grant(ModuleExpenses, ActionExport, false),
	})
	overrides := Matrix{ModuleExpenses: {ActionExport: true}}
	merged := Merge(base, overrides)
	require.True(t, merged[ModuleExpenses][ActionExport])
	require.True(t, merged[ModuleExpenses][ActionView])
	// The input matrices stay untouched.
	require.False(t, base[ModuleExpenses][ActionExport])
}

func TestFlattenAgreesWithMatrixLookup(t *testing.T) {
	matrix := Resolve([]Rule{
		Grant(ModuleClients, Wildcard, true),
		Grant(ModuleBilling, ActionView, true),
		Negate(ModuleClients, ActionApprove),
	})
	flat := Flatten(matrix)
	for _, module := range Modules() {
		for _, action := range Actions() {
			if flat.Has(module, action) != matrix[module][action] {
				t.Fatalf("flatten disagrees with matrix at %s:%s", module, action)
			}
		}
	}
}

func TestDependencyViolations(t *testing.T) {
	matrix := Matrix{
		ModuleClients:  {ActionCreate: true},
		ModuleBilling:  {ActionView: true, ActionUpdate: true},
		ModuleExpenses: {ActionView: false, ActionExport: true},
	}
	violations := DependencyViolations(matrix)
	require.Equal(t, []string{ModuleClients, ModuleExpenses}, violations)
	require.False(t, ValidDependencies(matrix))

	require.True(t, ValidDependencies(Matrix{ModuleBilling: {ActionView: true, ActionDelete: true}}))
	// View-only and empty rows never violate.
	require.True(t, ValidDependencies(Matrix{ModuleClients: {ActionView: true}}))
	require.True(t, ValidDependencies(Matrix{}))
}

func TestIsAdmin(t *testing.T) {
	require.True(t, IsAdmin(Resolve([]Rule{Grant(Wildcard, Wildcard, true)})))
	require.False(t, IsAdmin(Resolve([]Rule{
		Grant(Wildcard, Wildcard, true),
		Negate(ModuleSettings, ActionManageSettings),
	})))
	require.False(t, IsAdmin(Matrix{}))
}

func TestApplyReadOnlyPreservesExport(t *testing.T) {
	base := Resolve([]Rule{Grant(ModuleBilling, Wildcard, true)})
	readOnly := ApplyReadOnly(base, ModuleBilling)
	require.True(t, readOnly[ModuleBilling][ActionView])
	require.True(t, readOnly[ModuleBilling][ActionExport])
	for _, action := range []string{ActionCreate, ActionUpdate, ActionDelete, ActionApprove, ActionManageSettings} {
		require.False(t, readOnly[ModuleBilling][action], action)
	}
	// Original untouched.
	require.True(t, base[ModuleBilling][ActionDelete])

	// Without a prior export grant the read-only row stays export-denied.
	noExport := ApplyReadOnly(Matrix{}, ModuleBilling)
	require.False(t, noExport[ModuleBilling][ActionExport])
	require.True(t, noExport[ModuleBilling][ActionView])
}

func TestGrantAllAndResetModule(t *testing.T) {
	roleMatrix := Resolve([]Rule{Grant(ModuleEquipment, ActionView, true)})
	edited := GrantAll(roleMatrix, ModuleEquipment)
	for _, action := range Actions() {
		require.True(t, edited[ModuleEquipment][action], action)
	}

	reset := ResetModule(edited, roleMatrix, ModuleEquipment)
	require.True(t, reflect.DeepEqual(roleMatrix[ModuleEquipment], reset[ModuleEquipment]))

	// Resetting a module the role never mentions drops the row entirely.
	reset = ResetModule(edited, Matrix{}, ModuleEquipment)
	_, ok := reset[ModuleEquipment]
	require.False(t, ok)
}

func TestParseRule(t *testing.T) {
	cases := []struct {
		in   string
		want Rule
	}{
		{"clients:view", Grant(ModuleClients, ActionView, true)},
		{"clients:*", Grant(ModuleClients, Wildcard, true)},
		{"*:view", Grant(Wildcard, ActionView, true)},
		{"*:*", Grant(Wildcard, Wildcard, true)},
		{"billing:export=false", Grant(ModuleBilling, ActionExport, false)},
		{"!employees:delete", Negate(ModuleEmployees, ActionDelete)},
		{"!*:approve", Negate(Wildcard, ActionApprove)},
	}
	for _, tc := range cases {
		got, err := ParseRule(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "clients", "clients:fly", "ghosts:view", "clients:view=maybe"} {
		if _, err := ParseRule(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestRuleRoundTripJSON(t *testing.T) {
	rules := []Rule{
		Grant(Wildcard, Wildcard, true),
		Negate(ModuleEmployees, ActionDelete),
		Grant(ModuleBilling, ActionExport, false),
	}
	data, err := EncodeRules(rules)
	require.NoError(t, err)
	decoded, err := DecodeRules(data)
	require.NoError(t, err)
	require.Equal(t, rules, decoded)
	require.True(t, reflect.DeepEqual(Resolve(rules), Resolve(decoded)))
}

func TestGrantSetTokens(t *testing.T) {
	set := NewGrantSet("clients:view", "billing:view", "clients:view", "")
	require.Equal(t, []string{"billing:view", "clients:view"}, set.Tokens())
	union := set.Union(NewGrantSet("reports:export"))
	require.True(t, union.Has(ModuleReports, ActionExport))
	require.Len(t, union, 3)
}
