package permissions

// The permission catalog is a closed set: wildcard rules expand against it
// and the admin matrix editor renders exactly these rows and columns.

// Known modules of the dashboard.
const (
	ModuleClients   = "clients"
	ModuleContracts = "contracts"
	ModuleEquipment = "equipment"
	ModuleBilling   = "billing"
	ModuleExpenses  = "expenses"
	ModuleEmployees = "employees"
	ModuleReports   = "reports"
	ModuleSettings  = "settings"
)

// Known actions within a module.
const (
	ActionView           = "view"
	ActionCreate         = "create"
	ActionUpdate         = "update"
	ActionDelete         = "delete"
	ActionExport         = "export"
	ActionApprove        = "approve"
	ActionManageSettings = "manage_settings"
)

// Wildcard matches every module or action of the catalog.
const Wildcard = "*"

var knownModules = []string{
	ModuleClients,
	ModuleContracts,
	ModuleEquipment,
	ModuleBilling,
	ModuleExpenses,
	ModuleEmployees,
	ModuleReports,
	ModuleSettings,
}

var knownActions = []string{
	ActionView,
	ActionCreate,
	ActionUpdate,
	ActionDelete,
	ActionExport,
	ActionApprove,
	ActionManageSettings,
}

// mutatingActions are forced off by ApplyReadOnly. Export is read-adjacent
// and keeps its previous value.
var mutatingActions = []string{
	ActionCreate,
	ActionUpdate,
	ActionDelete,
	ActionApprove,
	ActionManageSettings,
}

// Modules returns the known module names in catalog order.
func Modules() []string {
	out := make([]string, len(knownModules))
	copy(out, knownModules)
	return out
}

// Actions returns the known action names in catalog order.
func Actions() []string {
	out := make([]string, len(knownActions))
	copy(out, knownActions)
	return out
}

// KnownModule reports whether the module belongs to the catalog.
func KnownModule(module string) bool {
	for _, m := range knownModules {
		if m == module {
			return true
		}
	}
	return false
}

// KnownAction reports whether the action belongs to the catalog.
func KnownAction(action string) bool {
	for _, a := range knownActions {
		if a == action {
			return true
		}
	}
	return false
}

// Token builds the flat "module:action" form consumed by sessions.
func Token(module, action string) string {
	return module + ":" + action
}
