package gateway

// Scope is the isolation rule applied to a collection before any query runs.
type Scope int

const (
	// ScopeExempt marks system collections that carry no tenant column.
	ScopeExempt Scope = iota
	// ScopeTenant injects the caller's tenant id into every filter.
	ScopeTenant
	// ScopeTenantUser injects both tenant and user ids.
	ScopeTenantUser
)

// Collection pairs a store collection name with its scoping rule. Queries may
// only name collections registered here; everything else is rejected before
// execution.
type Collection struct {
	Name  string
	Scope Scope
}

var (
	Users         = Collection{Name: "users", Scope: ScopeExempt}
	Organizations = Collection{Name: "organizations", Scope: ScopeExempt}
	Settings      = Collection{Name: "settings", Scope: ScopeExempt}
	Integrations  = Collection{Name: "integrations", Scope: ScopeExempt}

	Leads     = Collection{Name: "leads", Scope: ScopeTenant}
	Campaigns = Collection{Name: "campaigns", Scope: ScopeTenant}
	Exports   = Collection{Name: "exports", Scope: ScopeTenant}

	Conversations = Collection{Name: "conversations", Scope: ScopeTenantUser}
	UsageRecords  = Collection{Name: "usage_records", Scope: ScopeTenantUser}
	AuditLogs     = Collection{Name: "audit_logs", Scope: ScopeTenantUser}
)

var registry = map[string]Collection{}

func init() {
	for _, c := range []Collection{
		Users, Organizations, Settings, Integrations,
		Leads, Campaigns, Exports,
		Conversations, UsageRecords, AuditLogs,
	} {
		registry[c.Name] = c
	}
}

// Lookup resolves a collection name against the registry.
func Lookup(name string) (Collection, bool) {
	c, ok := registry[name]
	return c, ok
}
