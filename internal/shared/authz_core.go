package shared

// DefaultAdminPermission is the catalog entry whose flags gate administrative
// mutations when no other permission is configured.
const DefaultAdminPermission = "rbac.manage"

// Capability names one of the four per-assignment flags.
type Capability string

// Capabilities checked by the API.
const (
	CapabilityRead   Capability = "read"
	CapabilityCreate Capability = "create"
	CapabilityUpdate Capability = "update"
	CapabilityDelete Capability = "delete"
	CapabilityExport Capability = "export"
)
