package authorize

import "github.com/Alijeyrad/tabib_backend/config"

// Config holds configuration for the authorization system
type Config struct {
	CasbinModelPath string

	// PolicyPath selects the CSV file adapter instead of the database one.
	PolicyPath string

	// EnableAudit logs every authorization decision.
	EnableAudit bool

	// SuperadminBypass lets sys superadmins skip policy evaluation.
	SuperadminBypass bool

	// PolicySyncEnabled wires the postgres LISTEN/NOTIFY watcher so policy
	// changes reach every instance.
	PolicySyncEnabled bool
}

func DefaultConfig() Config {
	return Config{
		CasbinModelPath:  "config/casbin_model.conf",
		EnableAudit:      true,
		SuperadminBypass: true,
	}
}

// FromCentralConfig converts central config.AuthorizationConfig to package Config
func FromCentralConfig(c config.AuthorizationConfig) Config {
	return Config{
		CasbinModelPath:   c.CasbinModelPath,
		PolicyPath:        c.PolicyPath,
		EnableAudit:       c.EnableAudit,
		SuperadminBypass:  c.SuperadminBypass,
		PolicySyncEnabled: c.PolicySyncEnabled,
	}
}
