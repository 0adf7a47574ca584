package constants

const (
	AppName      = "tabib"
	ConfigName   = "config"
	ConfigFormat = "yaml"

	// EnvPrefix namespaces environment overrides, e.g. TABIB_DATABASE_HOST.
	EnvPrefix = "TABIB"

	// ClinicDomain is the single casbin domain staff roles are granted in.
	ClinicDomain = "clinic"
	// SystemDomain holds platform-level grants such as staff administration.
	SystemDomain = "sys"
)
