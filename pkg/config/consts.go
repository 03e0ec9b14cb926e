package config

// EnvPrefix is applied by envconfig to every variable lookup.
const EnvPrefix = "evtrade"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "EVTRADE_DB_DSN"
	EnvDBHost = "EVTRADE_DB_HOST"
	EnvDBUser = "EVTRADE_DB_USER"
	EnvDBName = "EVTRADE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
