package config

const (
	EnvPrefix = "ORDERFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "ORDERFLOW_APP_ENV"
	EnvPort     = "ORDERFLOW_APP_PORT"
	EnvDBDSN    = "ORDERFLOW_DB_DSN"
	EnvDBHost   = "ORDERFLOW_DB_HOST"
	EnvDBUser   = "ORDERFLOW_DB_USER"
	EnvDBName   = "ORDERFLOW_DB_NAME"
	EnvRedisURL = "ORDERFLOW_REDIS_URL"

	EnvJWTSecret = "ORDERFLOW_JWT_SECRET"
	EnvJWTIssuer = "ORDERFLOW_JWT_ISSUER"

	EnvGCPProjectID      = "ORDERFLOW_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "ORDERFLOW_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub   = "ORDERFLOW_PUBSUB_ORDERS_SUBSCRIPTION"

	EnvOrdersRefundTolerance = "ORDERFLOW_ORDERS_REFUND_TOLERANCE"
	EnvOrdersRefundWindow    = "ORDERFLOW_ORDERS_REFUND_WINDOW"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
