package config

const (
	EnvPrefix = "MEDIDROP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "MEDIDROP_APP_ENV"
	EnvPort      = "MEDIDROP_APP_PORT"
	EnvDBDSN     = "MEDIDROP_DB_DSN"
	EnvDBHost    = "MEDIDROP_DB_HOST"
	EnvDBUser    = "MEDIDROP_DB_USER"
	EnvDBName    = "MEDIDROP_DB_NAME"
	EnvRedisURL  = "MEDIDROP_REDIS_URL"
	EnvRedisAddr = "MEDIDROP_REDIS_ADDR"
	EnvJWTSecret = "MEDIDROP_JWT_SECRET"
	EnvJWTIssuer = "MEDIDROP_JWT_ISSUER"
	EnvJWTExpMin = "MEDIDROP_JWT_EXPIRATION_MINUTES"

	EnvPrescriptionGate   = "MEDIDROP_PRESCRIPTION_GATE"
	EnvPickupCodeAttempts = "MEDIDROP_PICKUP_CODE_ATTEMPTS"

	EnvPaymentsProvider  = "MEDIDROP_PAYMENTS_PROVIDER"
	EnvPaymentsKeyID     = "MEDIDROP_PAYMENTS_KEY_ID"
	EnvPaymentsKeySecret = "MEDIDROP_PAYMENTS_KEY_SECRET"
	EnvSquareAccessToken = "MEDIDROP_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID  = "MEDIDROP_SQUARE_LOCATION_ID"

	EnvGCPProjectID = "MEDIDROP_GCP_PROJECT_ID"
	EnvGCSBucket    = "MEDIDROP_GCS_BUCKET_NAME"
	EnvUseSQLite    = "MEDIDROP_USE_SQLITE"
)

// Prescription gate modes.
const (
	PrescriptionGateBlockPayment = "block_payment"
	PrescriptionGateHoldCapture  = "hold_capture"
)

// Payment processor providers.
const (
	PaymentProviderRazorpay = "razorpay"
	PaymentProviderSquare   = "square"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
