package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvJWTSecret = "JWT_SECRET"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvSessionLifetime     = "SESSION_LIFETIME"
	EnvDefaultLockDuration = "DEFAULT_LOCK_DURATION"

	EnvSolanaRPCURL      = "SOLANA_RPC_URL"
	EnvSolanaNetwork     = "SOLANA_NETWORK"
	EnvStablecoinMint    = "STABLECOIN_MINT"
	EnvTokenDecimals     = "TOKEN_DECIMALS"
	EnvSolanaMemoEnabled = "SOLANA_MEMO_ENABLED"

	EnvVerifyAttempts   = "VERIFY_ATTEMPTS"
	EnvVerifyRetryDelay = "VERIFY_RETRY_DELAY"
	EnvVerifyTolerance  = "VERIFY_TOLERANCE"

	EnvExecutorTimeout = "EXECUTOR_TIMEOUT"

	EnvEventsEnabled  = "EVENTS_ENABLED"
	EnvEventsTopic    = "KAFKA_EVENTS_TOPIC"
	EnvEventsDLQTopic = "KAFKA_EVENTS_DLQ_TOPIC"
)
