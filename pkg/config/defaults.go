package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "robopay"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisAddr = "localhost:6379"
	DefaultRedisDB   = 0

	DefaultPort = "8080"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	// Requests may wait on the settlement retry loop or a robot task.
	DefaultRequestTimeout = 40 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 45 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultSessionLifetime   = 15 * time.Minute
	DefaultLockDuration      = 10 * time.Minute
	DefaultSolanaRPCURL      = "https://api.devnet.solana.com"
	DefaultSolanaNetwork     = "solana-devnet"
	DefaultStablecoinMint    = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU" // USDC devnet
	DefaultTokenDecimals     = 6
	DefaultSolanaMemoEnabled = false
	DefaultVerifyAttempts    = 5
	DefaultVerifyRetryDelay  = 1 * time.Second
	DefaultVerifyTolerance   = "0.01"
	DefaultExecutorTimeout   = 30 * time.Second
	DefaultEventsEnabled     = false
	DefaultEventsTopic       = "robopay.events"
	DefaultEventsDLQTopic    = ""
	DefaultCurrency          = "USDC"
	minJWTSecretLength       = 16
)
