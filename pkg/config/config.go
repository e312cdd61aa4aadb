package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"robopay/pkg/client"
	"robopay/pkg/logger"
	"robopay/pkg/money"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Port string

	JWTSecret string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	SessionLifetime     time.Duration
	DefaultLockDuration time.Duration

	SolanaRPCURL      string
	SolanaNetwork     string
	StablecoinMint    string
	TokenDecimals     int
	SolanaMemoEnabled bool

	VerifyAttempts   int
	VerifyRetryDelay time.Duration
	VerifyTolerance  money.Amount

	ExecutorTimeout time.Duration

	EventsEnabled  bool
	EventsTopic    string
	EventsDLQTopic string

	Log    *logger.Logger
	Client *client.Client
}

// Load reads an optional .env file, then the process environment.
// Invalid configuration is fatal.
func Load(serviceName string) *Config {
	dotenvErr := godotenv.Load()

	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		Port: getEnvStr(EnvPort, DefaultPort),

		JWTSecret: getEnvStr(EnvJWTSecret, ""),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		SessionLifetime:     getEnvDuration(EnvSessionLifetime, DefaultSessionLifetime),
		DefaultLockDuration: getEnvDuration(EnvDefaultLockDuration, DefaultLockDuration),

		SolanaRPCURL:      getEnvStr(EnvSolanaRPCURL, DefaultSolanaRPCURL),
		SolanaNetwork:     getEnvStr(EnvSolanaNetwork, DefaultSolanaNetwork),
		StablecoinMint:    getEnvStr(EnvStablecoinMint, DefaultStablecoinMint),
		TokenDecimals:     getEnvNum(EnvTokenDecimals, DefaultTokenDecimals),
		SolanaMemoEnabled: getEnvBool(EnvSolanaMemoEnabled, DefaultSolanaMemoEnabled),

		VerifyAttempts:   getEnvNum(EnvVerifyAttempts, DefaultVerifyAttempts),
		VerifyRetryDelay: getEnvDuration(EnvVerifyRetryDelay, DefaultVerifyRetryDelay),
		VerifyTolerance:  getEnvAmount(EnvVerifyTolerance, DefaultVerifyTolerance),

		ExecutorTimeout: getEnvDuration(EnvExecutorTimeout, DefaultExecutorTimeout),

		EventsEnabled:  getEnvBool(EnvEventsEnabled, DefaultEventsEnabled),
		EventsTopic:    getEnvStr(EnvEventsTopic, DefaultEventsTopic),
		EventsDLQTopic: getEnvStr(EnvEventsDLQTopic, DefaultEventsDLQTopic),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, logger.INFO),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if dotenvErr != nil {
		cfg.Log.Debug("No .env file loaded, using process environment", "error", dotenvErr)
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	if cfg.RedisAddr == "" {
		errors = append(errors, "RedisAddr cannot be empty")
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}

	if len(cfg.JWTSecret) < minJWTSecretLength {
		errors = append(errors, fmt.Sprintf("JWTSecret must be at least %d characters", minJWTSecretLength))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.SessionLifetime <= 0 {
		errors = append(errors, fmt.Sprintf("SessionLifetime must be positive, got: %s", cfg.SessionLifetime))
	}
	if cfg.DefaultLockDuration <= 0 {
		errors = append(errors, fmt.Sprintf("DefaultLockDuration must be positive, got: %s", cfg.DefaultLockDuration))
	}

	if u, err := url.Parse(cfg.SolanaRPCURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, fmt.Sprintf("SolanaRPCURL must be an http(s) URL, got: %s", cfg.SolanaRPCURL))
	}
	if cfg.SolanaNetwork == "" {
		errors = append(errors, "SolanaNetwork cannot be empty")
	}
	if cfg.TokenDecimals < 0 || cfg.TokenDecimals > 18 {
		errors = append(errors, fmt.Sprintf("TokenDecimals must be between 0 and 18, got: %d", cfg.TokenDecimals))
	}
	if cfg.VerifyAttempts < 1 {
		errors = append(errors, fmt.Sprintf("VerifyAttempts must be at least 1, got: %d", cfg.VerifyAttempts))
	}
	if cfg.VerifyRetryDelay < 0 {
		errors = append(errors, fmt.Sprintf("VerifyRetryDelay cannot be negative, got: %s", cfg.VerifyRetryDelay))
	}
	if cfg.VerifyTolerance < 0 {
		errors = append(errors, fmt.Sprintf("VerifyTolerance cannot be negative, got: %s", cfg.VerifyTolerance))
	}
	if cfg.ExecutorTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ExecutorTimeout must be positive, got: %s", cfg.ExecutorTimeout))
	}
	if cfg.EventsEnabled && cfg.EventsTopic == "" {
		errors = append(errors, "EventsTopic cannot be empty when events are enabled")
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"redis_db", cfg.RedisDB,
		"port", cfg.Port,
		"jwt_secret_set", cfg.JWTSecret != "",
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"session_lifetime", cfg.SessionLifetime,
		"default_lock_duration", cfg.DefaultLockDuration,
		"solana_rpc_url", cfg.SolanaRPCURL,
		"solana_network", cfg.SolanaNetwork,
		"stablecoin_mint", cfg.StablecoinMint,
		"token_decimals", cfg.TokenDecimals,
		"solana_memo_enabled", cfg.SolanaMemoEnabled,
		"verify_attempts", cfg.VerifyAttempts,
		"verify_retry_delay", cfg.VerifyRetryDelay,
		"verify_tolerance", cfg.VerifyTolerance.String(),
		"executor_timeout", cfg.ExecutorTimeout,
		"events_enabled", cfg.EventsEnabled,
		"events_topic", cfg.EventsTopic,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvAmount returns -1 micro-units for an unparsable value so Validate rejects it.
func getEnvAmount(key, fallback string) money.Amount {
	value := getEnvStr(key, fallback)
	amount, err := money.Parse(value)
	if err != nil {
		return money.FromMicros(-1)
	}
	return amount
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}
