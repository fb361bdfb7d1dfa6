// config.go - Environment-driven service configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"secure-transfer/internal/logging"
)

// minSecretLength applies to every shared secret.
const minSecretLength = 32

// Config is the full runtime configuration.
type Config struct {
	Addr          string `env:"SFT_ADDR" envDefault:":8080"`
	PublicBaseURL string `env:"SFT_PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	TrustProxy    bool   `env:"SFT_TRUST_PROXY" envDefault:"false"`

	AuthStrategy  string        `env:"SFT_AUTH_STRATEGY" envDefault:"bearer"`
	BearerToken   string        `env:"SFT_BEARER_TOKEN"`
	HMACSecret    string        `env:"SFT_HMAC_SECRET"`
	HMACTolerance time.Duration `env:"SFT_HMAC_TOLERANCE" envDefault:"30s"`
	NonceTTL      time.Duration `env:"SFT_NONCE_TTL" envDefault:"60s"`

	JWTSecret       string `env:"SFT_JWT_SECRET"`
	JWTPublicKeyPEM string `env:"SFT_JWT_PUBLIC_KEY"`
	JWTAlgorithm    string `env:"SFT_JWT_ALGORITHM" envDefault:"HS256"`
	JWTIssuer       string `env:"SFT_JWT_ISSUER" envDefault:"file-transfer-client"`
	JWTReplayGuard  bool   `env:"SFT_JWT_REPLAY_GUARD" envDefault:"false"`

	RateLimitEnabled bool          `env:"SFT_RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitMax     int           `env:"SFT_RATE_LIMIT_MAX" envDefault:"60"`
	RateLimitWindow  time.Duration `env:"SFT_RATE_LIMIT_WINDOW" envDefault:"1m"`

	SignedURLSecret string        `env:"SFT_SIGNED_URL_SECRET"`
	SignedURLTTL    time.Duration `env:"SFT_SIGNED_URL_TTL" envDefault:"60s"`
	SignedURLMaxTTL time.Duration `env:"SFT_SIGNED_URL_MAX_TTL" envDefault:"24h"`
	SignedURLBindIP bool          `env:"SFT_SIGNED_URL_BIND_IP" envDefault:"true"`

	MaxUploadBytes   int64    `env:"SFT_MAX_UPLOAD_BYTES" envDefault:"104857600"`
	AllowedMimeTypes []string `env:"SFT_ALLOWED_MIMES" envSeparator:"," envDefault:"application/pdf,image/jpeg,image/png,application/zip"`

	StorageBackend string `env:"SFT_STORAGE_BACKEND" envDefault:"fs"`
	StoragePath    string `env:"SFT_STORAGE_PATH" envDefault:"./data/secure-transfers"`
	S3Endpoint     string `env:"SFT_S3_ENDPOINT"`
	S3AccessKey    string `env:"SFT_S3_ACCESS_KEY"`
	S3SecretKey    string `env:"SFT_S3_SECRET_KEY"`
	Bucket         string `env:"SFT_BUCKET"`

	KVBackend string `env:"SFT_KV_BACKEND" envDefault:"memory"`
	RedisURL  string `env:"REDIS_URL"`

	DatabaseURL  string `env:"DATABASE_URL"`
	AuditLogIP   bool   `env:"SFT_AUDIT_LOG_IP" envDefault:"true"`
	AuditLogHash bool   `env:"SFT_AUDIT_LOG_HASH" envDefault:"true"`

	SweepEnabled  bool          `env:"SFT_SWEEP_ENABLED" envDefault:"false"`
	SweepInterval time.Duration `env:"SFT_SWEEP_INTERVAL" envDefault:"1h"`
	SweepMinAge   time.Duration `env:"SFT_SWEEP_MIN_AGE" envDefault:"1h"`

	OTLPEndpoint string `env:"SFT_OTLP_ENDPOINT"`

	LogLevel  string `env:"SFT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"SFT_LOG_FORMAT" envDefault:"text"`
	Env       string `env:"SFT_ENV" envDefault:"development"`

	Version string `env:"SFT_VERSION" envDefault:"dev"`
	Commit  string `env:"SFT_COMMIT" envDefault:"unknown"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.AuthStrategy = strings.ToLower(strings.TrimSpace(cfg.AuthStrategy))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded values and reports every problem at once.
func (c Config) Validate() error {
	v := NewValidator()

	v.ValidateEnum("SFT_AUTH_STRATEGY", c.AuthStrategy, []string{"bearer", "hmac", "jwt"})
	switch c.AuthStrategy {
	case "bearer":
		v.ValidateRequired("SFT_BEARER_TOKEN", c.BearerToken)
		v.ValidateMinLength("SFT_BEARER_TOKEN", c.BearerToken, minSecretLength)
	case "hmac":
		v.ValidateRequired("SFT_HMAC_SECRET", c.HMACSecret)
		v.ValidateMinLength("SFT_HMAC_SECRET", c.HMACSecret, minSecretLength)
		v.ValidatePositive("SFT_HMAC_TOLERANCE", int64(c.HMACTolerance))
		v.ValidatePositive("SFT_NONCE_TTL", int64(c.NonceTTL))
		if c.NonceTTL < 2*c.HMACTolerance {
			v.AddError("SFT_NONCE_TTL", "must be at least twice SFT_HMAC_TOLERANCE")
		}
	case "jwt":
		if strings.HasPrefix(strings.ToUpper(c.JWTAlgorithm), "HS") {
			v.ValidateRequired("SFT_JWT_SECRET", c.JWTSecret)
			v.ValidateMinLength("SFT_JWT_SECRET", c.JWTSecret, minSecretLength)
		} else {
			v.ValidateRequired("SFT_JWT_PUBLIC_KEY", c.JWTPublicKeyPEM)
		}
		v.ValidateRequired("SFT_JWT_ISSUER", c.JWTIssuer)
	}

	v.ValidateRequired("SFT_SIGNED_URL_SECRET", c.SignedURLSecret)
	v.ValidateMinLength("SFT_SIGNED_URL_SECRET", c.SignedURLSecret, minSecretLength)
	v.ValidatePositive("SFT_SIGNED_URL_TTL", int64(c.SignedURLTTL))
	if c.SignedURLMaxTTL < c.SignedURLTTL {
		v.AddError("SFT_SIGNED_URL_MAX_TTL", "must not be shorter than SFT_SIGNED_URL_TTL")
	}
	v.ValidateRequired("SFT_PUBLIC_BASE_URL", c.PublicBaseURL)
	v.ValidateURL("SFT_PUBLIC_BASE_URL", c.PublicBaseURL)

	if c.RateLimitEnabled {
		v.ValidatePositive("SFT_RATE_LIMIT_MAX", int64(c.RateLimitMax))
		v.ValidatePositive("SFT_RATE_LIMIT_WINDOW", int64(c.RateLimitWindow))
	}

	v.ValidatePositive("SFT_MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	if len(c.AllowedMimeTypes) == 0 {
		v.AddError("SFT_ALLOWED_MIMES", "at least one MIME type is required")
	}

	v.ValidateEnum("SFT_STORAGE_BACKEND", c.StorageBackend, []string{"fs", "minio"})
	switch c.StorageBackend {
	case "fs":
		v.ValidateRequired("SFT_STORAGE_PATH", c.StoragePath)
	case "minio":
		v.ValidateRequired("SFT_S3_ENDPOINT", c.S3Endpoint)
		v.ValidateRequired("SFT_S3_ACCESS_KEY", c.S3AccessKey)
		v.ValidateRequired("SFT_S3_SECRET_KEY", c.S3SecretKey)
		v.ValidateRequired("SFT_BUCKET", c.Bucket)
	}

	v.ValidateEnum("SFT_KV_BACKEND", c.KVBackend, []string{"memory", "redis"})
	if c.KVBackend == "redis" {
		v.ValidateRequired("REDIS_URL", c.RedisURL)
	}

	if c.DatabaseURL != "" &&
		!strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		v.AddError("DATABASE_URL", "must be a valid PostgreSQL connection string")
	}

	if c.SweepEnabled {
		v.ValidatePositive("SFT_SWEEP_INTERVAL", int64(c.SweepInterval))
	}

	v.ValidateEnum("SFT_LOG_FORMAT", c.LogFormat, []string{"json", "text"})
	v.ValidateEnum("SFT_LOG_LEVEL", c.LogLevel, []string{"debug", "info", "warn", "error"})
	v.ValidateEnum("SFT_ENV", c.Env, []string{"development", "staging", "production"})

	if v.HasErrors() {
		return fmt.Errorf("%s", v.ErrorString())
	}
	return nil
}

// WarnOnRiskySettings logs settings that are legal but unwise.
func (c Config) WarnOnRiskySettings() {
	warnings := make([]string, 0)

	if c.KVBackend == "memory" {
		warnings = append(warnings, "SFT_KV_BACKEND=memory - nonce, rate and signed-url state is per process")
	}
	if !c.SignedURLBindIP {
		warnings = append(warnings, "SFT_SIGNED_URL_BIND_IP=false - signed urls work from any address")
	}
	if !c.RateLimitEnabled {
		warnings = append(warnings, "SFT_RATE_LIMIT_ENABLED=false - authenticated callers are not rate limited")
	}
	if c.Env == "production" && strings.HasPrefix(c.PublicBaseURL, "http://") {
		warnings = append(warnings, "SFT_PUBLIC_BASE_URL uses http in production")
	}
	if c.DatabaseURL == "" {
		warnings = append(warnings, "DATABASE_URL not set - audit events go to the log only")
	}

	if len(warnings) > 0 {
		logging.Warn("configuration warnings", map[string]any{
			"count":    len(warnings),
			"warnings": warnings,
		})
	}
}
