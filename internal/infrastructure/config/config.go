package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Backend names accepted by USER_BACKEND and SESSION_BACKEND.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth     AuthConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Postgres PostgresConfig

	UserBackend    string `env:"USER_BACKEND,    default=mongo"`
	SessionBackend string `env:"SESSION_BACKEND, default=redis"`

	SessionPurgeInterval time.Duration `env:"SESSION_PURGE_INTERVAL, default=1h"`
	// LoginRateLimit is the sustained request rate per client IP on the
	// credential endpoints. Zero disables limiting.
	LoginRateLimit float64 `env:"LOGIN_RATE_LIMIT, default=5"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET, required"`
	JWTIssuer string `env:"JWT_ISSUER, default=auth-service"`
	// TTLs are whole seconds at the configuration boundary.
	AccessTokenTTLSeconds  int64  `env:"ACCESS_TOKEN_TTL_SECONDS,  default=900"`
	RefreshTokenTTLSeconds int64  `env:"REFRESH_TOKEN_TTL_SECONDS, default=604800"`
	MaxLoginAttempts       int    `env:"MAX_LOGIN_ATTEMPTS,        default=5"`
	MaxActiveSessions      int    `env:"MAX_ACTIVE_SESSIONS,       default=5"`
	DefaultRole            string `env:"DEFAULT_ROLE,              default=ROLE_RECEPTIONIST"`
	BcryptCost             int    `env:"BCRYPT_COST,               default=12"`
}

// AccessTokenTTL returns the access-token lifetime.
func (c AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLSeconds) * time.Second
}

// RefreshTokenTTL returns the refresh-session lifetime.
func (c AuthConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLSeconds) * time.Second
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=auth_service"`
}

type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR,       default=localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB,         default=0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX, default=auth:"`
}

type PostgresConfig struct {
	URL string `env:"DATABASE_URL"`
}

// IsDevelopment reports whether the service runs outside production.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration through an arbitrary lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	a := c.Auth
	if len(a.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if a.AccessTokenTTLSeconds <= 0 || a.RefreshTokenTTLSeconds <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	} else if a.AccessTokenTTLSeconds >= a.RefreshTokenTTLSeconds {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL_SECONDS must be shorter than REFRESH_TOKEN_TTL_SECONDS"))
	}
	if a.MaxLoginAttempts <= 0 {
		errs = append(errs, errors.New("MAX_LOGIN_ATTEMPTS must be positive"))
	}
	if a.MaxActiveSessions <= 0 {
		errs = append(errs, errors.New("MAX_ACTIVE_SESSIONS must be positive"))
	}
	if !strings.HasPrefix(a.DefaultRole, "ROLE_") {
		errs = append(errs, fmt.Errorf("DEFAULT_ROLE %q must start with ROLE_", a.DefaultRole))
	}

	switch c.UserBackend {
	case BackendMongo, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("USER_BACKEND %q is not one of mongo, memory", c.UserBackend))
	}
	switch c.SessionBackend {
	case BackendRedis, BackendMemory:
	case BackendPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when SESSION_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_BACKEND %q is not one of redis, postgres, memory", c.SessionBackend))
	}
	if c.SessionPurgeInterval < 0 {
		errs = append(errs, errors.New("SESSION_PURGE_INTERVAL must not be negative"))
	}
	if c.LoginRateLimit < 0 {
		errs = append(errs, errors.New("LOGIN_RATE_LIMIT must not be negative"))
	}

	return errors.Join(errs...)
}
